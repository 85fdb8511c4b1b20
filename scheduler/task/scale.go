package task

import (
	"context"

	"github.com/spring-autohost/cluster-manager/fleet"
)

// scalePools tops up every cluster's spare pool and prunes excess old
// spares. It runs after the liveness sweep of the same tick, so it always
// sees a consistent fleet snapshot.
type scalePools struct {
	fleet fleet.FleetApi
}

func NewScalePools(f fleet.FleetApi) *scalePools {
	return &scalePools{fleet: f}
}

func (s *scalePools) Name() string {
	return "scalePools"
}

func (s *scalePools) Run(ctx context.Context) error {
	s.fleet.Provision()
	s.fleet.Prune()
	return nil
}
