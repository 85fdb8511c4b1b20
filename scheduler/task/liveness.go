package task

import (
	"context"

	"github.com/spring-autohost/cluster-manager/fleet"
)

// checkLiveness sweeps the fleet for exited, crashed, or stuck instances,
// then re-provisions the clusters that lost public instances.
type checkLiveness struct {
	fleet fleet.FleetApi
}

func NewCheckLiveness(f fleet.FleetApi) *checkLiveness {
	return &checkLiveness{fleet: f}
}

func (c *checkLiveness) Name() string {
	return "checkLiveness"
}

func (c *checkLiveness) Run(ctx context.Context) error {
	for _, clusterID := range c.fleet.SweepLiveness() {
		c.fleet.ProvisionCluster(clusterID)
	}
	return nil
}
