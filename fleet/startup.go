package fleet

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/spring-autohost/cluster-manager/fleet/types"
)

// Rebuild enumerates the record directory once at manager startup and
// reconstructs the in-memory index, cross-checking against current lobby
// presence. A record that cannot be read skips that instance only; a
// duplicate name or owner across readable records means the fleet state is
// ambiguous and startup must fail.
func (f *fleet) Rebuild() error {
	f.rw.Lock()
	defer f.rw.Unlock()

	entries, err := f.store.List()
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.Record == nil {
			log.Errorf("Skipping unreadable record of instance %d", entry.Number)
			continue
		}
		record := entry.Record
		if record.InstanceNumber != entry.Number {
			log.Errorf("Skipping record of instance %d claiming number %d", entry.Number, record.InstanceNumber)
			continue
		}

		instance, err := types.NewInstance(record.InstanceNumber, record.InstanceName, record.ClusterPreset, record.ClusterInstanceNumber, record.OwnerName)
		if err != nil {
			log.Errorf("Skipping invalid record of instance %d. Got: %v", entry.Number, err)
			continue
		}
		instance.SetLifecycle(entry.Kind)
		instance.ProcessID = record.ProcessID

		if f.lobby.Connected(instance.Name) {
			if f.lobby.InBattle(instance.Name) {
				instance.SetPresence(types.PresenceInUse)
			} else {
				instance.SetPresence(types.PresenceSpare)
			}
		}

		if err := f.index.Add(instance); err != nil {
			return errors.Wrap(err, "fleet state is ambiguous")
		}
		log.Infof("Recovered instance %s (%s, %s)", instance.Name, instance.Lifecycle, instance.Presence)
	}

	f.setGauges()
	return nil
}

// Unload performs the manager side of a graceful handoff: every spare
// public instance is asked to exit. Workers hosting a game keep running
// and will be recovered by the next manager's rebuild.
func (f *fleet) Unload() error {
	f.rw.Lock()
	spares := []*types.Instance{}
	for _, instance := range f.index.All() {
		if instance.IsPublic() && instance.Presence == types.PresenceSpare {
			spares = append(spares, instance)
		}
	}
	f.rw.Unlock()

	g, _ := errgroup.WithContext(context.Background())
	for _, instance := range spares {
		instance := instance
		g.Go(func() error {
			return f.lobby.SayPrivate(instance.Name, ExitRequest)
		})
	}
	if err := g.Wait(); err != nil {
		log.Errorf("Error asking spares to exit during unload. Got: %v", err)
		return err
	}
	log.Infof("Asked %d spare instances to exit", len(spares))
	return nil
}
