package fleet

import (
	log "github.com/sirupsen/logrus"

	"github.com/spring-autohost/cluster-manager/config"
	"github.com/spring-autohost/cluster-manager/event"
	"github.com/spring-autohost/cluster-manager/fleet/types"
)

// SweepLiveness classifies every tracked instance and removes the ones
// that exited or crashed. It returns the clusters whose public pool lost
// an instance, so the caller can re-provision them. Detection always runs
// before provisioning within a tick.
func (f *fleet) SweepLiveness() []string {
	f.rw.Lock()
	defer f.rw.Unlock()

	now := f.clock()
	reprovision := map[string]bool{}

	for _, instance := range f.index.All() {
		// A worker that left cleanly wrote its exiting marker; this is
		// not a crash.
		if f.store.HasExiting(instance.InstanceNumber) {
			log.Infof("Instance %s exited cleanly", instance.Name)
			if err := f.store.ConsumeExiting(instance.InstanceNumber); err != nil {
				log.Errorf("Error consuming exiting marker of %s. Got: %v", instance.Name, err)
			}
			f.removeInstance(instance, false)
			if instance.IsPublic() {
				reprovision[instance.ClusterID] = true
			}
			continue
		}

		starting := instance.Lifecycle == types.StateLaunched || instance.Lifecycle == types.StateRestarting
		if starting && config.StartingInstanceTimeout > 0 &&
			now.Sub(instance.StateSince) >= config.StartingInstanceTimeout {
			if f.refreshFromRecord(instance) {
				continue
			}
			log.Warnf("Instance %s never reached running within %v, treating as crashed", instance.Name, config.StartingInstanceTimeout)
			f.removeInstance(instance, true)
			if instance.IsPublic() {
				reprovision[instance.ClusterID] = true
			}
			continue
		}

		offline := instance.Presence == types.PresenceOffline || instance.Presence == types.PresenceStuck
		if offline && instance.ProcessID > 0 && !f.spawner.Alive(instance.ProcessID) {
			log.Warnf("Instance %s (pid %d) is gone without an exiting marker, treating as crashed", instance.Name, instance.ProcessID)
			f.removeInstance(instance, true)
			if instance.IsPublic() {
				reprovision[instance.ClusterID] = true
			}
			continue
		}

		if instance.Presence == types.PresenceOffline && config.OfflineInstanceTimeout > 0 &&
			now.Sub(instance.PresenceSince) >= config.OfflineInstanceTimeout {
			log.Warnf("Instance %s has been offline for %v, marking stuck", instance.Name, now.Sub(instance.PresenceSince))
			instance.SetPresence(types.PresenceStuck)
		}
	}

	f.setGauges()

	clusters := make([]string, 0, len(reprovision))
	for id := range reprovision {
		clusters = append(clusters, id)
	}
	return clusters
}

// refreshFromRecord re-reads an apparently stuck instance's record under
// its lock and reports whether the on-disk state shows progress after all.
func (f *fleet) refreshFromRecord(instance *types.Instance) bool {
	lock, err := f.store.Acquire(instance.InstanceNumber)
	if err != nil {
		log.Errorf("Cannot lock instance %s for a fresh snapshot. Got: %v", instance.Name, err)
		return false
	}
	defer lock.Release()

	record, kind, err := lock.Read()
	if err != nil {
		log.Errorf("Cannot re-read record of instance %s. Got: %v", instance.Name, err)
		return false
	}
	if kind == types.StateLaunched || kind == types.StateRestarting {
		return false
	}

	instance.SetLifecycle(kind)
	if record.ProcessID != 0 {
		instance.ProcessID = record.ProcessID
	}
	log.Infof("Instance %s advanced to %s on disk", instance.Name, kind)
	return true
}

// removeInstance drops an instance from all indices and deletes its record
// and lock files so the instance number can be reused.
func (f *fleet) removeInstance(instance *types.Instance, crashed bool) {
	f.index.Remove(instance.InstanceNumber)

	lock, err := f.store.Acquire(instance.InstanceNumber)
	if err != nil {
		log.Errorf("Cannot lock instance %s for removal. Got: %v", instance.Name, err)
	} else {
		if err := lock.RemoveAll(); err != nil {
			log.Errorf("Error removing files of instance %s. Got: %v", instance.Name, err)
		}
		lock.Release()
	}

	if crashed {
		crashesCounter.Inc()
		f.event.Emit(event.INSTANCE_CRASHED, instance.Name, instance.ClusterID)
	}
	f.event.Emit(event.INSTANCE_REMOVED, instance.Name, instance.ClusterID)
}
