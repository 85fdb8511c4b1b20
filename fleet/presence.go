package fleet

import (
	log "github.com/sirupsen/logrus"

	"github.com/spring-autohost/cluster-manager/event"
	"github.com/spring-autohost/cluster-manager/fleet/types"
)

// registerPresenceHandlers maps lobby events onto presence transitions of
// the matching instance. Events about users that are not workers of this
// fleet only feed the seen-users bookkeeping.
func (f *fleet) registerPresenceHandlers() {
	f.event.On(event.USER_APPEARED, func(username string, args ...interface{}) {
		if err := f.storage.UserMarkSeen(username); err != nil {
			log.Errorf("Cannot record user %s as seen. Got: %v", username, err)
		}
		f.presenceTransition(username, func(instance *types.Instance) {
			// The worker's lobby account is online, so the process made
			// it past startup.
			if instance.Lifecycle == types.StateLaunched || instance.Lifecycle == types.StateRestarting {
				instance.SetLifecycle(types.StateRunning)
			}
			instance.SetPresence(types.PresenceSpare)
		})
	})

	f.event.On(event.USER_DISAPPEARED, func(username string, args ...interface{}) {
		f.presenceTransition(username, func(instance *types.Instance) {
			instance.SetPresence(types.PresenceOffline)
		})
	})

	f.event.On(event.BATTLE_JOINED, func(username string, args ...interface{}) {
		f.presenceTransition(username, func(instance *types.Instance) {
			instance.SetPresence(types.PresenceInUse)
		})
	})

	f.event.On(event.BATTLE_LEFT, func(username string, args ...interface{}) {
		f.presenceTransition(username, func(instance *types.Instance) {
			instance.SetPresence(types.PresenceSpare)
		})
	})

	f.event.On(event.STATUS_CHANGED, func(username string, args ...interface{}) {
		f.presenceTransition(username, func(instance *types.Instance) {
			if instance.Presence == types.PresenceOffline || instance.Presence == types.PresenceStuck {
				return
			}
			if f.lobby.InBattle(username) {
				instance.SetPresence(types.PresenceInUse)
			} else {
				instance.SetPresence(types.PresenceSpare)
			}
		})
	})
}

func (f *fleet) presenceTransition(username string, apply func(*types.Instance)) {
	f.rw.Lock()
	defer f.rw.Unlock()

	instance := f.index.ByName(username)
	if instance == nil {
		return
	}
	before := instance.Presence
	apply(instance)
	if instance.Presence != before {
		log.Infof("Instance %s presence %s -> %s", instance.Name, before, instance.Presence)
		f.setGauges()
	}
}
