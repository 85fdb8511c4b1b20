package fleet

import (
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/spring-autohost/cluster-manager/config"
	"github.com/spring-autohost/cluster-manager/fleet/types"
)

// pruneCooldown rate-limits pruning per cluster.
const pruneCooldown = 5 * time.Second

// ExitRequest is the chat command whispered to a worker asking it to leave
// once its current game is over. Forced removal never happens here; the
// worker's own idle logic decides when to actually exit.
const ExitRequest = "!quit"

func (f *fleet) Provision() {
	for _, id := range f.presets.ClusterIDs() {
		f.ProvisionCluster(id)
	}
}

// ProvisionCluster grows a cluster's public pool until the spare target is
// met or a cap is hit. It stops on the first creation failure rather than
// retrying in a tight loop; the next tick will try again.
func (f *fleet) ProvisionCluster(clusterID string) {
	f.rw.Lock()
	defer f.rw.Unlock()

	cluster, found := f.presets.Cluster(clusterID)
	if !found {
		return
	}

	for {
		ready := f.index.CountClusterWhere(clusterID, func(i *types.Instance) bool {
			return i.IsPublic() && (i.Presence == types.PresenceSpare || i.Presence == types.PresenceOffline)
		})
		if ready >= cluster.TargetSpares {
			return
		}
		if capped(f.index.CountCluster(clusterID), cluster.MaxInstances) ||
			capped(f.index.CountClusterWhere(clusterID, isPublic), cluster.MaxInstancesPublic) ||
			capped(f.index.Count(), config.MaxInstances) ||
			capped(f.index.CountPublic(), config.MaxInstancesPublic) {
			return
		}

		if _, err := f.hostNew(clusterID, types.PublicOwner, ""); err != nil {
			log.Errorf("Cannot provision cluster %s. Got: %v", clusterID, err)
			return
		}
	}
}

// Prune asks excess old spares to exit. Candidates must have been spare
// for at least removeSpareInstanceDelay; only the excess beyond the spare
// target is asked, highest cluster-local number first. Instances of
// clusters that are no longer configured are pruned unconditionally.
func (f *fleet) Prune() {
	f.rw.Lock()
	defer f.rw.Unlock()

	now := f.clock()
	for _, clusterID := range f.index.ClusterIDs() {
		if last, found := f.lastPrune[clusterID]; found && now.Sub(last) < pruneCooldown {
			continue
		}
		f.lastPrune[clusterID] = now

		cluster, configured := f.presets.Cluster(clusterID)
		if !configured {
			// Nothing will ever reuse these, private spares included.
			for _, instance := range f.index.ByCluster(clusterID) {
				if instance.Presence == types.PresenceSpare {
					f.askToExit(instance)
				}
			}
			continue
		}

		var oldSpares []*types.Instance
		for _, instance := range f.index.ByCluster(clusterID) {
			if instance.IsPublic() && instance.Presence == types.PresenceSpare &&
				now.Sub(instance.PresenceSince) >= config.RemoveSpareInstanceDelay {
				oldSpares = append(oldSpares, instance)
			}
		}
		if len(oldSpares) <= cluster.TargetSpares {
			continue
		}

		sort.Slice(oldSpares, func(i, j int) bool {
			return oldSpares[i].ClusterInstanceNumber > oldSpares[j].ClusterInstanceNumber
		})
		for _, instance := range oldSpares[:len(oldSpares)-cluster.TargetSpares] {
			f.askToExit(instance)
		}
	}
}

func (f *fleet) askToExit(instance *types.Instance) {
	log.Infof("Asking instance %s to exit when idle", instance.Name)
	if err := f.lobby.SayPrivate(instance.Name, ExitRequest); err != nil {
		log.Errorf("Cannot ask instance %s to exit. Got: %v", instance.Name, err)
	}
}
