package fleet

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/spring-autohost/cluster-manager/config"
	"github.com/spring-autohost/cluster-manager/event"
	"github.com/spring-autohost/cluster-manager/fleet/types"
	"github.com/spring-autohost/cluster-manager/id"
	"github.com/spring-autohost/cluster-manager/lobby"
	"github.com/spring-autohost/cluster-manager/pidfile"
	"github.com/spring-autohost/cluster-manager/spawn"
	"github.com/spring-autohost/cluster-manager/storage"
)

var (
	instancesGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleet_instances",
		Help: "Tracked instances per cluster",
	}, []string{"cluster"})
	sparesGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleet_spares",
		Help: "Spare public instances per cluster",
	}, []string{"cluster"})
	crashesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_crashes_total",
		Help: "Instances classified as crashed",
	})
)

func init() {
	prometheus.MustRegister(instancesGauge)
	prometheus.MustRegister(sparesGauge)
	prometheus.MustRegister(crashesCounter)
}

// Admission rejection reasons. Each maps to a user-visible message on the
// command surface.
var (
	ErrUnknownCluster     = errors.New("unknown cluster")
	ErrOwnerHasInstance   = errors.New("you already have a private host")
	ErrClusterFull        = errors.New("cluster instance limit reached")
	ErrClusterPublicFull  = errors.New("cluster public instance limit reached")
	ErrClusterPrivateFull = errors.New("cluster private instance limit reached")
	ErrFleetFull          = errors.New("fleet instance limit reached")
	ErrFleetPublicFull    = errors.New("fleet public instance limit reached")
	ErrFleetPrivateFull   = errors.New("fleet private instance limit reached")
	ErrNameCollision      = errors.New("instance name already in use")
	ErrBadName            = errors.New("instance name is not a valid identifier")
)

// ClusterStatus is the per-cluster occupancy summary used by the command
// surface and the admin endpoint.
type ClusterStatus struct {
	ID         string `json:"id"`
	Configured bool   `json:"configured"`
	Total      int    `json:"total"`
	Public     int    `json:"public"`
	Private    int    `json:"private"`
	Spare      int    `json:"spare"`
	InUse      int    `json:"in_use"`
	Offline    int    `json:"offline"`
	Stuck      int    `json:"stuck"`
}

type FleetApi interface {
	Rebuild() error
	HostNew(clusterID, owner, password string) (*types.Instance, error)
	SweepLiveness() []string
	Provision()
	ProvisionCluster(clusterID string)
	Prune()
	Unload() error

	InstanceByName(name string) *types.Instance
	Instances(clusterID string) []*types.Instance
	ClusterIDs() []string
	Cluster(clusterID string) (*types.ClusterConfig, bool)
	Status(clusterID string) ClusterStatus
}

type fleet struct {
	rw sync.Mutex

	presets   *config.PresetStore
	store     *pidfile.Store
	spawner   spawn.SpawnApi
	lobby     lobby.ClientApi
	event     event.EventApi
	storage   storage.StorageApi
	generator id.GeneratorApi

	index     *Index
	lastPrune map[string]time.Time

	// clock is swapped in tests to fake timeout expiry.
	clock func() time.Time
}

func NewFleet(presets *config.PresetStore, store *pidfile.Store, spawner spawn.SpawnApi, l lobby.ClientApi, e event.EventApi, s storage.StorageApi, g id.GeneratorApi) *fleet {
	f := &fleet{
		presets:   presets,
		store:     store,
		spawner:   spawner,
		lobby:     l,
		event:     e,
		storage:   s,
		generator: g,
		index:     NewIndex(),
		lastPrune: map[string]time.Time{},
		clock:     time.Now,
	}
	f.registerPresenceHandlers()
	return f
}

func (f *fleet) InstanceByName(name string) *types.Instance {
	f.rw.Lock()
	defer f.rw.Unlock()
	return f.index.ByName(name)
}

// Instances returns the tracked instances of one cluster, or of the whole
// fleet when clusterID is empty.
func (f *fleet) Instances(clusterID string) []*types.Instance {
	f.rw.Lock()
	defer f.rw.Unlock()
	if clusterID == "" {
		return f.index.All()
	}
	return f.index.ByCluster(clusterID)
}

// ClusterIDs lists configured clusters plus any cluster that still has
// tracked instances after being removed from the configuration.
func (f *fleet) ClusterIDs() []string {
	f.rw.Lock()
	defer f.rw.Unlock()

	seen := map[string]bool{}
	ids := []string{}
	for _, id := range f.presets.ClusterIDs() {
		seen[id] = true
		ids = append(ids, id)
	}
	for _, id := range f.index.ClusterIDs() {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

func (f *fleet) Cluster(clusterID string) (*types.ClusterConfig, bool) {
	return f.presets.Cluster(clusterID)
}

func (f *fleet) Status(clusterID string) ClusterStatus {
	f.rw.Lock()
	defer f.rw.Unlock()
	return f.status(clusterID)
}

func (f *fleet) status(clusterID string) ClusterStatus {
	_, configured := f.presets.Cluster(clusterID)
	status := ClusterStatus{ID: clusterID, Configured: configured}
	for _, instance := range f.index.ByCluster(clusterID) {
		status.Total++
		if instance.IsPublic() {
			status.Public++
		} else {
			status.Private++
		}
		switch instance.Presence {
		case types.PresenceSpare:
			status.Spare++
		case types.PresenceInUse:
			status.InUse++
		case types.PresenceOffline:
			status.Offline++
		case types.PresenceStuck:
			status.Stuck++
		}
	}
	return status
}

func (f *fleet) setGauges() {
	for _, id := range f.presets.ClusterIDs() {
		status := f.status(id)
		instancesGauge.WithLabelValues(id).Set(float64(status.Total))
		sparesGauge.WithLabelValues(id).Set(float64(status.Spare))
	}
}
