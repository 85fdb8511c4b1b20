package types

import (
	"fmt"
	"time"
)

// PublicOwner is the sentinel owner of shared-pool instances.
const PublicOwner = "*"

type LifecycleState string

const (
	StateLaunched   LifecycleState = "launched"
	StateRunning    LifecycleState = "running"
	StateRestarting LifecycleState = "restarting"
	StateReloading  LifecycleState = "reloading"
	StateUnloaded   LifecycleState = "unloaded"
	StateExiting    LifecycleState = "exiting"
	StateCrashed    LifecycleState = "crashed"
)

type PresenceState string

const (
	PresenceOffline PresenceState = "offline"
	PresenceSpare   PresenceState = "spare"
	PresenceInUse   PresenceState = "inUse"
	PresenceStuck   PresenceState = "stuck"
)

// Instance is one supervised autohost worker process.
type Instance struct {
	InstanceNumber        int            `json:"instance_number"`
	Name                  string         `json:"name"`
	ClusterID             string         `json:"cluster_id"`
	ClusterInstanceNumber int            `json:"cluster_instance_number"`
	Owner                 string         `json:"owner"`
	ProcessID             int            `json:"process_id"`
	Lifecycle             LifecycleState `json:"lifecycle"`
	Presence              PresenceState  `json:"presence"`

	// StateSince tracks when Lifecycle last changed, PresenceSince when
	// Presence last changed. Both drive the timeout checks of the
	// reconciliation tick.
	StateSince    time.Time `json:"state_since"`
	PresenceSince time.Time `json:"presence_since"`
}

func NewInstance(number int, name, clusterID string, clusterNumber int, owner string) (*Instance, error) {
	if name == "" {
		return nil, fmt.Errorf("instance %d has no name", number)
	}
	if clusterID == "" {
		return nil, fmt.Errorf("instance %s has no cluster", name)
	}
	if owner == "" {
		return nil, fmt.Errorf("instance %s has no owner", name)
	}
	if number < 0 || clusterNumber < 0 {
		return nil, fmt.Errorf("instance %s has a negative number", name)
	}
	now := time.Now()
	return &Instance{
		InstanceNumber:        number,
		Name:                  name,
		ClusterID:             clusterID,
		ClusterInstanceNumber: clusterNumber,
		Owner:                 owner,
		Lifecycle:             StateLaunched,
		Presence:              PresenceOffline,
		StateSince:            now,
		PresenceSince:         now,
	}, nil
}

func (i *Instance) IsPublic() bool {
	return i.Owner == PublicOwner
}

func (i *Instance) SetLifecycle(s LifecycleState) {
	if i.Lifecycle == s {
		return
	}
	i.Lifecycle = s
	i.StateSince = time.Now()
}

func (i *Instance) SetPresence(p PresenceState) {
	if i.Presence == p {
		return
	}
	i.Presence = p
	i.PresenceSince = time.Now()
}
