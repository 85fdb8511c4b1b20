package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spring-autohost/cluster-manager/fleet"
	"github.com/spring-autohost/cluster-manager/fleet/types"
)

func TestPrivateHost(t *testing.T) {
	f := &fleet.Mock{}
	instance, _ := types.NewInstance(0, "DuelHost[01]", "duel", 1, "alice")
	f.On("HostNew", "duel", "alice", "secret").Return(instance, nil)

	c := NewCommands(f)
	out, err := c.Handle("alice", "privateHost duel secret")

	assert.Nil(t, err)
	assert.Contains(t, out, "DuelHost[01]")
	f.AssertExpectations(t)
}

func TestPrivateHostDefaultsToFirstCluster(t *testing.T) {
	f := &fleet.Mock{}
	instance, _ := types.NewInstance(0, "DuelHost[01]", "duel", 1, "alice")
	f.On("ClusterIDs").Return([]string{"duel", "team"})
	f.On("HostNew", "duel", "alice", "").Return(instance, nil)

	c := NewCommands(f)
	_, err := c.Handle("alice", "privateHost")

	assert.Nil(t, err)
	f.AssertExpectations(t)
}

func TestPrivateHostRejection(t *testing.T) {
	f := &fleet.Mock{}
	f.On("HostNew", "duel", "alice", "").Return(nil, fleet.ErrOwnerHasInstance)

	c := NewCommands(f)
	_, err := c.Handle("alice", "privateHost duel")

	assert.Equal(t, fleet.ErrOwnerHasInstance, err)
}

func TestListClusters(t *testing.T) {
	f := &fleet.Mock{}
	f.On("ClusterIDs").Return([]string{"duel"})
	f.On("Cluster", "duel").Return(&types.ClusterConfig{
		ID:           "duel",
		TargetSpares: 2,
		MaxInstances: 10,
		NameTemplate: "DuelHost[%0C]",
	}, true)

	c := NewCommands(f)
	out, err := c.Handle("alice", "listClusters")

	assert.Nil(t, err)
	assert.Contains(t, out, "CLUSTER")
	assert.Contains(t, out, "duel")
	assert.Contains(t, out, "10")
	assert.Contains(t, out, "unlimited")
}

func TestClusterStatus(t *testing.T) {
	f := &fleet.Mock{}
	f.On("Status", "duel").Return(fleet.ClusterStatus{
		ID: "duel", Configured: true, Total: 3, Public: 2, Private: 1, Spare: 1, InUse: 1, Offline: 1,
	})

	c := NewCommands(f)
	out, err := c.Handle("alice", "clusterStatus duel")

	assert.Nil(t, err)
	assert.Contains(t, out, "duel")
	assert.Contains(t, out, "SPARE")
}

func TestClusterStatusMarksRemovedClusters(t *testing.T) {
	f := &fleet.Mock{}
	f.On("Status", "old").Return(fleet.ClusterStatus{ID: "old", Configured: false, Total: 1})

	c := NewCommands(f)
	out, err := c.Handle("alice", "clusterStatus old")

	assert.Nil(t, err)
	assert.Contains(t, out, "(removed)")
}

func TestClusterStats(t *testing.T) {
	f := &fleet.Mock{}
	f.On("ClusterIDs").Return([]string{"duel", "team"})
	f.On("Status", "duel").Return(fleet.ClusterStatus{Total: 2, Public: 2, Spare: 1, InUse: 1})
	f.On("Status", "team").Return(fleet.ClusterStatus{Total: 1, Private: 1, Offline: 1})

	c := NewCommands(f)
	out, err := c.Handle("alice", "clusterStats")

	assert.Nil(t, err)
	assert.Contains(t, out, "3 instances in 2 clusters")
	assert.Contains(t, out, "2 public")
	assert.Contains(t, out, "1 private")
}

func TestListInstances(t *testing.T) {
	f := &fleet.Mock{}
	a, _ := types.NewInstance(0, "DuelHost[01]", "duel", 1, types.PublicOwner)
	f.On("Instances", "").Return([]*types.Instance{a})

	c := NewCommands(f)
	out, err := c.Handle("alice", "listInstances")

	assert.Nil(t, err)
	assert.Contains(t, out, "DuelHost[01]")
	assert.Contains(t, out, "launched")
}

func TestListInstancesEmpty(t *testing.T) {
	f := &fleet.Mock{}
	f.On("Instances", "duel").Return([]*types.Instance{})

	c := NewCommands(f)
	out, err := c.Handle("alice", "listInstances duel")

	assert.Nil(t, err)
	assert.Equal(t, "No instances", out)
}

func TestUnknownCommand(t *testing.T) {
	c := NewCommands(&fleet.Mock{})

	_, err := c.Handle("alice", "selfDestruct")
	assert.NotNil(t, err)
}
