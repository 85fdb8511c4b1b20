package fleet

import (
	"github.com/stretchr/testify/mock"

	"github.com/spring-autohost/cluster-manager/fleet/types"
)

type Mock struct {
	mock.Mock
}

func (m *Mock) Rebuild() error {
	args := m.Called()
	return args.Error(0)
}

func (m *Mock) HostNew(clusterID, owner, password string) (*types.Instance, error) {
	args := m.Called(clusterID, owner, password)
	instance, _ := args.Get(0).(*types.Instance)
	return instance, args.Error(1)
}

func (m *Mock) SweepLiveness() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *Mock) Provision() {
	m.Called()
}

func (m *Mock) ProvisionCluster(clusterID string) {
	m.Called(clusterID)
}

func (m *Mock) Prune() {
	m.Called()
}

func (m *Mock) Unload() error {
	args := m.Called()
	return args.Error(0)
}

func (m *Mock) InstanceByName(name string) *types.Instance {
	args := m.Called(name)
	instance, _ := args.Get(0).(*types.Instance)
	return instance
}

func (m *Mock) Instances(clusterID string) []*types.Instance {
	args := m.Called(clusterID)
	return args.Get(0).([]*types.Instance)
}

func (m *Mock) ClusterIDs() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *Mock) Cluster(clusterID string) (*types.ClusterConfig, bool) {
	args := m.Called(clusterID)
	cluster, _ := args.Get(0).(*types.ClusterConfig)
	return cluster, args.Bool(1)
}

func (m *Mock) Status(clusterID string) ClusterStatus {
	args := m.Called(clusterID)
	return args.Get(0).(ClusterStatus)
}
