package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spring-autohost/cluster-manager/fleet/types"
)

func mustInstance(t *testing.T, number int, name, cluster string, clusterNumber int, owner string) *types.Instance {
	t.Helper()
	instance, err := types.NewInstance(number, name, cluster, clusterNumber, owner)
	assert.Nil(t, err)
	return instance
}

func TestIndexAddRejectsDuplicateName(t *testing.T) {
	index := NewIndex()

	assert.Nil(t, index.Add(mustInstance(t, 0, "Host[01]", "team", 1, types.PublicOwner)))
	err := index.Add(mustInstance(t, 1, "Host[01]", "team", 2, types.PublicOwner))
	assert.NotNil(t, err)
}

func TestIndexAddRejectsDuplicateOwner(t *testing.T) {
	index := NewIndex()

	assert.Nil(t, index.Add(mustInstance(t, 0, "Host[01]", "team", 1, "alice")))
	err := index.Add(mustInstance(t, 1, "Host[02]", "duel", 1, "alice"))
	assert.NotNil(t, err)

	// Public instances share the sentinel owner and never conflict.
	assert.Nil(t, index.Add(mustInstance(t, 2, "Host[03]", "team", 2, types.PublicOwner)))
	assert.Nil(t, index.Add(mustInstance(t, 3, "Host[04]", "team", 3, types.PublicOwner)))
}

func TestIndexNumberReuse(t *testing.T) {
	index := NewIndex()

	assert.Nil(t, index.Add(mustInstance(t, 0, "a", "team", 1, types.PublicOwner)))
	assert.Nil(t, index.Add(mustInstance(t, 1, "b", "team", 2, types.PublicOwner)))
	assert.Equal(t, 2, index.NextNumber())

	index.Remove(0)
	assert.Equal(t, 0, index.NextNumber())
}

func TestIndexNextClusterNumber(t *testing.T) {
	index := NewIndex()

	assert.Equal(t, 1, index.NextClusterNumber("team"))
	assert.Nil(t, index.Add(mustInstance(t, 0, "a", "team", 1, types.PublicOwner)))
	assert.Nil(t, index.Add(mustInstance(t, 1, "b", "team", 3, types.PublicOwner)))
	assert.Equal(t, 2, index.NextClusterNumber("team"))

	// Independent numbering per cluster.
	assert.Equal(t, 1, index.NextClusterNumber("duel"))
}

func TestIndexRemoveCleansAllMaps(t *testing.T) {
	index := NewIndex()

	assert.Nil(t, index.Add(mustInstance(t, 4, "Host[01]", "team", 1, "bob")))
	removed := index.Remove(4)
	assert.NotNil(t, removed)

	assert.Nil(t, index.ByNumber(4))
	assert.Nil(t, index.ByName("Host[01]"))
	assert.Nil(t, index.ByOwner("bob"))
	assert.Equal(t, 0, index.CountCluster("team"))

	assert.Nil(t, index.Remove(4))
}

func TestIndexByClusterSorted(t *testing.T) {
	index := NewIndex()

	assert.Nil(t, index.Add(mustInstance(t, 0, "c", "team", 3, types.PublicOwner)))
	assert.Nil(t, index.Add(mustInstance(t, 1, "a", "team", 1, types.PublicOwner)))
	assert.Nil(t, index.Add(mustInstance(t, 2, "b", "team", 2, types.PublicOwner)))

	members := index.ByCluster("team")
	assert.Len(t, members, 3)
	assert.Equal(t, 1, members[0].ClusterInstanceNumber)
	assert.Equal(t, 3, members[2].ClusterInstanceNumber)
}
