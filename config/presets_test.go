package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresetResolution(t *testing.T) {
	raw := map[string]map[string]string{
		"team": {
			"nameTemplate":       "TeamHost[%0C]",
			"targetSpares":       "2",
			"maxInstances":       "10",
			"maxInstancesPublic": "8",
			"public.modOptions":  "teamMode",
		},
	}

	store, err := NewPresetStore(raw)
	assert.Nil(t, err)

	cluster, found := store.Cluster("team")
	assert.True(t, found)
	assert.Equal(t, 2, cluster.TargetSpares)
	assert.Equal(t, 10, cluster.MaxInstances)
	assert.Equal(t, 8, cluster.MaxInstancesPublic)
	assert.Equal(t, "TeamHost[%0C]", cluster.NameTemplate)
	assert.Equal(t, map[string]string{"modOptions": "teamMode"}, cluster.PublicMacros)
}

func TestPresetInheritance(t *testing.T) {
	raw := map[string]map[string]string{
		"base": {
			"nameTemplate": "Host%N",
			"targetSpares": "1",
			"maxInstances": "5",
		},
		"duel": {
			"extends":      "base",
			"targetSpares": "3",
		},
	}

	store, err := NewPresetStore(raw)
	assert.Nil(t, err)

	cluster, found := store.Cluster("duel")
	assert.True(t, found)
	assert.Equal(t, 3, cluster.TargetSpares)
	assert.Equal(t, 5, cluster.MaxInstances)
	assert.Equal(t, "Host%N", cluster.NameTemplate)
}

func TestPresetInheritanceCycle(t *testing.T) {
	raw := map[string]map[string]string{
		"a": {"extends": "b", "nameTemplate": "A%N"},
		"b": {"extends": "a", "nameTemplate": "B%N"},
	}

	_, err := NewPresetStore(raw)
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestPresetUnknownKey(t *testing.T) {
	raw := map[string]map[string]string{
		"a": {"nameTemplate": "A%N", "bogus": "1"},
	}

	_, err := NewPresetStore(raw)
	assert.NotNil(t, err)
}

func TestPresetMissingNameTemplate(t *testing.T) {
	raw := map[string]map[string]string{
		"a": {"targetSpares": "1"},
	}

	_, err := NewPresetStore(raw)
	assert.NotNil(t, err)
}

func TestClusterIDsSorted(t *testing.T) {
	raw := map[string]map[string]string{
		"zulu":  {"nameTemplate": "Z%N"},
		"alpha": {"nameTemplate": "A%N"},
	}

	store, err := NewPresetStore(raw)
	assert.Nil(t, err)
	assert.Equal(t, []string{"alpha", "zulu"}, store.ClusterIDs())
}
