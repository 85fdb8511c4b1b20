package config

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/spring-autohost/cluster-manager/fleet/types"
)

// PresetStore resolves raw key/value cluster presets, with single-parent
// inheritance through the "extends" key, into ClusterConfig values. The
// file format the raw values come from is the host program's concern.
type PresetStore struct {
	clusters map[string]*types.ClusterConfig
}

const presetExtendsKey = "extends"

// NewPresetStore resolves every preset eagerly so configuration errors
// surface at startup, not at admission time.
func NewPresetStore(raw map[string]map[string]string) (*PresetStore, error) {
	store := &PresetStore{clusters: map[string]*types.ClusterConfig{}}
	for id := range raw {
		flat, err := flatten(raw, id, nil)
		if err != nil {
			return nil, err
		}
		cluster, err := resolve(id, flat)
		if err != nil {
			return nil, err
		}
		store.clusters[id] = cluster
	}
	if ShareArchiveCache && !SequentialUnitsync {
		log.Warn("shareArchiveCache without sequentialUnitsync risks corrupting the archive cache")
	}
	return store, nil
}

func flatten(raw map[string]map[string]string, id string, seen []string) (map[string]string, error) {
	for _, s := range seen {
		if s == id {
			return nil, errors.Errorf("preset inheritance cycle through %s", id)
		}
	}
	values, found := raw[id]
	if !found {
		return nil, errors.Errorf("preset %s extends unknown preset", id)
	}

	flat := map[string]string{}
	if parent, ok := values[presetExtendsKey]; ok {
		inherited, err := flatten(raw, parent, append(seen, id))
		if err != nil {
			return nil, err
		}
		for k, v := range inherited {
			flat[k] = v
		}
	}
	for k, v := range values {
		if k == presetExtendsKey {
			continue
		}
		flat[k] = v
	}
	return flat, nil
}

func resolve(id string, flat map[string]string) (*types.ClusterConfig, error) {
	cluster := &types.ClusterConfig{
		ID:            id,
		PublicMacros:  map[string]string{},
		PrivateMacros: map[string]string{},
	}
	for key, value := range flat {
		var err error
		switch {
		case key == "targetSpares":
			cluster.TargetSpares, err = strconv.Atoi(value)
		case key == "maxInstances":
			cluster.MaxInstances, err = strconv.Atoi(value)
		case key == "maxInstancesPublic":
			cluster.MaxInstancesPublic, err = strconv.Atoi(value)
		case key == "maxInstancesPrivate":
			cluster.MaxInstancesPrivate, err = strconv.Atoi(value)
		case key == "nameTemplate":
			cluster.NameTemplate = value
		case strings.HasPrefix(key, "public."):
			cluster.PublicMacros[strings.TrimPrefix(key, "public.")] = value
		case strings.HasPrefix(key, "private."):
			cluster.PrivateMacros[strings.TrimPrefix(key, "private.")] = value
		default:
			return nil, errors.Errorf("preset %s has unknown key %s", id, key)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "preset %s key %s", id, key)
		}
	}
	if cluster.NameTemplate == "" {
		return nil, errors.Errorf("preset %s has no nameTemplate", id)
	}
	return cluster, nil
}

func (s *PresetStore) Cluster(id string) (*types.ClusterConfig, bool) {
	c, found := s.clusters[id]
	return c, found
}

func (s *PresetStore) ClusterIDs() []string {
	ids := make([]string, 0, len(s.clusters))
	for id := range s.clusters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
