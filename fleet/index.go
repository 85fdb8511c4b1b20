package fleet

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/spring-autohost/cluster-manager/fleet/types"
)

// Index is the manager-owned in-memory view of the fleet. All maps are kept
// consistent by Add/Remove; nothing outside the fleet package mutates it.
type Index struct {
	byNumber  map[int]*types.Instance
	byName    map[string]*types.Instance
	byCluster map[string][]*types.Instance
	byOwner   map[string]*types.Instance
}

func NewIndex() *Index {
	return &Index{
		byNumber:  map[int]*types.Instance{},
		byName:    map[string]*types.Instance{},
		byCluster: map[string][]*types.Instance{},
		byOwner:   map[string]*types.Instance{},
	}
}

// Add rejects duplicate instance numbers, names, and non-public owners.
// These are the fleet-wide uniqueness invariants; a violation during
// startup rebuild means the on-disk state is ambiguous.
func (x *Index) Add(instance *types.Instance) error {
	if _, found := x.byNumber[instance.InstanceNumber]; found {
		return errors.Errorf("instance number %d is already tracked", instance.InstanceNumber)
	}
	if _, found := x.byName[instance.Name]; found {
		return errors.Errorf("instance name %s is already tracked", instance.Name)
	}
	if !instance.IsPublic() {
		if other, found := x.byOwner[instance.Owner]; found {
			return errors.Errorf("owner %s already has instance %s", instance.Owner, other.Name)
		}
	}

	x.byNumber[instance.InstanceNumber] = instance
	x.byName[instance.Name] = instance
	x.byCluster[instance.ClusterID] = append(x.byCluster[instance.ClusterID], instance)
	if !instance.IsPublic() {
		x.byOwner[instance.Owner] = instance
	}
	return nil
}

func (x *Index) Remove(number int) *types.Instance {
	instance, found := x.byNumber[number]
	if !found {
		return nil
	}
	delete(x.byNumber, number)
	delete(x.byName, instance.Name)
	if !instance.IsPublic() {
		delete(x.byOwner, instance.Owner)
	}

	members := x.byCluster[instance.ClusterID]
	for i, m := range members {
		if m.InstanceNumber == number {
			x.byCluster[instance.ClusterID] = append(members[:i], members[i+1:]...)
			break
		}
	}
	if len(x.byCluster[instance.ClusterID]) == 0 {
		delete(x.byCluster, instance.ClusterID)
	}
	return instance
}

func (x *Index) ByNumber(number int) *types.Instance {
	return x.byNumber[number]
}

func (x *Index) ByName(name string) *types.Instance {
	return x.byName[name]
}

func (x *Index) ByOwner(owner string) *types.Instance {
	return x.byOwner[owner]
}

func (x *Index) ByCluster(clusterID string) []*types.Instance {
	members := make([]*types.Instance, len(x.byCluster[clusterID]))
	copy(members, x.byCluster[clusterID])
	sort.Slice(members, func(i, j int) bool {
		return members[i].ClusterInstanceNumber < members[j].ClusterInstanceNumber
	})
	return members
}

func (x *Index) All() []*types.Instance {
	all := make([]*types.Instance, 0, len(x.byNumber))
	for _, instance := range x.byNumber {
		all = append(all, instance)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].InstanceNumber < all[j].InstanceNumber
	})
	return all
}

func (x *Index) ClusterIDs() []string {
	ids := make([]string, 0, len(x.byCluster))
	for id := range x.byCluster {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NextNumber returns the smallest instance number not currently tracked.
// Numbers are reused once an instance is fully removed.
func (x *Index) NextNumber() int {
	for n := 0; ; n++ {
		if _, found := x.byNumber[n]; !found {
			return n
		}
	}
}

// NextClusterNumber returns the smallest cluster-local number not used
// within a cluster. Numbering is independent from instance numbers.
func (x *Index) NextClusterNumber(clusterID string) int {
	used := map[int]bool{}
	for _, instance := range x.byCluster[clusterID] {
		used[instance.ClusterInstanceNumber] = true
	}
	for n := 1; ; n++ {
		if !used[n] {
			return n
		}
	}
}

func (x *Index) Count() int {
	return len(x.byNumber)
}

func (x *Index) CountWhere(match func(*types.Instance) bool) int {
	count := 0
	for _, instance := range x.byNumber {
		if match(instance) {
			count++
		}
	}
	return count
}

func (x *Index) CountPublic() int {
	return x.CountWhere(func(i *types.Instance) bool { return i.IsPublic() })
}

func (x *Index) CountPrivate() int {
	return x.CountWhere(func(i *types.Instance) bool { return !i.IsPublic() })
}

func (x *Index) CountCluster(clusterID string) int {
	return len(x.byCluster[clusterID])
}

func (x *Index) CountClusterWhere(clusterID string, match func(*types.Instance) bool) int {
	count := 0
	for _, instance := range x.byCluster[clusterID] {
		if match(instance) {
			count++
		}
	}
	return count
}
