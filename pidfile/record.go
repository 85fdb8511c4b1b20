package pidfile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/spring-autohost/cluster-manager/fleet/types"
)

// Record is the durable representation of one instance. It is stored as a
// plain-text file of key:value lines whose file name encodes the instance
// number and lifecycle kind.
type Record struct {
	ManagerName           string
	InstanceNumber        int
	InstanceName          string
	ClusterPreset         string
	ClusterInstanceNumber int
	OwnerName             string

	// ProcessID is zero only for records of kind launched, before the
	// worker process reported in.
	ProcessID int
}

const (
	keyManagerName           = "managerName"
	keyInstanceNumber        = "instanceNumber"
	keyInstanceName          = "instanceName"
	keyClusterPreset         = "clusterPreset"
	keyClusterInstanceNumber = "clusterInstanceNumber"
	keyOwnerName             = "ownerName"
	keyProcessID             = "processId"
)

// kindSuffix is the bijective mapping between storable lifecycle kinds and
// record file suffixes. Exiting and crashed are never stored as records:
// exiting is a separate zero-byte marker, crashed a detector classification.
var kindSuffix = map[types.LifecycleState]string{
	types.StateLaunched:   "launched",
	types.StateRunning:    "running",
	types.StateRestarting: "restarting",
	types.StateReloading:  "reloading",
	types.StateUnloaded:   "unloaded",
}

var suffixKind = func() map[string]types.LifecycleState {
	m := make(map[string]types.LifecycleState, len(kindSuffix))
	for k, s := range kindSuffix {
		m[s] = k
	}
	return m
}()

func (r *Record) marshal(kind types.LifecycleState) ([]byte, error) {
	if r.ProcessID == 0 && kind != types.StateLaunched {
		return nil, errors.Errorf("record of kind %s requires a process id", kind)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%s\n", keyManagerName, r.ManagerName)
	fmt.Fprintf(&b, "%s:%d\n", keyInstanceNumber, r.InstanceNumber)
	fmt.Fprintf(&b, "%s:%s\n", keyInstanceName, r.InstanceName)
	fmt.Fprintf(&b, "%s:%s\n", keyClusterPreset, r.ClusterPreset)
	fmt.Fprintf(&b, "%s:%d\n", keyClusterInstanceNumber, r.ClusterInstanceNumber)
	fmt.Fprintf(&b, "%s:%s\n", keyOwnerName, r.OwnerName)
	if r.ProcessID != 0 {
		fmt.Fprintf(&b, "%s:%d\n", keyProcessID, r.ProcessID)
	}
	return []byte(b.String()), nil
}

func unmarshalRecord(data []byte) (*Record, error) {
	r := &Record{}
	seen := map[string]bool{}
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			return nil, errors.Wrapf(ErrCorrupt, "malformed line %q", line)
		}
		if seen[key] {
			return nil, errors.Wrapf(ErrCorrupt, "duplicate key %q", key)
		}
		seen[key] = true

		var err error
		switch key {
		case keyManagerName:
			r.ManagerName = value
		case keyInstanceName:
			r.InstanceName = value
		case keyClusterPreset:
			r.ClusterPreset = value
		case keyOwnerName:
			r.OwnerName = value
		case keyInstanceNumber:
			r.InstanceNumber, err = strconv.Atoi(value)
		case keyClusterInstanceNumber:
			r.ClusterInstanceNumber, err = strconv.Atoi(value)
		case keyProcessID:
			r.ProcessID, err = strconv.Atoi(value)
		default:
			return nil, errors.Wrapf(ErrCorrupt, "unknown key %q", key)
		}
		if err != nil {
			return nil, errors.Wrapf(ErrCorrupt, "key %q: %v", key, err)
		}
	}
	for _, key := range []string{keyManagerName, keyInstanceNumber, keyInstanceName, keyClusterPreset, keyClusterInstanceNumber, keyOwnerName} {
		if !seen[key] {
			return nil, errors.Wrapf(ErrCorrupt, "missing key %q", key)
		}
	}
	return r, nil
}
