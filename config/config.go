package config

import (
	"flag"
	"regexp"
	"strings"
	"time"
)

const (
	// InstanceNameRegex is the strict pattern every generated instance
	// name must match. Brackets are legal in lobby account names.
	InstanceNameRegex = `^[0-9a-zA-Z][0-9a-zA-Z_.\-\[\]]*$`

	// ManagerMacro is the configuration macro whose presence marks a
	// process as a worker. Its value is the manager's name.
	ManagerMacro = "clusterManager"

	MacroInstanceNumber        = "clusterInstanceNumber"
	MacroClusterInstanceNumber = "clusterLocalInstanceNumber"
	MacroOwner                 = "clusterInstanceOwner"
	MacroStartContext          = "clusterStartContext"
)

var NameFilter = regexp.MustCompile(InstanceNameRegex)

var (
	ManagerName, VarDir, InstancesDir, Executable, BookkeepingFile string
	PresetsFile, AdminPort                                         string

	MaxInstances, MaxInstancesPublic, MaxInstancesPrivate int

	BaseGamePort, BaseControlPort int

	StartingInstanceTimeout    time.Duration
	OfflineInstanceTimeout     time.Duration
	OrphanInstanceTimeout      time.Duration
	RemoveSpareInstanceDelay   time.Duration
	RemovePrivateInstanceDelay time.Duration

	// ShareArchiveCache symlinks the game archive cache into instance
	// directories instead of copying it. Only safe together with
	// SequentialUnitsync; the combination is checked at startup.
	ShareArchiveCache  bool
	SequentialUnitsync bool
)

// Macros holds the key=value configuration overrides this process was
// started with. Workers find their identity here.
var Macros = map[string]string{}

func ParseFlags() {
	flag.StringVar(&ManagerName, "name", "ClusterManager", "Lobby name of the manager")
	flag.StringVar(&VarDir, "var-dir", "./var", "Directory for PID records and locks")
	flag.StringVar(&InstancesDir, "instances-dir", "./var/instances", "Directory holding per-instance working directories")
	flag.StringVar(&Executable, "executable", "", "Autohost executable spawned for each instance")
	flag.StringVar(&BookkeepingFile, "save", "./var/bookkeeping", "Tell where to store the manager bookkeeping file")
	flag.StringVar(&PresetsFile, "presets", "./presets.json", "Cluster preset definitions")
	flag.StringVar(&AdminPort, "admin-port", "", "Port for the admin status endpoint (disabled when empty)")

	flag.IntVar(&MaxInstances, "max-instances", 40, "Fleet-wide instance cap")
	flag.IntVar(&MaxInstancesPublic, "max-instances-public", 30, "Fleet-wide public instance cap")
	flag.IntVar(&MaxInstancesPrivate, "max-instances-private", 10, "Fleet-wide private instance cap")

	flag.IntVar(&BaseGamePort, "base-game-port", 8452, "Game port of instance 0; instance N uses base+N")
	flag.IntVar(&BaseControlPort, "base-control-port", 9452, "Control port of instance 0; instance N uses base+N")

	flag.DurationVar(&StartingInstanceTimeout, "starting-timeout", 60*time.Second, "How long an instance may sit in launched/restarting (0 disables)")
	flag.DurationVar(&OfflineInstanceTimeout, "offline-timeout", 120*time.Second, "How long an instance may sit offline before being marked stuck (0 disables)")
	flag.DurationVar(&OrphanInstanceTimeout, "orphan-timeout", 120*time.Second, "How long a worker survives its manager's lobby absence")
	flag.DurationVar(&RemoveSpareInstanceDelay, "remove-spare-delay", 300*time.Second, "Minimum spare age before pruning")
	flag.DurationVar(&RemovePrivateInstanceDelay, "remove-private-delay", 600*time.Second, "Idle time before a private instance exits")

	flag.BoolVar(&ShareArchiveCache, "share-archive-cache", false, "Symlink the archive cache into instances instead of copying")
	flag.BoolVar(&SequentialUnitsync, "sequential-unitsync", false, "Serialize unitsync runs across instances")

	flag.Parse()

	ParseMacros(flag.Args())
}

// ParseMacros reads trailing key=value arguments, the channel through which
// a manager passes a worker its identity.
func ParseMacros(args []string) {
	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		if !found {
			continue
		}
		Macros[key] = value
	}
}

// IsWorker reports whether this process was spawned by a manager.
func IsWorker() bool {
	_, found := Macros[ManagerMacro]
	return found
}
