package worker

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/spring-autohost/cluster-manager/config"
	"github.com/spring-autohost/cluster-manager/fleet/types"
	"github.com/spring-autohost/cluster-manager/lobby"
	"github.com/spring-autohost/cluster-manager/pidfile"
)

// ownerAbsenceTimeout is how long a private instance outlives its owner's
// lobby presence.
const ownerAbsenceTimeout = 10 * time.Second

// Worker is the self-management side of one instance process. It owns
// exactly one PID record and never touches any other instance's state.
type Worker struct {
	store *pidfile.Store
	lobby lobby.ClientApi

	name          string
	number        int
	clusterNumber int
	owner         string
	managerName   string
	startContext  string

	// exitWhenIdle is set from the lobby feed goroutine while Run's
	// ticker reads it, so it has its own lock.
	rw           sync.Mutex
	exitWhenIdle bool

	idleSince   time.Time
	ownerGone   time.Time
	managerGone time.Time

	// inBattle reports whether this instance currently hosts an occupied
	// game; supplied by the surrounding autohost.
	inBattle func() bool

	clock func() time.Time
}

// NewFromMacros builds a worker from the configuration macros its manager
// passed on the command line.
func NewFromMacros(store *pidfile.Store, l lobby.ClientApi, macros map[string]string, inBattle func() bool) (*Worker, error) {
	managerName, found := macros[config.ManagerMacro]
	if !found {
		return nil, errors.New("not started by a manager")
	}
	number, err := strconv.Atoi(macros[config.MacroInstanceNumber])
	if err != nil {
		return nil, errors.Wrap(err, "invalid instance number macro")
	}
	clusterNumber, err := strconv.Atoi(macros[config.MacroClusterInstanceNumber])
	if err != nil {
		return nil, errors.Wrap(err, "invalid cluster instance number macro")
	}
	owner := macros[config.MacroOwner]
	if owner == "" {
		return nil, errors.New("missing owner macro")
	}
	startContext := macros[config.MacroStartContext]
	if startContext == "" {
		startContext = "load"
	}

	now := time.Now()
	return &Worker{
		store:         store,
		lobby:         l,
		name:          macros["lobbyLogin"],
		number:        number,
		clusterNumber: clusterNumber,
		owner:         owner,
		managerName:   managerName,
		startContext:  startContext,
		idleSince:     now,
		clock:         time.Now,
		inBattle:      inBattle,
	}, nil
}

// expectedKinds maps a start context to the record kinds a worker may find
// for itself. Anything else, or no record at all, means the fleet state
// disagrees with this process existing, and starting would be unsafe.
func expectedKinds(startContext string) ([]types.LifecycleState, error) {
	switch startContext {
	case "load":
		return []types.LifecycleState{types.StateLaunched}, nil
	case "reload":
		return []types.LifecycleState{types.StateReloading}, nil
	case "autoload":
		return []types.LifecycleState{types.StateRestarting, types.StateUnloaded}, nil
	}
	return nil, errors.Errorf("unknown start context %q", startContext)
}

// Bootstrap validates this worker's own record and advances it to running.
func (w *Worker) Bootstrap() error {
	expected, err := expectedKinds(w.startContext)
	if err != nil {
		return err
	}

	lock, err := w.store.Acquire(w.number)
	if err != nil {
		return err
	}
	defer lock.Release()

	record, kind, err := lock.Read()
	if err != nil {
		return errors.Wrap(err, "cannot read own record")
	}
	if record.ManagerName != w.managerName {
		return errors.Errorf("record of instance %d belongs to manager %s", w.number, record.ManagerName)
	}
	found := false
	for _, k := range expected {
		if kind == k {
			found = true
			break
		}
	}
	if !found {
		return errors.Errorf("found %s record for start context %s, refusing to start", kind, w.startContext)
	}

	// The rename is atomic; rewriting the same kind with our pid after
	// it can never leave two records behind.
	if err := lock.Transition(kind, types.StateRunning); err != nil {
		return err
	}
	record.ProcessID = os.Getpid()
	if err := lock.Write(types.StateRunning, record); err != nil {
		return err
	}

	log.Infof("Instance %s (#%d) bootstrapped from %s record as pid %d", w.name, w.number, kind, record.ProcessID)
	return nil
}

// RequestExit makes the worker leave as soon as it is idle. Used when the
// manager prunes this instance from the spare pool.
func (w *Worker) RequestExit() {
	w.rw.Lock()
	defer w.rw.Unlock()
	w.exitWhenIdle = true
}

func (w *Worker) exitRequested() bool {
	w.rw.Lock()
	defer w.rw.Unlock()
	return w.exitWhenIdle
}

// Run drives the worker's self-management loop until the context is
// canceled or a timeout decides this instance should leave.
func (w *Worker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if reason := w.shouldExit(); reason != "" {
				log.Infof("Instance %d exiting: %s", w.number, reason)
				return w.Shutdown()
			}
		case <-ctx.Done():
			return w.Shutdown()
		}
	}
}

func (w *Worker) shouldExit() string {
	now := w.clock()
	idle := w.inBattle == nil || !w.inBattle()
	if !idle {
		w.idleSince = now
	}

	if w.exitRequested() && idle {
		return "exit requested and idle"
	}

	private := w.owner != types.PublicOwner
	if private {
		if config.RemovePrivateInstanceDelay > 0 && idle && now.Sub(w.idleSince) >= config.RemovePrivateInstanceDelay {
			return "private instance idle too long"
		}
		if w.lobby.Connected(w.owner) {
			w.ownerGone = time.Time{}
		} else {
			if w.ownerGone.IsZero() {
				w.ownerGone = now
			} else if now.Sub(w.ownerGone) >= ownerAbsenceTimeout {
				return "owner left the lobby"
			}
		}
	}

	if w.lobby.Connected(w.managerName) {
		w.managerGone = time.Time{}
	} else {
		if w.managerGone.IsZero() {
			w.managerGone = now
		} else if config.OrphanInstanceTimeout > 0 && now.Sub(w.managerGone) >= config.OrphanInstanceTimeout {
			return "orphaned, manager left the lobby"
		}
	}
	return ""
}

// Shutdown transitions the record to unloaded and leaves the exiting
// marker so the manager removes this instance without alarm.
func (w *Worker) Shutdown() error {
	lock, err := w.store.Acquire(w.number)
	if err != nil {
		return err
	}
	defer lock.Release()

	if err := lock.Transition(types.StateRunning, types.StateUnloaded); err != nil {
		log.Errorf("Cannot transition instance %d to unloaded. Got: %v", w.number, err)
	}
	if err := w.store.MarkExiting(w.number); err != nil {
		return err
	}
	log.Infof("Instance %d unloaded", w.number)
	return nil
}
