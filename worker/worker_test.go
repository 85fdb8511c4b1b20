package worker

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spring-autohost/cluster-manager/config"
	"github.com/spring-autohost/cluster-manager/fleet/types"
	"github.com/spring-autohost/cluster-manager/lobby"
	"github.com/spring-autohost/cluster-manager/pidfile"
)

func testMacros(owner string) map[string]string {
	return map[string]string{
		config.ManagerMacro:               "TestManager",
		config.MacroInstanceNumber:        "3",
		config.MacroClusterInstanceNumber: "1",
		config.MacroOwner:                 owner,
		config.MacroStartContext:          "load",
		"lobbyLogin":                      "TeamHost[01]",
	}
}

func newTestWorker(t *testing.T, owner string, l lobby.ClientApi) (*Worker, *pidfile.Store) {
	t.Helper()
	store, err := pidfile.NewStore(t.TempDir())
	assert.Nil(t, err)

	if l == nil {
		mock := &lobby.Mock{}
		mock.On("Connected", "TestManager").Return(true)
		mock.On("Connected", owner).Return(true)
		l = mock
	}

	w, err := NewFromMacros(store, l, testMacros(owner), nil)
	assert.Nil(t, err)
	return w, store
}

func writeOwnRecord(t *testing.T, store *pidfile.Store, kind types.LifecycleState) {
	t.Helper()
	lock, err := store.Acquire(3)
	assert.Nil(t, err)
	defer lock.Release()
	err = lock.Write(kind, &pidfile.Record{
		ManagerName:           "TestManager",
		InstanceNumber:        3,
		InstanceName:          "TeamHost[01]",
		ClusterPreset:         "team",
		ClusterInstanceNumber: 1,
		OwnerName:             types.PublicOwner,
		ProcessID:             999,
	})
	assert.Nil(t, err)
}

func TestNewFromMacrosRequiresManager(t *testing.T) {
	store, err := pidfile.NewStore(t.TempDir())
	assert.Nil(t, err)

	macros := testMacros(types.PublicOwner)
	delete(macros, config.ManagerMacro)

	_, err = NewFromMacros(store, &lobby.Mock{}, macros, nil)
	assert.NotNil(t, err)
}

func TestBootstrapAdvancesRecordToRunning(t *testing.T) {
	w, store := newTestWorker(t, types.PublicOwner, nil)
	writeOwnRecord(t, store, types.StateLaunched)

	assert.Nil(t, w.Bootstrap())

	lock, err := store.Acquire(3)
	assert.Nil(t, err)
	defer lock.Release()
	record, kind, err := lock.Read()
	assert.Nil(t, err)
	assert.Equal(t, types.StateRunning, kind)
	assert.Equal(t, os.Getpid(), record.ProcessID)
}

func TestBootstrapRefusesMissingRecord(t *testing.T) {
	w, _ := newTestWorker(t, types.PublicOwner, nil)

	err := w.Bootstrap()
	assert.NotNil(t, err)
}

func TestBootstrapRefusesUnexpectedKind(t *testing.T) {
	w, store := newTestWorker(t, types.PublicOwner, nil)
	writeOwnRecord(t, store, types.StateUnloaded)

	err := w.Bootstrap()
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "refusing to start")
}

func TestBootstrapRefusesForeignManager(t *testing.T) {
	store, err := pidfile.NewStore(t.TempDir())
	assert.Nil(t, err)
	writeOwnRecord(t, store, types.StateLaunched)

	macros := testMacros(types.PublicOwner)
	macros[config.ManagerMacro] = "OtherManager"
	w, err := NewFromMacros(store, &lobby.Mock{}, macros, nil)
	assert.Nil(t, err)

	err = w.Bootstrap()
	assert.NotNil(t, err)
}

func TestBootstrapReloadContext(t *testing.T) {
	w, store := newTestWorker(t, types.PublicOwner, nil)
	w.startContext = "reload"
	writeOwnRecord(t, store, types.StateReloading)

	assert.Nil(t, w.Bootstrap())
}

func TestBootstrapAutoloadAcceptsUnloaded(t *testing.T) {
	w, store := newTestWorker(t, types.PublicOwner, nil)
	w.startContext = "autoload"
	writeOwnRecord(t, store, types.StateUnloaded)

	assert.Nil(t, w.Bootstrap())
}

func TestShutdownLeavesExitingMarker(t *testing.T) {
	w, store := newTestWorker(t, types.PublicOwner, nil)
	writeOwnRecord(t, store, types.StateLaunched)
	assert.Nil(t, w.Bootstrap())

	assert.Nil(t, w.Shutdown())

	assert.True(t, store.HasExiting(3))
	lock, err := store.Acquire(3)
	assert.Nil(t, err)
	defer lock.Release()
	_, kind, err := lock.Read()
	assert.Nil(t, err)
	assert.Equal(t, types.StateUnloaded, kind)
}

func TestShouldExitWhenRequestedAndIdle(t *testing.T) {
	w, _ := newTestWorker(t, types.PublicOwner, nil)

	assert.Equal(t, "", w.shouldExit())
	w.RequestExit()
	assert.NotEqual(t, "", w.shouldExit())
}

func TestShouldExitRequestedButBusy(t *testing.T) {
	w, _ := newTestWorker(t, types.PublicOwner, nil)
	busy := true
	w.inBattle = func() bool { return busy }

	w.RequestExit()
	assert.Equal(t, "", w.shouldExit())

	busy = false
	assert.NotEqual(t, "", w.shouldExit())
}

func TestShouldExitPrivateIdleTimeout(t *testing.T) {
	w, _ := newTestWorker(t, "alice", nil)
	config.RemovePrivateInstanceDelay = time.Minute

	assert.Equal(t, "", w.shouldExit())

	base := time.Now().Add(2 * time.Minute)
	w.clock = func() time.Time { return base }
	assert.Contains(t, w.shouldExit(), "idle too long")
}

func TestShouldExitOwnerAbsence(t *testing.T) {
	mock := &lobby.Mock{}
	mock.On("Connected", "TestManager").Return(true)
	mock.On("Connected", "alice").Return(false)
	w, _ := newTestWorker(t, "alice", mock)
	config.RemovePrivateInstanceDelay = 0

	// First observation only starts the absence clock.
	assert.Equal(t, "", w.shouldExit())

	base := time.Now().Add(time.Minute)
	w.clock = func() time.Time { return base }
	assert.Contains(t, w.shouldExit(), "owner left")
}

func TestShouldExitOrphaned(t *testing.T) {
	mock := &lobby.Mock{}
	mock.On("Connected", "TestManager").Return(false)
	w, _ := newTestWorker(t, types.PublicOwner, mock)
	config.OrphanInstanceTimeout = time.Minute

	assert.Equal(t, "", w.shouldExit())

	base := time.Now().Add(2 * time.Minute)
	w.clock = func() time.Time { return base }
	assert.Contains(t, w.shouldExit(), "orphaned")
}

func TestRunHonorsConcurrentExitRequest(t *testing.T) {
	w, store := newTestWorker(t, types.PublicOwner, nil)
	writeOwnRecord(t, store, types.StateRunning)
	config.OrphanInstanceTimeout = 0

	done := make(chan error, 1)
	go func() {
		done <- w.Run(context.Background(), time.Millisecond)
	}()

	// The lobby feed delivers exit requests from its own goroutine while
	// the run loop is ticking.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.RequestExit()
		}()
	}
	wg.Wait()

	select {
	case err := <-done:
		assert.Nil(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run loop ignored the exit request")
	}
	assert.True(t, store.HasExiting(3))
}
