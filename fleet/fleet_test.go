package fleet

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spring-autohost/cluster-manager/config"
	"github.com/spring-autohost/cluster-manager/event"
	"github.com/spring-autohost/cluster-manager/pidfile"
	"github.com/spring-autohost/cluster-manager/spawn"
	"github.com/spring-autohost/cluster-manager/storage"
)

type fakeSpawner struct {
	rw      sync.Mutex
	spawned []spawn.Opts
	nextPid int
	fail    error
	alive   map[int]bool
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{nextPid: 1000, alive: map[int]bool{}}
}

func (s *fakeSpawner) Spawn(opts spawn.Opts) (int, error) {
	s.rw.Lock()
	defer s.rw.Unlock()
	if s.fail != nil {
		return 0, s.fail
	}
	s.nextPid++
	s.spawned = append(s.spawned, opts)
	s.alive[s.nextPid] = true
	return s.nextPid, nil
}

func (s *fakeSpawner) Alive(pid int) bool {
	s.rw.Lock()
	defer s.rw.Unlock()
	return s.alive[pid]
}

type sentMessage struct {
	username string
	message  string
}

type registration struct {
	username, password string
}

type fakeLobby struct {
	rw         sync.Mutex
	online     map[string]bool
	inBattle   map[string]bool
	sent       []sentMessage
	registered []registration
}

func newFakeLobby() *fakeLobby {
	return &fakeLobby{online: map[string]bool{}, inBattle: map[string]bool{}}
}

func (l *fakeLobby) Connected(username string) bool {
	l.rw.Lock()
	defer l.rw.Unlock()
	return l.online[username]
}

func (l *fakeLobby) InBattle(username string) bool {
	l.rw.Lock()
	defer l.rw.Unlock()
	return l.inBattle[username]
}

func (l *fakeLobby) SayPrivate(username, message string) error {
	l.rw.Lock()
	defer l.rw.Unlock()
	l.sent = append(l.sent, sentMessage{username, message})
	return nil
}

func (l *fakeLobby) Register(username, password string) error {
	l.rw.Lock()
	defer l.rw.Unlock()
	l.registered = append(l.registered, registration{username, password})
	return nil
}

type staticGenerator struct {
	id string
}

func (g staticGenerator) NewId() string {
	return g.id
}

type testFleet struct {
	fleet       *fleet
	store       *pidfile.Store
	spawner     *fakeSpawner
	lobby       *fakeLobby
	broker      event.EventApi
	bookkeeping storage.StorageApi
}

// newTestFleet wires a fleet against fakes and a real record store in a
// temp directory. Global config is reset to open limits; tests tighten
// what they exercise.
func newTestFleet(t *testing.T, rawPresets map[string]map[string]string) *testFleet {
	t.Helper()

	config.ManagerName = "TestManager"
	config.Executable = "/usr/bin/true"
	config.VarDir = t.TempDir()
	config.InstancesDir = filepath.Join(config.VarDir, "instances")
	config.MaxInstances = 0
	config.MaxInstancesPublic = 0
	config.MaxInstancesPrivate = 0
	config.BaseGamePort = 8452
	config.BaseControlPort = 9452
	config.StartingInstanceTimeout = 0
	config.OfflineInstanceTimeout = 0
	config.RemoveSpareInstanceDelay = 0
	config.ShareArchiveCache = false

	presets, err := config.NewPresetStore(rawPresets)
	assert.Nil(t, err)

	store, err := pidfile.NewStore(filepath.Join(config.VarDir, "pids"))
	assert.Nil(t, err)

	bookkeeping, err := storage.NewFileStorage(filepath.Join(config.VarDir, "bookkeeping"))
	assert.Nil(t, err)

	spawner := newFakeSpawner()
	lobbyClient := newFakeLobby()
	broker := event.NewLocalBroker()

	f := NewFleet(presets, store, spawner, lobbyClient, broker, bookkeeping, staticGenerator{id: "generated-secret"})
	return &testFleet{fleet: f, store: store, spawner: spawner, lobby: lobbyClient, broker: broker, bookkeeping: bookkeeping}
}

func (tf *testFleet) advanceClock(d time.Duration) {
	base := time.Now().Add(d)
	tf.fleet.clock = func() time.Time { return base }
}

func teamPreset() map[string]map[string]string {
	return map[string]map[string]string{
		"team": {
			"nameTemplate": "TeamHost[%0C]",
			"targetSpares": "2",
		},
	}
}
