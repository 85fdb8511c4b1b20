package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/spring-autohost/cluster-manager/commands"
	"github.com/spring-autohost/cluster-manager/config"
	"github.com/spring-autohost/cluster-manager/event"
	"github.com/spring-autohost/cluster-manager/fleet"
	"github.com/spring-autohost/cluster-manager/handlers"
	"github.com/spring-autohost/cluster-manager/id"
	"github.com/spring-autohost/cluster-manager/lobby"
	"github.com/spring-autohost/cluster-manager/pidfile"
	"github.com/spring-autohost/cluster-manager/scheduler"
	"github.com/spring-autohost/cluster-manager/scheduler/task"
	"github.com/spring-autohost/cluster-manager/spawn"
	"github.com/spring-autohost/cluster-manager/storage"
	"github.com/spring-autohost/cluster-manager/worker"
)

func main() {
	config.ParseFlags()

	if config.IsWorker() {
		runWorker()
		return
	}
	runManager()
}

func runManager() {
	store := initStore()

	managerLock, err := store.AcquireManagerLock()
	if err != nil {
		log.Fatal("Another manager is already running: ", err)
	}
	defer managerLock.Close()

	e := event.NewLocalBroker()

	// The surrounding lobby client feeds events through stdin and reads
	// whispers back from stdout. The tracker must see battle events
	// before the fleet's presence handlers do, so it registers first.
	l := lobby.NewTracker(e, sendWhisper, registerAccount)

	s := initStorage()
	presets := initPresets()

	f := fleet.NewFleet(presets, store, spawn.NewLocalSpawner(), l, e, s, id.XIDGenerator{})

	if err := f.Rebuild(); err != nil {
		log.Fatal("Cannot rebuild fleet state: ", err)
	}
	f.Provision()

	tasks := []scheduler.Task{
		task.NewCheckLiveness(f),
		task.NewScalePools(f),
	}
	sch, err := scheduler.NewScheduler(time.Second, tasks)
	if err != nil {
		log.Fatal("Error initializing the scheduler: ", err)
	}
	sch.Start()

	if config.AdminPort != "" {
		handlers.Bootstrap(f)
		go handlers.Register()
	}

	c := commands.NewCommands(f)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		feedEvents(e, c)
	}()

	select {
	case sig := <-stop:
		log.Infof("Received %s, unloading", sig)
	case <-done:
		log.Info("Lobby feed closed, unloading")
	}

	sch.Stop()
	if err := f.Unload(); err != nil {
		log.Errorf("Unload incomplete. Got: %v", err)
	}
}

func runWorker() {
	store := initStore()

	e := event.NewLocalBroker()
	l := lobby.NewTracker(e, sendWhisper, registerAccount)

	inBattle := func() bool {
		return l.InBattle(config.Macros["lobbyLogin"])
	}
	w, err := worker.NewFromMacros(store, l, config.Macros, inBattle)
	if err != nil {
		log.Fatal("Invalid worker configuration: ", err)
	}
	if err := w.Bootstrap(); err != nil {
		log.Fatal("Cannot bootstrap instance: ", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()
	go func() {
		feedWorkerEvents(e, w)
		cancel()
	}()

	if err := w.Run(ctx, time.Second); err != nil {
		log.Fatal("Worker loop failed: ", err)
	}
}

func initStore() *pidfile.Store {
	store, err := pidfile.NewStore(filepath.Join(config.VarDir, "pids"))
	if err != nil {
		log.Fatal("Error initializing the record store: ", err)
	}
	return store
}

func initStorage() storage.StorageApi {
	s, err := storage.NewFileStorage(config.BookkeepingFile)
	if err != nil && !os.IsNotExist(err) {
		log.Fatal("Error initializing StorageAPI: ", err)
	}
	return s
}

func initPresets() *config.PresetStore {
	file, err := os.Open(config.PresetsFile)
	if err != nil {
		log.Fatal("Cannot open presets file: ", err)
	}
	defer file.Close()

	raw := map[string]map[string]string{}
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		log.Fatal("Cannot decode presets file: ", err)
	}

	presets, err := config.NewPresetStore(raw)
	if err != nil {
		log.Fatal("Invalid presets: ", err)
	}
	return presets
}

func sendWhisper(username, message string) error {
	_, err := fmt.Printf("whisper %s %s\n", username, message)
	return err
}

func registerAccount(username, password string) error {
	_, err := fmt.Printf("register %s %s\n", username, password)
	return err
}

// feedEvents turns the stdin lobby feed into broker events and routes chat
// lines to the command surface. One event per line:
//
//	appeared <user> | disappeared <user> | joined <user> | left <user> |
//	status <user> | said <user> <text...>
func feedEvents(e event.EventApi, c *commands.Commands) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		verb, username, rest := splitFeedLine(scanner.Text())
		if username == "" {
			continue
		}
		switch verb {
		case "appeared":
			e.Emit(event.USER_APPEARED, username)
		case "disappeared":
			e.Emit(event.USER_DISAPPEARED, username)
		case "joined":
			e.Emit(event.BATTLE_JOINED, username)
		case "left":
			e.Emit(event.BATTLE_LEFT, username)
		case "status":
			e.Emit(event.STATUS_CHANGED, username)
		case "said":
			reply, err := c.Handle(username, rest)
			if err != nil {
				reply = err.Error()
			}
			if reply != "" {
				sendWhisper(username, reply)
			}
		default:
			log.Debugf("Ignoring lobby feed line %q", verb)
		}
	}
}

// feedWorkerEvents keeps a worker's lobby view current and honors exit
// requests whispered by the manager.
func feedWorkerEvents(e event.EventApi, w *worker.Worker) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		verb, username, rest := splitFeedLine(scanner.Text())
		if username == "" {
			continue
		}
		switch verb {
		case "appeared":
			e.Emit(event.USER_APPEARED, username)
		case "disappeared":
			e.Emit(event.USER_DISAPPEARED, username)
		case "joined":
			e.Emit(event.BATTLE_JOINED, username)
		case "left":
			e.Emit(event.BATTLE_LEFT, username)
		case "said":
			if strings.TrimSpace(rest) == fleet.ExitRequest {
				w.RequestExit()
			}
		}
	}
}

func splitFeedLine(line string) (verb, username, rest string) {
	fields := strings.SplitN(strings.TrimSpace(line), " ", 3)
	if len(fields) < 2 {
		return "", "", ""
	}
	verb, username = fields[0], fields[1]
	if len(fields) == 3 {
		rest = fields[2]
	}
	return verb, username, rest
}
