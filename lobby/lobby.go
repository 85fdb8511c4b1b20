package lobby

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/spring-autohost/cluster-manager/event"
)

// ClientApi is the slice of the lobby connection the orchestrator needs:
// who is online, who sits in an occupied room, and a way to whisper to a
// worker or register an account. The wire protocol itself lives in the
// surrounding program.
type ClientApi interface {
	Connected(username string) bool
	InBattle(username string) bool
	SayPrivate(username, message string) error
	Register(username, password string) error
}

// SendFunc delivers a private lobby message; RegisterFunc creates a lobby
// account. Both are supplied by the embedding program.
type SendFunc func(username, message string) error
type RegisterFunc func(username, password string) error

type tracker struct {
	rw sync.Mutex

	online   map[string]bool
	inBattle map[string]bool

	send     SendFunc
	register RegisterFunc
}

// NewTracker builds a presence view from the broker's lobby events.
func NewTracker(e event.EventApi, send SendFunc, register RegisterFunc) *tracker {
	t := &tracker{
		online:   map[string]bool{},
		inBattle: map[string]bool{},
		send:     send,
		register: register,
	}
	e.On(event.USER_APPEARED, func(username string, args ...interface{}) {
		t.rw.Lock()
		defer t.rw.Unlock()
		t.online[username] = true
	})
	e.On(event.USER_DISAPPEARED, func(username string, args ...interface{}) {
		t.rw.Lock()
		defer t.rw.Unlock()
		delete(t.online, username)
		delete(t.inBattle, username)
	})
	e.On(event.BATTLE_JOINED, func(username string, args ...interface{}) {
		t.rw.Lock()
		defer t.rw.Unlock()
		t.inBattle[username] = true
	})
	e.On(event.BATTLE_LEFT, func(username string, args ...interface{}) {
		t.rw.Lock()
		defer t.rw.Unlock()
		delete(t.inBattle, username)
	})
	return t
}

func (t *tracker) Connected(username string) bool {
	t.rw.Lock()
	defer t.rw.Unlock()
	return t.online[username]
}

func (t *tracker) InBattle(username string) bool {
	t.rw.Lock()
	defer t.rw.Unlock()
	return t.inBattle[username]
}

func (t *tracker) SayPrivate(username, message string) error {
	if t.send == nil {
		log.Warnf("No lobby send function configured, dropping message to %s", username)
		return errors.New("lobby connection not configured")
	}
	return t.send(username, message)
}

func (t *tracker) Register(username, password string) error {
	if t.register == nil {
		return errors.New("lobby registration not configured")
	}
	return t.register(username, password)
}
