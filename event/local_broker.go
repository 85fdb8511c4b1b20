package event

import "sync"

type localBroker struct {
	sync.Mutex

	handlers map[EventType][]Handler
}

func NewLocalBroker() *localBroker {
	return &localBroker{handlers: map[EventType][]Handler{}}
}

func (b *localBroker) On(name EventType, handler Handler) {
	b.Lock()
	defer b.Unlock()

	b.handlers[name] = append(b.handlers[name], handler)
}

func (b *localBroker) Emit(name EventType, username string, args ...interface{}) {
	b.Lock()
	handlers := make([]Handler, len(b.handlers[name]))
	copy(handlers, b.handlers[name])
	b.Unlock()

	for _, handler := range handlers {
		handler(username, args...)
	}
}
