package event

import "github.com/stretchr/testify/mock"

type Mock struct {
	mock.Mock
}

func (m *Mock) Emit(name EventType, username string, args ...interface{}) {
	m.Called(name, username, args)
}

func (m *Mock) On(name EventType, handler Handler) {
	m.Called(name, handler)
}
