package storage

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type Mock struct {
	mock.Mock
}

func (m *Mock) UserSeen(username string) bool {
	args := m.Called(username)
	return args.Bool(0)
}

func (m *Mock) UserMarkSeen(username string) error {
	args := m.Called(username)
	return args.Error(0)
}

func (m *Mock) UserSeenSince(username string) (time.Time, error) {
	args := m.Called(username)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *Mock) UserCount() (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

func (m *Mock) PathGet(key string) (string, error) {
	args := m.Called(key)
	return args.String(0), args.Error(1)
}

func (m *Mock) PathPut(key, value string) error {
	args := m.Called(key, value)
	return args.Error(0)
}
