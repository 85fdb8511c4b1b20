package lobby

import "github.com/stretchr/testify/mock"

type Mock struct {
	mock.Mock
}

func (m *Mock) Connected(username string) bool {
	args := m.Called(username)
	return args.Bool(0)
}

func (m *Mock) InBattle(username string) bool {
	args := m.Called(username)
	return args.Bool(0)
}

func (m *Mock) SayPrivate(username, message string) error {
	args := m.Called(username, message)
	return args.Error(0)
}

func (m *Mock) Register(username, password string) error {
	args := m.Called(username, password)
	return args.Error(0)
}
