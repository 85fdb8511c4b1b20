package spawn

import "github.com/stretchr/testify/mock"

type Mock struct {
	mock.Mock
}

func (m *Mock) Spawn(opts Opts) (int, error) {
	args := m.Called(opts)
	return args.Int(0), args.Error(1)
}

func (m *Mock) Alive(pid int) bool {
	args := m.Called(pid)
	return args.Bool(0)
}
