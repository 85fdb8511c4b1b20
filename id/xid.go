package id

import "github.com/rs/xid"

type GeneratorApi interface {
	NewId() string
}

type XIDGenerator struct {
}

func (x XIDGenerator) NewId() string {
	return xid.New().String()
}
