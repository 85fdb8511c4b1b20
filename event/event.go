package event

type EventType string

// Lobby presence events. Each carries the lobby username it concerns.
const USER_APPEARED EventType = "user appeared"
const USER_DISAPPEARED EventType = "user disappeared"
const BATTLE_JOINED EventType = "joined occupied room"
const BATTLE_LEFT EventType = "left occupied room"
const STATUS_CHANGED EventType = "status changed"

// Fleet events emitted by the manager itself.
const INSTANCE_NEW EventType = "instance new"
const INSTANCE_REMOVED EventType = "instance removed"
const INSTANCE_CRASHED EventType = "instance crashed"

type Handler func(username string, args ...interface{})

type EventApi interface {
	Emit(name EventType, username string, args ...interface{})
	On(name EventType, handler Handler)
}
