package engine

import "fmt"

// State is the engine lifecycle state.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateRunning
	StatePaused
	StateStopping
	StateError
	StateTerminated
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateInitializing: "initializing",
	StateRunning:      "running",
	StatePaused:       "paused",
	StateStopping:     "stopping",
	StateError:        "error",
	StateTerminated:   "terminated",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	return s >= StateIdle && s <= StateTerminated
}
