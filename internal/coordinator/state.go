package coordinator

import (
	"fmt"

	"github.com/objectfs/viewersettings/pkg/types"
)

// State is a coordinator lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateLoaded
	StateNotLoaded
	StateLoadedReadOnly
	StateNotLoadedReadOnly
	StateCanceled
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateInitializing:
		return "INITIALIZING"
	case StateLoaded:
		return "LOADED"
	case StateNotLoaded:
		return "NOT_LOADED"
	case StateLoadedReadOnly:
		return "LOADED_READ_ONLY"
	case StateNotLoadedReadOnly:
		return "NOT_LOADED_READ_ONLY"
	case StateCanceled:
		return "CANCELED"
	case StateActive:
		return "ACTIVE"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCanceled || s == StateClosed
}

func stateOf(r types.InitResult) State {
	switch r {
	case types.Loaded:
		return StateLoaded
	case types.NotLoaded:
		return StateNotLoaded
	case types.LoadedReadOnly:
		return StateLoadedReadOnly
	case types.NotLoadedReadOnly:
		return StateNotLoadedReadOnly
	default:
		return StateCanceled
	}
}
