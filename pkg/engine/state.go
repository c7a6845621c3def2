package engine

import (
	"context"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
)

// State is the engine lifecycle state.
type State string

const (
	StateUninitialized   = State("uninitialized")
	StateInitializing    = State("initializing")
	StateCreatingContext = State("creating-context")
	StateLoadingModel    = State("loading-model")
	StateReady           = State("ready")
	StateProcessing      = State("processing")
	StatePaused          = State("paused")
	StateDegraded        = State("degraded")
	StateDestroying      = State("destroying")
	StateDestroyed       = State("destroyed")
	StateError           = State("error")
)

func (s State) String() string {
	return string(s)
}

// transitions is the complete transition relation: a pair absent here is
// forbidden. Destruction is reachable from every live state, the error
// state from every state where a runtime failure can surface.
var transitions = map[State][]State{
	StateUninitialized:   {StateInitializing, StateDestroying, StateError},
	StateInitializing:    {StateCreatingContext, StateDestroying, StateError},
	StateCreatingContext: {StateLoadingModel, StateDestroying, StateError},
	StateLoadingModel:    {StateReady, StateDegraded, StateDestroying, StateError},
	StateReady:           {StateProcessing, StateDestroying, StateError},
	StateProcessing:      {StatePaused, StateReady, StateDegraded, StateDestroying, StateError},
	StatePaused:          {StateProcessing, StateReady, StateDegraded, StateDestroying, StateError},
	StateDegraded:        {StateProcessing, StateDestroying, StateError},
	StateDestroying:      {StateDestroyed, StateError},
	StateDestroyed:       {},
	StateError:           {StateInitializing, StateDegraded, StateDestroying},
}

// StateMachine serializes engine lifecycle transitions and rejects
// anything outside the transition relation. The state value is updated
// before the change callback fires, so a callback that inspects the
// machine observes the new state.
type StateMachine struct {
	locker   sync.Mutex
	state    State
	onChange func(old, new State)
}

func NewStateMachine(onChange func(old, new State)) *StateMachine {
	return &StateMachine{
		state:    StateUninitialized,
		onChange: onChange,
	}
}

func (m *StateMachine) State() State {
	m.locker.Lock()
	defer m.locker.Unlock()
	return m.state
}

func (m *StateMachine) CanTransitionTo(target State) bool {
	m.locker.Lock()
	defer m.locker.Unlock()
	return canTransition(m.state, target)
}

func canTransition(from, to State) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// TransitionTo moves the machine into the target state. A forbidden
// transition returns false and leaves the state untouched.
func (m *StateMachine) TransitionTo(ctx context.Context, target State) bool {
	m.locker.Lock()
	old := m.state
	if !canTransition(old, target) {
		m.locker.Unlock()
		logger.Warnf(ctx, "rejected the state transition %s -> %s", old, target)
		return false
	}
	m.state = target
	onChange := m.onChange
	m.locker.Unlock()

	logger.Debugf(ctx, "state transition %s -> %s", old, target)
	if onChange != nil {
		onChange(old, target)
	}
	return true
}

// ForceTransitionTo moves the machine into the target state bypassing the
// transition relation. Used only by forced destruction.
func (m *StateMachine) ForceTransitionTo(ctx context.Context, target State) {
	m.locker.Lock()
	old := m.state
	m.state = target
	onChange := m.onChange
	m.locker.Unlock()

	logger.Warnf(ctx, "forced the state transition %s -> %s", old, target)
	if onChange != nil && old != target {
		onChange(old, target)
	}
}

func (m *StateMachine) IsInState(candidates ...State) bool {
	m.locker.Lock()
	defer m.locker.Unlock()
	for _, candidate := range candidates {
		if m.state == candidate {
			return true
		}
	}
	return false
}

// RequireState returns an *InvalidStateError unless the machine is in one
// of the given states.
func (m *StateMachine) RequireState(operation string, candidates ...State) error {
	m.locker.Lock()
	defer m.locker.Unlock()
	for _, candidate := range candidates {
		if m.state == candidate {
			return nil
		}
	}
	return &InvalidStateError{
		Operation: operation,
		Current:   m.state,
		Required:  candidates,
	}
}
