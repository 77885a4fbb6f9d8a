package model

import (
	"errors"
	"fmt"
)

// RunState 一次审计运行的状态
type RunState int

const (
	StateIdle RunState = iota
	StateScanning
	StateAggregated
	StateRendered
	StateDispatching
	StateDelivered
	StateDeliveryFailed
)

var stateNames = [...]string{
	"Idle",
	"Scanning",
	"Aggregated",
	"Rendered",
	"Dispatching",
	"Delivered",
	"DeliveryFailed",
}

func (s RunState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("RunState(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal 投递成功或失败后该次运行结束
func (s RunState) Terminal() bool {
	return s == StateDelivered || s == StateDeliveryFailed
}

var ErrInvalidTransition = errors.New("invalid run state transition")

var transitions = map[RunState][]RunState{
	StateIdle:        {StateScanning},
	StateScanning:    {StateAggregated},
	StateAggregated:  {StateRendered},
	StateRendered:    {StateDispatching},
	StateDispatching: {StateDelivered, StateDeliveryFailed},
}

// RunTracker 只允许向前迁移，新的运行必须使用新的 tracker
type RunTracker struct {
	state   RunState
	history []RunState
}

func NewRunTracker() *RunTracker {
	return &RunTracker{state: StateIdle, history: []RunState{StateIdle}}
}

func (t *RunTracker) State() RunState {
	return t.state
}

func (t *RunTracker) History() []RunState {
	out := make([]RunState, len(t.history))
	copy(out, t.history)
	return out
}

func (t *RunTracker) Advance(next RunState) error {
	for _, allowed := range transitions[t.state] {
		if allowed == next {
			t.state = next
			t.history = append(t.history, next)
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.state, next)
}
