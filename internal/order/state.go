package order

import "fmt"

// State 表示订单记录的生命周期状态。
type State string

const (
	StatePending         State = "pending"
	StateActive          State = "active"
	StateTriggered       State = "triggered"
	StatePartiallyFilled State = "partially_filled"
	StateFilled          State = "filled"
	StateCancelled       State = "cancelled"
	StateRejected        State = "rejected"
	StateExpired         State = "expired"
)

// Terminal 判断状态是否为终态。
func (s State) Terminal() bool {
	switch s {
	case StateFilled, StateCancelled, StateRejected, StateExpired:
		return true
	}
	return false
}

// transitions 定义合法的状态迁移表。
var transitions = map[State][]State{
	StatePending:         {StateActive, StateCancelled, StateRejected},
	StateActive:          {StateTriggered, StatePartiallyFilled, StateFilled, StateCancelled, StateRejected, StateExpired},
	StateTriggered:       {StatePartiallyFilled, StateFilled, StateCancelled, StateRejected, StateExpired},
	StatePartiallyFilled: {StateActive, StateFilled, StateCancelled, StateRejected, StateExpired},
}

// CanTransition 判断 from -> to 是否为合法迁移。
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition 表示非法状态迁移。
type ErrInvalidTransition struct {
	From State
	To   State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("order: 非法状态迁移 %s -> %s", e.From, e.To)
}
