// Package fsm tracks the lifecycle of the socket server across one exchange.
package fsm

import "fmt"

type State string

type Event string

const (
	StateListening State = "listening"
	StateReading   State = "reading"
	StateReplying  State = "replying"
	StateStopped   State = "stopped"
)

const (
	EventAccepted Event = "accepted"
	EventReceived Event = "received"
	EventReplied  Event = "replied"
	EventFail     Event = "fail"
)

// Transition returns the state after event. Stopped is terminal.
func Transition(current State, event Event) (State, error) {
	if event == EventFail && current != StateStopped {
		return StateStopped, nil
	}

	switch current {
	case StateListening:
		if event == EventAccepted {
			return StateReading, nil
		}
	case StateReading:
		if event == EventReceived {
			return StateReplying, nil
		}
	case StateReplying:
		if event == EventReplied {
			return StateListening, nil
		}
	case StateStopped:
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
	return current, invalidTransition(current, event)
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
