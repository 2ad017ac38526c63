package tutor

import "time"

// State is one stage of a request's lifecycle. Terminal states are
// StateCompleted and StateFailed.
type State string

const (
	StateReceived         State = "received"
	StateClassified       State = "classified"
	StateProviderSelected State = "provider_selected"
	StateProviderInvoked  State = "provider_invoked"
	StateMerged           State = "merged"
	StatePersisted        State = "persisted"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

type transition struct {
	state State
	at    time.Time
}

// trace records the ordered state transitions of one in-flight request.
type trace struct {
	transitions []transition
}

func newTrace() *trace {
	tr := &trace{}
	tr.to(StateReceived)
	return tr
}

func (tr *trace) to(s State) {
	tr.transitions = append(tr.transitions, transition{state: s, at: time.Now()})
}

func (tr *trace) states() []State {
	out := make([]State, len(tr.transitions))
	for i, t := range tr.transitions {
		out[i] = t.state
	}
	return out
}

func (tr *trace) last() State {
	if len(tr.transitions) == 0 {
		return ""
	}
	return tr.transitions[len(tr.transitions)-1].state
}
