// Package selector implements the interactive pick-a-block flow as an explicit
// state machine.
package selector

// State is the current step of the selection flow.
type State string

const (
	StateIdle           State = "idle"
	StateSelecting      State = "selecting"
	StateDurationChosen State = "duration_chosen"
	StateFormFilled     State = "form_filled"
	StateSubmitting     State = "submitting"
	StateConfirmed      State = "confirmed"
	StateFailed         State = "failed"
)

// FSM holds the allowed transitions of the selection flow.
type FSM struct {
	transitions map[State][]State
}

// NewFSM creates the selection FSM.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[State][]State{
			StateIdle:           {StateSelecting},
			StateSelecting:      {StateIdle, StateSelecting, StateDurationChosen},
			StateDurationChosen: {StateIdle, StateSelecting, StateFormFilled},
			StateFormFilled:     {StateIdle, StateSelecting, StateFormFilled, StateSubmitting},
			StateSubmitting:     {StateConfirmed, StateFailed},
			StateConfirmed:      {StateIdle, StateSelecting},
			StateFailed:         {StateDurationChosen},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to State) bool {
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
