// Package domain provides core business rules for the engagement bounded context.
package domain

// Engagement lifecycle states. New and the terminal states are the only
// states with no scheduled next action.
const (
	StateNew              = "New"
	StateAssessed         = "Assessed"
	StateAwaitingResponse = "Awaiting_Response"
	StateFollowingUp      = "Following_Up"
	StateResponded        = "Responded"
	StateExhausted        = "Exhausted"
	StateEscalated        = "Escalated_To_Human"
	StateClosed           = "Closed"
)

// terminalStates are states where no further automated action may occur.
var terminalStates = map[string]bool{
	StateEscalated: true,
	StateClosed:    true,
}

// schedulableStates are states eligible for a tick-driven follow-up.
var schedulableStates = map[string]bool{
	StateAwaitingResponse: true,
	StateFollowingUp:      true,
}

// allowedTransitions is the full transition table. Responded is reachable
// from every non-terminal state because a response signal preempts the
// tick-driven path.
var allowedTransitions = map[string][]string{
	StateNew:              {StateAssessed, StateResponded},
	StateAssessed:         {StateAwaitingResponse, StateResponded},
	StateAwaitingResponse: {StateFollowingUp, StateResponded, StateExhausted},
	StateFollowingUp:      {StateFollowingUp, StateResponded, StateExhausted},
	StateResponded:        {StateEscalated},
	StateExhausted:        {StateClosed},
}

// IsTerminal returns true if the state permits no further automated action.
func IsTerminal(state string) bool {
	return terminalStates[state]
}

// IsSchedulable returns true if the state participates in scheduler ticks.
func IsSchedulable(state string) bool {
	return schedulableStates[state]
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanReceiveResponse reports whether a response signal may be applied.
// Responses preempt from any non-terminal, non-exhausted state.
func CanReceiveResponse(state string) bool {
	return !IsTerminal(state) && state != StateExhausted && state != StateResponded
}
