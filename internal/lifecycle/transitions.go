package lifecycle

import "tradeGate/internal/domain"

// transitions lists every state change the machine may perform.
var transitions = map[domain.LifecycleState][]domain.LifecycleState{
	domain.StateSignalGenerated: {domain.StateValidated, domain.StateRejected},
	domain.StateValidated:       {domain.StateEntryPending},
	domain.StateEntryPending:    {domain.StateEntered, domain.StateExited},
	domain.StateEntered:         {domain.StateMonitoring, domain.StatePartialExit1, domain.StateTrailing, domain.StateExited},
	domain.StateMonitoring:      {domain.StatePartialExit1, domain.StateTrailing, domain.StateExited},
	domain.StatePartialExit1:    {domain.StatePartialExit2, domain.StateTrailing, domain.StateExited},
	domain.StatePartialExit2:    {domain.StateTrailing, domain.StateExited},
	domain.StateTrailing:        {domain.StateExited},
}

// accepted lists the events each non-terminal state reacts to.
var accepted = map[domain.LifecycleState][]domain.EventKind{
	domain.StateSignalGenerated: {domain.EventValidated, domain.EventRejected},
	domain.StateValidated:       {domain.EventOrderPlaced},
	domain.StateEntryPending:    {domain.EventOrderFilled, domain.EventOrderCancelled},
	domain.StateEntered:         {domain.EventPriceTick, domain.EventTargetHit, domain.EventStopHit},
	domain.StateMonitoring:      {domain.EventPriceTick, domain.EventTargetHit, domain.EventStopHit},
	domain.StatePartialExit1:    {domain.EventPriceTick, domain.EventTargetHit, domain.EventStopHit},
	domain.StatePartialExit2:    {domain.EventPriceTick, domain.EventTargetHit, domain.EventStopHit},
	domain.StateTrailing:        {domain.EventPriceTick, domain.EventStopHit, domain.EventTrailStopHit},
}

// CanTransition reports whether the table allows moving from one state to another.
func CanTransition(from, to domain.LifecycleState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Accepts reports whether a record in state reacts to event.
func Accepts(state domain.LifecycleState, event domain.EventKind) bool {
	for _, e := range accepted[state] {
		if e == event {
			return true
		}
	}
	return false
}
