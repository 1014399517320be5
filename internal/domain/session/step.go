package session

import "fmt"

// Step is the position of a booking session in its lifecycle.
type Step string

const (
	StepStarted           Step = "started"
	StepFlightSelected    Step = "flight_selected"
	StepHotelSelected     Step = "hotel_selected"
	StepHotelSkipped      Step = "hotel_skipped"
	StepDetailsEntered    Step = "details_entered"
	StepPaymentAuthorized Step = "payment_authorized"
	StepCommitted         Step = "committed"
	StepAbandoned         Step = "abandoned"
	StepFailed            Step = "failed"
)

// validTransitions defines the session state machine. Edges that point back
// to an earlier step are revisions and clear downstream selections.
var validTransitions = map[Step][]Step{
	StepStarted: {StepFlightSelected, StepStarted, StepAbandoned},
	StepFlightSelected: {
		StepFlightSelected, StepHotelSelected, StepHotelSkipped,
		StepStarted, StepAbandoned,
	},
	StepHotelSelected: {
		StepFlightSelected, StepHotelSelected, StepHotelSkipped, StepDetailsEntered,
		StepStarted, StepAbandoned,
	},
	StepHotelSkipped: {
		StepFlightSelected, StepHotelSelected, StepHotelSkipped, StepDetailsEntered,
		StepStarted, StepAbandoned,
	},
	StepDetailsEntered: {
		StepFlightSelected, StepHotelSelected, StepHotelSkipped, StepDetailsEntered,
		StepPaymentAuthorized, StepStarted, StepAbandoned,
	},
	StepPaymentAuthorized: {StepCommitted, StepFailed, StepAbandoned},
	StepCommitted:         {},
	StepAbandoned:         {},
	StepFailed:            {},
}

// IsValid returns true if the step is a recognized session step.
func (s Step) IsValid() bool {
	_, exists := validTransitions[s]
	return exists
}

// CanTransitionTo returns true if a transition from this step to the target is allowed.
func (s Step) CanTransitionTo(target Step) bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}
	for _, t := range allowed {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible from this step.
func (s Step) IsTerminal() bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return true
	}
	return len(allowed) == 0
}

// String returns the string representation of the step.
func (s Step) String() string {
	return string(s)
}

// ParseStep converts a string to a Step, returning an error if invalid.
func ParseStep(s string) (Step, error) {
	step := Step(s)
	if !step.IsValid() {
		return "", fmt.Errorf("invalid session step: %s", s)
	}
	return step, nil
}
