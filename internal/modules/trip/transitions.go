// README: Trip state flow as code, plus the per-kind policy knobs.
package trip

// AllowedTransitions is the shared lifecycle every kind follows.
// Cancellation is allowed from any non-terminal state.
var AllowedTransitions = map[Status][]Status{
	StatusPending:  {StatusAccepted, StatusCancelled},
	StatusAccepted: {StatusActive, StatusCancelled},
	StatusActive:   {StatusRiding, StatusCancelled},
	StatusRiding:   {StatusCompleted, StatusCancelled},
}

// Policy holds the kind-specific deviations from AllowedTransitions.
type Policy struct {
	// DirectComplete lets a kind skip riding and go active -> completed.
	DirectComplete map[Kind]bool
	// OTPKinds require an OTP on accepted -> active even without cash on delivery.
	OTPKinds map[Kind]bool
}

func DefaultPolicy() Policy {
	return Policy{
		DirectComplete: map[Kind]bool{
			KindEcommerce: true,
			KindFood:      true,
			KindGrocery:   true,
		},
		OTPKinds: map[Kind]bool{},
	}
}

func (p Policy) CanTransition(kind Kind, from, to Status) bool {
	if from == StatusActive && to == StatusCompleted && p.DirectComplete[kind] {
		return true
	}
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// RequiresOTP reports whether moving t from accepted to active needs an OTP.
func (p Policy) RequiresOTP(t Trip) bool {
	return t.CashOnDelivery || p.OTPKinds[t.OrderKind]
}

// CanTransition checks a move against the default policy.
func CanTransition(kind Kind, from, to Status) bool {
	return DefaultPolicy().CanTransition(kind, from, to)
}
