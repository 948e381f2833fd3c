package allowance

// =============================================================================
// PAYMENT STATUS STATE MACHINE
// =============================================================================
//
//   free              (terminal, initial)
//   payment_required  (initial) --> paid    (terminal)
//                               \-> waived  (terminal)
//
// Transitions are one-way. paid and waived are never initial.

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentRequired: {PaymentPaid, PaymentWaived},
}

// ValidateTransition returns an *InvalidTransitionError unless from -> to
// is an allowed edge.
func ValidateTransition(from, to PaymentStatus) error {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return nil
		}
	}
	return &InvalidTransitionError{From: from, To: to}
}

// IsInitialPaymentStatus reports whether s may be assigned at creation.
func IsInitialPaymentStatus(s PaymentStatus) bool {
	return s == PaymentFree || s == PaymentRequired
}
