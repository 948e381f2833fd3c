/*
decision.go - Eligibility decision engine

RULES (evaluated in this exact order):

  party request:
    a. today is already a party day  -> party, free, no consumption
    b. party days used >= limit      -> PartyLimitReachedError
    c. otherwise                     -> party, free, consume today

  regular request:
    a. today is already a party day  -> free, free
    b. free passes issued < limit    -> free, free
    c. otherwise                     -> paid, payment_required, price

ORDERING:
  The party-day check must come before the free-limit check in the regular
  branch. A party day overrides the unit's free-pass counter for the whole
  day, and checking the counter first would bill residents during a party.

IDEMPOTENCE:
  Requesting party mode twice on the same day never consumes a second
  allocation and never rejects.
*/
package allowance

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Classify decides the type, payment status and price of a new pass.
// It has no side effects; the caller applies ConsumePartyDay.
func Classify(state UnitAllowanceState, kind Kind, pricePerPass decimal.Decimal) (Decision, error) {
	switch kind {
	case KindParty:
		return classifyParty(state)
	case KindRegular:
		return classifyRegular(state, pricePerPass), nil
	default:
		return Decision{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
}

func classifyParty(state UnitAllowanceState) (Decision, error) {
	if state.IsTodayAlreadyPartyDay {
		return Decision{Type: TypeParty, PaymentStatus: PaymentFree}, nil
	}
	if state.PartyDaysConsumedThisMonth >= state.PartyPassLimit {
		return Decision{}, &PartyLimitReachedError{Limit: state.PartyPassLimit}
	}
	return Decision{Type: TypeParty, PaymentStatus: PaymentFree, ConsumePartyDay: true}, nil
}

func classifyRegular(state UnitAllowanceState, pricePerPass decimal.Decimal) Decision {
	if state.IsTodayAlreadyPartyDay {
		return Decision{Type: TypeFree, PaymentStatus: PaymentFree}
	}
	if state.FreePassesIssuedThisMonth < state.FreePassLimit {
		return Decision{Type: TypeFree, PaymentStatus: PaymentFree}
	}
	price := pricePerPass
	return Decision{Type: TypePaid, PaymentStatus: PaymentRequired, Price: &price}
}
