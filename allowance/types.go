/*
Package allowance provides the pass allowance and eligibility engine.

PURPOSE:
  This package holds the pure decision logic for visitor passes. Given the
  allowance state of a unit and a requested pass kind, it decides whether
  the new pass is free, party-exempt, or paid. It never touches storage and
  never reads the clock; callers hand it everything it needs.

KEY CONCEPTS IN THIS FILE (types.go):
  - Kind: what the resident asked for (regular or party)
  - PassType: what the pass ends up being (free, paid, party)
  - PaymentStatus: the payment state carried by a pass
  - UnitAllowanceState: derived counters for one unit in the current month
  - Decision: the classification result

DESIGN PRINCIPLES:
  1. Purity: Classify is a function of its arguments only
  2. Precision: prices use decimal.Decimal, never float64
  3. Explicit settings: admin-global values are passed in, not read globally

USAGE:
  state := allowance.UnitAllowanceState{FreePassLimit: 12, PartyPassLimit: 3}
  d, err := allowance.Classify(state, allowance.KindRegular, settings.PricePerPass)

SEE ALSO:
  - decision.go: Classify rules
  - payment.go: Payment status state machine
  - window.go: Month and day boundaries
*/
package allowance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENUMERATIONS
// =============================================================================

// Kind is the pass kind a resident requests.
type Kind string

const (
	KindRegular Kind = "regular"
	KindParty   Kind = "party"
)

func (k Kind) Valid() bool { return k == KindRegular || k == KindParty }

// PassType is the classification stored on an issued pass.
type PassType string

const (
	TypeFree  PassType = "free"
	TypePaid  PassType = "paid"
	TypeParty PassType = "party"
)

func (t PassType) Valid() bool {
	return t == TypeFree || t == TypePaid || t == TypeParty
}

type PaymentStatus string

const (
	PaymentFree     PaymentStatus = "free"
	PaymentRequired PaymentStatus = "payment_required"
	PaymentPaid     PaymentStatus = "paid"
	PaymentWaived   PaymentStatus = "waived"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentFree, PaymentRequired, PaymentPaid, PaymentWaived:
		return true
	}
	return false
}

// =============================================================================
// ALLOWANCE STATE - Derived per-unit counters, recomputed per request
// =============================================================================

// UnitAllowanceState is everything Classify needs to know about a unit.
// It is built fresh by the lookup layer for every request.
type UnitAllowanceState struct {
	UnitID string

	FreePassLimit             int
	FreePassesIssuedThisMonth int

	PartyPassLimit             int
	PartyDaysConsumedThisMonth int
	IsTodayAlreadyPartyDay     bool

	// Informational; Classify does not read these.
	Today Day
	Month Window
}

// FreePassesRemaining never goes below zero.
func (s UnitAllowanceState) FreePassesRemaining() int {
	if r := s.FreePassLimit - s.FreePassesIssuedThisMonth; r > 0 {
		return r
	}
	return 0
}

func (s UnitAllowanceState) PartyDaysRemaining() int {
	if r := s.PartyPassLimit - s.PartyDaysConsumedThisMonth; r > 0 {
		return r
	}
	return 0
}

// =============================================================================
// DECISION
// =============================================================================

// Decision is the outcome of a successful classification.
type Decision struct {
	Type          PassType
	PaymentStatus PaymentStatus
	// Price is non-nil only for payment_required decisions.
	Price *decimal.Decimal
	// ConsumePartyDay tells the ledger to record today as a party day in
	// the same unit of work as the pass insert.
	ConsumePartyDay bool
}

// =============================================================================
// SETTINGS - Admin-global configuration
// =============================================================================

// Settings are the admin-global values that shape classification.
type Settings struct {
	PricePerPass         decimal.Decimal
	PartyPassLimit       int
	DefaultFreePassLimit int
	Location             *time.Location
}

// DefaultSettings mirrors the values the property ships with.
func DefaultSettings() Settings {
	return Settings{
		PricePerPass:         decimal.RequireFromString("5.00"),
		PartyPassLimit:       3,
		DefaultFreePassLimit: 12,
		Location:             time.UTC,
	}
}

// LocationFor resolves a unit's timezone name, falling back to the
// admin-global location when the name is empty or unknown.
func (s Settings) LocationFor(tz string) *time.Location {
	if tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return locationOrUTC(s.Location)
}
