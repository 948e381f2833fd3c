// Package pass implements visitor pass issuance on top of the allowance
// engine: vehicle and unit lookup, the pass ledger, and payment status
// transitions.
package pass

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/RL96-hub/ParkingPass/allowance"
)

// Validity is the fixed lifetime of every pass.
const Validity = 24 * time.Hour

// =============================================================================
// UNIT & VEHICLE
// =============================================================================

type Unit struct {
	ID            string
	BuildingID    string
	Label         string
	FreePassLimit int
	// Timezone is an IANA name; empty means the admin-global timezone.
	Timezone string
	// PartyDays is append-only. Each entry is one consumed party allocation.
	PartyDays []allowance.Day
	CreatedAt time.Time
}

// HasPartyDay reports whether d is already recorded for the unit.
func (u *Unit) HasPartyDay(d allowance.Day) bool {
	for _, pd := range u.PartyDays {
		if pd.Equal(d) {
			return true
		}
	}
	return false
}

// PartyDaysIn counts recorded party days inside w.
func (u *Unit) PartyDaysIn(w allowance.Window) int {
	n := 0
	for _, pd := range u.PartyDays {
		if pd.InMonth(w) {
			n++
		}
	}
	return n
}

type Vehicle struct {
	ID        string
	UnitID    string
	Plate     string
	Make      string
	Model     string
	Color     string
	Nickname  string
	CreatedAt time.Time
}

// Snapshot copies the descriptive fields frozen into a pass.
func (v *Vehicle) Snapshot() VehicleSnapshot {
	return VehicleSnapshot{
		Plate:    NormalizePlate(v.Plate),
		Make:     v.Make,
		Model:    v.Model,
		Color:    v.Color,
		Nickname: v.Nickname,
	}
}

// VehicleSnapshot is the canonical, immutable copy of a vehicle's
// descriptive fields at issuance.
type VehicleSnapshot struct {
	Plate    string `json:"plate"`
	Make     string `json:"make"`
	Model    string `json:"model"`
	Color    string `json:"color"`
	Nickname string `json:"nickname,omitempty"`
}

// =============================================================================
// PASS
// =============================================================================

type Pass struct {
	ID            string
	UnitID        string
	VehicleID     string
	Vehicle       VehicleSnapshot
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Type          allowance.PassType
	PaymentStatus allowance.PaymentStatus
	Price         *decimal.Decimal
}

// Validate checks a pass about to be inserted. Only initial payment
// statuses are accepted, and a price goes with payment_required only.
func (p *Pass) Validate() error {
	if !p.Type.Valid() {
		return fmt.Errorf("pass %s: invalid type %q", p.ID, p.Type)
	}
	if !allowance.IsInitialPaymentStatus(p.PaymentStatus) {
		return fmt.Errorf("pass %s: %q is not an initial payment status", p.ID, p.PaymentStatus)
	}
	if (p.PaymentStatus == allowance.PaymentRequired) != (p.Price != nil) {
		return fmt.Errorf("pass %s: price does not match payment status %q", p.ID, p.PaymentStatus)
	}
	return nil
}

// IsActive reports whether the pass has not yet expired at now.
func (p *Pass) IsActive(now time.Time) bool {
	return p.ExpiresAt.After(now)
}

// =============================================================================
// REQUESTS & ACTORS
// =============================================================================

type CreateRequest struct {
	UnitID    string
	VehicleID string
	Kind      allowance.Kind
}

type Role string

const (
	RoleResident Role = "resident"
	RoleAdmin    Role = "admin"
)

// Actor identifies who is calling a ledger operation.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
