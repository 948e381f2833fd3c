/*
ledger.go - Pass ledger with the one-active-pass-per-vehicle invariant

PURPOSE:
  Issues passes and answers the queries the allowance engine depends on.
  Every pass goes through CreatePass, which couples the eligibility
  decision to the write that records it.

INVARIANT:
  At most one active pass (ExpiresAt > now) per vehicle, at any instant,
  regardless of kind.

CREATE FLOW (one store transaction):
  1. Resolve vehicle            -> ErrVehicleNotFound
  2. Active pass for vehicle?   -> *DuplicateActivePassError
  3. Build allowance state       (fresh counts, no cache)
  4. Classify                   -> *PartyLimitReachedError
  5. Insert pass with a frozen vehicle snapshot
  6. Append today's party day when the decision consumes one

RACES:
  A store that loses the check-and-insert race returns
  ErrConstraintViolation. CreatePass retries the whole flow once; the
  retry sees the winning pass and reports DuplicateActivePassError. A
  second violation is returned as-is.

  The ledger does not serialize free-pass counting per unit. With the
  bundled stores the enclosing transaction already serializes writers.

SEE ALSO:
  - allowance/decision.go: Classification rules
  - store.go: Store contract
*/
package pass

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/RL96-hub/ParkingPass/allowance"
)

// Ledger issues and queries passes.
type Ledger struct {
	Store TxStore

	// NewID generates pass identifiers. Defaults to random UUIDs.
	NewID func() string
}

func NewLedger(store TxStore) *Ledger {
	return &Ledger{
		Store: store,
		NewID: func() string { return uuid.NewString() },
	}
}

// =============================================================================
// CREATE
// =============================================================================

// CreatePass classifies and persists a new pass for req.VehicleID at now.
func (l *Ledger) CreatePass(ctx context.Context, req CreateRequest, now time.Time) (*Pass, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", allowance.ErrInvalidKind, req.Kind)
	}

	p, err := l.createOnce(ctx, req, now)
	if allowance.IsRetryable(err) {
		p, err = l.createOnce(ctx, req, now)
	}
	return p, err
}

func (l *Ledger) createOnce(ctx context.Context, req CreateRequest, now time.Time) (*Pass, error) {
	var created *Pass

	err := l.Store.WithTx(ctx, func(tx Store) error {
		lookup := NewLookup(tx)

		vehicle, err := lookup.GetVehicle(ctx, req.VehicleID)
		if err != nil {
			return err
		}
		if vehicle.UnitID != req.UnitID {
			return fmt.Errorf("%w: %s is not registered to unit %s",
				allowance.ErrVehicleNotFound, req.VehicleID, req.UnitID)
		}

		existing, err := tx.FindActivePass(ctx, vehicle.ID, now)
		if err != nil {
			return fmt.Errorf("find active pass: %w", err)
		}
		if existing != nil {
			return &allowance.DuplicateActivePassError{
				VehicleID: vehicle.ID,
				PassID:    existing.ID,
				ExpiresAt: existing.ExpiresAt,
			}
		}

		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		unit, err := lookup.GetUnit(ctx, req.UnitID)
		if err != nil {
			return err
		}
		state, err := lookup.stateFor(ctx, unit, now, settings)
		if err != nil {
			return err
		}

		decision, err := allowance.Classify(state, req.Kind, settings.PricePerPass)
		if err != nil {
			return err
		}

		p := Pass{
			ID:            l.NewID(),
			UnitID:        unit.ID,
			VehicleID:     vehicle.ID,
			Vehicle:       vehicle.Snapshot(),
			CreatedAt:     now,
			ExpiresAt:     now.Add(Validity),
			Type:          decision.Type,
			PaymentStatus: decision.PaymentStatus,
			Price:         decision.Price,
		}
		if err := tx.InsertPass(ctx, p); err != nil {
			return fmt.Errorf("insert pass: %w", err)
		}

		if decision.ConsumePartyDay {
			if err := tx.AppendPartyDay(ctx, unit.ID, state.Today); err != nil {
				return fmt.Errorf("record party day %s: %w", state.Today, err)
			}
		}

		created = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// ListPassesByUnit returns the unit's passes, newest first.
func (l *Ledger) ListPassesByUnit(ctx context.Context, unitID string) ([]Pass, error) {
	if _, err := NewLookup(l.Store).GetUnit(ctx, unitID); err != nil {
		return nil, err
	}
	return l.Store.ListPassesByUnit(ctx, unitID)
}

// HasActivePass uses the same predicate as the create-time duplicate check.
func (l *Ledger) HasActivePass(ctx context.Context, vehicleID string, now time.Time) (bool, error) {
	p, err := l.Store.FindActivePass(ctx, vehicleID, now)
	if err != nil {
		return false, err
	}
	return p != nil, nil
}

// ActivePass returns the vehicle's active pass or nil.
func (l *Ledger) ActivePass(ctx context.Context, vehicleID string, now time.Time) (*Pass, error) {
	return l.Store.FindActivePass(ctx, vehicleID, now)
}

// CountFreePassesThisMonth counts only passes whose type is literally
// free. Party-typed passes are free of charge but are not counted.
func (l *Ledger) CountFreePassesThisMonth(ctx context.Context, unitID string, now time.Time) (int, error) {
	state, err := l.AllowanceState(ctx, unitID, now)
	if err != nil {
		return 0, err
	}
	return state.FreePassesIssuedThisMonth, nil
}

// AllowanceState exposes the unit's current counters.
func (l *Ledger) AllowanceState(ctx context.Context, unitID string, now time.Time) (allowance.UnitAllowanceState, error) {
	settings, err := l.Store.GetSettings(ctx)
	if err != nil {
		return allowance.UnitAllowanceState{}, fmt.Errorf("load settings: %w", err)
	}
	return NewLookup(l.Store).AllowanceState(ctx, unitID, now, settings)
}

func (l *Ledger) GetPass(ctx context.Context, passID string) (*Pass, error) {
	p, err := l.Store.GetPass(ctx, passID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", allowance.ErrPassNotFound, passID)
	}
	return p, nil
}

// =============================================================================
// PAYMENT
// =============================================================================

// TransitionPayment moves a payment_required pass to paid or waived.
// Only administrators may call it. Type, price and expiry are unchanged.
func (l *Ledger) TransitionPayment(ctx context.Context, actor Actor, passID string, to allowance.PaymentStatus) (*Pass, error) {
	if !actor.IsAdmin() {
		return nil, allowance.ErrForbidden
	}
	return l.Store.UpdatePaymentStatus(ctx, passID, to)
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// ReconcilePartyDays recounts the unit's party passes and records any
// party day missing from the unit. Returns how many days were appended.
func (l *Ledger) ReconcilePartyDays(ctx context.Context, unitID string) (int, error) {
	appended := 0

	err := l.Store.WithTx(ctx, func(tx Store) error {
		unit, err := NewLookup(tx).GetUnit(ctx, unitID)
		if err != nil {
			return err
		}
		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		passes, err := tx.ListPartyPasses(ctx, unitID)
		if err != nil {
			return fmt.Errorf("list party passes: %w", err)
		}

		loc := settings.LocationFor(unit.Timezone)
		seen := make(map[allowance.Day]bool, len(unit.PartyDays))
		for _, d := range unit.PartyDays {
			seen[d] = true
		}
		for _, p := range passes {
			day := allowance.DayOf(p.CreatedAt, loc)
			if seen[day] {
				continue
			}
			if err := tx.AppendPartyDay(ctx, unitID, day); err != nil {
				return fmt.Errorf("append party day %s: %w", day, err)
			}
			seen[day] = true
			appended++
		}
		return nil
	})
	return appended, err
}
