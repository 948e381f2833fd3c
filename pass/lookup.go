package pass

import (
	"context"
	"fmt"
	"time"

	"github.com/RL96-hub/ParkingPass/allowance"
)

// =============================================================================
// LOOKUP - Read-only vehicle and unit resolution
// =============================================================================

// Lookup resolves vehicles and builds allowance state. It holds no cache:
// counts change with every issued pass, and a stale count would let
// concurrent requests bypass the monthly quota.
type Lookup struct {
	Store Store
}

func NewLookup(store Store) *Lookup {
	return &Lookup{Store: store}
}

// GetVehicle returns ErrVehicleNotFound if the vehicle does not exist.
func (l *Lookup) GetVehicle(ctx context.Context, vehicleID string) (*Vehicle, error) {
	v, err := l.Store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("get vehicle %s: %w", vehicleID, err)
	}
	if v == nil {
		return nil, fmt.Errorf("%w: %s", allowance.ErrVehicleNotFound, vehicleID)
	}
	return v, nil
}

// GetUnit returns ErrUnitNotFound if the unit does not exist.
func (l *Lookup) GetUnit(ctx context.Context, unitID string) (*Unit, error) {
	u, err := l.Store.GetUnit(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("get unit %s: %w", unitID, err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: %s", allowance.ErrUnitNotFound, unitID)
	}
	return u, nil
}

// AllowanceState computes the derived counters Classify reads, as of now,
// using the unit's business timezone for month and day boundaries.
func (l *Lookup) AllowanceState(ctx context.Context, unitID string, now time.Time, settings allowance.Settings) (allowance.UnitAllowanceState, error) {
	unit, err := l.GetUnit(ctx, unitID)
	if err != nil {
		return allowance.UnitAllowanceState{}, err
	}
	return l.stateFor(ctx, unit, now, settings)
}

func (l *Lookup) stateFor(ctx context.Context, unit *Unit, now time.Time, settings allowance.Settings) (allowance.UnitAllowanceState, error) {
	loc := settings.LocationFor(unit.Timezone)
	month := allowance.MonthWindowOf(now, loc)
	today := allowance.DayOf(now, loc)

	freeIssued, err := l.Store.CountFreePassesInMonth(ctx, unit.ID, month.Start, month.End)
	if err != nil {
		return allowance.UnitAllowanceState{}, fmt.Errorf("count free passes for %s: %w", unit.ID, err)
	}

	return allowance.UnitAllowanceState{
		UnitID:                     unit.ID,
		FreePassLimit:              unit.FreePassLimit,
		FreePassesIssuedThisMonth:  freeIssued,
		PartyPassLimit:             settings.PartyPassLimit,
		PartyDaysConsumedThisMonth: unit.PartyDaysIn(month),
		IsTodayAlreadyPartyDay:     unit.HasPartyDay(today),
		Today:                      today,
		Month:                      month,
	}, nil
}
