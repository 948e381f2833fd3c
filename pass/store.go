/*
store.go - Persistence contract for the pass ledger

PURPOSE:
  Defines the interface between the ledger and whatever storage backs it.
  The ledger never sees SQL; it asks for exactly the queries the allowance
  engine depends on.

KEY INTERFACES:
  Store:     Reads and writes used while issuing a pass
  TxStore:   Store plus WithTx for check-and-insert atomicity
  Directory: Unit, vehicle and settings management used by the API

CONTRACT NOTES:
  - GetUnit, GetVehicle and GetPass return (nil, nil) when absent.
  - InsertPass returns ErrConstraintViolation when an active pass for the
    same vehicle already exists at the new pass's CreatedAt.
  - AppendPartyDay is idempotent.
  - UpdatePaymentStatus validates the transition against the stored
    current status atomically and returns ErrPassNotFound or an
    *InvalidTransitionError.
  - Plates and snapshots are normalized by the implementation before they
    reach the ledger.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite
  - store/memory: in-memory, for tests and local development
*/
package pass

import (
	"context"
	"time"

	"github.com/RL96-hub/ParkingPass/allowance"
)

// Store is what the ledger needs from persistence.
type Store interface {
	GetUnit(ctx context.Context, unitID string) (*Unit, error)
	GetVehicle(ctx context.Context, vehicleID string) (*Vehicle, error)
	GetSettings(ctx context.Context) (allowance.Settings, error)

	// FindActivePass returns the pass for vehicleID with ExpiresAt > now,
	// or nil.
	FindActivePass(ctx context.Context, vehicleID string, now time.Time) (*Pass, error)
	InsertPass(ctx context.Context, p Pass) error
	AppendPartyDay(ctx context.Context, unitID string, day allowance.Day) error

	// CountFreePassesInMonth counts passes with Type == free and CreatedAt
	// in [monthStart, monthEnd).
	CountFreePassesInMonth(ctx context.Context, unitID string, monthStart, monthEnd time.Time) (int, error)

	UpdatePaymentStatus(ctx context.Context, passID string, to allowance.PaymentStatus) (*Pass, error)

	GetPass(ctx context.Context, passID string) (*Pass, error)
	// ListPassesByUnit is ordered by CreatedAt descending.
	ListPassesByUnit(ctx context.Context, unitID string) ([]Pass, error)
	// ListPartyPasses returns the unit's party-typed passes, any order.
	ListPartyPasses(ctx context.Context, unitID string) ([]Pass, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Directory manages the records the ledger only reads.
type Directory interface {
	// CreateUnit inserts u and returns allowance.ErrUnitExists when the ID
	// is taken. SaveUnit upserts.
	CreateUnit(ctx context.Context, u Unit) error
	SaveUnit(ctx context.Context, u Unit) error
	ListUnits(ctx context.Context) ([]Unit, error)
	// DeleteUnit cascades to the unit's vehicles and passes.
	DeleteUnit(ctx context.Context, unitID string) error

	SaveVehicle(ctx context.Context, v Vehicle) error
	ListVehicles(ctx context.Context, unitID string) ([]Vehicle, error)
	// DeleteVehicle leaves issued passes and their snapshots untouched.
	DeleteVehicle(ctx context.Context, vehicleID string) error

	SaveSettings(ctx context.Context, s allowance.Settings) error
}
