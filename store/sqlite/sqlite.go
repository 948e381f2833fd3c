/*
Package sqlite provides a SQLite-backed implementation of the pass store.

PURPOSE:
  Implements pass.TxStore and pass.Directory using SQLite. The same schema
  carries over to PostgreSQL with minor dialect changes.

KEY TABLES:
  units:      Units and their monthly free-pass limit
  party_days: Append-only consumed party days, one row per (unit, day)
  vehicles:   Resident vehicles (mutable)
  passes:     Issued passes with a frozen vehicle snapshot
  settings:   Single-row admin settings document (JSON)

INVARIANT ENFORCEMENT:
  - trg_passes_one_active aborts an insert when the vehicle already has a
    pass with expires_at > the new pass's created_at. The store maps the
    abort to allowance.ErrConstraintViolation.
  - trg_passes_immutable aborts any update touching a column other than
    payment_status.
  - Deleting a unit cascades to its vehicles, passes and party days.
    passes.vehicle_id has no foreign key: deleting a vehicle keeps its
    passes.

TIMESTAMPS:
  Stored as fixed-width UTC text (nanosecond precision) so that string
  comparison in SQL matches chronological order.

CONCURRENCY:
  A sync.RWMutex serializes writers in-process, and transactions are opened
  with _txlock=immediate so concurrent processes also serialize on the
  write lock.

USAGE:
  store, err := sqlite.New("./data/passes.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := pass.NewLedger(store)

SEE ALSO:
  - pass/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/RL96-hub/ParkingPass/allowance"
	"github.com/RL96-hub/ParkingPass/factory"
	"github.com/RL96-hub/ParkingPass/pass"
)

// timeLayout is fixed-width so lexical order equals time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const activePassAbort = "active pass exists for vehicle"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db       *sql.DB
	mu       sync.RWMutex
	settings *factory.SettingsFactory
}

var (
	_ pass.TxStore   = (*Store)(nil)
	_ pass.Directory = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and the
	// mutex already serializes access.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, settings: factory.NewSettingsFactory()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS units (
		id TEXT PRIMARY KEY,
		building_id TEXT NOT NULL DEFAULT '',
		label TEXT NOT NULL DEFAULT '',
		free_pass_limit INTEGER NOT NULL DEFAULT 0 CHECK (free_pass_limit >= 0),
		timezone TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Append-only: rows are never deleted except by unit cascade
	CREATE TABLE IF NOT EXISTS party_days (
		unit_id TEXT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
		day TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (unit_id, day)
	);

	CREATE TABLE IF NOT EXISTS vehicles (
		id TEXT PRIMARY KEY,
		unit_id TEXT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
		plate TEXT NOT NULL,
		make TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '',
		nickname TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_vehicles_unit
		ON vehicles(unit_id);

	CREATE TABLE IF NOT EXISTS passes (
		id TEXT PRIMARY KEY,
		unit_id TEXT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
		vehicle_id TEXT NOT NULL,
		vehicle_snapshot_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		pass_type TEXT NOT NULL CHECK (pass_type IN ('free', 'paid', 'party')),
		payment_status TEXT NOT NULL
			CHECK (payment_status IN ('free', 'payment_required', 'paid', 'waived')),
		price TEXT
	);

	-- Active pass lookup (hot path for every create)
	CREATE INDEX IF NOT EXISTS idx_passes_vehicle_expires
		ON passes(vehicle_id, expires_at);

	-- Monthly free-pass counting
	CREATE INDEX IF NOT EXISTS idx_passes_unit_type_created
		ON passes(unit_id, pass_type, created_at);

	-- Unit history listing
	CREATE INDEX IF NOT EXISTS idx_passes_unit_created
		ON passes(unit_id, created_at DESC);

	-- CRITICAL: at most one active pass per vehicle
	CREATE TRIGGER IF NOT EXISTS trg_passes_one_active
	BEFORE INSERT ON passes
	WHEN EXISTS (
		SELECT 1 FROM passes
		WHERE vehicle_id = NEW.vehicle_id AND expires_at > NEW.created_at
	)
	BEGIN
		SELECT RAISE(ABORT, '` + activePassAbort + `');
	END;

	CREATE TRIGGER IF NOT EXISTS trg_passes_immutable
	BEFORE UPDATE OF id, unit_id, vehicle_id, vehicle_snapshot_json,
		created_at, expires_at, pass_type, price ON passes
	BEGIN
		SELECT RAISE(ABORT, 'pass fields are immutable');
	END;

	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		config_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PASS STORE (pass.Store interface)
// =============================================================================

func (s *Store) GetUnit(ctx context.Context, unitID string) (*pass.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries(s.db).GetUnit(ctx, unitID)
}

func (s *Store) GetVehicle(ctx context.Context, vehicleID string) (*pass.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries(s.db).GetVehicle(ctx, vehicleID)
}

func (s *Store) GetSettings(ctx context.Context) (allowance.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries(s.db).GetSettings(ctx)
}

func (s *Store) FindActivePass(ctx context.Context, vehicleID string, now time.Time) (*pass.Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries(s.db).FindActivePass(ctx, vehicleID, now)
}

func (s *Store) InsertPass(ctx context.Context, p pass.Pass) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries(s.db).InsertPass(ctx, p)
}

func (s *Store) AppendPartyDay(ctx context.Context, unitID string, day allowance.Day) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries(s.db).AppendPartyDay(ctx, unitID, day)
}

func (s *Store) CountFreePassesInMonth(ctx context.Context, unitID string, monthStart, monthEnd time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries(s.db).CountFreePassesInMonth(ctx, unitID, monthStart, monthEnd)
}

// UpdatePaymentStatus runs the read-validate-write in its own transaction.
func (s *Store) UpdatePaymentStatus(ctx context.Context, passID string, to allowance.PaymentStatus) (*pass.Pass, error) {
	var updated *pass.Pass
	err := s.WithTx(ctx, func(tx pass.Store) error {
		var err error
		updated, err = tx.UpdatePaymentStatus(ctx, passID, to)
		return err
	})
	return updated, err
}

func (s *Store) GetPass(ctx context.Context, passID string) (*pass.Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries(s.db).GetPass(ctx, passID)
}

func (s *Store) ListPassesByUnit(ctx context.Context, unitID string) ([]pass.Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries(s.db).ListPassesByUnit(ctx, unitID)
}

func (s *Store) ListPartyPasses(ctx context.Context, unitID string) ([]pass.Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries(s.db).ListPartyPasses(ctx, unitID)
}

// =============================================================================
// TRANSACTIONAL STORE (pass.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(pass.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(s.queries(sqlTx)); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// =============================================================================
// DIRECTORY (pass.Directory interface)
// =============================================================================

// CreateUnit inserts a new unit, failing with allowance.ErrUnitExists when
// the ID is already taken.
func (s *Store) CreateUnit(ctx context.Context, u pass.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := sqlTx.ExecContext(ctx, `
		INSERT INTO units (id, building_id, label, free_pass_limit, timezone, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, u.ID, u.BuildingID, u.Label, u.FreePassLimit, u.Timezone, formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("failed to create unit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return allowance.ErrUnitExists
	}

	q := s.queries(sqlTx)
	for _, d := range u.PartyDays {
		if err := q.AppendPartyDay(ctx, u.ID, d); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

// SaveUnit upserts a unit. Party days on u are added, never removed.
func (s *Store) SaveUnit(ctx context.Context, u pass.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO units (id, building_id, label, free_pass_limit, timezone, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			building_id = excluded.building_id,
			label = excluded.label,
			free_pass_limit = excluded.free_pass_limit,
			timezone = excluded.timezone
	`, u.ID, u.BuildingID, u.Label, u.FreePassLimit, u.Timezone, formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("failed to save unit: %w", err)
	}

	q := s.queries(sqlTx)
	for _, d := range u.PartyDays {
		if err := q.AppendPartyDay(ctx, u.ID, d); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

func (s *Store) ListUnits(ctx context.Context) ([]pass.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, building_id, label, free_pass_limit, timezone, created_at FROM units ORDER BY id")
	if err != nil {
		return nil, err
	}
	var units []pass.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		units = append(units, *u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	q := s.queries(s.db)
	for i := range units {
		if units[i].PartyDays, err = q.partyDays(ctx, units[i].ID); err != nil {
			return nil, err
		}
	}
	return units, nil
}

// DeleteUnit removes the unit; vehicles, passes and party days cascade.
func (s *Store) DeleteUnit(ctx context.Context, unitID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM units WHERE id = ?", unitID)
	return err
}

// SaveVehicle upserts a vehicle with a normalized plate.
func (s *Store) SaveVehicle(ctx context.Context, v pass.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit, err := s.queries(s.db).GetUnit(ctx, v.UnitID)
	if err != nil {
		return err
	}
	if unit == nil {
		return fmt.Errorf("%w: %s", allowance.ErrUnitNotFound, v.UnitID)
	}

	createdAt := v.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vehicles (id, unit_id, plate, make, model, color, nickname, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			unit_id = excluded.unit_id,
			plate = excluded.plate,
			make = excluded.make,
			model = excluded.model,
			color = excluded.color,
			nickname = excluded.nickname
	`, v.ID, v.UnitID, pass.NormalizePlate(v.Plate), v.Make, v.Model, v.Color, v.Nickname, formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("failed to save vehicle: %w", err)
	}
	return nil
}

func (s *Store) ListVehicles(ctx context.Context, unitID string) ([]pass.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, unit_id, plate, make, model, color, nickname, created_at
		FROM vehicles WHERE unit_id = ? ORDER BY plate
	`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []pass.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, *v)
	}
	return vehicles, rows.Err()
}

// DeleteVehicle removes the vehicle. Its passes keep their snapshots.
func (s *Store) DeleteVehicle(ctx context.Context, vehicleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM vehicles WHERE id = ?", vehicleID)
	return err
}

func (s *Store) SaveSettings(ctx context.Context, settings allowance.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.settings.FormatSettings(settings)
	if err != nil {
		return err
	}
	if _, err := s.settings.ParseSettings(doc); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (id, config_json, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			config_json = excluded.config_json,
			updated_at = excluded.updated_at
	`, doc, formatTime(time.Now()))
	return err
}

// Reset deletes all data. Used by demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"passes", "party_days", "vehicles", "units", "settings"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// QUERIES - Shared by the plain connection and transactions
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements pass.Store without locking. It is what WithTx hands
// to its callback.
type queries struct {
	q        querier
	settings *factory.SettingsFactory
}

func (s *Store) queries(q querier) *queries {
	return &queries{q: q, settings: s.settings}
}

const passColumns = `id, unit_id, vehicle_id, vehicle_snapshot_json, created_at,
	expires_at, pass_type, payment_status, price`

func (qs *queries) GetUnit(ctx context.Context, unitID string) (*pass.Unit, error) {
	row := qs.q.QueryRowContext(ctx,
		"SELECT id, building_id, label, free_pass_limit, timezone, created_at FROM units WHERE id = ?",
		unitID)
	u, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if u.PartyDays, err = qs.partyDays(ctx, unitID); err != nil {
		return nil, err
	}
	return u, nil
}

func (qs *queries) partyDays(ctx context.Context, unitID string) ([]allowance.Day, error) {
	rows, err := qs.q.QueryContext(ctx,
		"SELECT day FROM party_days WHERE unit_id = ? ORDER BY day", unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to query party days: %w", err)
	}
	defer rows.Close()

	var days []allowance.Day
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		d, err := allowance.ParseDay(raw)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func (qs *queries) GetVehicle(ctx context.Context, vehicleID string) (*pass.Vehicle, error) {
	row := qs.q.QueryRowContext(ctx, `
		SELECT id, unit_id, plate, make, model, color, nickname, created_at
		FROM vehicles WHERE id = ?
	`, vehicleID)
	v, err := scanVehicle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func (qs *queries) GetSettings(ctx context.Context) (allowance.Settings, error) {
	var doc string
	err := qs.q.QueryRowContext(ctx, "SELECT config_json FROM settings WHERE id = 1").Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return allowance.DefaultSettings(), nil
	}
	if err != nil {
		return allowance.Settings{}, err
	}
	return qs.settings.ParseSettings(doc)
}

func (qs *queries) FindActivePass(ctx context.Context, vehicleID string, now time.Time) (*pass.Pass, error) {
	row := qs.q.QueryRowContext(ctx, `
		SELECT `+passColumns+`
		FROM passes
		WHERE vehicle_id = ? AND expires_at > ?
		ORDER BY expires_at DESC
		LIMIT 1
	`, vehicleID, formatTime(now))
	p, err := scanPass(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (qs *queries) InsertPass(ctx context.Context, p pass.Pass) error {
	if err := p.Validate(); err != nil {
		return err
	}
	snapshot, err := pass.EncodeSnapshot(p.Vehicle)
	if err != nil {
		return err
	}

	var price sql.NullString
	if p.Price != nil {
		price = sql.NullString{String: p.Price.String(), Valid: true}
	}

	_, err = qs.q.ExecContext(ctx, `
		INSERT INTO passes (`+passColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.UnitID, p.VehicleID, string(snapshot),
		formatTime(p.CreatedAt), formatTime(p.ExpiresAt),
		string(p.Type), string(p.PaymentStatus), price,
	)
	if err != nil {
		if isActivePassAbort(err) {
			return allowance.ErrConstraintViolation
		}
		return fmt.Errorf("failed to insert pass: %w", err)
	}
	return nil
}

func (qs *queries) AppendPartyDay(ctx context.Context, unitID string, day allowance.Day) error {
	if day.IsZero() {
		return fmt.Errorf("party day for unit %s is empty", unitID)
	}
	_, err := qs.q.ExecContext(ctx, `
		INSERT INTO party_days (unit_id, day, created_at) VALUES (?, ?, ?)
		ON CONFLICT(unit_id, day) DO NOTHING
	`, unitID, day.String(), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to append party day: %w", err)
	}
	return nil
}

func (qs *queries) CountFreePassesInMonth(ctx context.Context, unitID string, monthStart, monthEnd time.Time) (int, error) {
	var count int
	err := qs.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM passes
		WHERE unit_id = ? AND pass_type = 'free'
		  AND created_at >= ? AND created_at < ?
	`, unitID, formatTime(monthStart), formatTime(monthEnd)).Scan(&count)
	return count, err
}

func (qs *queries) UpdatePaymentStatus(ctx context.Context, passID string, to allowance.PaymentStatus) (*pass.Pass, error) {
	p, err := qs.GetPass(ctx, passID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", allowance.ErrPassNotFound, passID)
	}
	if err := allowance.ValidateTransition(p.PaymentStatus, to); err != nil {
		return nil, err
	}

	res, err := qs.q.ExecContext(ctx,
		"UPDATE passes SET payment_status = ? WHERE id = ? AND payment_status = ?",
		string(to), passID, string(p.PaymentStatus))
	if err != nil {
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, &allowance.InvalidTransitionError{From: p.PaymentStatus, To: to}
	}

	p.PaymentStatus = to
	return p, nil
}

func (qs *queries) GetPass(ctx context.Context, passID string) (*pass.Pass, error) {
	row := qs.q.QueryRowContext(ctx, "SELECT "+passColumns+" FROM passes WHERE id = ?", passID)
	p, err := scanPass(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (qs *queries) ListPassesByUnit(ctx context.Context, unitID string) ([]pass.Pass, error) {
	return qs.queryPasses(ctx, `
		SELECT `+passColumns+` FROM passes
		WHERE unit_id = ?
		ORDER BY created_at DESC, id
	`, unitID)
}

func (qs *queries) ListPartyPasses(ctx context.Context, unitID string) ([]pass.Pass, error) {
	return qs.queryPasses(ctx, `
		SELECT `+passColumns+` FROM passes
		WHERE unit_id = ? AND pass_type = 'party'
	`, unitID)
}

func (qs *queries) queryPasses(ctx context.Context, query string, args ...any) ([]pass.Pass, error) {
	rows, err := qs.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query passes: %w", err)
	}
	defer rows.Close()

	var passes []pass.Pass
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, err
		}
		passes = append(passes, *p)
	}
	return passes, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanUnit(row scanner) (*pass.Unit, error) {
	var (
		u         pass.Unit
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.BuildingID, &u.Label, &u.FreePassLimit, &u.Timezone, &createdAt); err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func scanVehicle(row scanner) (*pass.Vehicle, error) {
	var (
		v         pass.Vehicle
		createdAt string
	)
	if err := row.Scan(&v.ID, &v.UnitID, &v.Plate, &v.Make, &v.Model, &v.Color, &v.Nickname, &createdAt); err != nil {
		return nil, err
	}
	v.Plate = pass.NormalizePlate(v.Plate)
	v.CreatedAt = parseTime(createdAt)
	return &v, nil
}

func scanPass(row scanner) (*pass.Pass, error) {
	var (
		p                      pass.Pass
		snapshot               string
		createdAt, expiresAt   string
		passType, paymentState string
		price                  sql.NullString
	)
	err := row.Scan(&p.ID, &p.UnitID, &p.VehicleID, &snapshot,
		&createdAt, &expiresAt, &passType, &paymentState, &price)
	if err != nil {
		return nil, err
	}

	if p.Vehicle, err = pass.DecodeSnapshot([]byte(snapshot)); err != nil {
		return nil, fmt.Errorf("pass %s: %w", p.ID, err)
	}
	p.CreatedAt = parseTime(createdAt)
	p.ExpiresAt = parseTime(expiresAt)
	p.Type = allowance.PassType(passType)
	p.PaymentStatus = allowance.PaymentStatus(paymentState)
	if !p.Type.Valid() || !p.PaymentStatus.Valid() {
		return nil, fmt.Errorf("pass %s: unknown type %q or payment status %q", p.ID, passType, paymentState)
	}
	if price.Valid {
		d, err := decimal.NewFromString(price.String)
		if err != nil {
			return nil, fmt.Errorf("pass %s: invalid price %q: %w", p.ID, price.String, err)
		}
		p.Price = &d
	}
	return &p, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by other tools may use plain RFC3339.
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func isActivePassAbort(err error) bool {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrConstraint {
		return strings.Contains(sqlErr.Error(), activePassAbort)
	}
	return false
}
