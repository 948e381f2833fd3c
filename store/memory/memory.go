// Package memory provides an in-memory pass store (for testing/dev).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RL96-hub/ParkingPass/allowance"
	"github.com/RL96-hub/ParkingPass/pass"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory implements pass.TxStore and pass.Directory. Every public method
// takes the lock; WithTx holds the write lock for the whole callback, so
// transactions are fully serialized.
type Memory struct {
	mu sync.RWMutex
	st *state
}

func New() *Memory {
	return &Memory{st: newState()}
}

var (
	_ pass.TxStore   = (*Memory)(nil)
	_ pass.Directory = (*Memory)(nil)
)

func (m *Memory) GetUnit(ctx context.Context, unitID string) (*pass.Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetUnit(ctx, unitID)
}

func (m *Memory) GetVehicle(ctx context.Context, vehicleID string) (*pass.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetVehicle(ctx, vehicleID)
}

func (m *Memory) GetSettings(ctx context.Context) (allowance.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetSettings(ctx)
}

func (m *Memory) FindActivePass(ctx context.Context, vehicleID string, now time.Time) (*pass.Pass, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.FindActivePass(ctx, vehicleID, now)
}

func (m *Memory) InsertPass(ctx context.Context, p pass.Pass) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.InsertPass(ctx, p)
}

func (m *Memory) AppendPartyDay(ctx context.Context, unitID string, day allowance.Day) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AppendPartyDay(ctx, unitID, day)
}

func (m *Memory) CountFreePassesInMonth(ctx context.Context, unitID string, monthStart, monthEnd time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.CountFreePassesInMonth(ctx, unitID, monthStart, monthEnd)
}

func (m *Memory) UpdatePaymentStatus(ctx context.Context, passID string, to allowance.PaymentStatus) (*pass.Pass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UpdatePaymentStatus(ctx, passID, to)
}

func (m *Memory) GetPass(ctx context.Context, passID string) (*pass.Pass, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetPass(ctx, passID)
}

func (m *Memory) ListPassesByUnit(ctx context.Context, unitID string) ([]pass.Pass, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListPassesByUnit(ctx, unitID)
}

func (m *Memory) ListPartyPasses(ctx context.Context, unitID string) ([]pass.Pass, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListPartyPasses(ctx, unitID)
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(pass.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(m.st); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) CreateUnit(_ context.Context, u pass.Unit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.st.units[u.ID]; ok {
		return allowance.ErrUnitExists
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.PartyDays = append([]allowance.Day(nil), u.PartyDays...)
	m.st.units[u.ID] = u
	return nil
}

func (m *Memory) SaveUnit(_ context.Context, u pass.Unit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.st.units[u.ID]; ok {
		// Party days are append-only; a save never drops one.
		for _, d := range existing.PartyDays {
			if !u.HasPartyDay(d) {
				u.PartyDays = append(u.PartyDays, d)
			}
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = existing.CreatedAt
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.PartyDays = append([]allowance.Day(nil), u.PartyDays...)
	allowance.SortDays(u.PartyDays)
	m.st.units[u.ID] = u
	return nil
}

func (m *Memory) ListUnits(_ context.Context) ([]pass.Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	units := make([]pass.Unit, 0, len(m.st.units))
	for _, u := range m.st.units {
		units = append(units, cloneUnit(u))
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units, nil
}

func (m *Memory) DeleteUnit(_ context.Context, unitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.st.units, unitID)
	for id, v := range m.st.vehicles {
		if v.UnitID == unitID {
			delete(m.st.vehicles, id)
		}
	}
	for id, p := range m.st.passes {
		if p.UnitID == unitID {
			delete(m.st.passes, id)
		}
	}
	return nil
}

func (m *Memory) SaveVehicle(_ context.Context, v pass.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.st.units[v.UnitID]; !ok {
		return fmt.Errorf("%w: %s", allowance.ErrUnitNotFound, v.UnitID)
	}
	if existing, ok := m.st.vehicles[v.ID]; ok && v.CreatedAt.IsZero() {
		v.CreatedAt = existing.CreatedAt
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	v.Plate = pass.NormalizePlate(v.Plate)
	m.st.vehicles[v.ID] = v
	return nil
}

func (m *Memory) ListVehicles(_ context.Context, unitID string) ([]pass.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var vehicles []pass.Vehicle
	for _, v := range m.st.vehicles {
		if v.UnitID == unitID {
			vehicles = append(vehicles, v)
		}
	}
	sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].Plate < vehicles[j].Plate })
	return vehicles, nil
}

func (m *Memory) DeleteVehicle(_ context.Context, vehicleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.st.vehicles, vehicleID)
	return nil
}

func (m *Memory) SaveSettings(_ context.Context, s allowance.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.settings = s
	return nil
}

// Reset deletes all data and restores default settings.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = newState()
	return nil
}

// =============================================================================
// STATE - Unlocked view, also the transactional store handed to WithTx
// =============================================================================

type state struct {
	units    map[string]pass.Unit
	vehicles map[string]pass.Vehicle
	passes   map[string]pass.Pass
	settings allowance.Settings
}

func newState() *state {
	return &state{
		units:    make(map[string]pass.Unit),
		vehicles: make(map[string]pass.Vehicle),
		passes:   make(map[string]pass.Pass),
		settings: allowance.DefaultSettings(),
	}
}

func (s *state) clone() *state {
	c := &state{
		units:    make(map[string]pass.Unit, len(s.units)),
		vehicles: make(map[string]pass.Vehicle, len(s.vehicles)),
		passes:   make(map[string]pass.Pass, len(s.passes)),
		settings: s.settings,
	}
	for k, v := range s.units {
		c.units[k] = cloneUnit(v)
	}
	for k, v := range s.vehicles {
		c.vehicles[k] = v
	}
	for k, v := range s.passes {
		c.passes[k] = v
	}
	return c
}

func (s *state) GetUnit(_ context.Context, unitID string) (*pass.Unit, error) {
	u, ok := s.units[unitID]
	if !ok {
		return nil, nil
	}
	u = cloneUnit(u)
	return &u, nil
}

func (s *state) GetVehicle(_ context.Context, vehicleID string) (*pass.Vehicle, error) {
	v, ok := s.vehicles[vehicleID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *state) GetSettings(_ context.Context) (allowance.Settings, error) {
	return s.settings, nil
}

func (s *state) FindActivePass(_ context.Context, vehicleID string, now time.Time) (*pass.Pass, error) {
	for _, p := range s.passes {
		if p.VehicleID == vehicleID && p.IsActive(now) {
			p := clonePass(p)
			return &p, nil
		}
	}
	return nil, nil
}

func (s *state) InsertPass(ctx context.Context, p pass.Pass) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, ok := s.passes[p.ID]; ok {
		return fmt.Errorf("pass %s already exists", p.ID)
	}
	if existing, _ := s.FindActivePass(ctx, p.VehicleID, p.CreatedAt); existing != nil {
		return allowance.ErrConstraintViolation
	}
	p.Vehicle.Plate = pass.NormalizePlate(p.Vehicle.Plate)
	s.passes[p.ID] = clonePass(p)
	return nil
}

func (s *state) AppendPartyDay(_ context.Context, unitID string, day allowance.Day) error {
	if day.IsZero() {
		return fmt.Errorf("party day for unit %s is empty", unitID)
	}
	u, ok := s.units[unitID]
	if !ok {
		return fmt.Errorf("%w: %s", allowance.ErrUnitNotFound, unitID)
	}
	if u.HasPartyDay(day) {
		return nil
	}
	u = cloneUnit(u)
	u.PartyDays = append(u.PartyDays, day)
	allowance.SortDays(u.PartyDays)
	s.units[unitID] = u
	return nil
}

func (s *state) CountFreePassesInMonth(_ context.Context, unitID string, monthStart, monthEnd time.Time) (int, error) {
	n := 0
	for _, p := range s.passes {
		if p.UnitID != unitID || p.Type != allowance.TypeFree {
			continue
		}
		if !p.CreatedAt.Before(monthStart) && p.CreatedAt.Before(monthEnd) {
			n++
		}
	}
	return n, nil
}

func (s *state) UpdatePaymentStatus(_ context.Context, passID string, to allowance.PaymentStatus) (*pass.Pass, error) {
	p, ok := s.passes[passID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", allowance.ErrPassNotFound, passID)
	}
	if err := allowance.ValidateTransition(p.PaymentStatus, to); err != nil {
		return nil, err
	}
	p.PaymentStatus = to
	s.passes[passID] = p
	out := clonePass(p)
	return &out, nil
}

func (s *state) GetPass(_ context.Context, passID string) (*pass.Pass, error) {
	p, ok := s.passes[passID]
	if !ok {
		return nil, nil
	}
	p = clonePass(p)
	return &p, nil
}

func (s *state) ListPassesByUnit(_ context.Context, unitID string) ([]pass.Pass, error) {
	passes := s.filter(func(p pass.Pass) bool { return p.UnitID == unitID })
	sort.Slice(passes, func(i, j int) bool {
		if !passes[i].CreatedAt.Equal(passes[j].CreatedAt) {
			return passes[i].CreatedAt.After(passes[j].CreatedAt)
		}
		return passes[i].ID < passes[j].ID
	})
	return passes, nil
}

func (s *state) ListPartyPasses(_ context.Context, unitID string) ([]pass.Pass, error) {
	return s.filter(func(p pass.Pass) bool {
		return p.UnitID == unitID && p.Type == allowance.TypeParty
	}), nil
}

func (s *state) filter(keep func(pass.Pass) bool) []pass.Pass {
	var out []pass.Pass
	for _, p := range s.passes {
		if keep(p) {
			out = append(out, clonePass(p))
		}
	}
	return out
}

func cloneUnit(u pass.Unit) pass.Unit {
	u.PartyDays = append([]allowance.Day(nil), u.PartyDays...)
	return u
}

func clonePass(p pass.Pass) pass.Pass {
	if p.Price != nil {
		price := *p.Price
		p.Price = &price
	}
	return p
}
