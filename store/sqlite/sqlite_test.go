package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RL96-hub/ParkingPass/allowance"
	"github.com/RL96-hub/ParkingPass/pass"
	"github.com/RL96-hub/ParkingPass/store/sqlite"
)

var june15 = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "passes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seed(t *testing.T, store *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SaveUnit(ctx, pass.Unit{ID: "unit-101", BuildingID: "bldg-1", Label: "101", FreePassLimit: 12}))
	require.NoError(t, store.SaveVehicle(ctx, pass.Vehicle{ID: "car-1", UnitID: "unit-101", Plate: "abc-123", Make: "Ford"}))
}

func newPass(id string, createdAt time.Time, typ allowance.PassType) pass.Pass {
	status := allowance.PaymentFree
	var price *decimal.Decimal
	if typ == allowance.TypePaid {
		status = allowance.PaymentRequired
		p := decimal.RequireFromString("5.00")
		price = &p
	}
	return pass.Pass{
		ID:            id,
		UnitID:        "unit-101",
		VehicleID:     "car-1",
		Vehicle:       pass.VehicleSnapshot{Plate: "ABC123", Make: "Ford"},
		CreatedAt:     createdAt,
		ExpiresAt:     createdAt.Add(pass.Validity),
		Type:          typ,
		PaymentStatus: status,
		Price:         price,
	}
}

func TestSQLite_InsertAndGetPass(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()

	require.NoError(t, store.InsertPass(ctx, newPass("p-1", june15, allowance.TypePaid)))

	got, err := store.GetPass(ctx, "p-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, allowance.TypePaid, got.Type)
	assert.Equal(t, allowance.PaymentRequired, got.PaymentStatus)
	require.NotNil(t, got.Price)
	assert.Equal(t, "5.00", got.Price.StringFixed(2))
	assert.True(t, got.CreatedAt.Equal(june15))
	assert.Equal(t, "ABC123", got.Vehicle.Plate)

	missing, err := store.GetPass(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_PriceStoredExactly(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()

	p := newPass("p-1", june15, allowance.TypePaid)
	price := decimal.RequireFromString("5.125")
	p.Price = &price
	require.NoError(t, store.InsertPass(ctx, p))

	got, err := store.GetPass(ctx, "p-1")
	require.NoError(t, err)
	require.NotNil(t, got.Price)
	assert.True(t, price.Equal(*got.Price), "stored %s", got.Price)
	assert.Equal(t, "5.125", got.Price.String())
}

func TestSQLite_Ledger_PriceMatchesCreated(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveUnit(ctx, pass.Unit{ID: "unit-101", BuildingID: "bldg-1", Label: "101", FreePassLimit: 0}))
	require.NoError(t, store.SaveVehicle(ctx, pass.Vehicle{ID: "car-1", UnitID: "unit-101", Plate: "abc-123"}))
	require.NoError(t, store.SaveSettings(ctx, allowance.Settings{
		PricePerPass:   decimal.RequireFromString("6.75"),
		PartyPassLimit: 3,
		Location:       time.UTC,
	}))

	created, err := pass.NewLedger(store).CreatePass(ctx, pass.CreateRequest{UnitID: "unit-101", VehicleID: "car-1", Kind: allowance.KindRegular}, june15)
	require.NoError(t, err)
	require.NotNil(t, created.Price)

	got, err := store.GetPass(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Price)
	assert.True(t, created.Price.Equal(*got.Price))
}

func TestSQLite_SaveSettings_RejectsSubCentPrice(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	err := store.SaveSettings(ctx, allowance.Settings{
		PricePerPass:   decimal.RequireFromString("5.125"),
		PartyPassLimit: 3,
		Location:       time.UTC,
	})
	require.Error(t, err)

	got, err := store.GetSettings(ctx)
	require.NoError(t, err)
	assert.True(t, got.PricePerPass.Equal(allowance.DefaultSettings().PricePerPass))
}

func TestSQLite_InsertPass_RejectsInvalid(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()

	p := newPass("p-1", june15, allowance.TypePaid)
	p.PaymentStatus = allowance.PaymentPaid
	require.Error(t, store.InsertPass(ctx, p))
	require.Error(t, store.AppendPartyDay(ctx, "unit-101", allowance.Day{}))

	got, err := store.GetPass(ctx, "p-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_ActivePassTrigger(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()

	require.NoError(t, store.InsertPass(ctx, newPass("p-1", june15, allowance.TypeFree)))

	err := store.InsertPass(ctx, newPass("p-2", june15.Add(time.Hour), allowance.TypeFree))
	assert.ErrorIs(t, err, allowance.ErrConstraintViolation)

	// Exactly at expiry the first pass is no longer active.
	require.NoError(t, store.InsertPass(ctx, newPass("p-3", june15.Add(pass.Validity), allowance.TypeFree)))
}

func TestSQLite_FindActivePass(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()
	require.NoError(t, store.InsertPass(ctx, newPass("p-1", june15, allowance.TypeFree)))

	active, err := store.FindActivePass(ctx, "car-1", june15.Add(23*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "p-1", active.ID)

	expired, err := store.FindActivePass(ctx, "car-1", june15.Add(pass.Validity))
	require.NoError(t, err)
	assert.Nil(t, expired)
}

func TestSQLite_CountFreePassesInMonth(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()

	require.NoError(t, store.InsertPass(ctx, newPass("may", time.Date(2025, time.May, 31, 23, 0, 0, 0, time.UTC), allowance.TypeFree)))
	require.NoError(t, store.InsertPass(ctx, newPass("j1", time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC), allowance.TypeFree)))
	require.NoError(t, store.InsertPass(ctx, newPass("j2", time.Date(2025, time.June, 4, 0, 0, 0, 0, time.UTC), allowance.TypeParty)))
	require.NoError(t, store.InsertPass(ctx, newPass("j3", time.Date(2025, time.June, 6, 0, 0, 0, 0, time.UTC), allowance.TypePaid)))
	require.NoError(t, store.InsertPass(ctx, newPass("j4", time.Date(2025, time.June, 8, 0, 0, 0, 0, time.UTC), allowance.TypeFree)))

	w := allowance.MonthWindowOf(june15, time.UTC)
	n, err := store.CountFreePassesInMonth(ctx, "unit-101", w.Start, w.End)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLite_AppendPartyDay_Idempotent(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()
	day := allowance.NewDay(2025, time.June, 15)

	require.NoError(t, store.AppendPartyDay(ctx, "unit-101", day))
	require.NoError(t, store.AppendPartyDay(ctx, "unit-101", day))

	u, err := store.GetUnit(ctx, "unit-101")
	require.NoError(t, err)
	assert.Equal(t, []allowance.Day{day}, u.PartyDays)
}

func TestSQLite_SaveUnit_KeepsPartyDays(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()
	day := allowance.NewDay(2025, time.June, 15)
	require.NoError(t, store.AppendPartyDay(ctx, "unit-101", day))

	require.NoError(t, store.SaveUnit(ctx, pass.Unit{ID: "unit-101", Label: "101A", FreePassLimit: 4}))

	u, err := store.GetUnit(ctx, "unit-101")
	require.NoError(t, err)
	assert.Equal(t, "101A", u.Label)
	assert.Equal(t, 4, u.FreePassLimit)
	assert.Equal(t, []allowance.Day{day}, u.PartyDays)
}

func TestSQLite_CreateUnit_ExistingIDConflicts(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()
	require.NoError(t, store.AppendPartyDay(ctx, "unit-101", allowance.DayOf(june15, time.UTC)))

	err := store.CreateUnit(ctx, pass.Unit{ID: "unit-101", BuildingID: "other", Label: "x", FreePassLimit: 99})
	require.ErrorIs(t, err, allowance.ErrUnitExists)

	unit, err := store.GetUnit(ctx, "unit-101")
	require.NoError(t, err)
	assert.Equal(t, 12, unit.FreePassLimit)
	assert.Equal(t, "bldg-1", unit.BuildingID)
	assert.Len(t, unit.PartyDays, 1)

	require.NoError(t, store.CreateUnit(ctx, pass.Unit{ID: "unit-102", BuildingID: "bldg-1", Label: "102", FreePassLimit: 3}))
	created, err := store.GetUnit(ctx, "unit-102")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, 3, created.FreePassLimit)
}

func TestSQLite_SaveVehicle_UnknownUnit(t *testing.T) {
	store := newStore(t)
	err := store.SaveVehicle(context.Background(), pass.Vehicle{ID: "car-9", UnitID: "ghost", Plate: "X1"})
	assert.ErrorIs(t, err, allowance.ErrUnitNotFound)
}

func TestSQLite_DeleteVehicle_KeepsPasses(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()
	require.NoError(t, store.InsertPass(ctx, newPass("p-1", june15, allowance.TypeFree)))

	require.NoError(t, store.DeleteVehicle(ctx, "car-1"))

	v, err := store.GetVehicle(ctx, "car-1")
	require.NoError(t, err)
	assert.Nil(t, v)

	p, err := store.GetPass(ctx, "p-1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "ABC123", p.Vehicle.Plate)
}

func TestSQLite_DeleteUnit_Cascades(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()
	require.NoError(t, store.InsertPass(ctx, newPass("p-1", june15, allowance.TypeFree)))

	require.NoError(t, store.DeleteUnit(ctx, "unit-101"))

	vehicles, err := store.ListVehicles(ctx, "unit-101")
	require.NoError(t, err)
	assert.Empty(t, vehicles)

	p, err := store.GetPass(ctx, "p-1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSQLite_UpdatePaymentStatus(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()
	require.NoError(t, store.InsertPass(ctx, newPass("p-1", june15, allowance.TypePaid)))

	updated, err := store.UpdatePaymentStatus(ctx, "p-1", allowance.PaymentPaid)
	require.NoError(t, err)
	assert.Equal(t, allowance.PaymentPaid, updated.PaymentStatus)

	_, err = store.UpdatePaymentStatus(ctx, "p-1", allowance.PaymentWaived)
	var invalid *allowance.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, allowance.PaymentPaid, invalid.From)

	_, err = store.UpdatePaymentStatus(ctx, "nope", allowance.PaymentPaid)
	assert.ErrorIs(t, err, allowance.ErrPassNotFound)
}

func TestSQLite_WithTx_RollsBackOnError(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx pass.Store) error {
		if err := tx.InsertPass(ctx, newPass("p-1", june15, allowance.TypeParty)); err != nil {
			return err
		}
		if err := tx.AppendPartyDay(ctx, "unit-101", allowance.NewDay(2025, time.June, 15)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := store.GetPass(ctx, "p-1")
	require.NoError(t, err)
	assert.Nil(t, p)
	u, err := store.GetUnit(ctx, "unit-101")
	require.NoError(t, err)
	assert.Empty(t, u.PartyDays)
}

func TestSQLite_Settings(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	def, err := store.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, allowance.DefaultSettings().PartyPassLimit, def.PartyPassLimit)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	require.NoError(t, store.SaveSettings(ctx, allowance.Settings{
		PricePerPass:         decimal.RequireFromString("8.25"),
		PartyPassLimit:       1,
		DefaultFreePassLimit: 6,
		Location:             ny,
	}))

	got, err := store.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "8.25", got.PricePerPass.StringFixed(2))
	assert.Equal(t, 1, got.PartyPassLimit)
	assert.Equal(t, 6, got.DefaultFreePassLimit)
	assert.Equal(t, "America/New_York", got.Location.String())
}

func TestSQLite_Ledger_EndToEnd(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()
	ledger := pass.NewLedger(store)

	p, err := ledger.CreatePass(ctx, pass.CreateRequest{UnitID: "unit-101", VehicleID: "car-1", Kind: allowance.KindParty}, june15)
	require.NoError(t, err)
	assert.Equal(t, allowance.TypeParty, p.Type)

	_, err = ledger.CreatePass(ctx, pass.CreateRequest{UnitID: "unit-101", VehicleID: "car-1", Kind: allowance.KindRegular}, june15.Add(time.Hour))
	var dup *allowance.DuplicateActivePassError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, p.ID, dup.PassID)

	state, err := ledger.AllowanceState(ctx, "unit-101", june15)
	require.NoError(t, err)
	assert.True(t, state.IsTodayAlreadyPartyDay)
	assert.Equal(t, 1, state.PartyDaysConsumedThisMonth)
}

func TestSQLite_Reset(t *testing.T) {
	store := newStore(t)
	seed(t, store)
	ctx := context.Background()

	require.NoError(t, store.Reset(ctx))

	units, err := store.ListUnits(ctx)
	require.NoError(t, err)
	assert.Empty(t, units)
}
