/*
handlers_test.go - HTTP-level tests for the pass API

Tests for:
- Pass creation outcomes (free, paid, party, duplicate, limits)
- Request validation and error mapping
- Admin-only payment transitions and settings
- Vehicle edits versus frozen snapshots
- Cascading unit delete
*/
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RL96-hub/ParkingPass/logging"
	"github.com/RL96-hub/ParkingPass/store/memory"
)

const testAdminCode = "letmein"

var june15 = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

type testServer struct {
	t       *testing.T
	handler *Handler
	router  http.Handler
	store   *memory.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logging.InitWithOutput("parkingpass-test", "error", io.Discard)

	store := memory.New()
	h := NewHandler(store)
	h.Now = func() time.Time { return june15 }

	return &testServer{
		t:       t,
		handler: h,
		router:  NewRouter(h, RouterOptions{AdminCode: testAdminCode, AllowedOrigins: []string{"*"}}),
		store:   store,
	}
}

func (s *testServer) do(method, path string, body any, admin bool) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set(AdminCodeHeader, testAdminCode)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seedUnit creates a unit and its vehicles through the API and returns the
// vehicle IDs.
func (s *testServer) seedUnit(unitID string, freeLimit int, plates ...string) []string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/units", CreateUnitRequest{
		ID: unitID, BuildingID: "maple-court", Label: unitID, FreePassLimit: &freeLimit,
	}, false)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())

	ids := make([]string, len(plates))
	for i, plate := range plates {
		rec := s.do(http.MethodPost, "/api/units/"+unitID+"/vehicles", VehicleRequest{
			Plate: plate, Make: "Honda", Model: "Civic", Color: "blue",
		}, false)
		require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
		ids[i] = decode[VehicleDTO](s.t, rec).ID
	}
	return ids
}

func (s *testServer) createPass(unitID, vehicleID, kind string) *httptest.ResponseRecorder {
	return s.do(http.MethodPost, "/api/units/"+unitID+"/passes", CreatePassRequest{VehicleID: vehicleID, Kind: kind}, false)
}

// =============================================================================
// PASS CREATION
// =============================================================================

func TestCreatePass_FreeUnderLimit(t *testing.T) {
	s := newTestServer(t)
	vehicles := s.seedUnit("unit-101", 12, "abc-123")

	rec := s.createPass("unit-101", vehicles[0], "regular")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	p := decode[PassDTO](t, rec)
	assert.Equal(t, "free", string(p.Type))
	assert.Equal(t, "free", p.PaymentStatus)
	assert.Nil(t, p.Price)
	assert.True(t, p.Active)
	assert.Equal(t, "ABC123", p.Vehicle.Plate)
	assert.Equal(t, "2025-06-16T12:00:00Z", p.ExpiresAt)
}

func TestCreatePass_PaidOverLimit_UsesSettingsPrice(t *testing.T) {
	s := newTestServer(t)
	vehicles := s.seedUnit("unit-101", 0, "abc-123")

	rec := s.do(http.MethodPut, "/api/admin/settings", map[string]any{"price_per_pass": "7.5"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.createPass("unit-101", vehicles[0], "regular")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	p := decode[PassDTO](t, rec)
	assert.Equal(t, "paid", string(p.Type))
	assert.Equal(t, "payment_required", p.PaymentStatus)
	require.NotNil(t, p.Price)
	assert.Equal(t, "7.50", *p.Price)
}

func TestCreatePass_DuplicateActivePass(t *testing.T) {
	s := newTestServer(t)
	vehicles := s.seedUnit("unit-101", 12, "abc-123")

	first := decode[PassDTO](t, s.createPass("unit-101", vehicles[0], "regular"))

	rec := s.createPass("unit-101", vehicles[0], "party")
	require.Equal(t, http.StatusConflict, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "duplicate_active_pass", resp.Code)
	details, ok := resp.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, first.ID, details["existing_pass"])
}

func TestCreatePass_PartyLimitReached(t *testing.T) {
	s := newTestServer(t)
	vehicles := s.seedUnit("unit-101", 12, "abc-123")

	rec := s.do(http.MethodPut, "/api/admin/settings", map[string]any{"party_pass_limit": 0}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.createPass("unit-101", vehicles[0], "party")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "party_limit_reached", decode[ErrorResponse](t, rec).Code)
}

func TestCreatePass_PartyDayMakesRegularFree(t *testing.T) {
	s := newTestServer(t)
	vehicles := s.seedUnit("unit-101", 0, "abc-123", "xyz-789")

	rec := s.createPass("unit-101", vehicles[0], "party")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "party", string(decode[PassDTO](t, rec).Type))

	rec = s.createPass("unit-101", vehicles[1], "regular")
	require.Equal(t, http.StatusCreated, rec.Code)
	p := decode[PassDTO](t, rec)
	assert.Equal(t, "free", string(p.Type))
	assert.Equal(t, "free", p.PaymentStatus)
	assert.Nil(t, p.Price)

	unit := decode[UnitDetailDTO](t, s.do(http.MethodGet, "/api/units/unit-101", nil, false))
	assert.Equal(t, []string{"2025-06-15"}, unit.PartyDays)
	assert.Equal(t, 1, unit.Allowance.PartyDaysUsed)
	assert.True(t, unit.Allowance.IsTodayAlreadyPartyDay)
}

func TestCreatePass_Validation(t *testing.T) {
	s := newTestServer(t)
	s.seedUnit("unit-101", 12, "abc-123")

	rec := s.createPass("unit-101", "", "vip")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "validation_error", resp.Code)
	fields := map[string]bool{}
	for _, d := range resp.Details.([]any) {
		fields[d.(map[string]any)["field"].(string)] = true
	}
	assert.True(t, fields["VehicleID"])
	assert.True(t, fields["Kind"])
}

func TestCreatePass_MalformedBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/units/unit-101/passes", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreatePass_UnknownVehicle(t *testing.T) {
	s := newTestServer(t)
	s.seedUnit("unit-101", 12)

	rec := s.createPass("unit-101", "ghost", "regular")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "vehicle_not_found", decode[ErrorResponse](t, rec).Code)
}

func TestCreatePass_VehicleOfOtherUnit(t *testing.T) {
	s := newTestServer(t)
	vehicles := s.seedUnit("unit-101", 12, "abc-123")
	s.seedUnit("unit-102", 12)

	rec := s.createPass("unit-102", vehicles[0], "regular")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestListPasses_NewestFirst(t *testing.T) {
	s := newTestServer(t)
	vehicles := s.seedUnit("unit-101", 12, "aaa1", "bbb2")

	first := decode[PassDTO](t, s.createPass("unit-101", vehicles[0], "regular"))
	s.handler.Now = func() time.Time { return june15.Add(time.Hour) }
	second := decode[PassDTO](t, s.createPass("unit-101", vehicles[1], "regular"))

	rec := s.do(http.MethodGet, "/api/units/unit-101/passes", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	passes := decode[[]PassDTO](t, rec)
	require.Len(t, passes, 2)
	assert.Equal(t, second.ID, passes[0].ID)
	assert.Equal(t, first.ID, passes[1].ID)
}

func TestListPasses_UnknownUnit(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/api/units/ghost/passes", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetActivePass(t *testing.T) {
	s := newTestServer(t)
	vehicles := s.seedUnit("unit-101", 12, "abc-123")

	check := decode[ActiveCheckDTO](t, s.do(http.MethodGet, "/api/vehicles/"+vehicles[0]+"/active", nil, false))
	assert.False(t, check.Active)

	created := decode[PassDTO](t, s.createPass("unit-101", vehicles[0], "regular"))

	check = decode[ActiveCheckDTO](t, s.do(http.MethodGet, "/api/vehicles/"+vehicles[0]+"/active", nil, false))
	assert.True(t, check.Active)
	require.NotNil(t, check.Pass)
	assert.Equal(t, created.ID, check.Pass.ID)

	// Expiry is exclusive.
	s.handler.Now = func() time.Time { return june15.Add(24 * time.Hour) }
	check = decode[ActiveCheckDTO](t, s.do(http.MethodGet, "/api/vehicles/"+vehicles[0]+"/active", nil, false))
	assert.False(t, check.Active)
}

func TestGetPass_NotFound(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/api/passes/nope", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "pass_not_found", decode[ErrorResponse](t, rec).Code)
}

// =============================================================================
// PAYMENT
// =============================================================================

func TestUpdatePayment_AdminOnly(t *testing.T) {
	s := newTestServer(t)
	vehicles := s.seedUnit("unit-101", 0, "abc-123")
	paid := decode[PassDTO](t, s.createPass("unit-101", vehicles[0], "regular"))
	path := "/api/admin/passes/" + paid.ID + "/payment"

	// WHEN: no admin code
	rec := s.do(http.MethodPost, path, PaymentRequest{Status: "paid"}, false)
	// THEN: forbidden, nothing changed
	require.Equal(t, http.StatusForbidden, rec.Code)
	got := decode[PassDTO](t, s.do(http.MethodGet, "/api/passes/"+paid.ID, nil, false))
	assert.Equal(t, "payment_required", got.PaymentStatus)

	// WHEN: admin marks it paid
	rec = s.do(http.MethodPost, path, PaymentRequest{Status: "paid"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[PassDTO](t, rec)
	assert.Equal(t, "paid", updated.PaymentStatus)
	assert.Equal(t, "paid", string(updated.Type))
	require.NotNil(t, updated.Price)
	assert.Equal(t, "5.00", *updated.Price)
	assert.Equal(t, paid.ExpiresAt, updated.ExpiresAt)

	// THEN: paid is terminal
	rec = s.do(http.MethodPost, path, PaymentRequest{Status: "waived"}, true)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode[ErrorResponse](t, rec).Code)
}

func TestUpdatePayment_WrongAdminCode(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/passes/x/payment", bytes.NewBufferString(`{"status":"paid"}`))
	req.Header.Set(AdminCodeHeader, "guess")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdatePayment_FreePassRejected(t *testing.T) {
	s := newTestServer(t)
	vehicles := s.seedUnit("unit-101", 12, "abc-123")
	free := decode[PassDTO](t, s.createPass("unit-101", vehicles[0], "regular"))

	rec := s.do(http.MethodPost, "/api/admin/passes/"+free.ID+"/payment", PaymentRequest{Status: "waived"}, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdatePayment_InvalidTarget(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/api/admin/passes/x/payment", PaymentRequest{Status: "free"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSettings_GetAndUpdate(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/admin/settings", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	before := decode[map[string]any](t, rec)
	assert.EqualValues(t, 3, before["party_pass_limit"])

	rec = s.do(http.MethodPut, "/api/admin/settings", map[string]any{
		"price_per_pass": "6.00", "party_pass_limit": 1, "default_free_pass_limit": 4, "timezone": "America/Chicago",
	}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// New units take the default free limit.
	rec = s.do(http.MethodPost, "/api/units", CreateUnitRequest{ID: "unit-9", BuildingID: "b", Label: "9"}, false)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 4, decode[UnitDTO](t, rec).FreePassLimit)
}

func TestSettings_Invalid(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPut, "/api/admin/settings", map[string]any{"price_per_pass": "-2"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// UNITS & VEHICLES
// =============================================================================

func TestCreateUnit_Validation(t *testing.T) {
	s := newTestServer(t)
	negative := -1
	rec := s.do(http.MethodPost, "/api/units", CreateUnitRequest{BuildingID: "b", Label: "x", FreePassLimit: &negative, Timezone: "Mars/Base"}, false)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, decode[ErrorResponse](t, rec).Details, 2)
}

func TestCreateUnit_ExistingIDCannotRaiseLimit(t *testing.T) {
	s := newTestServer(t)
	vehicles := s.seedUnit("unit-101", 0, "abc-123")

	raised := 99
	rec := s.do(http.MethodPost, "/api/units", CreateUnitRequest{ID: "unit-101", BuildingID: "maple-court", Label: "101", FreePassLimit: &raised}, false)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "unit_exists", decode[ErrorResponse](t, rec).Code)

	unit := decode[UnitDetailDTO](t, s.do(http.MethodGet, "/api/units/unit-101", nil, false))
	assert.Equal(t, 0, unit.FreePassLimit)

	// The limit still applies, so the next regular pass is paid.
	rec = s.createPass("unit-101", vehicles[0], "regular")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "payment_required", decode[PassDTO](t, rec).PaymentStatus)
}

func TestUpdateUnit_AdminOnly(t *testing.T) {
	s := newTestServer(t)
	vehicles := s.seedUnit("unit-101", 0, "abc-123")

	limit := 2
	tz := "America/New_York"
	body := UpdateUnitRequest{FreePassLimit: &limit, Timezone: &tz}

	rec := s.do(http.MethodPut, "/api/admin/units/unit-101", body, false)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPut, "/api/admin/units/unit-101", body, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[UnitDTO](t, rec)
	assert.Equal(t, 2, updated.FreePassLimit)
	assert.Equal(t, "America/New_York", updated.Timezone)
	assert.Equal(t, "unit-101", updated.Label)

	rec = s.createPass("unit-101", vehicles[0], "regular")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "free", decode[PassDTO](t, rec).PaymentStatus)
}

func TestUpdateUnit_NotFoundAndInvalid(t *testing.T) {
	s := newTestServer(t)
	s.seedUnit("unit-101", 0)

	limit := 1
	rec := s.do(http.MethodPut, "/api/admin/units/nope", UpdateUnitRequest{FreePassLimit: &limit}, true)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unit_not_found", decode[ErrorResponse](t, rec).Code)

	negative := -3
	rec = s.do(http.MethodPut, "/api/admin/units/unit-101", UpdateUnitRequest{FreePassLimit: &negative}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateVehicle_SnapshotUnchanged(t *testing.T) {
	s := newTestServer(t)
	vehicles := s.seedUnit("unit-101", 12, "abc-123")
	issued := decode[PassDTO](t, s.createPass("unit-101", vehicles[0], "regular"))

	rec := s.do(http.MethodPut, "/api/vehicles/"+vehicles[0], VehicleRequest{Plate: "new 999", Make: "Audi", Model: "A4", Color: "black"}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "NEW999", decode[VehicleDTO](t, rec).Plate)

	p := decode[PassDTO](t, s.do(http.MethodGet, "/api/passes/"+issued.ID, nil, false))
	assert.Equal(t, "ABC123", p.Vehicle.Plate)
	assert.Equal(t, "Honda", p.Vehicle.Make)
}

func TestCreateVehicle_PlateWithoutAlphanumerics(t *testing.T) {
	s := newTestServer(t)
	s.seedUnit("unit-101", 12)
	rec := s.do(http.MethodPost, "/api/units/unit-101/vehicles", VehicleRequest{Plate: "- -"}, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateVehicle_UnknownUnit(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/api/units/ghost/vehicles", VehicleRequest{Plate: "abc"}, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteUnit_Cascades(t *testing.T) {
	s := newTestServer(t)
	vehicles := s.seedUnit("unit-101", 12, "abc-123")
	issued := decode[PassDTO](t, s.createPass("unit-101", vehicles[0], "regular"))

	rec := s.do(http.MethodDelete, "/api/units/unit-101", nil, false)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodDelete, "/api/units/unit-101", nil, true)
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/units/unit-101", nil, false).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/passes/"+issued.ID, nil, false).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/vehicles/"+vehicles[0]+"/active", nil, false).Code)
}

func TestDeleteVehicle_KeepsPasses(t *testing.T) {
	s := newTestServer(t)
	vehicles := s.seedUnit("unit-101", 12, "abc-123")
	issued := decode[PassDTO](t, s.createPass("unit-101", vehicles[0], "regular"))

	require.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/vehicles/"+vehicles[0], nil, false).Code)

	rec := s.do(http.MethodGet, "/api/passes/"+issued.ID, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ABC123", decode[PassDTO](t, rec).Vehicle.Plate)
}

// =============================================================================
// OPERATIONS
// =============================================================================

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetrics_CountsIssuedAndRejected(t *testing.T) {
	s := newTestServer(t)
	vehicles := s.seedUnit("unit-101", 12, "abc-123")
	s.createPass("unit-101", vehicles[0], "regular")
	s.createPass("unit-101", vehicles[0], "regular")

	rec := s.do(http.MethodGet, "/metrics", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `parkingpass_passes_issued_total{type="free"} 1`)
	assert.Contains(t, body, `parkingpass_passes_rejected_total{reason="duplicate_active_pass"} 1`)
}
