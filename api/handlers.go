/*
handlers.go - HTTP API handlers for the visitor pass service

PURPOSE:
  Exposes the pass ledger via REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to pass.Ledger.

ENDPOINTS:
  Units:
    GET    /api/units                  List units
    POST   /api/units                  Create unit (409 if the ID exists)
    GET    /api/units/{id}             Unit with current allowance counters
    DELETE /api/units/{id}             Delete unit, cascading (admin)

  Vehicles:
    GET    /api/units/{id}/vehicles    List vehicles of a unit
    POST   /api/units/{id}/vehicles    Register vehicle
    PUT    /api/vehicles/{id}          Edit vehicle
    DELETE /api/vehicles/{id}          Delete vehicle (passes keep snapshots)
    GET    /api/vehicles/{id}/active   Active pass check

  Passes:
    POST   /api/units/{id}/passes      Create pass {vehicle_id, kind}
    GET    /api/units/{id}/passes      Pass history, newest first
    GET    /api/passes/{id}            Pass detail

  Admin:
    PUT    /api/admin/units/{id}           Edit unit (limit, timezone)
    POST   /api/admin/passes/{id}/payment  Mark paid or waived
    GET    /api/admin/settings             Current settings
    PUT    /api/admin/settings             Replace settings
    POST   /api/admin/reconcile            Restore missing party days

ERROR HANDLING:
  Domain errors map to HTTP status in classifyError:
  - 400: Validation errors, invalid kind
  - 403: Non-admin payment change
  - 404: Unit, vehicle or pass not found
  - 409: Duplicate active pass, lost insert race, invalid transition,
         existing unit ID
  - 422: Party limit reached
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - pass/ledger.go: Business operations
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/RL96-hub/ParkingPass/allowance"
	"github.com/RL96-hub/ParkingPass/factory"
	"github.com/RL96-hub/ParkingPass/logging"
	"github.com/RL96-hub/ParkingPass/pass"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the storage the API needs: the ledger's transactional store,
// the directory of units and vehicles, and a reset for demo scenarios.
type Backend interface {
	pass.TxStore
	pass.Directory
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    Backend
	Ledger   *pass.Ledger
	Settings *factory.SettingsFactory
	Metrics  *Metrics

	// Now is the clock used for every pass decision. Tests pin it.
	Now func() time.Time

	validate *validator.Validate

	mu              sync.RWMutex
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store Backend) *Handler {
	return &Handler{
		Store:    store,
		Ledger:   pass.NewLedger(store),
		Settings: factory.NewSettingsFactory(),
		Metrics:  NewMetrics(),
		Now:      time.Now,
		validate: validator.New(),
	}
}

// =============================================================================
// UNIT HANDLERS
// =============================================================================

// ListUnits returns all units.
func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.Store.ListUnits(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list units", err)
		return
	}

	dtos := make([]UnitDTO, len(units))
	for i, u := range units {
		dtos[i] = toUnitDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUnit returns a unit with its allowance counters as of now.
func (h *Handler) GetUnit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	unitID := chi.URLParam(r, "id")

	unit, err := h.Store.GetUnit(ctx, unitID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get unit", err)
		return
	}
	if unit == nil {
		writeError(w, http.StatusNotFound, "Unit not found", nil)
		return
	}

	state, err := h.Ledger.AllowanceState(ctx, unitID, h.Now())
	if err != nil {
		h.writeDomainError(w, r, "Failed to compute allowance", err)
		return
	}

	writeJSON(w, http.StatusOK, UnitDetailDTO{
		UnitDTO:   toUnitDTO(*unit),
		Allowance: toAllowanceDTO(state),
	})
}

// CreateUnit creates a unit. An existing ID is a conflict; edits go through
// the admin UpdateUnit route.
func (h *Handler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateUnitRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	settings, err := h.Store.GetSettings(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings", err)
		return
	}

	unit := pass.Unit{
		ID:            req.ID,
		BuildingID:    req.BuildingID,
		Label:         req.Label,
		FreePassLimit: settings.DefaultFreePassLimit,
		Timezone:      req.Timezone,
		CreatedAt:     h.Now(),
	}
	if unit.ID == "" {
		unit.ID = uuid.NewString()
	}
	if req.FreePassLimit != nil {
		unit.FreePassLimit = *req.FreePassLimit
	}

	if err := h.Store.CreateUnit(ctx, unit); err != nil {
		if errors.Is(err, allowance.ErrUnitExists) {
			h.writeDomainError(w, r, "Unit already exists", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create unit", err)
		return
	}

	saved, err := h.Store.GetUnit(ctx, unit.ID)
	if err != nil || saved == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload unit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUnitDTO(*saved))
}

// UpdateUnit edits a unit's labels, free-pass limit or timezone. Admin only.
func (h *Handler) UpdateUnit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	unitID := chi.URLParam(r, "id")

	var req UpdateUnitRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	unit, err := h.Store.GetUnit(ctx, unitID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get unit", err)
		return
	}
	if unit == nil {
		h.writeDomainError(w, r, "Unit not found", allowance.ErrUnitNotFound)
		return
	}

	if req.BuildingID != nil {
		unit.BuildingID = *req.BuildingID
	}
	if req.Label != nil {
		unit.Label = *req.Label
	}
	if req.FreePassLimit != nil {
		unit.FreePassLimit = *req.FreePassLimit
	}
	if req.Timezone != nil {
		unit.Timezone = *req.Timezone
	}

	if err := h.Store.SaveUnit(ctx, *unit); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save unit", err)
		return
	}
	requestLogger(r).WithField("unit_id", unit.ID).WithField("free_pass_limit", unit.FreePassLimit).Info("Unit updated")
	writeJSON(w, http.StatusOK, toUnitDTO(*unit))
}

// DeleteUnit removes a unit together with its vehicles and passes.
func (h *Handler) DeleteUnit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	unitID := chi.URLParam(r, "id")

	unit, err := h.Store.GetUnit(ctx, unitID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get unit", err)
		return
	}
	if unit == nil {
		writeError(w, http.StatusNotFound, "Unit not found", nil)
		return
	}

	if err := h.Store.DeleteUnit(ctx, unitID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete unit", err)
		return
	}

	logging.Logger.WithField("unit_id", unitID).Info("Unit deleted")
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// VEHICLE HANDLERS
// =============================================================================

func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	unitID := chi.URLParam(r, "id")

	if _, err := pass.NewLookup(h.Store).GetUnit(ctx, unitID); err != nil {
		h.writeDomainError(w, r, "Failed to list vehicles", err)
		return
	}

	vehicles, err := h.Store.ListVehicles(ctx, unitID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list vehicles", err)
		return
	}

	dtos := make([]VehicleDTO, len(vehicles))
	for i, v := range vehicles {
		dtos[i] = toVehicleDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateVehicle registers a vehicle for the unit in the path.
func (h *Handler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	unitID := chi.URLParam(r, "id")

	var req VehicleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if pass.NormalizePlate(req.Plate) == "" {
		writeError(w, http.StatusBadRequest, "Plate must contain letters or digits", nil)
		return
	}

	vehicle := pass.Vehicle{
		ID:        uuid.NewString(),
		UnitID:    unitID,
		Plate:     req.Plate,
		Make:      req.Make,
		Model:     req.Model,
		Color:     req.Color,
		Nickname:  req.Nickname,
		CreatedAt: h.Now(),
	}
	if err := h.Store.SaveVehicle(ctx, vehicle); err != nil {
		h.writeDomainError(w, r, "Failed to save vehicle", err)
		return
	}

	saved, err := h.Store.GetVehicle(ctx, vehicle.ID)
	if err != nil || saved == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload vehicle", err)
		return
	}
	writeJSON(w, http.StatusCreated, toVehicleDTO(*saved))
}

// UpdateVehicle edits a vehicle. Passes already issued keep their snapshot.
func (h *Handler) UpdateVehicle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	existing, err := pass.NewLookup(h.Store).GetVehicle(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, "Failed to update vehicle", err)
		return
	}

	var req VehicleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if pass.NormalizePlate(req.Plate) == "" {
		writeError(w, http.StatusBadRequest, "Plate must contain letters or digits", nil)
		return
	}

	existing.Plate = req.Plate
	existing.Make = req.Make
	existing.Model = req.Model
	existing.Color = req.Color
	existing.Nickname = req.Nickname
	if err := h.Store.SaveVehicle(ctx, *existing); err != nil {
		h.writeDomainError(w, r, "Failed to save vehicle", err)
		return
	}

	saved, err := h.Store.GetVehicle(ctx, existing.ID)
	if err != nil || saved == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload vehicle", err)
		return
	}
	writeJSON(w, http.StatusOK, toVehicleDTO(*saved))
}

func (h *Handler) DeleteVehicle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vehicleID := chi.URLParam(r, "id")

	if _, err := pass.NewLookup(h.Store).GetVehicle(ctx, vehicleID); err != nil {
		h.writeDomainError(w, r, "Failed to delete vehicle", err)
		return
	}
	if err := h.Store.DeleteVehicle(ctx, vehicleID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete vehicle", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetActivePass reports whether the vehicle holds an active pass.
func (h *Handler) GetActivePass(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vehicleID := chi.URLParam(r, "id")
	now := h.Now()

	if _, err := pass.NewLookup(h.Store).GetVehicle(ctx, vehicleID); err != nil {
		h.writeDomainError(w, r, "Failed to check active pass", err)
		return
	}

	active, err := h.Ledger.ActivePass(ctx, vehicleID, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check active pass", err)
		return
	}

	resp := ActiveCheckDTO{VehicleID: vehicleID, Active: active != nil}
	if active != nil {
		dto := toPassDTO(*active, now)
		resp.Pass = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// PASS HANDLERS
// =============================================================================

// CreatePass is the single entry point for issuing a pass.
func (h *Handler) CreatePass(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	unitID := chi.URLParam(r, "id")

	var req CreatePassRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	now := h.Now()
	created, err := h.Ledger.CreatePass(ctx, pass.CreateRequest{
		UnitID:    unitID,
		VehicleID: req.VehicleID,
		Kind:      allowance.Kind(req.Kind),
	}, now)
	if err != nil {
		h.Metrics.passRejected(err)
		h.writeDomainError(w, r, "Failed to create pass", err)
		return
	}

	h.Metrics.passIssued(created.Type)
	requestLogger(r).WithFields(logrus.Fields{
		"unit_id":        created.UnitID,
		"vehicle_id":     created.VehicleID,
		"pass_id":        created.ID,
		"type":           created.Type,
		"payment_status": created.PaymentStatus,
	}).Info("Pass issued")

	writeJSON(w, http.StatusCreated, toPassDTO(*created, now))
}

// ListPasses returns a unit's pass history, newest first.
func (h *Handler) ListPasses(w http.ResponseWriter, r *http.Request) {
	passes, err := h.Ledger.ListPassesByUnit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, "Failed to list passes", err)
		return
	}

	now := h.Now()
	dtos := make([]PassDTO, len(passes))
	for i, p := range passes {
		dtos[i] = toPassDTO(p, now)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetPass(w http.ResponseWriter, r *http.Request) {
	p, err := h.Ledger.GetPass(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get pass", err)
		return
	}
	writeJSON(w, http.StatusOK, toPassDTO(*p, h.Now()))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// UpdatePayment moves a payment_required pass to paid or waived.
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	to := allowance.PaymentStatus(req.Status)
	updated, err := h.Ledger.TransitionPayment(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), to)
	if err != nil {
		h.writeDomainError(w, r, "Failed to update payment status", err)
		return
	}

	h.Metrics.paymentChanged(to)
	requestLogger(r).WithFields(logrus.Fields{
		"pass_id": updated.ID,
		"to":      to,
	}).Info("Payment status changed")

	writeJSON(w, http.StatusOK, toPassDTO(*updated, h.Now()))
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Store.GetSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Settings.ToJSON(settings))
}

// UpdateSettings replaces the admin settings. Omitted fields take defaults.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var sj factory.SettingsJSON
	if err := json.NewDecoder(r.Body).Decode(&sj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	settings, err := h.Settings.FromJSON(sj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid settings", err)
		return
	}
	if err := h.Store.SaveSettings(r.Context(), settings); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save settings", err)
		return
	}

	requestLogger(r).WithField("settings", h.Settings.ToJSON(settings)).Info("Settings updated")
	writeJSON(w, http.StatusOK, h.Settings.ToJSON(settings))
}

// Reconcile runs party-day reconciliation for every unit.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	result, err := h.ReconcileAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Reconciliation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ReconcileAll restores missing party days on every unit. Shared by the
// admin endpoint and PartyDayReconciler.
func (h *Handler) ReconcileAll(ctx context.Context) (ReconcileDTO, error) {
	units, err := h.Store.ListUnits(ctx)
	if err != nil {
		return ReconcileDTO{}, fmt.Errorf("list units: %w", err)
	}

	result := ReconcileDTO{ByUnit: make(map[string]int)}
	for _, u := range units {
		n, err := h.Ledger.ReconcilePartyDays(ctx, u.ID)
		if err != nil {
			return result, fmt.Errorf("reconcile unit %s: %w", u.ID, err)
		}
		result.UnitsChecked++
		if n > 0 {
			result.DaysAppended += n
			result.ByUnit[u.ID] = n
		}
	}

	h.Metrics.partyDaysAppended(result.DaysAppended)
	return result, nil
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	h.setCurrentScenario("")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// ACTOR
// =============================================================================

type contextKey string

const actorKey contextKey = "actor"

func withActor(ctx context.Context, a pass.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// actorFrom returns the authenticated actor, or an anonymous resident.
func actorFrom(ctx context.Context) pass.Actor {
	if a, ok := ctx.Value(actorKey).(pass.Actor); ok {
		return a
	}
	return pass.Actor{Role: pass.RoleResident}
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// classifyError maps a domain error to an HTTP status and a stable code.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, allowance.ErrVehicleNotFound):
		return http.StatusNotFound, "vehicle_not_found"
	case errors.Is(err, allowance.ErrUnitNotFound):
		return http.StatusNotFound, "unit_not_found"
	case errors.Is(err, allowance.ErrPassNotFound):
		return http.StatusNotFound, "pass_not_found"
	case errors.Is(err, allowance.ErrUnitExists):
		return http.StatusConflict, "unit_exists"
	case errors.Is(err, allowance.ErrDuplicateActivePass):
		return http.StatusConflict, "duplicate_active_pass"
	case errors.Is(err, allowance.ErrConstraintViolation):
		return http.StatusConflict, "constraint_violation"
	case errors.Is(err, allowance.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, allowance.ErrPartyLimitReached):
		return http.StatusUnprocessableEntity, "party_limit_reached"
	case errors.Is(err, allowance.ErrInvalidKind):
		return http.StatusBadRequest, "invalid_kind"
	case errors.Is(err, allowance.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeDomainError writes err with its mapped status. Structured errors
// contribute their fields as details.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status, code := classifyError(err)
	resp := ErrorResponse{Error: message, Code: code, Details: err.Error()}

	var dup *allowance.DuplicateActivePassError
	var limit *allowance.PartyLimitReachedError
	var transition *allowance.InvalidTransitionError
	switch {
	case errors.As(err, &dup):
		resp.Details = map[string]string{
			"vehicle_id":    dup.VehicleID,
			"existing_pass": dup.PassID,
			"active_until":  dup.ExpiresAt.UTC().Format(time.RFC3339),
		}
	case errors.As(err, &limit):
		resp.Details = map[string]int{"party_pass_limit": limit.Limit}
	case errors.As(err, &transition):
		resp.Details = map[string]string{"from": string(transition.From), "to": string(transition.To)}
	}

	entry := requestLogger(r).WithError(err).WithField("status", status)
	switch {
	case allowance.IsNotFound(err):
		entry.Debug(message)
	case allowance.IsClientError(err):
		entry.Info(message)
	case status >= http.StatusInternalServerError:
		entry.Error(message)
	default:
		entry.Warn(message)
	}
	writeJSON(w, status, resp)
}

// decodeAndValidate decodes the JSON body into dst and runs struct
// validation, writing a 400 on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Validation failed",
				Code:    "validation_error",
				Details: formatValidationErrors(verrs),
			})
		} else {
			writeError(w, http.StatusBadRequest, "Validation failed", err)
		}
		return false
	}
	return true
}

func formatValidationErrors(errs validator.ValidationErrors) []ValidationErrorDetail {
	details := make([]ValidationErrorDetail, 0, len(errs))
	for _, err := range errs {
		var message string
		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("Field '%s' is required", err.Field())
		case "max":
			message = fmt.Sprintf("Field '%s' must not exceed %s", err.Field(), err.Param())
		case "min":
			message = fmt.Sprintf("Field '%s' must be at least %s", err.Field(), err.Param())
		case "oneof":
			message = fmt.Sprintf("Field '%s' must be one of [%s]", err.Field(), err.Param())
		case "timezone":
			message = fmt.Sprintf("Field '%s' must be an IANA timezone", err.Field())
		default:
			message = fmt.Sprintf("Field validation for '%s' failed on the '%s' tag", err.Field(), err.Tag())
		}
		details = append(details, ValidationErrorDetail{
			Field:   err.Field(),
			Message: message,
			Code:    "validation_" + err.Tag(),
		})
	}
	return details
}

func requestLogger(r *http.Request) *logrus.Entry {
	return logging.Logger.WithField("request_id", middleware.GetReqID(r.Context()))
}

func (h *Handler) setCurrentScenario(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = id
}

func (h *Handler) getCurrentScenario() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.currentScenario
}
