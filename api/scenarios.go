/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the database with realistic
  data for demos. Each scenario creates units and vehicles and issues
  passes through the ledger, so every pass obeys the allowance rules.

AVAILABLE SCENARIOS:
  new-building:      Three units with vehicles, no passes yet
  monthly-overflow:  Free allowance used up, one payment_required pass
  party-day:         Party pass today makes the next regular pass free
  missing-party-day: Imported party pass without its party-day record
                     (run POST /api/admin/reconcile to repair)

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create units and vehicles
 3. Issue passes via Ledger.CreatePass at times relative to Handler.Now

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "monthly-overflow"}

NOTE:
  Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ReconcileAll
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/RL96-hub/ParkingPass/allowance"
	"github.com/RL96-hub/ParkingPass/pass"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "new-building",
		Name:        "New Building",
		Description: "Three units with registered vehicles and no passes",
	},
	{
		ID:          "monthly-overflow",
		Name:        "Monthly Overflow",
		Description: "Unit with a free limit of 3 that has used it up; the fourth pass is payment_required",
	},
	{
		ID:          "party-day",
		Name:        "Party Day",
		Description: "Party pass issued today; every later pass for the unit today is free",
	},
	{
		ID:          "missing-party-day",
		Name:        "Missing Party Day",
		Description: "Imported party pass whose party day was never recorded; reconciliation restores it",
	},
}

var scenarioLoaders = map[string]func(h *Handler, ctx context.Context) error{
	"new-building":      (*Handler).loadNewBuildingScenario,
	"monthly-overflow":  (*Handler).loadMonthlyOverflowScenario,
	"party-day":         (*Handler).loadPartyDayScenario,
	"missing-party-day": (*Handler).loadMissingPartyDayScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.getCurrentScenario()
	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	loader, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.setCurrentScenario("")

	if err := loader(h, ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.setCurrentScenario(req.ScenarioID)
	requestLogger(r).WithField("scenario", req.ScenarioID).Info("Scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadNewBuildingScenario(ctx context.Context) error {
	if err := h.seedUnit(ctx, pass.Unit{ID: "unit-101", BuildingID: "maple-court", Label: "101", FreePassLimit: 12},
		pass.Vehicle{ID: "veh-101-a", Plate: "7ABC123", Make: "Toyota", Model: "Corolla", Color: "silver", Nickname: "Grandma"},
		pass.Vehicle{ID: "veh-101-b", Plate: "8XYZ-442", Make: "Honda", Model: "Fit", Color: "red"},
	); err != nil {
		return err
	}
	if err := h.seedUnit(ctx, pass.Unit{ID: "unit-102", BuildingID: "maple-court", Label: "102", FreePassLimit: 12, Timezone: "America/New_York"},
		pass.Vehicle{ID: "veh-102-a", Plate: "NY 5521", Make: "Subaru", Model: "Outback", Color: "green"},
	); err != nil {
		return err
	}
	// A unit with no free allowance: every regular pass is paid.
	return h.seedUnit(ctx, pass.Unit{ID: "unit-201", BuildingID: "maple-court", Label: "201", FreePassLimit: 0},
		pass.Vehicle{ID: "veh-201-a", Plate: "CA-0042", Make: "Tesla", Model: "Model 3", Color: "white"},
	)
}

func (h *Handler) loadMonthlyOverflowScenario(ctx context.Context) error {
	vehicles := []pass.Vehicle{
		{ID: "veh-310-a", Plate: "OVR001", Make: "Ford", Model: "Focus", Color: "blue"},
		{ID: "veh-310-b", Plate: "OVR002", Make: "Kia", Model: "Soul", Color: "green"},
		{ID: "veh-310-c", Plate: "OVR003", Make: "Mazda", Model: "3", Color: "black"},
		{ID: "veh-310-d", Plate: "OVR004", Make: "Jeep", Model: "Wrangler", Color: "yellow"},
	}
	if err := h.seedUnit(ctx, pass.Unit{ID: "unit-310", BuildingID: "maple-court", Label: "310", FreePassLimit: 3}, vehicles...); err != nil {
		return err
	}

	now := h.Now()
	for i, v := range vehicles {
		at := now.Add(-time.Duration(len(vehicles)-i) * time.Minute)
		if _, err := h.Ledger.CreatePass(ctx, pass.CreateRequest{UnitID: "unit-310", VehicleID: v.ID, Kind: allowance.KindRegular}, at); err != nil {
			return fmt.Errorf("issue pass for %s: %w", v.ID, err)
		}
	}
	return nil
}

func (h *Handler) loadPartyDayScenario(ctx context.Context) error {
	if err := h.seedUnit(ctx, pass.Unit{ID: "unit-404", BuildingID: "maple-court", Label: "404", FreePassLimit: 0},
		pass.Vehicle{ID: "veh-404-a", Plate: "PARTY1", Make: "VW", Model: "Bus", Color: "orange"},
		pass.Vehicle{ID: "veh-404-b", Plate: "PARTY2", Make: "Mini", Model: "Cooper", Color: "white"},
		pass.Vehicle{ID: "veh-404-c", Plate: "PARTY3", Make: "Fiat", Model: "500", Color: "red"},
	); err != nil {
		return err
	}

	now := h.Now()
	steps := []pass.CreateRequest{
		{UnitID: "unit-404", VehicleID: "veh-404-a", Kind: allowance.KindParty},
		// Free limit is 0, but today is a party day.
		{UnitID: "unit-404", VehicleID: "veh-404-b", Kind: allowance.KindRegular},
	}
	for i, req := range steps {
		at := now.Add(-time.Duration(len(steps)-i) * time.Minute)
		if _, err := h.Ledger.CreatePass(ctx, req, at); err != nil {
			return fmt.Errorf("issue pass for %s: %w", req.VehicleID, err)
		}
	}
	return nil
}

func (h *Handler) loadMissingPartyDayScenario(ctx context.Context) error {
	if err := h.seedUnit(ctx, pass.Unit{ID: "unit-505", BuildingID: "maple-court", Label: "505", FreePassLimit: 12},
		pass.Vehicle{ID: "veh-505-a", Plate: "IMP505", Make: "Volvo", Model: "XC40", Color: "grey"},
	); err != nil {
		return err
	}

	vehicle, err := h.Store.GetVehicle(ctx, "veh-505-a")
	if err != nil {
		return err
	}

	// Written straight to the store, as an import would, so no party day
	// is recorded alongside it.
	created := h.Now().Add(-time.Hour)
	return h.Store.InsertPass(ctx, pass.Pass{
		ID:            "pass-imported-505",
		UnitID:        "unit-505",
		VehicleID:     vehicle.ID,
		Vehicle:       vehicle.Snapshot(),
		CreatedAt:     created,
		ExpiresAt:     created.Add(pass.Validity),
		Type:          allowance.TypeParty,
		PaymentStatus: allowance.PaymentFree,
	})
}

func (h *Handler) seedUnit(ctx context.Context, unit pass.Unit, vehicles ...pass.Vehicle) error {
	unit.CreatedAt = h.Now()
	if err := h.Store.SaveUnit(ctx, unit); err != nil {
		return fmt.Errorf("save unit %s: %w", unit.ID, err)
	}
	for _, v := range vehicles {
		v.UnitID = unit.ID
		v.CreatedAt = h.Now()
		if err := h.Store.SaveVehicle(ctx, v); err != nil {
			return fmt.Errorf("save vehicle %s: %w", v.ID, err)
		}
	}
	return nil
}
