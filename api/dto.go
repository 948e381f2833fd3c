/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags. Handlers call
  h.validate.Struct before touching the ledger. Business rules (kind,
  limits, transitions) are still enforced by the domain packages.

MONEY:
  Prices are decimal strings ("5.00"), never floats.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/settings.go: SettingsJSON
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/RL96-hub/ParkingPass/allowance"
	"github.com/RL96-hub/ParkingPass/pass"
)

// =============================================================================
// UNITS
// =============================================================================

// UnitDTO represents a unit in API responses.
type UnitDTO struct {
	ID            string   `json:"id"`
	BuildingID    string   `json:"building_id"`
	Label         string   `json:"label"`
	FreePassLimit int      `json:"free_pass_limit"`
	Timezone      string   `json:"timezone,omitempty"`
	PartyDays     []string `json:"party_days"`
	CreatedAt     string   `json:"created_at,omitempty"`
}

// UnitDetailDTO adds the current allowance counters.
type UnitDetailDTO struct {
	UnitDTO
	Allowance AllowanceDTO `json:"allowance"`
}

type AllowanceDTO struct {
	Month                  string `json:"month"`
	Today                  string `json:"today"`
	FreePassLimit          int    `json:"free_pass_limit"`
	FreePassesUsed         int    `json:"free_passes_used"`
	FreePassesRemaining    int    `json:"free_passes_remaining"`
	PartyPassLimit         int    `json:"party_pass_limit"`
	PartyDaysUsed          int    `json:"party_days_used"`
	PartyDaysRemaining     int    `json:"party_days_remaining"`
	IsTodayAlreadyPartyDay bool   `json:"is_today_party_day"`
}

// CreateUnitRequest creates a unit. ID is generated when empty.
// A nil FreePassLimit takes the admin default.
type CreateUnitRequest struct {
	ID            string `json:"id" validate:"omitempty,max=64"`
	BuildingID    string `json:"building_id" validate:"required,max=64"`
	Label         string `json:"label" validate:"required,max=64"`
	FreePassLimit *int   `json:"free_pass_limit" validate:"omitempty,min=0"`
	Timezone      string `json:"timezone" validate:"omitempty,timezone"`
}

// UpdateUnitRequest edits a unit; nil fields are left unchanged.
type UpdateUnitRequest struct {
	BuildingID    *string `json:"building_id" validate:"omitempty,min=1,max=64"`
	Label         *string `json:"label" validate:"omitempty,min=1,max=64"`
	FreePassLimit *int    `json:"free_pass_limit" validate:"omitempty,min=0"`
	Timezone      *string `json:"timezone" validate:"omitempty,timezone"`
}

// =============================================================================
// VEHICLES
// =============================================================================

type VehicleDTO struct {
	ID        string `json:"id"`
	UnitID    string `json:"unit_id"`
	Plate     string `json:"plate"`
	Make      string `json:"make"`
	Model     string `json:"model"`
	Color     string `json:"color"`
	Nickname  string `json:"nickname,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type VehicleRequest struct {
	Plate    string `json:"plate" validate:"required,max=16"`
	Make     string `json:"make" validate:"max=40"`
	Model    string `json:"model" validate:"max=40"`
	Color    string `json:"color" validate:"max=24"`
	Nickname string `json:"nickname" validate:"max=40"`
}

// ActiveCheckDTO answers "does this vehicle have a pass right now".
type ActiveCheckDTO struct {
	VehicleID string   `json:"vehicle_id"`
	Active    bool     `json:"active"`
	Pass      *PassDTO `json:"pass,omitempty"`
}

// =============================================================================
// PASSES
// =============================================================================

type PassDTO struct {
	ID            string               `json:"id"`
	UnitID        string               `json:"unit_id"`
	VehicleID     string               `json:"vehicle_id"`
	Vehicle       pass.VehicleSnapshot `json:"vehicle"`
	CreatedAt     string               `json:"created_at"`
	ExpiresAt     string               `json:"expires_at"`
	Type          allowance.PassType   `json:"type"`
	PaymentStatus string               `json:"payment_status"`
	Price         *string              `json:"price"`
	Active        bool                 `json:"active"`
}

type CreatePassRequest struct {
	VehicleID string `json:"vehicle_id" validate:"required"`
	Kind      string `json:"kind" validate:"required,oneof=regular party"`
}

type PaymentRequest struct {
	Status string `json:"status" validate:"required,oneof=paid waived"`
}

// ReconcileDTO reports how many party days one reconciliation run restored.
type ReconcileDTO struct {
	UnitsChecked int            `json:"units_checked"`
	DaysAppended int            `json:"days_appended"`
	ByUnit       map[string]int `json:"by_unit,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

type ValidationErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toUnitDTO(u pass.Unit) UnitDTO {
	days := make([]string, len(u.PartyDays))
	for i, d := range u.PartyDays {
		days[i] = d.String()
	}
	dto := UnitDTO{
		ID:            u.ID,
		BuildingID:    u.BuildingID,
		Label:         u.Label,
		FreePassLimit: u.FreePassLimit,
		Timezone:      u.Timezone,
		PartyDays:     days,
	}
	if !u.CreatedAt.IsZero() {
		dto.CreatedAt = u.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toAllowanceDTO(s allowance.UnitAllowanceState) AllowanceDTO {
	return AllowanceDTO{
		Month:                  s.Month.String(),
		Today:                  s.Today.String(),
		FreePassLimit:          s.FreePassLimit,
		FreePassesUsed:         s.FreePassesIssuedThisMonth,
		FreePassesRemaining:    s.FreePassesRemaining(),
		PartyPassLimit:         s.PartyPassLimit,
		PartyDaysUsed:          s.PartyDaysConsumedThisMonth,
		PartyDaysRemaining:     s.PartyDaysRemaining(),
		IsTodayAlreadyPartyDay: s.IsTodayAlreadyPartyDay,
	}
}

func toVehicleDTO(v pass.Vehicle) VehicleDTO {
	dto := VehicleDTO{
		ID:       v.ID,
		UnitID:   v.UnitID,
		Plate:    v.Plate,
		Make:     v.Make,
		Model:    v.Model,
		Color:    v.Color,
		Nickname: v.Nickname,
	}
	if !v.CreatedAt.IsZero() {
		dto.CreatedAt = v.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toPassDTO(p pass.Pass, now time.Time) PassDTO {
	return PassDTO{
		ID:            p.ID,
		UnitID:        p.UnitID,
		VehicleID:     p.VehicleID,
		Vehicle:       p.Vehicle,
		CreatedAt:     p.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:     p.ExpiresAt.UTC().Format(time.RFC3339),
		Type:          p.Type,
		PaymentStatus: string(p.PaymentStatus),
		Price:         formatPrice(p.Price),
		Active:        p.IsActive(now),
	}
}

func formatPrice(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.StringFixed(2)
	return &s
}
