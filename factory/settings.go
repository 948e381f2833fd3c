/*
Package factory provides JSON to Go conversion for admin settings.

PURPOSE:
  Converts the admin-global settings document into allowance.Settings and
  back. Settings are stored as JSON so the admin screen can edit them
  without a schema change.

JSON SCHEMA:
  {
    "price_per_pass": "5.00",
    "party_pass_limit": 3,
    "default_free_pass_limit": 12,
    "timezone": "America/New_York"
  }

DEFAULTS:
  Missing fields fall back to allowance.DefaultSettings(). An explicit 0
  for a limit is kept (it disables that allowance).

USAGE:
  f := factory.NewSettingsFactory()
  settings, err := f.ParseSettings(jsonString)
  jsonString, err := f.FormatSettings(settings)

SEE ALSO:
  - allowance/types.go: Settings type
  - store/sqlite/sqlite.go: settings table
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/RL96-hub/ParkingPass/allowance"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// SettingsJSON is the JSON representation of admin settings.
type SettingsJSON struct {
	PricePerPass         *decimal.Decimal `json:"price_per_pass,omitempty"`
	PartyPassLimit       *int             `json:"party_pass_limit,omitempty"`
	DefaultFreePassLimit *int             `json:"default_free_pass_limit,omitempty"`
	Timezone             string           `json:"timezone,omitempty"`
}

// =============================================================================
// SETTINGS FACTORY
// =============================================================================

type SettingsFactory struct{}

func NewSettingsFactory() *SettingsFactory {
	return &SettingsFactory{}
}

// ParseSettings parses and validates a settings document.
func (f *SettingsFactory) ParseSettings(jsonStr string) (allowance.Settings, error) {
	var sj SettingsJSON
	if err := json.Unmarshal([]byte(jsonStr), &sj); err != nil {
		return allowance.Settings{}, fmt.Errorf("invalid settings JSON: %w", err)
	}
	return f.FromJSON(sj)
}

// FromJSON applies defaults and validates.
func (f *SettingsFactory) FromJSON(sj SettingsJSON) (allowance.Settings, error) {
	s := allowance.DefaultSettings()

	if sj.PricePerPass != nil {
		if !sj.PricePerPass.IsPositive() {
			return allowance.Settings{}, fmt.Errorf("price_per_pass must be positive, got %s", sj.PricePerPass)
		}
		if !sj.PricePerPass.Equal(sj.PricePerPass.Round(2)) {
			return allowance.Settings{}, fmt.Errorf("price_per_pass must have at most 2 decimal places, got %s", sj.PricePerPass)
		}
		s.PricePerPass = *sj.PricePerPass
	}
	if sj.PartyPassLimit != nil {
		if *sj.PartyPassLimit < 0 {
			return allowance.Settings{}, fmt.Errorf("party_pass_limit must be >= 0, got %d", *sj.PartyPassLimit)
		}
		s.PartyPassLimit = *sj.PartyPassLimit
	}
	if sj.DefaultFreePassLimit != nil {
		if *sj.DefaultFreePassLimit < 0 {
			return allowance.Settings{}, fmt.Errorf("default_free_pass_limit must be >= 0, got %d", *sj.DefaultFreePassLimit)
		}
		s.DefaultFreePassLimit = *sj.DefaultFreePassLimit
	}
	if sj.Timezone != "" {
		loc, err := time.LoadLocation(sj.Timezone)
		if err != nil {
			return allowance.Settings{}, fmt.Errorf("unknown timezone %q: %w", sj.Timezone, err)
		}
		s.Location = loc
	}

	return s, nil
}

// ToJSON is the inverse of FromJSON.
func (f *SettingsFactory) ToJSON(s allowance.Settings) SettingsJSON {
	price := s.PricePerPass
	party := s.PartyPassLimit
	free := s.DefaultFreePassLimit
	tz := "UTC"
	if s.Location != nil {
		tz = s.Location.String()
	}
	return SettingsJSON{
		PricePerPass:         &price,
		PartyPassLimit:       &party,
		DefaultFreePassLimit: &free,
		Timezone:             tz,
	}
}

func (f *SettingsFactory) FormatSettings(s allowance.Settings) (string, error) {
	data, err := json.Marshal(f.ToJSON(s))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
