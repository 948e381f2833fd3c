package pass

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// NormalizePlate uppercases a license plate and strips everything that is
// not an ASCII letter or digit. "abc-123", "ABC 123" and "Abc.123" all
// become "ABC123".
func NormalizePlate(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r > unicode.MaxASCII {
			continue
		}
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(unicode.ToUpper(r))
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Field aliases seen in stored snapshots written by older collaborators.
var (
	plateKeys    = []string{"plate", "license_plate", "licensePlate", "LicensePlate", "plate_number", "Plate"}
	makeKeys     = []string{"make", "Make"}
	modelKeys    = []string{"model", "Model"}
	colorKeys    = []string{"color", "colour", "Color"}
	nicknameKeys = []string{"nickname", "nick_name", "Nickname"}
)

// DecodeSnapshot reads a stored vehicle snapshot regardless of which key
// naming convention wrote it, and returns the canonical shape with a
// normalized plate. This is the only place snapshot variants are handled.
func DecodeSnapshot(data []byte) (VehicleSnapshot, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return VehicleSnapshot{}, fmt.Errorf("decode vehicle snapshot: %w", err)
	}
	return VehicleSnapshot{
		Plate:    NormalizePlate(firstString(raw, plateKeys)),
		Make:     firstString(raw, makeKeys),
		Model:    firstString(raw, modelKeys),
		Color:    firstString(raw, colorKeys),
		Nickname: firstString(raw, nicknameKeys),
	}, nil
}

// EncodeSnapshot always writes the canonical key set.
func EncodeSnapshot(s VehicleSnapshot) ([]byte, error) {
	s.Plate = NormalizePlate(s.Plate)
	return json.Marshal(s)
}

func firstString(raw map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
