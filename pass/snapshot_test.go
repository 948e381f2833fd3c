package pass_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RL96-hub/ParkingPass/pass"
)

func TestNormalizePlate(t *testing.T) {
	cases := map[string]string{
		"abc-123":   "ABC123",
		"ABC 123":   "ABC123",
		" a.b_c/1 ": "ABC1",
		"7XYZ889":   "7XYZ889",
		"ñandú 42":  "AND42",
		"":          "",
	}
	for in, want := range cases {
		assert.Equal(t, want, pass.NormalizePlate(in), "input %q", in)
	}
}

func TestDecodeSnapshot_FieldVariants(t *testing.T) {
	variants := []string{
		`{"plate":"abc-123","make":"Ford","model":"F150","color":"white"}`,
		`{"license_plate":"ABC 123","make":"Ford","model":"F150","colour":"white"}`,
		`{"licensePlate":"abc123","Make":"Ford","Model":"F150","Color":"white"}`,
	}
	for _, v := range variants {
		s, err := pass.DecodeSnapshot([]byte(v))
		require.NoError(t, err, v)
		assert.Equal(t, pass.VehicleSnapshot{Plate: "ABC123", Make: "Ford", Model: "F150", Color: "white"}, s, v)
	}
}

func TestDecodeSnapshot_Invalid(t *testing.T) {
	_, err := pass.DecodeSnapshot([]byte("not json"))
	assert.Error(t, err)
}

func TestEncodeSnapshot_RoundTripsCanonical(t *testing.T) {
	data, err := pass.EncodeSnapshot(pass.VehicleSnapshot{Plate: "ab 1", Make: "Kia", Nickname: "mom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"plate":"AB1","make":"Kia","model":"","color":"","nickname":"mom"}`, string(data))
}
