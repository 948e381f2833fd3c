package allowance_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/RL96-hub/ParkingPass/allowance"
)

func TestErrorClasses(t *testing.T) {
	dup := &allowance.DuplicateActivePassError{VehicleID: "car-1", PassID: "p-1", ExpiresAt: time.Now()}
	transition := &allowance.InvalidTransitionError{From: allowance.PaymentPaid, To: allowance.PaymentWaived}

	tests := []struct {
		name      string
		err       error
		client    bool
		notFound  bool
		retryable bool
	}{
		{"duplicate", dup, true, false, false},
		{"transition", transition, true, false, false},
		{"wrapped unit exists", fmt.Errorf("create: %w", allowance.ErrUnitExists), true, false, false},
		{"unit not found", fmt.Errorf("%w: unit-9", allowance.ErrUnitNotFound), false, true, false},
		{"pass not found", allowance.ErrPassNotFound, false, true, false},
		{"constraint", allowance.ErrConstraintViolation, false, false, true},
		{"other", fmt.Errorf("disk full"), false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.client, allowance.IsClientError(tt.err))
			assert.Equal(t, tt.notFound, allowance.IsNotFound(tt.err))
			assert.Equal(t, tt.retryable, allowance.IsRetryable(tt.err))
		})
	}
}
