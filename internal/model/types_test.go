package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTick_FormattedTimestamp(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	ts := time.Date(2024, 1, 15, 7, 30, 5, 123456789, ny).Truncate(time.Microsecond)
	tick := Tick{Instrument: "EUR_USD", Timestamp: ts}

	assert.Equal(t, "2024-01-15 07:30:05.123456", tick.FormattedTimestamp())
}

func TestTick_FormattedTimestamp_PadsMicros(t *testing.T) {
	tick := Tick{Timestamp: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}

	assert.Equal(t, "2024-03-01 09:00:00.000000", tick.FormattedTimestamp())
}

func TestDefaultSpec(t *testing.T) {
	spec := DefaultSpec("USD_CAD")

	assert.Equal(t, "USD_CAD", spec.Name)
	assert.Equal(t, 5, spec.DisplayPrecision)
	assert.True(t, spec.PipScale.Equal(decimal.NewFromInt(10000)), "PipScale = %s", spec.PipScale)
}

func TestPipScaleFromLocation(t *testing.T) {
	tests := []struct {
		location int
		want     int64
	}{
		{-4, 10000},
		{-2, 100},
		{0, 1},
		{2, 100},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("location %d", tt.location), func(t *testing.T) {
			got := PipScaleFromLocation(tt.location)
			assert.True(t, got.Equal(decimal.NewFromInt(tt.want)), "PipScaleFromLocation(%d) = %s", tt.location, got)
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"auth", fmt.Errorf("open stream: %w", ErrAuth), true},
		{"not found", fmt.Errorf("open stream: %w", ErrNotFound), true},
		{"transient", fmt.Errorf("open stream: %w", ErrTransient), false},
		{"malformed", ErrMalformedPayload, false},
		{"other", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}
