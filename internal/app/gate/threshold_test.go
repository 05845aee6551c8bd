package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/vibebox/internal/domain/screen"
)

func TestThresholdGate_Check(t *testing.T) {
	tests := []struct {
		name        string
		threshold   float64
		distance    float64
		shouldHold  bool
		description string
	}{
		{
			name:        "Well above threshold",
			threshold:   0.10,
			distance:    0.25,
			shouldHold:  false,
			description: "Should pass a clearly significant change",
		},
		{
			name:        "Exactly at threshold",
			threshold:   0.10,
			distance:    0.10,
			shouldHold:  false,
			description: "Boundary distance counts as significant",
		},
		{
			name:        "Just below threshold",
			threshold:   0.10,
			distance:    0.0999,
			shouldHold:  true,
			description: "Should hold a sub-threshold change",
		},
		{
			name:        "Identical fingerprints",
			threshold:   0.10,
			distance:    0.0,
			shouldHold:  true,
			description: "Zero distance never passes",
		},
		{
			name:        "Custom threshold",
			threshold:   0.50,
			distance:    0.25,
			shouldHold:  true,
			description: "Gate honors a non-default threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewThresholdGate()
			g.config = &ThresholdConfig{Threshold: tt.threshold}

			verdict := g.Check(screen.ChangeEvent{Distance: tt.distance}, time.Now())

			if tt.shouldHold {
				assert.False(t, verdict.Proceed, tt.description)
				assert.Equal(t, "below_threshold", verdict.Code)
			} else {
				assert.True(t, verdict.Proceed, tt.description)
			}
		})
	}
}

func TestThresholdGate_ValidateConfig(t *testing.T) {
	tests := []struct {
		name      string
		settings  map[string]any
		wantErr   bool
		threshold float64
	}{
		{
			name:      "Valid threshold",
			settings:  map[string]any{"threshold": 0.2},
			wantErr:   false,
			threshold: 0.2,
		},
		{
			name:      "Empty settings use default",
			settings:  map[string]any{},
			wantErr:   false,
			threshold: 0.10,
		},
		{
			name:     "Negative threshold",
			settings: map[string]any{"threshold": -0.1},
			wantErr:  true,
		},
		{
			name:     "Above one",
			settings: map[string]any{"threshold": 1.5},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewThresholdGate()
			err := g.ValidateConfig(tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.threshold, g.Threshold())
		})
	}
}
