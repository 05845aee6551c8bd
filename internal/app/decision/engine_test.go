package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/vibebox/internal/app/gate"
	"github.com/osa030/vibebox/internal/domain/screen"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()

	threshold := gate.NewThresholdGate()
	require.NoError(t, threshold.ValidateConfig(map[string]any{}))
	cooldown := gate.NewCooldownGate()
	require.NoError(t, cooldown.ValidateConfig(map[string]any{}))

	chain := gate.NewChain()
	chain.Add(threshold)
	chain.Add(cooldown)
	return NewEngine(chain, cooldown)
}

func TestEvaluate_NoChange(t *testing.T) {
	e := newEngine(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Scenario: identical fingerprints on two consecutive ticks.
	for i := 0; i < 2; i++ {
		d := e.Evaluate(now.Add(time.Duration(i)*2*time.Second), screen.ChangeEvent{Distance: 0.0}, nil, nil)
		assert.Equal(t, ActionContinue, d.Action)
		assert.Equal(t, "below_threshold", d.Code)
	}
}

func TestEvaluate_SignificantChange(t *testing.T) {
	e := newEngine(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	prev := &screen.Summary{Tag: "vscode-coding"}

	d := e.Evaluate(now, screen.ChangeEvent{Distance: 0.25, Exceeds: true}, nil, prev)
	assert.Equal(t, ActionSwitchWithFade, d.Action)
	assert.Same(t, prev, d.Previous)
	assert.Equal(t, now, d.At)
}

func TestEvaluate_CooldownSuppression(t *testing.T) {
	e := newEngine(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	change := screen.ChangeEvent{Distance: 0.25, Exceeds: true}

	// Scenario: three significant changes 1 second apart produce exactly
	// one switch, and the held changes are not queued.
	actions := make([]Action, 0, 3)
	for i := 0; i < 3; i++ {
		d := e.Evaluate(base.Add(time.Duration(i)*time.Second), change, nil, nil)
		actions = append(actions, d.Action)
	}
	assert.Equal(t, []Action{ActionSwitchWithFade, ActionContinue, ActionContinue}, actions)

	// A change at or past the cooldown switches again.
	d := e.Evaluate(base.Add(3*time.Second), change, nil, nil)
	assert.Equal(t, ActionSwitchWithFade, d.Action)
}

func TestEvaluate_SuppressedChangeCarriesCode(t *testing.T) {
	e := newEngine(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	change := screen.ChangeEvent{Distance: 0.5, Exceeds: true}

	first := e.Evaluate(base, change, nil, nil)
	require.Equal(t, ActionSwitchWithFade, first.Action)

	second := e.Evaluate(base.Add(500*time.Millisecond), change, nil, nil)
	assert.Equal(t, ActionContinue, second.Action)
	assert.Equal(t, "cooldown_active", second.Code)
}

func TestEvaluate_BelowThresholdNeverSwitches(t *testing.T) {
	// A chain without a threshold gate would otherwise pass every tick
	// straight through to the cooldown.
	cooldown := gate.NewCooldownGate()
	require.NoError(t, cooldown.ValidateConfig(map[string]any{}))
	chain := gate.NewChain()
	chain.Add(cooldown)
	e := NewEngine(chain, cooldown)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Quiet ticks are continues by definition and must not touch the
	// cooldown, no matter what the chain would say.
	for i := 0; i < 5; i++ {
		d := e.Evaluate(base.Add(time.Duration(i)*time.Second), screen.ChangeEvent{Distance: 0.01}, nil, nil)
		assert.Equal(t, ActionContinue, d.Action)
		assert.Equal(t, "below_threshold", d.Code)
	}

	// A genuine change right after the quiet stretch still switches; the
	// cooldown was never held by the quiet ticks.
	d := e.Evaluate(base.Add(6*time.Second), screen.ChangeEvent{Distance: 0.5, Exceeds: true}, nil, nil)
	assert.Equal(t, ActionSwitchWithFade, d.Action)
}

func TestEvaluate_EmptyChainBelowThreshold(t *testing.T) {
	e := NewEngine(gate.NewChain(), nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	d := e.Evaluate(base, screen.ChangeEvent{Distance: 0.05}, nil, nil)
	assert.Equal(t, ActionContinue, d.Action)
	assert.Equal(t, "below_threshold", d.Code)
}
