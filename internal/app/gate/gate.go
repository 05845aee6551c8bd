// Package gate provides the decision gate chain that controls whether a
// context change may trigger a track switch.
package gate

import (
	"time"

	"github.com/osa030/vibebox/internal/domain/screen"
)

// Verdict represents the result of a gate check.
type Verdict struct {
	Proceed bool
	Code    string // e.g. "below_threshold", "cooldown_active"
}

// Pass returns a passing verdict.
func Pass() Verdict {
	return Verdict{Proceed: true}
}

// Hold returns a blocking verdict with the given code.
func Hold(code string) Verdict {
	return Verdict{Proceed: false, Code: code}
}

// Gate is the interface for switch-decision gates.
type Gate interface {
	// Name returns the gate name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this gate can return.
	ReturnCodes() []string
	// ValidateConfig validates the gate configuration.
	ValidateConfig(settings map[string]any) error
	// Check decides whether the change event may proceed to a switch.
	Check(ev screen.ChangeEvent, now time.Time) Verdict
}

// registry holds registered gate factories.
var registry = make(map[string]func() Gate)

// Register registers a gate factory.
func Register(name string, factory func() Gate) {
	registry[name] = factory
}

// GetRegistered returns all registered gate factories.
func GetRegistered() map[string]func() Gate {
	return registry
}
