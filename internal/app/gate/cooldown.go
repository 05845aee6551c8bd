package gate

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibebox/internal/domain/screen"
)

// CooldownConfig represents the configuration for CooldownGate.
type CooldownConfig struct {
	Seconds float64 `yaml:"seconds" mapstructure:"seconds" default:"3" validate:"gt=0,lte=300"`
}

// CooldownGate enforces a minimum elapsed time between two accepted switch
// decisions. RecordSwitch must be called exactly once per accepted switch,
// never per evaluation tick.
type CooldownGate struct {
	mu         sync.Mutex
	config     *CooldownConfig
	lastSwitch time.Time // zero value means "never"
}

// NewCooldownGate creates a new cooldown gate.
func NewCooldownGate() *CooldownGate {
	return &CooldownGate{}
}

func (g *CooldownGate) Name() string {
	return "cooldown_gate"
}

func (g *CooldownGate) Description() string {
	return "Enforces a minimum interval between accepted switches"
}

func (g *CooldownGate) ReturnCodes() []string {
	return []string{"cooldown_active"}
}

func (g *CooldownGate) ValidateConfig(settings map[string]any) error {
	var config CooldownConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &config,
		TagName: "mapstructure",
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}

	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}

	g.mu.Lock()
	g.config = &config
	g.mu.Unlock()
	zlog.Info().Msgf("cooldown gate config: %+v", config)
	return nil
}

// Cooldown returns the effective cooldown duration.
func (g *CooldownGate) Cooldown() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cooldownLocked()
}

func (g *CooldownGate) cooldownLocked() time.Duration {
	if g.config == nil {
		return 3 * time.Second
	}
	return time.Duration(g.config.Seconds * float64(time.Second))
}

// Allow reports whether a switch is permitted at the given time.
func (g *CooldownGate) Allow(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lastSwitch.IsZero() {
		return true
	}
	return now.Sub(g.lastSwitch) >= g.cooldownLocked()
}

// RecordSwitch marks an accepted switch decision at the given time.
func (g *CooldownGate) RecordSwitch(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastSwitch = now
}

func (g *CooldownGate) Check(_ screen.ChangeEvent, now time.Time) Verdict {
	if !g.Allow(now) {
		return Hold("cooldown_active")
	}
	return Pass()
}

func init() {
	Register("cooldown_gate", func() Gate {
		return &CooldownGate{}
	})
}
