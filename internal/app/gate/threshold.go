package gate

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibebox/internal/domain/screen"
)

// ThresholdConfig represents the configuration for ThresholdGate.
type ThresholdConfig struct {
	Threshold float64 `yaml:"threshold" mapstructure:"threshold" default:"0.10" validate:"gt=0,lte=1"`
}

// ThresholdGate holds back changes whose normalized distance is below the
// configured fraction of the maximum possible distance.
type ThresholdGate struct {
	config *ThresholdConfig
}

// NewThresholdGate creates a new threshold gate.
func NewThresholdGate() *ThresholdGate {
	return &ThresholdGate{}
}

func (g *ThresholdGate) Name() string {
	return "threshold_gate"
}

func (g *ThresholdGate) Description() string {
	return "Holds back changes below the significance threshold"
}

func (g *ThresholdGate) ReturnCodes() []string {
	return []string{"below_threshold"}
}

func (g *ThresholdGate) ValidateConfig(settings map[string]any) error {
	var config ThresholdConfig

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

	g.config = &config
	zlog.Info().Msgf("threshold gate config: %+v", config)
	return nil
}

// Threshold returns the effective significance threshold.
func (g *ThresholdGate) Threshold() float64 {
	if g.config == nil {
		return 0.10
	}
	return g.config.Threshold
}

func (g *ThresholdGate) Check(ev screen.ChangeEvent, _ time.Time) Verdict {
	if ev.Distance < g.Threshold() {
		return Hold("below_threshold")
	}
	return Pass()
}

func init() {
	Register("threshold_gate", func() Gate {
		return &ThresholdGate{}
	})
}
