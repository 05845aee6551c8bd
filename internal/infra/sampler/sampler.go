// Package sampler provides screen sample sources. A sampler watches where
// the external capture tool drops screenshots and serves the newest
// fingerprinted sample without blocking.
package sampler

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibebox/internal/domain/screen"
)

// ErrNoSample indicates that no screen capture has been observed yet.
var ErrNoSample = errors.New("no screen sample observed yet")

// ContextSampler serves the latest screen observation.
type ContextSampler interface {
	Sample() (screen.Sample, error)
	Close() error
}

// New creates a sampler from its configured type and settings.
func New(samplerType string, settings map[string]any) (ContextSampler, error) {
	zlog.Debug().Msgf("creating sampler: type=%s settings=%+v", samplerType, settings)

	switch samplerType {
	case "directory":
		return NewDirectorySampler(settings)
	default:
		return nil, errors.Newf("unsupported sampler type: %s", samplerType)
	}
}
