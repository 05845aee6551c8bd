// Package detector classifies the magnitude of change between consecutive
// screen fingerprints.
package detector

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/vibebox/internal/domain/screen"
)

// DefaultThreshold is the fraction of the maximum hash distance at which a
// change is considered significant.
const DefaultThreshold = 0.10

// hashBits is the maximum possible Hamming distance for a 64-bit hash.
const hashBits = 64

// Detector computes a normalized distance between fingerprints and classifies
// it against a fixed threshold. It is a pure function of its inputs; it holds
// no per-tick state.
type Detector struct {
	threshold float64
}

// New creates a detector. A threshold of zero selects DefaultThreshold.
func New(threshold float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold}
}

// Threshold returns the configured significance threshold.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// Classify compares two fingerprints produced by the same hashing method.
// A nil prev (first sample) yields distance 0.0 and never exceeds the
// threshold; the caller establishes prev as the baseline.
func (d *Detector) Classify(prev, curr *screen.Fingerprint) (screen.ChangeEvent, error) {
	if curr == nil || curr.Hash == nil {
		return screen.ChangeEvent{}, errors.New("current fingerprint is required")
	}
	if prev == nil || prev.Hash == nil {
		return screen.ChangeEvent{Distance: 0, Exceeds: false}, nil
	}

	raw, err := prev.Hash.Distance(curr.Hash)
	if err != nil {
		return screen.ChangeEvent{}, errors.Wrap(err, "failed to compare fingerprints")
	}

	distance := float64(raw) / hashBits
	return screen.ChangeEvent{
		Distance: distance,
		Exceeds:  distance >= d.threshold,
	}, nil
}
