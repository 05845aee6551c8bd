// Package screen provides the screen context domain entities.
package screen

import (
	"time"

	"github.com/corona10/goimagehash"
)

// Fingerprint is a compact, comparable summary of a screen sample.
// Two fingerprints are only comparable if produced by the same hashing method.
type Fingerprint struct {
	Hash *goimagehash.ImageHash // 64-bit perceptual hash
	At   time.Time              // When the sample was taken
}

// Sample represents one observation of the screen.
type Sample struct {
	Fingerprint Fingerprint
	ImagePath   string // Path to the captured image on disk
}

// Summary is the human-readable classification of a screen sample.
type Summary struct {
	Tag     string // Stable kebab-case tag, e.g. "vscode-coding", "chrome-docs"
	Details string // One short sentence
	App     string // Frontmost application name, if known
}

// ChangeEvent is the outcome of comparing two consecutive fingerprints.
type ChangeEvent struct {
	Distance float64 // Normalized [0.0, 1.0]
	Exceeds  bool    // Distance at or above the configured threshold
}
