// Package prefs provides the user generation preferences entity.
package prefs

import (
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// VocalsGender represents the preferred vocal gender.
type VocalsGender string

const (
	VocalsMale   VocalsGender = "male"
	VocalsFemale VocalsGender = "female"
)

// Preferences holds user-controlled generation parameters.
// A snapshot is taken per generation request; later edits never affect
// in-flight requests.
type Preferences struct {
	Genres       []string     `json:"genres" validate:"max=10,dive,min=1,max=40"`
	VocalsGender VocalsGender `json:"vocals_gender,omitempty" validate:"omitempty,oneof=male female"`
	Instrumental bool         `json:"instrumental"`
	SillyMode    bool         `json:"silly_mode"`
}

// Default returns the default preferences (instrumental, no genre bias).
func Default() Preferences {
	return Preferences{Instrumental: true}
}

// Validate checks the preferences at the API boundary.
func (p Preferences) Validate() error {
	if err := validator.New().Struct(p); err != nil {
		return errors.Wrap(err, "invalid preferences")
	}
	return nil
}

// Clone returns a deep copy, used when snapshotting for a request.
func (p Preferences) Clone() Preferences {
	c := p
	c.Genres = append([]string(nil), p.Genres...)
	return c
}
