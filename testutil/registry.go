package testutil

import (
	"time"

	"github.com/skosovsky/roost"
)

// NewTestRegistry returns a Registry with long timeout and panic recovery enabled,
// suitable for tests.
func NewTestRegistry(tools ...roost.Tool) *roost.Registry {
	reg := roost.NewRegistry(
		roost.WithDefaultTimeout(30*time.Second),
		roost.WithRecoverPanics(true),
	)
	for _, t := range tools {
		reg.Register(t)
	}
	return reg
}
