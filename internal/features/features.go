// Package features selects the feature-flag set passed to a package's test
// step for a given toolchain channel.
package features

import (
	"git.home.luguber.info/inful/matrixci/internal/toolchain"
)

// Set is a named collection of feature flag strings.
type Set struct {
	Name  string
	Flags []string
}

// Sets holds the two feature sets a package can be tested with. The extended
// set carries flags that depend on nightly-only toolchain capabilities and is
// therefore unavailable on stable and beta.
type Sets struct {
	Base     Set
	Extended Set
}

// NewSets builds the base/extended pair from raw flag lists.
func NewSets(base, extended []string) Sets {
	return Sets{
		Base:     Set{Name: "base", Flags: base},
		Extended: Set{Name: "extended", Flags: extended},
	}
}

// Select resolves the feature set for a channel. Nightly-family channels
// (moving and pinned) get the extended set; stable and beta get the base set.
// This is a pure, total function of the channel.
func (s Sets) Select(ch toolchain.Channel) Set {
	if ch.IsNightly() {
		return s.Extended
	}
	return s.Base
}
