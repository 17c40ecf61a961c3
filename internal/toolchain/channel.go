// Package toolchain models toolchain release channels and the build matrix
// expanded from them. Channels are an explicit enumerated type rather than raw
// strings so that selection logic elsewhere is total and free of prefix-match
// ambiguity.
package toolchain

import (
	"fmt"
	"strings"
	"time"

	"git.home.luguber.info/inful/matrixci/internal/errors"
)

// Family is the release class of a toolchain channel.
type Family string

const (
	FamilyStable        Family = "stable"
	FamilyBeta          Family = "beta"
	FamilyNightly       Family = "nightly"
	FamilyPinnedNightly Family = "pinned-nightly"
)

// pinnedDateLayout is the date format accepted for pinned nightly channels.
const pinnedDateLayout = "2006-01-02"

// Channel identifies one toolchain version class. Two pinned nightlies with
// different dates are distinct channels.
type Channel struct {
	Family Family
	// Date is set only for FamilyPinnedNightly, in YYYY-MM-DD form.
	Date string
}

// Stable is the designated publishing channel.
var Stable = Channel{Family: FamilyStable}

// Beta is the beta release channel.
var Beta = Channel{Family: FamilyBeta}

// Nightly is the moving nightly channel.
var Nightly = Channel{Family: FamilyNightly}

// PinnedNightly returns the nightly channel pinned to the given date.
func PinnedNightly(date string) Channel {
	return Channel{Family: FamilyPinnedNightly, Date: date}
}

// ParseChannel parses a channel identifier as written in configuration:
// "stable", "beta", "nightly", or "nightly-YYYY-MM-DD".
func ParseChannel(s string) (Channel, error) {
	switch s {
	case "stable":
		return Stable, nil
	case "beta":
		return Beta, nil
	case "nightly":
		return Nightly, nil
	}

	if date, ok := strings.CutPrefix(s, "nightly-"); ok {
		if _, err := time.Parse(pinnedDateLayout, date); err != nil {
			return Channel{}, errors.ConfigError("invalid pinned nightly date").
				WithContext("channel", s).
				WithContext("expected_format", "nightly-YYYY-MM-DD")
		}
		return PinnedNightly(date), nil
	}

	return Channel{}, errors.ConfigError("unknown toolchain channel").
		WithContext("channel", s)
}

// String renders the channel back to its configuration identifier.
func (c Channel) String() string {
	if c.Family == FamilyPinnedNightly {
		return fmt.Sprintf("nightly-%s", c.Date)
	}
	return string(c.Family)
}

// IsNightly reports whether the channel belongs to the nightly family,
// pinned or moving. Nightly-family channels get the extended feature set.
func (c Channel) IsNightly() bool {
	return c.Family == FamilyNightly || c.Family == FamilyPinnedNightly
}

// IsZero reports whether the channel is the zero value (unset).
func (c Channel) IsZero() bool {
	return c.Family == ""
}
