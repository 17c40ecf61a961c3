package features

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"git.home.luguber.info/inful/matrixci/internal/toolchain"
)

// TestSelectTable verifies the full channel-to-feature-set mapping explicitly.
func TestSelectTable(t *testing.T) {
	sets := NewSets(
		[]string{"postgres", "sqlite"},
		[]string{"postgres", "sqlite", "unstable"},
	)

	cases := []struct {
		channel toolchain.Channel
		want    string
	}{
		{toolchain.Stable, "base"},
		{toolchain.Beta, "base"},
		{toolchain.PinnedNightly("2016-07-07"), "extended"},
		{toolchain.Nightly, "extended"},
	}

	for _, tc := range cases {
		got := sets.Select(tc.channel)
		assert.Equal(t, tc.want, got.Name, "channel %s", tc.channel)
	}
}

func TestSelectReturnsConfiguredFlags(t *testing.T) {
	sets := NewSets([]string{"a"}, []string{"a", "b"})
	assert.Equal(t, []string{"a"}, sets.Select(toolchain.Beta).Flags)
	assert.Equal(t, []string{"a", "b"}, sets.Select(toolchain.Nightly).Flags)
}
