package toolchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/matrixci/internal/errors"
)

func TestParseChannel(t *testing.T) {
	cases := []struct {
		in      string
		want    Channel
		wantErr bool
	}{
		{"stable", Stable, false},
		{"beta", Beta, false},
		{"nightly", Nightly, false},
		{"nightly-2016-07-07", PinnedNightly("2016-07-07"), false},
		{"nightly-07-07-2016", Channel{}, true},
		{"nightly-tomorrow", Channel{}, true},
		{"1.9.0", Channel{}, true},
		{"", Channel{}, true},
	}

	for _, tc := range cases {
		got, err := ParseChannel(tc.in)
		if tc.wantErr {
			require.Error(t, err, "input %q", tc.in)
			assert.True(t, errors.IsCategory(err, errors.CategoryConfig), "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestChannelString(t *testing.T) {
	assert.Equal(t, "stable", Stable.String())
	assert.Equal(t, "beta", Beta.String())
	assert.Equal(t, "nightly", Nightly.String())
	assert.Equal(t, "nightly-2016-07-07", PinnedNightly("2016-07-07").String())
}

func TestIsNightly(t *testing.T) {
	assert.False(t, Stable.IsNightly())
	assert.False(t, Beta.IsNightly())
	assert.True(t, Nightly.IsNightly())
	assert.True(t, PinnedNightly("2016-07-07").IsNightly())
}
