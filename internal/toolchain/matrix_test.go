package toolchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/matrixci/internal/errors"
)

func TestExpandMatrix(t *testing.T) {
	entries, err := ExpandMatrix(
		[]string{"stable", "beta", "nightly-2016-07-07", "nightly"},
		[]string{"nightly"},
	)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, Entry{Channel: Stable}, entries[0])
	assert.Equal(t, Entry{Channel: Beta}, entries[1])
	assert.Equal(t, Entry{Channel: PinnedNightly("2016-07-07"), AllowFailure: true}, entries[2])
	assert.Equal(t, Entry{Channel: Nightly, AllowFailure: true}, entries[3])
}

func TestExpandMatrixExactAllowFailurePredicate(t *testing.T) {
	entries, err := ExpandMatrix([]string{"stable", "beta"}, []string{"beta"})
	require.NoError(t, err)
	assert.False(t, entries[0].AllowFailure)
	assert.True(t, entries[1].AllowFailure)
}

func TestExpandMatrixEmpty(t *testing.T) {
	_, err := ExpandMatrix(nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfig))
}

func TestExpandMatrixDuplicate(t *testing.T) {
	_, err := ExpandMatrix([]string{"stable", "stable"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfig))
}

func TestExpandMatrixDistinctPinnedDatesAreDistinct(t *testing.T) {
	// Distinct pinned dates are distinct channels, but only one pinned
	// nightly may be declared.
	_, err := ExpandMatrix([]string{"nightly-2016-07-07", "nightly-2016-07-08"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfig))
}

func TestExpandMatrixPinnedAndMovingNightlyCoexist(t *testing.T) {
	entries, err := ExpandMatrix([]string{"nightly-2016-07-07", "nightly"}, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.NotEqual(t, entries[0].Channel, entries[1].Channel)
}
