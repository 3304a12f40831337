package events

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	err := error(&ValidationError{Names: []string{"crow", "raven"}})
	require.EqualError(t, err, "couldn't figure out these users: crow, raven")
}

func TestRowError_Unwrap(t *testing.T) {
	_, cause := strconv.Atoi("x")
	err := &RowError{Line: 3, Err: cause}
	require.ErrorIs(t, err, strconv.ErrSyntax)
	require.Contains(t, err.Error(), "csv line 3")
	require.False(t, errors.Is(err, ErrNotConfigured))
}

func TestRescanOptions_Defaults(t *testing.T) {
	o := RescanOptions{}.withDefaults()
	require.Equal(t, 1000, o.Limit)
	require.Equal(t, 100, o.Batch)
	require.Zero(t, o.Pause)

	o = RescanOptions{Limit: 10, Batch: 5, Pause: -1}.withDefaults()
	require.Equal(t, 10, o.Limit)
	require.Zero(t, o.Pause)
}
