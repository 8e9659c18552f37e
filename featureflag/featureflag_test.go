package featureflag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeatureFlag(t *testing.T) {
	f := New([]string{string(FlagBulkLoad)})

	t.Run("run if enabled", func(t *testing.T) {
		var runBulkLoad bool
		f.IfSet(FlagBulkLoad, func() {
			runBulkLoad = true
		})
		require.True(t, runBulkLoad)

		var runDisableQueries bool
		f.IfSet(FlagDisableQueries, func() {
			runDisableQueries = true
		})
		require.False(t, runDisableQueries)
	})

	t.Run("run if disabled", func(t *testing.T) {
		var runBulkLoad bool
		f.IfNotSet(FlagBulkLoad, func() {
			runBulkLoad = true
		})
		require.False(t, runBulkLoad)

		var runDisableQueries bool
		f.IfNotSet(FlagDisableQueries, func() {
			runDisableQueries = true
		})
		require.True(t, runDisableQueries)
	})

	t.Run("is set", func(t *testing.T) {
		require.True(t, f.IsSet(FlagBulkLoad))
		require.False(t, f.IsSet(FlagDisableSnapshots))
	})

	t.Run("unknown flags", func(t *testing.T) {
		require.Empty(t, f.Unknown())

		f := New([]string{string(FlagDisableSnapshots), "DISABLE_SESSION_STATE"})
		require.Equal(t, []Flag{"DISABLE_SESSION_STATE"}, f.Unknown())
	})
}
