package marketdata

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	for _, valid := range ValidRanges() {
		got, err := ParseRange(string(valid))
		require.NoError(t, err)
		assert.Equal(t, valid, got)
	}

	for _, bad := range []string{"", "7days", "1DAY", "month"} {
		_, err := ParseRange(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestWindowStart(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, Range1Day.WindowStart(now).IsZero())
	assert.Equal(t, now.AddDate(0, -1, 0), Range1Month.WindowStart(now))
	assert.Equal(t, now.AddDate(0, -6, 0), Range6Months.WindowStart(now))
	assert.Equal(t, now.AddDate(-5, 0, 0), Range5Years.WindowStart(now))
}

func TestFileCredentialStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds", "mse_credentials.json")
	store := NewFileCredentialStore(path)

	// Missing file reads as empty, not an error.
	cookie, err := store.Get()
	require.NoError(t, err)
	assert.Empty(t, cookie)

	require.NoError(t, store.Set("sessionid=xyz; csrftoken=123"))

	reopened := NewFileCredentialStore(path)
	cookie, err = reopened.Get()
	require.NoError(t, err)
	assert.Equal(t, "sessionid=xyz; csrftoken=123", cookie)
}

func TestStaticProbe(t *testing.T) {
	assert.True(t, StaticProbe(true).Restricted())
	assert.False(t, StaticProbe(false).Restricted())
}
