package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innospot/runtime/internal/logging"
	"github.com/innospot/runtime/internal/shared/id"
	"github.com/innospot/runtime/internal/types"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "runtime.db")}, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDeviceIDStable(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	first, err := s.DeviceID(ctx)
	require.NoError(t, err)
	assert.True(t, id.IsDevice(first))

	second, err := s.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPreferencesDefaults(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	prefs, err := s.Preferences(ctx)
	require.NoError(t, err)

	assert.True(t, prefs.PatentAlerts)
	assert.True(t, prefs.SystemUpdates)
	assert.False(t, prefs.Marketing)
	assert.Equal(t, types.FrequencyImmediate, prefs.Frequency)
	assert.False(t, prefs.QuietHours.Enabled)
	assert.Equal(t, "22:00", prefs.QuietHours.Start)
	assert.Equal(t, int64(1), prefs.Version)
}

func TestSavePreferencesBumpsVersion(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	prefs, err := s.Preferences(ctx)
	require.NoError(t, err)

	prefs.Marketing = true
	saved, err := s.SavePreferences(ctx, prefs)
	require.NoError(t, err)
	assert.Equal(t, prefs.Version+1, saved.Version)

	reread, err := s.Preferences(ctx)
	require.NoError(t, err)
	assert.True(t, reread.Marketing)
	assert.Equal(t, saved.Version, reread.Version)
}

func TestSavePreferencesStaleVersion(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	prefs, err := s.Preferences(ctx)
	require.NoError(t, err)

	_, err = s.SavePreferences(ctx, prefs)
	require.NoError(t, err)

	// Second save with the original version must conflict
	prefs.ReportReady = false
	_, err = s.SavePreferences(ctx, prefs)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestQueueFIFO(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, tag := range []string{"patent-alert", "system-update", "report-ready"} {
		_, err := s.Enqueue(ctx, types.Notification{Title: tag, Tag: tag})
		require.NoError(t, err)
	}

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "patent-alert", pending[0].Notification.Tag)
	assert.Equal(t, "report-ready", pending[2].Notification.Tag)
	assert.Less(t, pending[0].Seq, pending[1].Seq)

	depth, err := s.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, depth)

	require.NoError(t, s.ClearQueue(ctx))
	depth, err = s.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}
