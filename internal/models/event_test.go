package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAttendanceEvent(t *testing.T) {
	t.Run("creates event with valid parameters", func(t *testing.T) {
		offset := 420
		event, err := NewAttendanceEvent(
			"EMP-001", ModeIn,
			"2026-08-30T08:15:00+07:00", "Asia/Jakarta", &offset,
			-6.2088, 106.8456,
			"on site", "/data/photos/clock-in.jpg",
		)

		require.NoError(t, err)
		assert.NotEmpty(t, event.EventID)
		assert.Equal(t, "EMP-001", event.EmployeeID)
		assert.Equal(t, ModeIn, event.Mode)
		assert.Equal(t, StatusPending, event.Status)
		assert.Equal(t, 0, event.RetryCount)
		assert.Empty(t, event.PhotoURL)
		assert.WithinDuration(t, time.Now().UTC(), event.CreatedAt, time.Second*5)
	})

	t.Run("generates distinct event ids", func(t *testing.T) {
		a, err := NewAttendanceEvent("EMP-001", ModeIn, "2026-08-30T08:00:00Z", "UTC", nil, 0, 0, "", "/p/a.jpg")
		require.NoError(t, err)
		b, err := NewAttendanceEvent("EMP-001", ModeIn, "2026-08-30T08:00:00Z", "UTC", nil, 0, 0, "", "/p/b.jpg")
		require.NoError(t, err)

		assert.NotEqual(t, a.EventID, b.EventID)
	})

	t.Run("rejects empty employee id", func(t *testing.T) {
		_, err := NewAttendanceEvent("", ModeIn, "2026-08-30T08:00:00Z", "UTC", nil, 0, 0, "", "/p.jpg")
		assert.ErrorIs(t, err, ErrEmptyEmployeeID)
	})

	t.Run("rejects unknown mode", func(t *testing.T) {
		_, err := NewAttendanceEvent("EMP-001", Mode("BREAK"), "2026-08-30T08:00:00Z", "UTC", nil, 0, 0, "", "/p.jpg")
		assert.ErrorIs(t, err, ErrInvalidMode)
	})

	t.Run("rejects empty client time", func(t *testing.T) {
		_, err := NewAttendanceEvent("EMP-001", ModeOut, "", "UTC", nil, 0, 0, "", "/p.jpg")
		assert.ErrorIs(t, err, ErrEmptyClientTime)
	})

	t.Run("rejects empty timezone", func(t *testing.T) {
		_, err := NewAttendanceEvent("EMP-001", ModeOut, "2026-08-30T08:00:00Z", "", nil, 0, 0, "", "/p.jpg")
		assert.ErrorIs(t, err, ErrEmptyTimezone)
	})

	t.Run("rejects missing photo", func(t *testing.T) {
		_, err := NewAttendanceEvent("EMP-001", ModeOut, "2026-08-30T08:00:00Z", "UTC", nil, 0, 0, "", "")
		assert.ErrorIs(t, err, ErrMissingPhoto)
	})
}

func TestStatusTransitions(t *testing.T) {
	t.Run("pending and failed rows may enter syncing", func(t *testing.T) {
		assert.True(t, StatusPending.CanTransitionTo(StatusSyncing))
		assert.True(t, StatusFailed.CanTransitionTo(StatusSyncing))
	})

	t.Run("syncing resolves or recovers", func(t *testing.T) {
		assert.True(t, StatusSyncing.CanTransitionTo(StatusSynced))
		assert.True(t, StatusSyncing.CanTransitionTo(StatusSkipped))
		assert.True(t, StatusSyncing.CanTransitionTo(StatusFailed))
		assert.True(t, StatusSyncing.CanTransitionTo(StatusPending))
	})

	t.Run("terminal states never transition", func(t *testing.T) {
		for _, terminal := range []Status{StatusSynced, StatusSkipped} {
			for _, next := range []Status{StatusPending, StatusSyncing, StatusSynced, StatusFailed, StatusSkipped} {
				assert.False(t, terminal.CanTransitionTo(next), "%s -> %s", terminal, next)
			}
		}
	})

	t.Run("pending cannot jump straight to a terminal state", func(t *testing.T) {
		assert.False(t, StatusPending.CanTransitionTo(StatusSynced))
		assert.False(t, StatusPending.CanTransitionTo(StatusSkipped))
	})

	t.Run("terminal reports only synced and skipped", func(t *testing.T) {
		assert.True(t, StatusSynced.Terminal())
		assert.True(t, StatusSkipped.Terminal())
		assert.False(t, StatusPending.Terminal())
		assert.False(t, StatusSyncing.Terminal())
		assert.False(t, StatusFailed.Terminal())
	})
}
