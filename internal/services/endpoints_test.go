package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoints(t *testing.T) {
	t.Run("derives urls from a plain base", func(t *testing.T) {
		e, err := NewEndpoints("https://api.example.com")
		require.NoError(t, err)

		assert.Equal(t, "https://api.example.com/api/auth/mobile/refresh", e.RefreshURL())
		assert.Equal(t, "https://api.example.com/api/dtc/attendance/clock", e.ClockURL())
		assert.Equal(t, "https://api.example.com/api/health", e.HealthURL())
	})

	t.Run("tolerates a base already pointing at the auth prefix", func(t *testing.T) {
		e, err := NewEndpoints("https://api.example.com/api/auth")
		require.NoError(t, err)

		assert.Equal(t, "https://api.example.com/api/auth/mobile/refresh", e.RefreshURL())
		assert.Equal(t, "https://api.example.com/api/dtc/attendance/clock", e.ClockURL())
	})

	t.Run("strips trailing slashes and whitespace", func(t *testing.T) {
		e, err := NewEndpoints("  https://api.example.com/// ")
		require.NoError(t, err)

		assert.Equal(t, "https://api.example.com/api/dtc/attendance/clock", e.ClockURL())
	})

	t.Run("empty base is a configuration error", func(t *testing.T) {
		_, err := NewEndpoints("   ")
		assert.ErrorIs(t, err, ErrMissingAPIBase)
	})
}
