package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldclock/agent/internal/models"
	"github.com/fieldclock/agent/internal/repository"
)

func setupTestRepos(t *testing.T) (*repository.QueueRepository, *repository.CredentialRepository) {
	t.Helper()

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return repository.NewQueueRepository(db), repository.NewCredentialRepository(db)
}

func writeTokenPair(w http.ResponseWriter, access, refresh string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"tokens": map[string]string{
			"accessToken":  access,
			"refreshToken": refresh,
		},
	})
}

func TestTokenService_AccessToken(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the cached token without a network call", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeTokenPair(w, "fresh", "rotated")
		}))
		defer server.Close()

		_, creds := setupTestRepos(t)
		require.NoError(t, creds.SaveTokens(ctx, "cached-access", "refresh-1"))

		endpoints, err := NewEndpoints(server.URL)
		require.NoError(t, err)
		svc := NewTokenService(creds, endpoints, nil)

		token, err := svc.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "cached-access", token)
		assert.Zero(t, calls.Load())
	})

	t.Run("refreshes when no token is cached", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/auth/mobile/refresh", r.URL.Path)

			var body struct {
				RefreshToken string `json:"refreshToken"`
				DeviceID     string `json:"deviceId"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "refresh-1", body.RefreshToken)
			assert.NotEmpty(t, body.DeviceID)

			writeTokenPair(w, "fresh-access", "refresh-2")
		}))
		defer server.Close()

		_, creds := setupTestRepos(t)
		_, err := creds.DeviceID(ctx)
		require.NoError(t, err)
		require.NoError(t, creds.SaveTokens(ctx, "", "refresh-1"))

		endpoints, err := NewEndpoints(server.URL)
		require.NoError(t, err)
		svc := NewTokenService(creds, endpoints, nil)

		token, err := svc.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "fresh-access", token)

		stored, err := creds.Credentials(ctx)
		require.NoError(t, err)
		assert.Equal(t, "fresh-access", stored.AccessToken)
		assert.Equal(t, "refresh-2", stored.RefreshToken)
	})
}

func TestTokenService_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("fails without stored credentials", func(t *testing.T) {
		_, creds := setupTestRepos(t)

		endpoints, err := NewEndpoints("https://api.example.com")
		require.NoError(t, err)
		svc := NewTokenService(creds, endpoints, nil)

		_, err = svc.Refresh(ctx)
		assert.ErrorIs(t, err, models.ErrNoCredentials)
	})

	t.Run("server rejection leaves stored credentials untouched", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "refresh token revoked", http.StatusUnauthorized)
		}))
		defer server.Close()

		_, creds := setupTestRepos(t)
		_, err := creds.DeviceID(ctx)
		require.NoError(t, err)
		require.NoError(t, creds.SaveTokens(ctx, "old-access", "refresh-1"))

		endpoints, err := NewEndpoints(server.URL)
		require.NoError(t, err)
		svc := NewTokenService(creds, endpoints, nil)

		_, err = svc.Refresh(ctx)
		assert.ErrorIs(t, err, models.ErrRefreshFailed)

		stored, err := creds.Credentials(ctx)
		require.NoError(t, err)
		assert.Equal(t, "old-access", stored.AccessToken)
		assert.Equal(t, "refresh-1", stored.RefreshToken)
	})

	t.Run("a response missing the token pair is a protocol error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"tokens":{"accessToken":"only-access"}}`)
		}))
		defer server.Close()

		_, creds := setupTestRepos(t)
		_, err := creds.DeviceID(ctx)
		require.NoError(t, err)
		require.NoError(t, creds.SaveTokens(ctx, "", "refresh-1"))

		endpoints, err := NewEndpoints(server.URL)
		require.NoError(t, err)
		svc := NewTokenService(creds, endpoints, nil)

		_, err = svc.Refresh(ctx)
		assert.ErrorIs(t, err, models.ErrRefreshFailed)
	})

	t.Run("concurrent callers share one in-flight exchange", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			time.Sleep(200 * time.Millisecond)
			writeTokenPair(w, "single-flight-access", "refresh-2")
		}))
		defer server.Close()

		_, creds := setupTestRepos(t)
		_, err := creds.DeviceID(ctx)
		require.NoError(t, err)
		require.NoError(t, creds.SaveTokens(ctx, "", "refresh-1"))

		endpoints, err := NewEndpoints(server.URL)
		require.NoError(t, err)
		svc := NewTokenService(creds, endpoints, nil)

		const callers = 10
		tokens := make([]string, callers)
		errs := make([]error, callers)

		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tokens[i], errs[i] = svc.Refresh(ctx)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load())
		for i := 0; i < callers; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, "single-flight-access", tokens[i])
		}
	})

	t.Run("a waiting caller respects context cancellation", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
			writeTokenPair(w, "late-access", "refresh-2")
		}))
		defer server.Close()
		defer close(release)

		_, creds := setupTestRepos(t)
		_, err := creds.DeviceID(ctx)
		require.NoError(t, err)
		require.NoError(t, creds.SaveTokens(ctx, "", "refresh-1"))

		endpoints, err := NewEndpoints(server.URL)
		require.NoError(t, err)
		svc := NewTokenService(creds, endpoints, &http.Client{Timeout: 5 * time.Second})

		go svc.Refresh(ctx) //nolint:errcheck // owner of the in-flight exchange

		// Give the owner time to take the in-flight slot.
		time.Sleep(50 * time.Millisecond)

		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		_, err = svc.Refresh(waitCtx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
