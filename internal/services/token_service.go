package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/fieldclock/agent/internal/models"
	"github.com/fieldclock/agent/internal/repository"
)

// TokenService is the credential coordinator: it produces a usable access
// token for outbound calls and guarantees at most one refresh exchange is in
// flight at any time. Concurrent callers attach to the in-progress exchange
// and share its result instead of issuing a second refresh.
type TokenService struct {
	creds     *repository.CredentialRepository
	endpoints Endpoints
	client    *http.Client

	mu       sync.Mutex
	inflight *refreshCall
}

type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

// NewTokenService creates a new TokenService. A nil client gets a default
// with a 15 second timeout.
func NewTokenService(creds *repository.CredentialRepository, endpoints Endpoints, client *http.Client) *TokenService {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &TokenService{
		creds:     creds,
		endpoints: endpoints,
		client:    client,
	}
}

// AccessToken returns the cached access token if one is stored, refreshing
// otherwise. A token the server later rejects as expired is the caller's
// problem to handle (one Refresh and retry).
func (s *TokenService) AccessToken(ctx context.Context) (string, error) {
	stored, err := s.creds.Credentials(ctx)
	if err != nil {
		return "", fmt.Errorf("read credentials: %w", err)
	}
	if stored.HasAccessToken() {
		return stored.AccessToken, nil
	}
	return s.Refresh(ctx)
}

// Refresh performs a single-flight refresh exchange. If an exchange is
// already in progress the caller waits for it and receives the same result.
func (s *TokenService) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	if call := s.inflight; call != nil {
		s.mu.Unlock()
		select {
		case <-call.done:
			return call.token, call.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	s.inflight = call
	s.mu.Unlock()

	call.token, call.err = s.doRefresh(ctx)

	s.mu.Lock()
	s.inflight = nil
	s.mu.Unlock()
	close(call.done)

	return call.token, call.err
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	DeviceID     string `json:"deviceId"`
}

type refreshResponse struct {
	Tokens struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	} `json:"tokens"`
}

func (s *TokenService) doRefresh(ctx context.Context) (string, error) {
	stored, err := s.creds.Credentials(ctx)
	if err != nil {
		return "", fmt.Errorf("read credentials: %w", err)
	}
	if !stored.CanRefresh() {
		return "", models.ErrNoCredentials
	}

	body, err := json.Marshal(refreshRequest{
		RefreshToken: stored.RefreshToken,
		DeviceID:     stored.DeviceID,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoints.RefreshURL(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", models.ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d %s", models.ErrRefreshFailed, resp.StatusCode, string(detail))
	}

	var parsed refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: malformed response: %s", models.ErrRefreshFailed, err)
	}
	if parsed.Tokens.AccessToken == "" || parsed.Tokens.RefreshToken == "" {
		return "", fmt.Errorf("%w: response missing token pair", models.ErrRefreshFailed)
	}

	// Stored credentials are mutated only on a fully successful exchange.
	if err := s.creds.SaveTokens(ctx, parsed.Tokens.AccessToken, parsed.Tokens.RefreshToken); err != nil {
		return "", fmt.Errorf("persist tokens: %w", err)
	}

	return parsed.Tokens.AccessToken, nil
}
