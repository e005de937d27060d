package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/fieldclock/agent/internal/models"
)

// Credential store keys
const (
	keyDeviceID     = "device_id"
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
)

// CredentialRepository persists the device identity and token pair in the
// key/value credential table. Tokens are mutated only through the credential
// coordinator.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new CredentialRepository
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// DeviceID returns the persisted device identity, generating and storing one
// on first use. The id is stable across logins for the lifetime of the store.
func (r *CredentialRepository) DeviceID(ctx context.Context) (string, error) {
	id, err := r.get(ctx, keyDeviceID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	id = uuid.New().String()
	if err := r.set(ctx, keyDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}

// Credentials returns the stored device id and token pair. Absent values are
// empty strings; no value is created as a side effect.
func (r *CredentialRepository) Credentials(ctx context.Context) (*models.DeviceCredentials, error) {
	deviceID, err := r.get(ctx, keyDeviceID)
	if err != nil {
		return nil, err
	}
	accessToken, err := r.get(ctx, keyAccessToken)
	if err != nil {
		return nil, err
	}
	refreshToken, err := r.get(ctx, keyRefreshToken)
	if err != nil {
		return nil, err
	}

	return &models.DeviceCredentials{
		DeviceID:     deviceID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// SaveTokens stores a new access token and rotates the refresh token in one
// transaction, so a crash cannot leave a mismatched pair.
func (r *CredentialRepository) SaveTokens(ctx context.Context, accessToken, refreshToken string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for key, value := range map[string]string{
		keyAccessToken:  accessToken,
		keyRefreshToken: refreshToken,
	} {
		if _, err := tx.ExecContext(ctx, upsertQuery, key, value, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SetAccessToken stores just the access token, leaving the refresh token as is.
func (r *CredentialRepository) SetAccessToken(ctx context.Context, token string) error {
	return r.set(ctx, keyAccessToken, token)
}

// ClearAccessToken drops the cached access token, forcing a refresh on the
// next sync pass. Used by the host on logout or when a token is known stale.
func (r *CredentialRepository) ClearAccessToken(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM device_credentials WHERE key = ?`, keyAccessToken)
	return err
}

const upsertQuery = `INSERT INTO device_credentials (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT (key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

func (r *CredentialRepository) get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM device_credentials WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (r *CredentialRepository) set(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, upsertQuery, key, value, now)
	return err
}
