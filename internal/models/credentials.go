package models

// DeviceCredentials is the secondary store content: a device identity
// generated once per install plus the current token pair. Owned by the
// credential coordinator; the sync engine only reads it.
type DeviceCredentials struct {
	DeviceID     string
	AccessToken  string
	RefreshToken string
}

// HasAccessToken reports whether a cached access token is available.
func (c *DeviceCredentials) HasAccessToken() bool {
	return c != nil && c.AccessToken != ""
}

// CanRefresh reports whether a refresh exchange is possible at all.
func (c *DeviceCredentials) CanRefresh() bool {
	return c != nil && c.RefreshToken != "" && c.DeviceID != ""
}

// Credential errors
var (
	ErrNoCredentials = AuthError{"no stored refresh token or device id"}
	ErrRefreshFailed = AuthError{"token refresh failed"}
)

type AuthError struct {
	Message string
}

func (e AuthError) Error() string {
	return e.Message
}
