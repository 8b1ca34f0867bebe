package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// OAuth flow errors
	ErrProviderDenied = fmt.Errorf("authorization denied by provider")
	ErrStateMismatch  = fmt.Errorf("state parameter mismatch")
	ErrMissingCode    = fmt.Errorf("no authorization code received")
	ErrExchangeFailed = fmt.Errorf("code exchange failed")
	ErrRefreshFailed  = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken = fmt.Errorf("no refresh token available")

	// Session errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")

	// Gateway errors
	ErrUnauthorized = fmt.Errorf("unauthorized")
	ErrUpstream     = fmt.Errorf("upstream API error")

	// Playback errors
	ErrPlaybackFailed    = fmt.Errorf("playback failed")
	ErrDeviceUnavailable = fmt.Errorf("playback device unavailable")
	ErrSDKInit           = fmt.Errorf("playback SDK initialization failed")

	// Timeout errors
	ErrTimeout = fmt.Errorf("operation timed out")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
