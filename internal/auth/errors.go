package auth

import "errors"

var (
	// ErrAuth is returned when the token flow fails or yields no usable token.
	ErrAuth = errors.New("authentication failed")

	// ErrNotInitialized is returned when a token is requested before a token source is installed.
	ErrNotInitialized = errors.New("token client not initialized")

	// ErrNoToken is returned by TokenManager.Token when nothing is cached.
	ErrNoToken = errors.New("no access token")

	// ErrNoRefreshToken is returned when silent refresh is impossible because no refresh token was saved.
	ErrNoRefreshToken = errors.New("no refresh token stored")
)
