package drivesync

import "errors"

var (
	ErrNotConfigured  = errors.New("google drive is not configured")
	ErrNotInitialized = errors.New("google drive service not initialized")
	ErrSyncFailed     = errors.New("drive sync failed")
)
