package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrRateLimited           = errors.New("rate limited")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrLockHeld              = errors.New("lock already held")
	ErrInvalidAmount         = errors.New("invalid trade amount")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInvalidRateLimit      = errors.New("invalid advertised rate limit")
	ErrIntervalTooShort      = errors.New("interval below rate limit floor")
	ErrUnrecoverablePosition = errors.New("unrecoverable unbalanced position")
)
