package smartnotify

import "errors"

var (
	ErrInvalidConfig  = errors.New("invalid notification engine config")
	ErrInvalidModel   = errors.New("invalid priority model")
	ErrInvalidRequest = errors.New("invalid notification request")
	ErrStateNotLoaded = errors.New("engine state not loaded")
	ErrStateLoad      = errors.New("failed to load engine state")
	ErrFallbackFailed = errors.New("failed to create fallback notification")

	ErrLockNotAcquired = errors.New("admission lock not acquired")
	ErrLockNotHeld     = errors.New("admission lock not held")
)
