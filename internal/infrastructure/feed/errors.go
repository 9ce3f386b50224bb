package feed

import "errors"

var (
	ErrConnectTimeout = errors.New("feed connection timeout")
	ErrAlreadyStarted = errors.New("feed connection already started")
	ErrStopped        = errors.New("feed connection stopped")
)
