package conversation

import "errors"

var (
	// ErrInvalidRequest wraps every turn input validation failure.
	ErrInvalidRequest = errors.New("conversation: invalid request")

	// ErrOracleUnavailable is returned once the completion oracle exhausted its retries.
	ErrOracleUnavailable = errors.New("conversation: completion oracle unavailable")
)
