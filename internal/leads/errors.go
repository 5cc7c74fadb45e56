package leads

import "errors"

var (
	// ErrBotNotFound is returned when a bot profile does not exist
	ErrBotNotFound = errors.New("bot not found")

	// ErrMissingSession is returned when a record lacks a session id
	ErrMissingSession = errors.New("session id is required")

	// ErrMissingChat is returned when a presence record lacks a chat id
	ErrMissingChat = errors.New("chat id is required")
)
