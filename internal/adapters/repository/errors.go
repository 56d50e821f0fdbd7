package repository

import "errors"

// Sentinel kinds for record store errors.
var (
	ErrNotFound      = errors.New("participant row not found")
	ErrConflict      = errors.New("participant row already exists")
	ErrUnavailable   = errors.New("record store unavailable")
	ErrUnknownColumn = errors.New("unknown column")
	ErrInvalidTable  = errors.New("invalid table name")
)
