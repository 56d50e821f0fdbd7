package model

import "errors"

// Sentinel kinds for model errors.
var (
	ErrInvalidWallet = errors.New("invalid wallet address")
)
