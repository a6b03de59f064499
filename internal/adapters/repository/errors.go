package repository

import "errors"

// Sentinel kinds for agenda store errors.
var (
	ErrNotFound     = errors.New("canonical event not found")
	ErrInvalidLimit = errors.New("invalid agenda limit")
)
