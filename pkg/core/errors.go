package core

import "errors"

// Configuration errors; no default is ever substituted for a missing entry
var (
	ErrUnknownDtype         = errors.New("unknown dtype")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)
