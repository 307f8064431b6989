package study

import "errors"

// Study store error types.
var (
	ErrStudyNotFound  = errors.New("study not found")
	ErrUnknownPersona = errors.New("unknown persona template")
)
