package engine

import "errors"

// Lifecycle controller error types.
var (
	ErrStudyNotInSetup     = errors.New("study is not in the setup phase")
	ErrStudyAlreadyRunning = errors.New("study already has an active runner")
)
