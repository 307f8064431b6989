package types

import "errors"

// Validation errors shared across the API and study store.
var (
	ErrInvalidStudyName = errors.New("study name must be 1-200 characters")
	ErrInvalidTargetURL = errors.New("target URL must be 1-500 characters")
	ErrEmptyTaskList    = errors.New("task list cannot be empty")
	ErrEmptyPersonaList = errors.New("persona list cannot be empty")
	ErrInvalidTask      = errors.New("task description must be 1-500 characters")
)
