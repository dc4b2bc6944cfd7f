package task

import "errors"

var (
	// ErrValidation wraps request problems found before a task exists.
	ErrValidation = errors.New("invalid request")
	// ErrResource wraps failures to create a task's log file or output directory.
	ErrResource      = errors.New("task resources unavailable")
	ErrDuplicateTask = errors.New("task already registered")
)
