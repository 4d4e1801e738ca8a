package plugins

import (
	"errors"
	"fmt"
)

var (
	ErrRepositoryNotFound    = errors.New("repository not found")
	ErrRepositoryExists      = errors.New("repository already exists")
	ErrRepositoryInvalid     = errors.New("invalid repository definition")
	ErrRepositoryUnreachable = errors.New("repository validation failed")
	ErrRepositoryDisabled    = errors.New("repository is disabled")
	ErrOfficialRepository    = errors.New("official repository cannot be modified")
	ErrNoRepositories        = errors.New("no repositories configured")
	ErrUpdateNotFound        = errors.New("no update available for plugin")
	ErrInvalidSettings       = errors.New("invalid update settings")
	ErrResponseTooLarge      = errors.New("repository response too large")
)

// OperationError is returned by every manager operation. Operation carries
// the same tag published in the matching error event.
type OperationError struct {
	Operation string
	Subject   string
	Err       error
}

func (e *OperationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Operation, e.Subject, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func opError(operation, subject string, err error) *OperationError {
	var existing *OperationError
	if errors.As(err, &existing) && existing.Operation == operation && existing.Subject == subject {
		return existing
	}
	return &OperationError{Operation: operation, Subject: subject, Err: err}
}
