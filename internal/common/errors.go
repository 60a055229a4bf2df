// Package common defines sentinel errors shared by the storage layers.
// Callers should use errors.Is to match these values; concrete errors keep the
// underlying driver or I/O error wrapped.
package common

import "errors"

var (
	// Lookup errors. NotFound means "no rows/documents", never "backend unavailable".
	ErrorNotFound = errors.New("not found")

	// Write-path errors reported by the relational store.
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrConnectionFailure marks retryable backend availability problems.
	ErrConnectionFailure = errors.New("connection failure")

	// ErrAlreadyExists is returned when a target would be overwritten without permission.
	ErrAlreadyExists = errors.New("already exists")

	// Validation errors.
	ErrInvalidRecord = errors.New("invalid record")
	ErrInvalidConfig = errors.New("invalid config")
)
