package store

import "errors"

var (
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
	ErrWindowOverlap       = errors.New("availability window overlaps an existing window")
	ErrDuplicateService    = errors.New("service name already exists")
)
