package domain

import "errors"

var (
	ErrDuplicateEntity = errors.New("duplicate entity")
	ErrNotPersisted    = errors.New("entity not persisted")
	ErrNotFound        = errors.New("entity not found")
	ErrCannotResign    = errors.New("folder cannot be resigned")
	ErrReadOnly        = errors.New("folder is read-only")
)
