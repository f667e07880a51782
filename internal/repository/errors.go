package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrInvalidArgument indicates the caller supplied a malformed key or payload.
var ErrInvalidArgument = errors.New("repository: invalid argument")
