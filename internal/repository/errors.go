package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrDuplicate indicates a unique constraint rejected a write. This is
// the authoritative duplicate signal; pre-checks are advisory only.
var ErrDuplicate = errors.New("repository: duplicate key")

// ErrVersionConflict indicates a version-conditioned write matched no
// row because a concurrent writer advanced the version first.
var ErrVersionConflict = errors.New("repository: version conflict")
