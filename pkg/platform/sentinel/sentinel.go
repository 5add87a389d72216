// Package sentinel holds the storage facts every store reports the same way.
// Services translate them into coded errors from pkg/domain-errors.
package sentinel

import "errors"

var (
	// ErrNotFound means no row exists for the key: a registration code, an
	// operator username or the settings row.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyUsed means a unique key is taken, typically a registration
	// code that lost an allocation race.
	ErrAlreadyUsed = errors.New("already used")
)
