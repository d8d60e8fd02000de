package util

import "errors"

// Error kinds returned by the services. Wrap them with fmt.Errorf("%w: ...") and
// match with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrForbidden    = errors.New("forbidden")
)

var ErrInvalidToken = errors.New("invalid token")
