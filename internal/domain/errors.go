package domain

import "errors"

// ErrUnauthorized means the platform rejected a token or login details, as
// opposed to failing to answer.
var ErrUnauthorized = errors.New("unauthorized")
