package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrMalformedPage marks a feed page whose body does not have the
	// expected document shape.
	ErrMalformedPage = errors.New("malformed feed page")
)
