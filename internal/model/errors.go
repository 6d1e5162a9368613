// File path: internal/model/errors.go
package model

import "errors"

// Error taxonomy shared by the service packages and mapped to HTTP status
// codes by the API layer.
var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrAlreadyExists = errors.New("already exists")
)
