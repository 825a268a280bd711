package models

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidArgument = errors.New("invalid arguments")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrTerminalStatus  = errors.New("status is terminal")
)
