package domain

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrItemNotFound    = errors.New("line item not found")
	ErrInvalidArgument = errors.New("invalid argument")
)
