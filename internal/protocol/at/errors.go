package at

import "errors"

var (
	ErrUnparsable    = errors.New("at: unparsable command")
	ErrEmptyCommand  = errors.New("at: empty command")
	ErrFrameTooLarge = errors.New("at: frame too large")
	ErrInvalidResult = errors.New("at: invalid result")
)
