package core

import (
	"errors"
)

var (
	ErrInvalidReference = errors.New("invalid asset reference")
	ErrInvalidConfig    = errors.New("invalid configuration")
)
