package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidDimensions  = fmt.Errorf("%w: width or height is required unless a preset or compress-only is set", ErrInvalidInput)
	ErrFileTooLarge       = errors.New("file too large")
	ErrUnreadableImage    = errors.New("unreadable image")
	ErrStageFailure       = errors.New("stage failure")
	ErrPersistenceFailure = errors.New("persistence failure")
)
