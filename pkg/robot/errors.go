package robot

import "errors"

var (
	// ErrNotConnected is returned by operations that require a
	// connected robot.
	ErrNotConnected = errors.New("robot not connected")

	// ErrAlreadyConnected is returned by Connect on a connected robot.
	ErrAlreadyConnected = errors.New("robot already connected")
)
