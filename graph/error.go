package graph

import "errors"

var (
	ErrNotConnected     = errors.New("the pin is not connected")
	ErrAlreadyConnected = errors.New("the pin is already connected")
	ErrTypeNotAccepted  = errors.New("the media type is not accepted")
	ErrInvalidDirection = errors.New("invalid pin direction")
	ErrNoInterface      = errors.New("the peer does not implement the required interface")
	ErrNotSupported     = errors.New("not supported")
	ErrInvalidArgument  = errors.New("invalid argument")
)
