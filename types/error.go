package types

import "errors"

var (
	ErrWrongState         = errors.New("the operation is not allowed in the current state")
	ErrFlushing           = errors.New("flushing")
	ErrStateIntermediate  = errors.New("the state transition has not completed yet")
	ErrDecommitted        = errors.New("the allocator is decommitted")
	ErrTimeout            = errors.New("timeout")
	ErrClosed             = errors.New("closed")
	ErrNothingOutstanding = errors.New("no outstanding requests")
)
