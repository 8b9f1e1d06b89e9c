package graph

import (
	"errors"
	"fmt"
)

// Reasons a connection attempt is rejected.
var (
	ErrSelfLoop             = errors.New("node cannot connect to itself")
	ErrDuplicateConnection  = errors.New("connection already exists")
	ErrTriggerTarget        = errors.New("trigger nodes have no input port")
	ErrUnknownNode          = errors.New("connection references an unknown node")
	ErrConnectionNotAllowed = errors.New("component does not accept this connection")
	ErrTooManyConnections   = errors.New("port connection limit reached")
)

// Document-level validation errors.
var (
	ErrDuplicateNodeID       = errors.New("duplicate node id")
	ErrDuplicateConnectionID = errors.New("duplicate connection id")
	ErrInvalidCategory       = errors.New("invalid node category")
	ErrNilElement            = errors.New("null entry in nodes or connections")
)

// RejectedError is returned by AddConnection when the graph is left unchanged.
type RejectedError struct {
	Source string
	Target string
	Err    error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("connection %s -> %s rejected: %v", e.Source, e.Target, e.Err)
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

// IsRejected reports whether err is a rejected connection attempt.
func IsRejected(err error) bool {
	var rejected *RejectedError

	return errors.As(err, &rejected)
}
