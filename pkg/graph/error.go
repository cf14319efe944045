package graph

import "errors"

var (
	// ErrUnknownTemplate is returned for traversal template names that
	// are not registered.
	ErrUnknownTemplate = errors.New("unknown traversal template")

	// ErrConnection is returned when the graph store is unreachable.
	ErrConnection = errors.New("graph store connection failed")
)
