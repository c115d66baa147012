package models

import "errors"

var (
	// ErrConnectionFailure means the graph store could not be reached.
	ErrConnectionFailure = errors.New("graph store unreachable")
	// ErrNotFound means a scenario operand (node or edge) does not exist.
	ErrNotFound = errors.New("not found")
	// ErrMalformedSnapshot means a diff input is missing, empty or undecodable.
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	// ErrPipelineBusy means another mutation pipeline holds the lock.
	ErrPipelineBusy = errors.New("scenario pipeline busy")
	// ErrInvalidScenario means scenario parameters were rejected before touching the graph.
	ErrInvalidScenario = errors.New("invalid scenario")
)
