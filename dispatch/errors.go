package dispatch

import "errors"

var (
	// ErrCallNotFound is returned when the referenced call does not exist
	ErrCallNotFound = errors.New("callNotFound")
	// ErrUnitNotFound is returned when a unit lookup by id misses
	ErrUnitNotFound = errors.New("unitNotFound")
	// ErrUnitUpdateFailed is returned when a unit in a reassignment could not
	// be pointed at the call, unknown unit ids included
	ErrUnitUpdateFailed = errors.New("failed to assign unit")
)
