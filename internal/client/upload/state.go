package upload

import (
	"errors"
	"fmt"
)

// Stage is the state of a Flow.
type Stage int

const (
	// Idle has nothing staged.
	Idle Stage = iota
	// Selecting has at least one staged file.
	Selecting
	// Uploading has a request in flight.
	Uploading
	// Done follows a finished upload; the result log holds its outcome.
	Done
)

func (s Stage) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selecting:
		return "selecting"
	case Uploading:
		return "uploading"
	case Done:
		return "done"
	}
	return "unknown"
}

// ErrInvalidTransition is wrapped when an operation is not allowed in the
// current stage.
var ErrInvalidTransition = errors.New("invalid upload state transition")

var transitions = map[Stage][]Stage{
	Idle:      {Selecting},
	Selecting: {Selecting, Idle, Uploading},
	Uploading: {Done},
	Done:      {Selecting, Idle},
}

func checkTransition(from, to Stage) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
