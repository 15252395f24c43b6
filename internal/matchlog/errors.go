package matchlog

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyLog    = errors.New("match log is empty")
	ErrInvalidJSON = errors.New("match log is not valid JSON")
)

// StageError names the pipeline stage and the log key that stopped it
type StageError struct {
	Stage string
	Key   string
	Err   error
}

func (e *StageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: key %q: %v", e.Stage, e.Key, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
