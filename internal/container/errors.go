package container

import (
	"errors"
	"fmt"
)

// ErrMaxRetries reports that the container never became healthy within
// the configured retry budget.
var ErrMaxRetries = errors.New("max number of retries reached while waiting for database container to start")

const daemonHint = "check that the %s daemon is up-and-running"

// StartError reports a failure to start the container.
type StartError struct {
	Runtime string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("couldn't start database container; "+daemonHint, e.Runtime)
}

func (e *StartError) Unwrap() error { return e.Err }

// HealthCheckError reports a failure to probe container health.
type HealthCheckError struct {
	Runtime string
	Err     error
}

func (e *HealthCheckError) Error() string {
	return fmt.Sprintf("error while probing database container health; "+daemonHint, e.Runtime)
}

func (e *HealthCheckError) Unwrap() error { return e.Err }

// StopError reports a failure to stop the container.
type StopError struct {
	Runtime string
	Err     error
}

func (e *StopError) Error() string {
	return fmt.Sprintf("couldn't stop database container; "+daemonHint, e.Runtime)
}

func (e *StopError) Unwrap() error { return e.Err }

// RemoveError reports a failure to remove the container.
type RemoveError struct {
	Runtime string
	Err     error
}

func (e *RemoveError) Error() string {
	return fmt.Sprintf("couldn't clean up database container; "+daemonHint, e.Runtime)
}

func (e *RemoveError) Unwrap() error { return e.Err }
