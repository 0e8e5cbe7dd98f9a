package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned when too many fetches are already pending.
	ErrQueueFull = errors.New("fetch_queue_full")
	// ErrClosed is returned for jobs still pending when the scheduler stops.
	ErrClosed = errors.New("fetch scheduler closed")
)

// FetchError is a transient failure of a single fetch: either a non-2xx
// status other than the blocking ones, or a transport error.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch_%d: %s", e.Status, e.URL)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
