package analytics

import (
	"errors"
	"fmt"
)

var (
	// ErrUnexpectedStatus indicates the ingestion service answered with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected ingestion status")

	// ErrEncode indicates a batch could not be serialized.
	ErrEncode = errors.New("encode batch")

	// ErrClosed is returned by Flush after Close.
	ErrClosed = errors.New("analytics client closed")
)

// StatusError carries the status code of a rejected batch.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("ingestion returned HTTP %s", e.Status)
	}
	return fmt.Sprintf("ingestion returned HTTP %d", e.StatusCode)
}

// Is reports whether target is ErrUnexpectedStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}
