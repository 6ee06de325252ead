package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the five failure classes. The typed errors below
// all match their sentinel through errors.Is.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrLifecycle      = errors.New("illegal engine state transition")
	ErrDownload       = errors.New("download failed")
	ErrExtraction     = errors.New("extraction failed")
	ErrStore          = errors.New("store operation failed")
)

// InvalidRequestError reports a request that fails construction-time
// validation; it never reaches a store.
type InvalidRequestError struct {
	URL    string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request %q: %s", e.URL, e.Reason)
}

func (e *InvalidRequestError) Unwrap() error { return ErrInvalidRequest }

// LifecycleError reports an engine operation attempted in the wrong state.
type LifecycleError struct {
	Op    string
	State string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("cannot %s while engine is %s", e.Op, e.State)
}

func (e *LifecycleError) Unwrap() error { return ErrLifecycle }

// DownloadError reports a transport failure or a non-200 status. The
// worker converts it into a FAILED state on the request.
type DownloadError struct {
	URL    string
	Status int
	Err    error
}

func (e *DownloadError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("download %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrDownload
}

// Is lets DownloadError match ErrDownload even when wrapping a transport
// cause.
func (e *DownloadError) Is(target error) bool { return target == ErrDownload }

// ExtractionError reports a selector, processor or collector failure
// while handling a response.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrExtraction
}

func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

// StoreError reports a backend I/O failure. The dispatcher logs it and
// keeps running; it is never fatal.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrStore
}

func (e *StoreError) Is(target error) bool { return target == ErrStore }
