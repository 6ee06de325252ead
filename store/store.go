// Package store persists the crawl frontier and the lifecycle state of
// every request that passed through the engine.
//
// All mutating calls are made from the engine's dispatcher goroutine, so
// implementations may be written with single-threaded reasoning; the
// in-memory backend still carries a mutex to keep Stats readable from
// anywhere.
package store

import (
	"fmt"

	"github.com/go-octopus/octopus/types"
)

// Store is the frontier contract every backend implements.
type Store interface {
	// Put inserts or updates a request and marks it WAITING. An error
	// means rejection; the engine logs it and drops the request.
	Put(r *types.Request) error

	// Get atomically picks the highest-priority WAITING request,
	// transitions it to EXECUTING and returns it. It returns (nil, nil)
	// when the frontier is empty.
	Get() (*types.Request, error)

	// Exists reports whether the id is known to the store.
	Exists(id string) (bool, error)

	// UpdateState transitions a known request to COMPLETED, FAILED or
	// WAITING. Idempotent with respect to the target state.
	UpdateState(r *types.Request, s types.State, msg string) error

	// ReplyFailed moves every FAILED request back to WAITING and returns
	// how many were moved.
	ReplyFailed() (int, error)

	// Stats returns the lifecycle histogram.
	Stats() (*Stats, error)

	// Close releases backend resources.
	Close() error
}

// Stats is the lifecycle histogram of a store.
type Stats struct {
	All       int64
	Waiting   int64
	Executing int64
	Completed int64
	Failed    int64
}

func (s *Stats) String() string {
	return fmt.Sprintf("all=%d waiting=%d executing=%d completed=%d failed=%d",
		s.All, s.Waiting, s.Executing, s.Completed, s.Failed)
}
