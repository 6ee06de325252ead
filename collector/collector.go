// Package collector provides sinks for extracted results. A Collector
// receives every bound result from an extract processor; the file and
// database collectors are safe for concurrent use from multiple workers.
package collector

import (
	"log/slog"

	"github.com/go-octopus/octopus/extract"
)

// Collector consumes one bound result. A returned error fails the request
// that produced the result.
type Collector func(*extract.Result) error

// Log returns a collector that logs each result's values. A nil logger uses
// the default one.
func Log(logger *slog.Logger) Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return func(res *extract.Result) error {
		logger.Info("result collected", "values", res.ToMap())
		return nil
	}
}
