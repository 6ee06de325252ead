package octopus

import (
	"context"
	"maps"
	neturl "net/url"
	"strings"
	"time"

	"github.com/go-octopus/octopus/site"
	"github.com/go-octopus/octopus/types"
)

// idleTick bounds how long the dispatcher sleeps when there is nothing
// to do.
const idleTick = 50 * time.Millisecond

// dispatch is the engine's single scheduling loop and the only goroutine
// that touches the store. Each pass drains queued commands, then either
// hands the next waiting request to a worker or, once the frontier and
// the workers are both empty, runs the retry policy and shuts down.
func (e *Engine) dispatch() {
	defer close(e.dispatcherDone)
	for {
		ran := e.drainCommands()

		if e.State() >= StateStopping {
			if !ran && e.inFlight.Load() == 0 {
				// Workers push their final state update before they
				// decrement the in-flight count, so one closing drain
				// cannot miss anything.
				e.drainCommands()
				return
			}
			e.idle()
			continue
		}

		r, err := e.store.Get()
		if err != nil {
			e.logger.Warn("store get failed", "error", err)
			e.idle()
			continue
		}
		if r != nil {
			e.logger.Debug("dispatch request",
				"id", r.ID, "url", r.URL, "priority", r.Priority)
			e.admit()
			e.inFlight.Add(1)
			e.tasks <- r
			continue
		}

		if e.State() == StateStarted && !ran && e.inFlight.Load() == 0 {
			// A worker may have posted its final state update between the
			// drain at the top of this pass and the in-flight read. Same
			// closing drain as the stop path; anything caught means the
			// frontier may have refilled, so take another pass.
			if e.drainCommands() {
				continue
			}
			if e.retryFailed() {
				continue
			}
			e.logger.Info("frontier drained, stopping")
			go func() {
				if err := e.Stop(); err != nil {
					e.logger.Debug("stop raced an external stop", "error", err)
				}
			}()
			return
		}
		e.idle()
	}
}

// retryFailed runs one retry pass when passes remain, reporting whether
// any FAILED request moved back to the frontier.
func (e *Engine) retryFailed() bool {
	if e.retries <= 0 {
		return false
	}
	moved, err := e.store.ReplyFailed()
	if err != nil {
		e.logger.Warn("retry pass failed", "error", err)
	}
	e.retries--
	if moved > 0 {
		e.logger.Info("retrying failed requests", "count", moved, "passes_left", e.retries)
		e.metrics.RequestsRetried(moved)
		return true
	}
	return false
}

// admit takes an admission slot, running queued commands while it waits
// so workers posting results can never wedge the dispatcher.
func (e *Engine) admit() {
	for {
		select {
		case e.sem <- struct{}{}:
			return
		case cmd := <-e.commands:
			cmd()
		}
	}
}

// idle blocks until a command arrives or the tick elapses, running the
// command when one does.
func (e *Engine) idle() {
	timer := time.NewTimer(idleTick)
	defer timer.Stop()
	select {
	case cmd := <-e.commands:
		cmd()
	case <-timer.C:
	}
}

// drainCommands runs every queued command and reports whether any ran.
func (e *Engine) drainCommands() bool {
	ran := false
	for {
		select {
		case cmd := <-e.commands:
			cmd()
			ran = true
		default:
			return ran
		}
	}
}

// work consumes admitted requests until the task channel closes.
func (e *Engine) work() error {
	for r := range e.tasks {
		e.process(r)
	}
	return nil
}

// process runs one request end to end and posts the resulting state
// transition back to the dispatcher. Workers never touch the store.
func (e *Engine) process(r *types.Request) {
	e.metrics.WorkerStarted()
	defer func() {
		e.inFlight.Add(-1)
		<-e.sem
		e.metrics.WorkerDone()
	}()

	s := e.sites.Lookup(r.Host())
	if l := s.Limiter(); l != nil {
		l.Acquire()
	}

	if err := e.handle(r, s); err != nil {
		e.logger.Error("request failed", "id", r.ID, "url", r.URL, "error", err)
		e.metrics.RequestFailed()
		msg := err.Error()
		e.commands <- func() { e.updateState(r, types.StateFailed, msg) }
		return
	}
	e.logger.Debug("request completed", "id", r.ID, "url", r.URL)
	e.metrics.RequestCompleted()
	e.commands <- func() { e.updateState(r, types.StateCompleted, "ok") }
}

// handle downloads the request and runs every matching processor,
// enqueueing the requests they discover.
func (e *Engine) handle(r *types.Request, s *site.Site) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout())
	defer cancel()

	resp, err := e.downloader.Download(ctx, r, s)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return &types.DownloadError{URL: r.URL, Status: resp.Status}
	}

	for _, entry := range e.processors {
		if !entry.matcher(resp) {
			continue
		}
		children, err := entry.processor(resp)
		if err != nil {
			return err
		}
		for _, child := range children {
			if child == nil {
				continue
			}
			if err := e.enqueue(child, r); err != nil {
				e.logger.Warn("discovered request rejected", "url", child.URL, "error", err)
			}
		}
	}
	return nil
}

func (e *Engine) updateState(r *types.Request, s types.State, msg string) {
	if err := e.store.UpdateState(r, s, msg); err != nil {
		e.logger.Warn("store update failed", "id", r.ID, "state", s.String(), "error", err)
	}
}

// enqueue applies the parent overlay, fingerprints the request and posts
// the store insert onto the dispatcher. Requests deeper than the depth
// limit are dropped silently.
func (e *Engine) enqueue(r *types.Request, parent *types.Request) error {
	if parent != nil {
		r.Parent = parent.ID
		r.Depth = parent.Depth + 1
		if r.Inherit {
			r.Headers = overlayUnder(parent.Headers, r.Headers)
			r.Attrs = overlayUnder(parent.Attrs, r.Attrs)
		}
		if r.Header("Referer") == "" {
			if origin := urlOrigin(parent.URL); origin != "" {
				if r.Headers == nil {
					r.Headers = make(map[string]string, 1)
				}
				r.Headers["Referer"] = origin
			}
		}
		if !strings.HasPrefix(r.URL, "http") {
			r.URL = resolveURL(parent.URL, r.URL)
		}
		if e.maxDepth > 0 && r.Depth > e.maxDepth {
			e.logger.Debug("request beyond max depth dropped", "url", r.URL, "depth", r.Depth)
			return nil
		}
	}
	if err := r.Validate(); err != nil {
		return err
	}
	r.ID = types.Fingerprint(r.Method, r.URL, r.Queries, r.Data)
	r.State = types.StateWaiting
	r.Msg = "waiting"

	e.commands <- func() {
		if e.State() >= StateStopping {
			e.logger.Debug("late add dropped", "id", r.ID, "url", r.URL)
			return
		}
		if !r.Repeatable {
			exists, err := e.store.Exists(r.ID)
			if err != nil {
				e.logger.Warn("store exists check failed", "id", r.ID, "error", err)
				return
			}
			if exists {
				e.logger.Debug("duplicate request dropped", "id", r.ID, "url", r.URL)
				return
			}
		}
		if err := e.store.Put(r); err != nil {
			e.logger.Warn("store put failed", "id", r.ID, "url", r.URL, "error", err)
		}
	}
	return nil
}

// overlayUnder merges parent entries under child entries: the child wins
// on conflicts.
func overlayUnder[V any](parent, child map[string]V) map[string]V {
	if len(parent) == 0 {
		return child
	}
	merged := make(map[string]V, len(parent)+len(child))
	maps.Copy(merged, parent)
	maps.Copy(merged, child)
	return merged
}

// urlOrigin returns scheme://host for http and https URLs, else "".
func urlOrigin(rawURL string) string {
	u, err := neturl.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// resolveURL resolves ref against base, returning ref untouched when
// either side does not parse.
func resolveURL(base, ref string) string {
	b, err := neturl.Parse(base)
	if err != nil {
		return ref
	}
	u, err := neturl.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(u).String()
}
