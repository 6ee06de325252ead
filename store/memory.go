package store

import (
	"container/heap"
	"sync"

	"github.com/go-octopus/octopus/types"
)

// Memory is the in-process backend: a max-priority queue over ids plus a
// map holding the requests and one set per terminal-ish class. Put always
// accepts and overwrites. There is no persistence; a crash loses the
// frontier.
type Memory struct {
	mu        sync.Mutex
	pq        priorityQueue
	seq       uint64
	all       map[string]*types.Request
	executing map[string]struct{}
	completed map[string]struct{}
	failed    map[string]struct{}
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	m := &Memory{
		pq:        make(priorityQueue, 0, 1024),
		all:       make(map[string]*types.Request),
		executing: make(map[string]struct{}),
		completed: make(map[string]struct{}),
		failed:    make(map[string]struct{}),
	}
	heap.Init(&m.pq)
	return m
}

// Put stores the request under its id and queues it as WAITING. A re-put
// reclassifies the id: it leaves any executing/completed/failed set.
func (m *Memory) Put(r *types.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r.State = types.StateWaiting
	m.all[r.ID] = r
	delete(m.executing, r.ID)
	delete(m.completed, r.ID)
	delete(m.failed, r.ID)
	m.push(r.ID, r.Priority)
	return nil
}

// Get pops queue entries until one maps to a live request; stale entries
// whose id has left the map are skipped.
func (m *Memory) Get() (*types.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.pq.Len() > 0 {
		item := heap.Pop(&m.pq).(*pqItem)
		r, ok := m.all[item.id]
		if !ok {
			continue
		}
		if r.State != types.StateWaiting {
			// Stale entry from a requeue; the id was already dispatched
			// or finished under another entry.
			continue
		}
		r.State = types.StateExecuting
		m.executing[item.id] = struct{}{}
		return r, nil
	}
	return nil, nil
}

func (m *Memory) Exists(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.all[id]
	return ok, nil
}

// UpdateState reclassifies the request. WAITING re-queues it, which is
// how the retry pass feeds failures back into the frontier.
func (m *Memory) UpdateState(r *types.Request, s types.State, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r.State = s
	r.Msg = msg
	switch s {
	case types.StateCompleted:
		delete(m.executing, r.ID)
		m.completed[r.ID] = struct{}{}
	case types.StateFailed:
		delete(m.executing, r.ID)
		m.failed[r.ID] = struct{}{}
	case types.StateWaiting:
		delete(m.executing, r.ID)
		delete(m.failed, r.ID)
		m.push(r.ID, r.Priority)
	}
	return nil
}

func (m *Memory) ReplyFailed() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	moved := 0
	for id := range m.failed {
		r, ok := m.all[id]
		if !ok {
			continue
		}
		r.State = types.StateWaiting
		r.Msg = "retry"
		delete(m.failed, id)
		m.push(id, r.Priority)
		moved++
	}
	return moved, nil
}

// Stats derives the waiting count from the other classes, so stale queue
// entries never inflate it.
func (m *Memory) Stats() (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := int64(len(m.all))
	executing := int64(len(m.executing))
	completed := int64(len(m.completed))
	failed := int64(len(m.failed))
	return &Stats{
		All:       all,
		Waiting:   all - executing - completed - failed,
		Executing: executing,
		Completed: completed,
		Failed:    failed,
	}, nil
}

func (m *Memory) Close() error { return nil }

// push must be called with the mutex held.
func (m *Memory) push(id string, priority int) {
	m.seq++
	heap.Push(&m.pq, &pqItem{id: id, priority: priority, seq: m.seq})
}

// --- Priority Queue Implementation ---

type pqItem struct {
	id       string
	priority int
	seq      uint64
	index    int
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	// Higher priority first; FIFO within a priority.
	if pq[i].priority != pq[j].priority {
		return pq[i].priority > pq[j].priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	n := len(*pq)
	item := x.(*pqItem)
	item.index = n
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // GC
	item.index = -1
	*pq = old[:n-1]
	return item
}
