// Package queue implements the persistent download queue: FIFO
// discovery-order processing of unique page IDs with retry accounting,
// metrics, crash-safe snapshots, and best-effort recovery.
package queue

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Source types for queue items.
const (
	SourceInitial   = "initial"
	SourceMacro     = "macro"
	SourceReference = "reference"
	SourceUser      = "user"
)

// Item statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Queue states.
const (
	StateEmpty       = "empty"
	StatePopulated   = "populated"
	StateProcessing  = "processing"
	StateDrained     = "drained"
	StateFailed      = "failed"
	StateInterrupted = "interrupted"
)

// ErrQueueFull is returned when adding an item would cross the size limit.
var ErrQueueFull = errors.New("queue full")

// DefaultMaxQueueSize bounds pending+processing items.
const DefaultMaxQueueSize = 10000

// DefaultPersistenceThreshold is the number of state changes between
// opportunistic snapshots.
const DefaultPersistenceThreshold = 50

// Item is one queued page download.
type Item struct {
	PageID             string `json:"pageId"`
	SourceType         string `json:"sourceType"`
	DiscoveryTimestamp int64  `json:"discoveryTimestamp"`
	RetryCount         int    `json:"retryCount"`
	ParentPageID       string `json:"parentPageId,omitempty"`
	Status             string `json:"status"`
	LastError          string `json:"lastError,omitempty"`
}

// Options configures a Queue.
type Options struct {
	SpaceKey             string
	MaxQueueSize         int
	MaxRetries           int
	PersistenceThreshold int
}

// Queue is a FIFO set of unique page IDs with a processed-set. All state is
// guarded by a single mutex; snapshots are taken on a clone so persistence
// never blocks producers.
type Queue struct {
	mu sync.Mutex

	spaceKey            string
	items               map[string]*Item
	order               []string
	processed           map[string]struct{}
	maxQueueSize        int
	maxRetries          int
	persistEvery        int
	changesSincePersist int
	interrupted         bool

	metrics *Metrics
}

// New creates an empty queue.
func New(opts Options) *Queue {
	maxSize := opts.MaxQueueSize
	if maxSize <= 0 {
		maxSize = DefaultMaxQueueSize
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	persistEvery := opts.PersistenceThreshold
	if persistEvery <= 0 {
		persistEvery = DefaultPersistenceThreshold
	}
	return &Queue{
		spaceKey:     opts.SpaceKey,
		items:        map[string]*Item{},
		order:        []string{},
		processed:    map[string]struct{}{},
		maxQueueSize: maxSize,
		maxRetries:   maxRetries,
		persistEvery: persistEvery,
		metrics:      newMetrics(),
	}
}

// SpaceKey returns the space the queue belongs to.
func (q *Queue) SpaceKey() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.spaceKey
}

// Add enqueues an item. It returns false when the page is already queued or
// already processed. Crossing the size limit returns ErrQueueFull.
func (q *Queue) Add(item Item) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.addLocked(item)
}

// AddBatch enqueues several items, returning the number actually added. The
// batch stops at the first ErrQueueFull.
func (q *Queue) AddBatch(items []Item) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	added := 0
	for _, item := range items {
		ok, err := q.addLocked(item)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

func (q *Queue) addLocked(item Item) (bool, error) {
	if item.PageID == "" {
		return false, errors.New("queue item requires a page ID")
	}
	if _, done := q.processed[item.PageID]; done {
		return false, nil
	}
	if _, exists := q.items[item.PageID]; exists {
		return false, nil
	}
	if q.activeCountLocked() >= q.maxQueueSize {
		return false, fmt.Errorf("%w: %d items", ErrQueueFull, q.maxQueueSize)
	}

	if item.DiscoveryTimestamp == 0 {
		item.DiscoveryTimestamp = time.Now().UnixMilli()
	}
	if item.Status == "" {
		item.Status = StatusPending
	}
	if item.SourceType == "" {
		item.SourceType = SourceReference
	}

	stored := item
	q.items[item.PageID] = &stored
	q.order = append(q.order, item.PageID)
	q.metrics.recordDiscovered(q.activeCountLocked())
	q.changesSincePersist++
	return true, nil
}

// Next returns the oldest pending item and atomically marks it processing.
// FIFO is on discovery timestamp with insertion order as the tie-break, which
// the order slice preserves by construction. Returns false when no pending
// item exists.
func (q *Queue) Next() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range q.order {
		item, ok := q.items[id]
		if !ok || item.Status != StatusPending {
			continue
		}
		item.Status = StatusProcessing
		q.changesSincePersist++
		return *item, true
	}
	return Item{}, false
}

// MarkProcessed transitions a processing item to completed and adds it to the
// processed set.
func (q *Queue) MarkProcessed(pageID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[pageID]
	if !ok {
		return fmt.Errorf("unknown queue item %s", pageID)
	}
	item.Status = StatusCompleted
	q.processed[pageID] = struct{}{}
	q.removeFromOrderLocked(pageID)
	q.metrics.recordProcessed(q.activeCountLocked())
	q.changesSincePersist++
	return nil
}

// MarkFailed records a failure. Retryable failures under the retry budget are
// re-queued at the tail as pending; everything else becomes terminal.
func (q *Queue) MarkFailed(pageID string, cause error, retryable bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[pageID]
	if !ok {
		return fmt.Errorf("unknown queue item %s", pageID)
	}

	item.RetryCount++
	if cause != nil {
		item.LastError = cause.Error()
	}

	if retryable && item.RetryCount < q.maxRetries {
		item.Status = StatusPending
		q.removeFromOrderLocked(pageID)
		q.order = append(q.order, pageID)
		q.metrics.recordRetry()
	} else {
		item.Status = StatusFailed
		q.removeFromOrderLocked(pageID)
		q.metrics.recordFailed(q.activeCountLocked())
	}
	q.changesSincePersist++
	return nil
}

// Requeue returns a processing item to pending without charging its retry
// budget. Items in any other status are left alone.
func (q *Queue) Requeue(pageID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[pageID]
	if !ok || item.Status != StatusProcessing {
		return
	}
	item.Status = StatusPending
	q.changesSincePersist++
}

// IsProcessed reports whether a page ID is in the processed set.
func (q *Queue) IsProcessed(pageID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, done := q.processed[pageID]
	return done
}

// Contains reports whether a page ID is queued or processed.
func (q *Queue) Contains(pageID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, done := q.processed[pageID]; done {
		return true
	}
	_, exists := q.items[pageID]
	return exists
}

// Size returns the number of pending and processing items.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.activeCountLocked()
}

// IsEmpty reports whether no pending or processing items remain.
func (q *Queue) IsEmpty() bool {
	return q.Size() == 0
}

// ProcessedCount returns the size of the processed set.
func (q *Queue) ProcessedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.processed)
}

// FailedItems returns terminally failed items sorted by discovery order.
func (q *Queue) FailedItems() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := []Item{}
	for _, item := range q.items {
		if item.Status == StatusFailed {
			out = append(out, *item)
		}
	}
	sortItems(out)
	return out
}

// MarkInterrupted flags the queue so its reported state reflects a cancelled
// run. Processing items fall back to pending so a resume picks them up.
func (q *Queue) MarkInterrupted() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.interrupted = true
	for _, item := range q.items {
		if item.Status == StatusProcessing {
			item.Status = StatusPending
		}
	}
	q.changesSincePersist++
}

// State reports the queue lifecycle state.
func (q *Queue) State() string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.interrupted {
		return StateInterrupted
	}

	pending, processing, failed := 0, 0, 0
	for _, item := range q.items {
		switch item.Status {
		case StatusPending:
			pending++
		case StatusProcessing:
			processing++
		case StatusFailed:
			failed++
		}
	}

	switch {
	case processing > 0:
		return StateProcessing
	case pending > 0:
		return StatePopulated
	case len(q.processed) > 0:
		return StateDrained
	case failed > 0 && len(q.items) == failed:
		return StateFailed
	default:
		return StateEmpty
	}
}

// GetMetrics returns a copy of the current metrics.
func (q *Queue) GetMetrics() MetricsSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.metrics.snapshot(q.activeCountLocked())
}

// ShouldPersist reports whether enough state changes accumulated since the
// last snapshot.
func (q *Queue) ShouldPersist() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.changesSincePersist >= q.persistEvery
}

func (q *Queue) activeCountLocked() int {
	n := 0
	for _, item := range q.items {
		if item.Status == StatusPending || item.Status == StatusProcessing {
			n++
		}
	}
	return n
}

func (q *Queue) removeFromOrderLocked(pageID string) {
	for i, id := range q.order {
		if id == pageID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}

func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].DiscoveryTimestamp != items[j].DiscoveryTimestamp {
			return items[i].DiscoveryTimestamp < items[j].DiscoveryTimestamp
		}
		return items[i].PageID < items[j].PageID
	})
}
