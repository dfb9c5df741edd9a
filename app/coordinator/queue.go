package coordinator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/freesam77/airtable-clone-sub001/app/interfaces"

	"github.com/bep/debounce"
)

// ViewInvalidator is notified after a cell write lands so cached computed
// views of the table can be refreshed.
type ViewInvalidator interface {
	InvalidateTable(tableID string) int
}

// pendingOp is a queued cell write. At most one pendingOp exists per address;
// re-enqueuing an address replaces the value in place.
type pendingOp struct {
	addr  interfaces.CellAddress
	value *string
}

// UpdateQueue serializes and deduplicates cell writes to the persistence
// service. Ordering is FIFO by first enqueue time for distinct addresses and
// exactly one operation is in flight at any time, so writes to a fixed
// address are observed by the server in user edit order with intermediate
// values coalesced away.
type UpdateQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	ops   []*pendingOp
	index map[interfaces.CellAddress]*pendingOp

	running  bool // dispatch goroutine alive
	inflight bool // an operation is at the service, unresolved
	closed   bool

	tableID     string
	svc         interfaces.PersistenceService
	resolve     func(string) string // identity map consult, at read time
	invalidator ViewInvalidator
	logger      interfaces.Logger
	ctx         context.Context

	// settle timer: each enqueue re-arms the debouncer, whose callback kicks
	// the dispatch loop once edits stop arriving for the configured interval
	debounced func(func())
}

// QueueConfig configures an UpdateQueue.
type QueueConfig struct {
	TableID     string
	Service     interfaces.PersistenceService
	Resolve     func(string) string // nil means identity
	Invalidator ViewInvalidator     // optional
	Logger      interfaces.Logger   // optional
	Settle      time.Duration       // debounce interval, may be 0
}

// NewUpdateQueue creates a queue for one table session.
func NewUpdateQueue(cfg QueueConfig) *UpdateQueue {
	resolve := cfg.Resolve
	if resolve == nil {
		resolve = func(id string) string { return id }
	}
	q := &UpdateQueue{
		index:       make(map[interfaces.CellAddress]*pendingOp),
		tableID:     cfg.TableID,
		svc:         cfg.Service,
		resolve:     resolve,
		invalidator: cfg.Invalidator,
		logger:      cfg.Logger,
		ctx:         context.Background(),
		debounced:   debounce.New(cfg.Settle),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue records a cell write. Always succeeds synchronously. If an update
// for the same address is already pending its value is replaced in place, so
// a burst of edits to one cell produces at most one network call carrying
// the most recent value.
func (q *UpdateQueue) Enqueue(rowID, columnID string, value *string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	addr := interfaces.CellAddress{RowID: q.resolve(rowID), ColumnID: q.resolve(columnID)}
	if op, ok := q.index[addr]; ok {
		op.value = value
		q.log("debug", fmt.Sprintf("[QUEUE_COALESCE] Replaced pending value for %s", addr))
	} else {
		op := &pendingOp{addr: addr, value: value}
		q.ops = append(q.ops, op)
		q.index[addr] = op
		q.log("debug", fmt.Sprintf("[QUEUE_ENQUEUE] %s, pending: %d", addr, len(q.ops)))
	}
	q.mu.Unlock()

	q.debounced(q.kick)
}

// kick starts the dispatch goroutine if work is pending and none is running.
func (q *UpdateQueue) kick() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.running || len(q.ops) == 0 {
		return
	}
	q.running = true
	go q.run()
}

// run drains the queue one operation at a time. Concurrency is deliberately
// 1: per-table single-writer serialization avoids write-write races between
// edits that could interleave at the server.
func (q *UpdateQueue) run() {
	for {
		q.mu.Lock()
		if q.closed || len(q.ops) == 0 {
			q.running = false
			q.cond.Broadcast()
			q.mu.Unlock()
			return
		}
		op := q.ops[0]
		q.ops = q.ops[1:]
		delete(q.index, op.addr)
		// Consult the identity map again immediately before dispatch: a remap
		// may have landed after this address was enqueued.
		addr := interfaces.CellAddress{RowID: q.resolve(op.addr.RowID), ColumnID: q.resolve(op.addr.ColumnID)}
		value := op.value
		q.inflight = true
		q.mu.Unlock()

		err := q.svc.UpsertCell(q.ctx, addr.RowID, addr.ColumnID, value)

		q.mu.Lock()
		q.inflight = false
		q.cond.Broadcast()
		q.mu.Unlock()

		switch {
		case err == nil:
			q.log("debug", fmt.Sprintf("[QUEUE_DISPATCH] Persisted %s", addr))
			if q.invalidator != nil {
				q.invalidator.InvalidateTable(q.tableID)
			}
		case interfaces.IsStaleTarget(err):
			// The row or column was deleted (or access revoked) while the
			// write was queued. Benign race: drop without retry.
			q.log("debug", fmt.Sprintf("[QUEUE_DROP_STALE] %s: %v", addr, err))
		default:
			// Transient failure: discard, do not abort the queue. The
			// optimistic view keeps the typed value and the dirty indicator
			// stays visible until the user re-edits.
			q.log("error", fmt.Sprintf("[QUEUE_WRITE_FAILED] %s: %v", addr, err))
		}
	}
}

// Flush dispatches immediately (bypassing the settle timer) and blocks until
// every queued and in-flight operation has resolved, or ctx expires.
func (q *UpdateQueue) Flush(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed && !q.running && len(q.ops) > 0 {
		q.running = true
		go q.run()
	}
	q.mu.Unlock()

	// Wake the cond waiter if the context expires.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			// Broadcast under q.mu so the wake-up cannot slip between the
			// waiter's ctx.Err() check and its cond.Wait().
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		case <-stop:
		}
	}()

	q.mu.Lock()
	defer q.mu.Unlock()
	for !q.closed && (len(q.ops) > 0 || q.inflight || q.running) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("flush interrupted with %d operations pending: %w", len(q.ops), err)
		}
		q.cond.Wait()
	}
	return nil
}

// IsProcessing reports whether an operation is currently dispatched to the
// persistence service and unresolved.
func (q *UpdateQueue) IsProcessing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inflight
}

// PendingCount returns the number of unresolved operations, including the
// one in flight if any.
func (q *UpdateQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.ops)
	if q.inflight {
		n++
	}
	return n
}

// PendingOperations returns a snapshot of queued operations in dispatch
// order. Used for the best-effort crash snapshot on forced close.
func (q *UpdateQueue) PendingOperations() []interfaces.CellUpdate {
	q.mu.Lock()
	defer q.mu.Unlock()
	snapshot := make([]interfaces.CellUpdate, 0, len(q.ops))
	for _, op := range q.ops {
		snapshot = append(snapshot, interfaces.CellUpdate{Address: op.addr, Value: op.value})
	}
	return snapshot
}

// RewriteRowID rewrites every queued operation referencing oldID as its row
// to reference newID, preserving queue order. If a rewritten address collides
// with an address already queued, the two entries merge: the earlier position
// is kept and the later entry's value wins, matching the per-address
// deduplication rule. Returns the number of operations rewritten.
func (q *UpdateQueue) RewriteRowID(oldID, newID string) int {
	return q.rewriteAddresses(oldID, newID, func(addr *interfaces.CellAddress) *string {
		return &addr.RowID
	})
}

// RewriteColumnID is RewriteRowID for the column component of queued
// addresses, with the same ordering and collision-merge semantics. Invoked
// when a speculative column is acknowledged with a server id while edits
// typed into it are still pending.
func (q *UpdateQueue) RewriteColumnID(oldID, newID string) int {
	return q.rewriteAddresses(oldID, newID, func(addr *interfaces.CellAddress) *string {
		return &addr.ColumnID
	})
}

func (q *UpdateQueue) rewriteAddresses(oldID, newID string, component func(*interfaces.CellAddress) *string) int {
	if oldID == "" || newID == "" || oldID == newID {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	rewrittenCount := 0
	rewritten := make([]*pendingOp, 0, len(q.ops))
	index := make(map[interfaces.CellAddress]*pendingOp, len(q.ops))
	for _, op := range q.ops {
		addr := op.addr
		if field := component(&addr); *field == oldID {
			*field = newID
			rewrittenCount++
		}
		if existing, ok := index[addr]; ok {
			existing.value = op.value
			continue
		}
		op.addr = addr
		rewritten = append(rewritten, op)
		index[addr] = op
	}
	q.ops = rewritten
	q.index = index
	if rewrittenCount > 0 {
		q.log("debug", fmt.Sprintf("[QUEUE_REMAP] Rewrote %d pending operations %s -> %s", rewrittenCount, oldID, newID))
	}
	return rewrittenCount
}

// Close stops the queue and discards anything still pending. Used when the
// owning table session is switched away or torn down; no cross-table leakage.
func (q *UpdateQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	if len(q.ops) > 0 {
		q.log("warning", fmt.Sprintf("[QUEUE_CLOSE] Discarding %d pending operations for table %s", len(q.ops), q.tableID))
	}
	q.ops = nil
	q.index = make(map[interfaces.CellAddress]*pendingOp)
	q.cond.Broadcast()
}

func (q *UpdateQueue) log(level, message string) {
	if q.logger != nil {
		q.logger.Log(level, message)
		return
	}
	log.Printf("[%s] %s", level, message)
}
