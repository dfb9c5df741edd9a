// Package coordinator implements the client-side Write Coordinator: the
// mutation queue, the identifier remapper, the cancellation controller, and
// the facade that drives optimistic patches against the persistence service.
// One Coordinator exists per open table; switching tables closes it.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/freesam77/airtable-clone-sub001/app/history"
	"github.com/freesam77/airtable-clone-sub001/app/interfaces"
	"github.com/freesam77/airtable-clone-sub001/app/table"
)

// Config assembles a Coordinator.
type Config struct {
	TableID      string
	Service      interfaces.PersistenceService
	View         *table.View
	Logger       interfaces.Logger
	Invalidator  ViewInvalidator
	Settle       time.Duration
	UndoCapacity int
}

// Coordinator owns the pending-operation set, the identity map, the
// optimistic view, and the undo history of one open table. All view access
// goes through its mutex, preserving the single-writer discipline.
type Coordinator struct {
	mu      sync.Mutex
	tableID string
	svc     interfaces.PersistenceService
	view    *table.View
	patcher *table.Patcher
	queue   *UpdateQueue
	ids     *IdentityMap
	history *history.Stack
	logger  interfaces.Logger
	tokens  map[string]*table.RollbackToken
	closed  bool
}

// New creates a coordinator for one table session.
func New(cfg Config) *Coordinator {
	ids := NewIdentityMap()
	c := &Coordinator{
		tableID: cfg.TableID,
		svc:     cfg.Service,
		view:    cfg.View,
		patcher: table.NewPatcher(cfg.View),
		ids:     ids,
		history: history.NewStack(cfg.UndoCapacity),
		logger:  cfg.Logger,
		tokens:  make(map[string]*table.RollbackToken),
	}
	c.queue = NewUpdateQueue(QueueConfig{
		TableID:     cfg.TableID,
		Service:     cfg.Service,
		Resolve:     ids.Resolve,
		Invalidator: cfg.Invalidator,
		Logger:      cfg.Logger,
		Settle:      cfg.Settle,
	})
	return c
}

// TableID returns the table this coordinator owns.
func (c *Coordinator) TableID() string { return c.tableID }

// ApplyCellEdit patches the optimistic view synchronously, records a
// single-change undo step, and hands the write to the update queue.
func (c *Coordinator) ApplyCellEdit(rowID, columnID string, value *string) error {
	changes, err := c.applyChanges([]interfaces.CellUpdate{{
		Address: interfaces.CellAddress{RowID: rowID, ColumnID: columnID},
		Value:   value,
	}})
	if err != nil {
		return err
	}
	c.history.PushStep(changes)
	return nil
}

// ApplyCellEdits patches and enqueues a batch of edits (a paste, a fill) as
// one atomic undo step.
func (c *Coordinator) ApplyCellEdits(updates []interfaces.CellUpdate) error {
	changes, err := c.applyChanges(updates)
	if err != nil {
		return err
	}
	c.history.PushStep(changes)
	return nil
}

// applyChanges patches the view and enqueues each update, returning the
// reversible change records. Updates that target a missing cell are skipped
// with a log line rather than failing the whole batch.
func (c *Coordinator) applyChanges(updates []interfaces.CellUpdate) ([]interfaces.CellHistoryChange, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("coordinator for table %s is closed", c.tableID)
	}
	changes := make([]interfaces.CellHistoryChange, 0, len(updates))
	for _, u := range updates {
		rowID := c.ids.Resolve(u.Address.RowID)
		columnID := c.ids.Resolve(u.Address.ColumnID)
		previous, err := c.view.SetCellValue(rowID, columnID, u.Value)
		if err != nil {
			c.log("warning", fmt.Sprintf("[COORD_EDIT_SKIP] %s: %v", u.Address, err))
			continue
		}
		changes = append(changes, interfaces.CellHistoryChange{
			RowID:    rowID,
			ColumnID: columnID,
			Previous: previous,
			Next:     u.Value,
		})
	}
	c.mu.Unlock()

	if len(changes) == 0 && len(updates) > 0 {
		return nil, fmt.Errorf("no updates applied")
	}
	for _, ch := range changes {
		c.queue.Enqueue(ch.RowID, ch.ColumnID, ch.Next)
	}
	return changes, nil
}

// Undo pops the most recent step and replays its previous values, in
// original order, through the view and the queue. Returns false when there
// is nothing to undo.
func (c *Coordinator) Undo() bool {
	step, ok := c.history.PopUndoStep()
	if !ok {
		return false
	}
	c.replayStep(step, false)
	return true
}

// Redo mirrors Undo with the step's next values.
func (c *Coordinator) Redo() bool {
	step, ok := c.history.PopRedoStep()
	if !ok {
		return false
	}
	c.replayStep(step, true)
	return true
}

// CanUndo reports whether an undo step is available.
func (c *Coordinator) CanUndo() bool { return c.history.CanUndo() }

// CanRedo reports whether a redo step is available.
func (c *Coordinator) CanRedo() bool { return c.history.CanRedo() }

func (c *Coordinator) replayStep(step history.Step, forward bool) {
	c.mu.Lock()
	type queued struct {
		rowID, columnID string
		value           *string
	}
	writes := make([]queued, 0, len(step.Changes))
	for _, ch := range step.Changes {
		value := ch.Previous
		if forward {
			value = ch.Next
		}
		rowID := c.ids.Resolve(ch.RowID)
		columnID := c.ids.Resolve(ch.ColumnID)
		if _, err := c.view.SetCellValue(rowID, columnID, value); err != nil {
			// The row or column was deleted since the step was recorded;
			// nothing to restore for this change.
			c.log("debug", fmt.Sprintf("[COORD_REPLAY_SKIP] %s/%s: %v", rowID, columnID, err))
			continue
		}
		writes = append(writes, queued{rowID: rowID, columnID: columnID, value: value})
	}
	c.mu.Unlock()
	for _, w := range writes {
		c.queue.Enqueue(w.rowID, w.columnID, w.value)
	}
}

// Remap records tempID -> realID and rewrites every queued operation still
// referencing the temporary id. Idempotent; no-op when either id is empty or
// they are equal.
func (c *Coordinator) Remap(tempID, realID string) {
	if !c.ids.Record(tempID, realID) {
		return
	}
	n := c.queue.RewriteRowID(tempID, realID)
	c.log("info", fmt.Sprintf("[COORD_REMAP] %s -> %s (%d queued operations rewritten)", tempID, realID, n))
}

// RemapColumn is Remap for column ids: it records the mapping and rewrites
// the column component of every queued operation still carrying tempID.
func (c *Coordinator) RemapColumn(tempID, realID string) {
	if !c.ids.Record(tempID, realID) {
		return
	}
	n := c.queue.RewriteColumnID(tempID, realID)
	c.log("info", fmt.Sprintf("[COORD_REMAP] %s -> %s (%d queued operations rewritten)", tempID, realID, n))
}

// EnqueueCellEdit hands a write to the queue without touching the view or
// history. Used when the view was already patched by other means.
func (c *Coordinator) EnqueueCellEdit(rowID, columnID string, value *string) {
	c.queue.Enqueue(rowID, columnID, value)
}

// Flush drains the queue; used before navigation or unload.
func (c *Coordinator) Flush(ctx context.Context) error {
	return c.queue.Flush(ctx)
}

// IsDirty reports whether any operation is pending or in flight.
func (c *Coordinator) IsDirty() bool {
	return c.queue.PendingCount() > 0
}

// PendingCount returns the number of unresolved operations.
func (c *Coordinator) PendingCount() int {
	return c.queue.PendingCount()
}

// IsProcessing reports whether a write is currently at the service.
func (c *Coordinator) IsProcessing() bool {
	return c.queue.IsProcessing()
}

// CancelForDeletedRow removes every pending write for a row that no longer
// exists. Returns the count removed.
func (c *Coordinator) CancelForDeletedRow(rowID string) int {
	return c.queue.CancelRowUpdates(rowID)
}

// PendingOperations snapshots the queue for the crash dump on forced close.
func (c *Coordinator) PendingOperations() []interfaces.CellUpdate {
	return c.queue.PendingOperations()
}

// Snapshot returns deep copies of the optimistic view's columns and rows.
func (c *Coordinator) Snapshot() ([]interfaces.Column, []interfaces.Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.Snapshot()
}

// CellValue reads one cell from the optimistic view.
func (c *Coordinator) CellValue(rowID, columnID string) (*string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.CellValue(c.ids.Resolve(rowID), c.ids.Resolve(columnID))
}

// Close discards the queue and outstanding tokens. The coordinator must not
// be reused afterwards.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.tokens = make(map[string]*table.RollbackToken)
	c.mu.Unlock()
	c.queue.Close()
}

func (c *Coordinator) log(level, message string) {
	if c.logger != nil {
		c.logger.Log(level, message)
		return
	}
	log.Printf("[%s] %s", level, message)
}
