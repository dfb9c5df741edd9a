package coordinator

import (
	"fmt"

	"github.com/freesam77/airtable-clone-sub001/app/interfaces"

	"github.com/samber/lo"
)

// Cancellation removes queued operations whose target was invalidated by a
// later structural change. It runs at deletion time so a late-arriving write
// cannot resurrect data for a row the user just deleted.

// CancelCellUpdate removes any pending operation for the exact address.
// Returns the count removed (0 or 1 given the dedup invariant).
func (q *UpdateQueue) CancelCellUpdate(rowID, columnID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	addr := interfaces.CellAddress{RowID: q.resolve(rowID), ColumnID: q.resolve(columnID)}
	return q.rejectLocked(func(op *pendingOp) bool { return op.addr == addr })
}

// CancelRowUpdates removes every pending operation targeting the row, under
// either its temporary or its server-assigned identifier. The queue's
// remaining order for other rows is unchanged.
func (q *UpdateQueue) CancelRowUpdates(rowID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	resolved := q.resolve(rowID)
	removed := q.rejectLocked(func(op *pendingOp) bool {
		return op.addr.RowID == rowID || op.addr.RowID == resolved
	})
	if removed > 0 {
		q.log("debug", fmt.Sprintf("[QUEUE_CANCEL_ROW] Removed %d pending operations for row %s", removed, rowID))
	}
	return removed
}

// rejectLocked drops every queued op matching the predicate, preserving the
// order of the remainder. Caller holds q.mu.
func (q *UpdateQueue) rejectLocked(match func(*pendingOp) bool) int {
	before := len(q.ops)
	q.ops = lo.Reject(q.ops, func(op *pendingOp, _ int) bool {
		if match(op) {
			delete(q.index, op.addr)
			return true
		}
		return false
	})
	removed := before - len(q.ops)
	if removed > 0 {
		q.cond.Broadcast()
	}
	return removed
}
