package tableio

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/freesam77/airtable-clone-sub001/app/interfaces"

	"github.com/ulikunitz/xz"
)

// Snapshot preserves writes that never reached the server, written when the
// application is forced to close while the queue is non-empty. It exists for
// recovery and support, not as a durability guarantee.
type Snapshot struct {
	TableID   string         `json:"tableId"`
	CreatedAt time.Time      `json:"createdAt"`
	Pending   []PendingWrite `json:"pending"`
}

// PendingWrite is one unpersisted cell write.
type PendingWrite struct {
	RowID    string  `json:"rowId"`
	ColumnID string  `json:"columnId"`
	Value    *string `json:"value"`
}

// WriteSnapshot serializes the pending operations to an xz-compressed JSON
// file at path.
func WriteSnapshot(path, tableID string, ops []interfaces.CellUpdate) error {
	if path == "" {
		return fmt.Errorf("snapshot path is empty")
	}
	snap := Snapshot{
		TableID:   tableID,
		CreatedAt: time.Now(),
		Pending:   make([]PendingWrite, 0, len(ops)),
	}
	for _, op := range ops {
		snap.Pending = append(snap.Pending, PendingWrite{
			RowID:    op.Address.RowID,
			ColumnID: op.Address.ColumnID,
			Value:    op.Value,
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer f.Close()

	w, err := xz.NewWriter(f)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		w.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads a snapshot written by WriteSnapshot.
func ReadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	r, err := xz.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create xz reader: %w", err)
	}
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// Updates converts the snapshot back to cell updates for re-enqueueing.
func (s *Snapshot) Updates() []interfaces.CellUpdate {
	out := make([]interfaces.CellUpdate, 0, len(s.Pending))
	for _, p := range s.Pending {
		out = append(out, interfaces.CellUpdate{
			Address: interfaces.CellAddress{RowID: p.RowID, ColumnID: p.ColumnID},
			Value:   p.Value,
		})
	}
	return out
}
