package coordinator

import (
	"context"
	"fmt"

	"github.com/freesam77/airtable-clone-sub001/app/interfaces"
	"github.com/freesam77/airtable-clone-sub001/app/table"
)

// StructuralKind names an optimistic structural mutation.
type StructuralKind string

const (
	StructuralAddRow          StructuralKind = "add_row"
	StructuralDeleteRow       StructuralKind = "delete_row"
	StructuralAddColumn       StructuralKind = "add_column"
	StructuralDeleteColumn    StructuralKind = "delete_column"
	StructuralRenameColumn    StructuralKind = "rename_column"
	StructuralDuplicateRow    StructuralKind = "duplicate_row"
	StructuralDuplicateColumn StructuralKind = "duplicate_column"
)

// StructuralParams carries the arguments of a structural change request.
type StructuralParams struct {
	RowID      string                `json:"rowId,omitempty"`
	ColumnID   string                `json:"columnId,omitempty"`
	Name       string                `json:"name,omitempty"`
	ColumnType interfaces.ColumnType `json:"columnType,omitempty"`
	Values     map[string]*string    `json:"values,omitempty"`
}

// StructuralResult is returned by RequestStructuralChange: the rollback token
// id plus the speculative entity, if the change created one.
type StructuralResult struct {
	TokenID string             `json:"tokenId"`
	Row     *interfaces.Row    `json:"row,omitempty"`
	Column  *interfaces.Column `json:"column,omitempty"`
}

// AddRow inserts a speculative row with a temporary id, persists it, and on
// success swaps in the server row while keeping any values typed into the
// row while the request was in flight.
func (c *Coordinator) AddRow(ctx context.Context, values map[string]*string) (*interfaces.Row, error) {
	c.mu.Lock()
	row, tok := c.patcher.AddRow(values)
	c.mu.Unlock()

	server, err := c.svc.CreateRow(ctx, c.tableID, cellUpdatesFromValues(row.ID, values))
	if err != nil {
		c.rollback(tok)
		return nil, fmt.Errorf("create row: %w", err)
	}
	if err := c.commitRow(tok, server); err != nil {
		return nil, err
	}
	return server, nil
}

// DeleteRow cancels every pending write targeting the row, removes it from
// the view, and persists the deletion. A not-found response means the row is
// already gone server-side, which is the state we wanted.
func (c *Coordinator) DeleteRow(ctx context.Context, rowID string) error {
	resolved := c.ids.Resolve(rowID)
	if n := c.queue.CancelRowUpdates(rowID); n > 0 {
		c.log("info", fmt.Sprintf("[COORD_DELETE_ROW] cancelled %d pending writes for row %s", n, rowID))
	}

	c.mu.Lock()
	tok, err := c.patcher.DeleteRow(resolved)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if err := c.svc.DeleteRow(ctx, resolved); err != nil {
		if interfaces.IsNotFound(err) {
			return nil
		}
		c.rollback(tok)
		return fmt.Errorf("delete row %s: %w", resolved, err)
	}
	return nil
}

// AddColumn inserts a speculative column, materializing empty cells on every
// row, then persists it.
func (c *Coordinator) AddColumn(ctx context.Context, name string, columnType interfaces.ColumnType) (*interfaces.Column, error) {
	c.mu.Lock()
	_, tok := c.patcher.AddColumn(name, columnType)
	c.mu.Unlock()

	server, err := c.svc.CreateColumn(ctx, c.tableID, name, columnType)
	if err != nil {
		c.rollback(tok)
		return nil, fmt.Errorf("create column %q: %w", name, err)
	}
	if err := c.commitColumn(tok, server); err != nil {
		return nil, err
	}
	return server, nil
}

// DeleteColumn removes a column and its cells from the view, keeping the
// removed cells inside the rollback token so a failed request restores them
// exactly.
func (c *Coordinator) DeleteColumn(ctx context.Context, columnID string) error {
	resolved := c.ids.Resolve(columnID)

	c.mu.Lock()
	tok, err := c.patcher.DeleteColumn(resolved)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if err := c.svc.DeleteColumn(ctx, resolved); err != nil {
		if interfaces.IsNotFound(err) {
			return nil
		}
		c.rollback(tok)
		return fmt.Errorf("delete column %s: %w", resolved, err)
	}
	return nil
}

// RenameColumn applies the new name optimistically and persists it,
// restoring the previous name on failure.
func (c *Coordinator) RenameColumn(ctx context.Context, columnID, name string) error {
	resolved := c.ids.Resolve(columnID)

	c.mu.Lock()
	tok, err := c.patcher.RenameColumn(resolved, name)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	server, err := c.svc.RenameColumn(ctx, resolved, name)
	if err != nil {
		c.rollback(tok)
		return fmt.Errorf("rename column %s: %w", resolved, err)
	}
	return c.commitColumn(tok, server)
}

// DuplicateRow snapshots the source row at request time, inserts the copy
// under a temporary id, and persists it as a new row carrying the snapshot
// values. Later edits to the source do not leak into the duplicate.
func (c *Coordinator) DuplicateRow(ctx context.Context, rowID string) (*interfaces.Row, error) {
	resolved := c.ids.Resolve(rowID)

	c.mu.Lock()
	dup, tok, err := c.patcher.DuplicateRow(resolved)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	cells := make([]interfaces.CellUpdate, 0, len(dup.Cells))
	for _, cell := range dup.Cells {
		cells = append(cells, interfaces.CellUpdate{
			Address: interfaces.CellAddress{RowID: dup.ID, ColumnID: cell.ColumnID},
			Value:   cell.Value,
		})
	}
	server, err := c.svc.CreateRow(ctx, c.tableID, cells)
	if err != nil {
		c.rollback(tok)
		return nil, fmt.Errorf("duplicate row %s: %w", resolved, err)
	}
	if err := c.commitRow(tok, server); err != nil {
		return nil, err
	}
	return server, nil
}

// DuplicateColumn snapshots the source column's values at request time and
// asks the server to duplicate it, rolling the speculative copy back on
// failure.
func (c *Coordinator) DuplicateColumn(ctx context.Context, columnID string) (*interfaces.Column, error) {
	resolved := c.ids.Resolve(columnID)

	c.mu.Lock()
	_, tok, err := c.patcher.DuplicateColumn(resolved)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	server, err := c.svc.DuplicateColumn(ctx, resolved)
	if err != nil {
		c.rollback(tok)
		return nil, fmt.Errorf("duplicate column %s: %w", resolved, err)
	}
	if err := c.commitColumn(tok, server); err != nil {
		return nil, err
	}
	return server, nil
}

// RequestStructuralChange applies the optimistic patch for kind and parks
// the rollback token, leaving the commit/rollback decision to the caller.
// Used by frontends that drive the network call themselves.
func (c *Coordinator) RequestStructuralChange(kind StructuralKind, params StructuralParams) (*StructuralResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("coordinator for table %s is closed", c.tableID)
	}

	var (
		tok *table.RollbackToken
		res StructuralResult
		err error
	)
	switch kind {
	case StructuralAddRow:
		row, t := c.patcher.AddRow(params.Values)
		res.Row, tok = &row, t
	case StructuralDeleteRow:
		tok, err = c.patcher.DeleteRow(c.ids.Resolve(params.RowID))
	case StructuralAddColumn:
		col, t := c.patcher.AddColumn(params.Name, params.ColumnType)
		res.Column, tok = &col, t
	case StructuralDeleteColumn:
		tok, err = c.patcher.DeleteColumn(c.ids.Resolve(params.ColumnID))
	case StructuralRenameColumn:
		tok, err = c.patcher.RenameColumn(c.ids.Resolve(params.ColumnID), params.Name)
	case StructuralDuplicateRow:
		var row interfaces.Row
		row, tok, err = c.patcher.DuplicateRow(c.ids.Resolve(params.RowID))
		if err == nil {
			res.Row = &row
		}
	case StructuralDuplicateColumn:
		var col interfaces.Column
		col, tok, err = c.patcher.DuplicateColumn(c.ids.Resolve(params.ColumnID))
		if err == nil {
			res.Column = &col
		}
	default:
		return nil, fmt.Errorf("unknown structural change kind %q", kind)
	}
	if err != nil {
		return nil, err
	}
	c.tokens[tok.ID] = tok
	res.TokenID = tok.ID
	return &res, nil
}

// CommitStructuralChange resolves a parked token against the server entity.
// Deletions carry no server entity; commit simply discards the token.
func (c *Coordinator) CommitStructuralChange(tokenID string, row *interfaces.Row, column *interfaces.Column) error {
	tok, err := c.takeToken(tokenID)
	if err != nil {
		return err
	}
	switch {
	case row != nil:
		return c.commitRow(tok, row)
	case column != nil:
		return c.commitColumn(tok, column)
	default:
		return nil
	}
}

// RollbackStructuralChange restores the view state captured by a parked
// token after the server rejected the change.
func (c *Coordinator) RollbackStructuralChange(tokenID string) error {
	tok, err := c.takeToken(tokenID)
	if err != nil {
		return err
	}
	c.rollback(tok)
	return nil
}

func (c *Coordinator) takeToken(tokenID string) (*table.RollbackToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tok, ok := c.tokens[tokenID]
	if !ok {
		return nil, fmt.Errorf("unknown rollback token %s", tokenID)
	}
	delete(c.tokens, tokenID)
	return tok, nil
}

// commitRow swaps the speculative row for the server row, remaps its
// temporary id, and re-applies values queued against the row so edits typed
// while the create was in flight stay visible.
func (c *Coordinator) commitRow(tok *table.RollbackToken, server *interfaces.Row) error {
	c.mu.Lock()
	tempID, serverID, err := c.patcher.CommitRow(tok, server)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	if tempID != "" && tempID != serverID {
		c.Remap(tempID, serverID)
	}

	// The server row carries the values from the create request; anything
	// enqueued since then is newer and wins in the view.
	pending := c.queue.PendingOperations()
	c.mu.Lock()
	for _, op := range pending {
		if op.Address.RowID != serverID {
			continue
		}
		if _, err := c.view.SetCellValue(serverID, op.Address.ColumnID, op.Value); err != nil {
			c.log("warning", fmt.Sprintf("[COORD_COMMIT_ROW] reapply %s failed: %v", op.Address, err))
		}
	}
	c.mu.Unlock()
	return nil
}

// commitColumn swaps the speculative column for the server column and remaps
// its temporary id.
func (c *Coordinator) commitColumn(tok *table.RollbackToken, server *interfaces.Column) error {
	c.mu.Lock()
	tempID, serverID, err := c.patcher.CommitColumn(tok, server)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if tempID != "" && tempID != serverID {
		c.RemapColumn(tempID, serverID)
	}
	return nil
}

func (c *Coordinator) rollback(tok *table.RollbackToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.patcher.Rollback(tok); err != nil {
		c.log("error", fmt.Sprintf("[COORD_ROLLBACK] token %s (%s): %v", tok.ID, tok.Kind, err))
		return
	}
	c.log("info", fmt.Sprintf("[COORD_ROLLBACK] reverted %s (token %s)", tok.Kind, tok.ID))
}

func cellUpdatesFromValues(rowID string, values map[string]*string) []interfaces.CellUpdate {
	cells := make([]interfaces.CellUpdate, 0, len(values))
	for columnID, value := range values {
		cells = append(cells, interfaces.CellUpdate{
			Address: interfaces.CellAddress{RowID: rowID, ColumnID: columnID},
			Value:   value,
		})
	}
	return cells
}
