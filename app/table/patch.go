package table

import (
	"fmt"
	"time"

	"github.com/freesam77/airtable-clone-sub001/app/interfaces"

	"github.com/google/uuid"
)

// PatchKind identifies a structural mutation applied optimistically.
type PatchKind string

const (
	PatchAddRow          PatchKind = "add_row"
	PatchDeleteRow       PatchKind = "delete_row"
	PatchAddColumn       PatchKind = "add_column"
	PatchDeleteColumn    PatchKind = "delete_column"
	PatchRenameColumn    PatchKind = "rename_column"
	PatchDuplicateRow    PatchKind = "duplicate_row"
	PatchDuplicateColumn PatchKind = "duplicate_column"
)

// RollbackToken captures the exact state slice a speculative patch replaced,
// so a failed network call restores the prior state precisely instead of
// forcing a coarse reload.
type RollbackToken struct {
	ID   string
	Kind PatchKind

	tempID string // temp entity id for create/duplicate patches

	rowSnapshot  *interfaces.Row
	rowIndex     int
	colSnapshot  *interfaces.Column
	colIndex     int
	removedCells map[string]interfaces.Cell // rowID -> cell, for column deletes
	previousName string
}

// TempID returns the temporary identifier carried by a create or duplicate
// patch, empty for other kinds.
func (t *RollbackToken) TempID() string { return t.tempID }

// Patcher applies speculative structural mutations to a View and reverts
// them. It runs under the coordinator's lock and is not safe for concurrent
// use on its own.
type Patcher struct {
	view *View
}

// NewPatcher wraps a view.
func NewPatcher(view *View) *Patcher {
	return &Patcher{view: view}
}

func newToken(kind PatchKind) *RollbackToken {
	return &RollbackToken{ID: uuid.New().String(), Kind: kind}
}

// AddRow appends a speculative row carrying a temporary id. values maps
// column ids to initial cell values; columns absent from the map get nil.
func (p *Patcher) AddRow(values map[string]*string) (interfaces.Row, *RollbackToken) {
	now := time.Now()
	row := interfaces.Row{
		ID:        interfaces.NewTempID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, col := range p.view.Columns {
		row.Cells = append(row.Cells, interfaces.Cell{
			ID:       newCellID(),
			ColumnID: col.ID,
			RowID:    row.ID,
			Value:    values[col.ID],
			Column:   col,
		})
	}
	p.view.insertRow(row, len(p.view.Rows))
	tok := newToken(PatchAddRow)
	tok.tempID = row.ID
	return row, tok
}

// DeleteRow removes a row speculatively, capturing it for rollback.
func (p *Patcher) DeleteRow(rowID string) (*RollbackToken, error) {
	removed, idx, ok := p.view.removeRow(rowID)
	if !ok {
		return nil, fmt.Errorf("row %s not in view", rowID)
	}
	tok := newToken(PatchDeleteRow)
	tok.rowSnapshot = &removed
	tok.rowIndex = idx
	return tok, nil
}

// AddColumn appends a speculative column with a temporary id and empty cells
// on every row.
func (p *Patcher) AddColumn(name string, columnType interfaces.ColumnType) (interfaces.Column, *RollbackToken) {
	col := interfaces.Column{
		ID:   interfaces.NewTempID(),
		Name: name,
		Type: columnType,
	}
	p.view.insertColumn(col, len(p.view.Columns))
	tok := newToken(PatchAddColumn)
	tok.tempID = col.ID
	return col, tok
}

// DeleteColumn removes a column and its cells speculatively.
func (p *Patcher) DeleteColumn(columnID string) (*RollbackToken, error) {
	removed, idx, cells, ok := p.view.removeColumn(columnID)
	if !ok {
		return nil, fmt.Errorf("column %s not in view", columnID)
	}
	tok := newToken(PatchDeleteColumn)
	tok.colSnapshot = &removed
	tok.colIndex = idx
	tok.removedCells = cells
	return tok, nil
}

// RenameColumn changes a column name speculatively.
func (p *Patcher) RenameColumn(columnID, name string) (*RollbackToken, error) {
	idx := p.view.ColumnIndex(columnID)
	if idx < 0 {
		return nil, fmt.Errorf("column %s not in view", columnID)
	}
	tok := newToken(PatchRenameColumn)
	tok.colIndex = idx
	tok.previousName = p.view.Columns[idx].Name
	snapshot := p.view.Columns[idx]
	tok.colSnapshot = &snapshot
	p.view.Columns[idx].Name = name
	for i := range p.view.Rows {
		for j := range p.view.Rows[i].Cells {
			if p.view.Rows[i].Cells[j].ColumnID == columnID {
				p.view.Rows[i].Cells[j].Column.Name = name
			}
		}
	}
	return tok, nil
}

// DuplicateRow inserts a copy of the source row directly below it. The
// source's cell values are snapshotted at request time, so edits to the
// source after duplication begins do not leak into the duplicate.
func (p *Patcher) DuplicateRow(srcRowID string) (interfaces.Row, *RollbackToken, error) {
	idx := p.view.RowIndex(srcRowID)
	if idx < 0 {
		return interfaces.Row{}, nil, fmt.Errorf("row %s not in view", srcRowID)
	}
	now := time.Now()
	dup := copyRow(p.view.Rows[idx])
	dup.ID = interfaces.NewTempID()
	dup.CreatedAt = now
	dup.UpdatedAt = now
	for i := range dup.Cells {
		dup.Cells[i].ID = newCellID()
		dup.Cells[i].RowID = dup.ID
	}
	p.view.insertRow(dup, idx+1)
	tok := newToken(PatchDuplicateRow)
	tok.tempID = dup.ID
	return dup, tok, nil
}

// DuplicateColumn inserts a copy of the source column directly after it,
// snapshotting the source cells' values at request time.
func (p *Patcher) DuplicateColumn(srcColumnID string) (interfaces.Column, *RollbackToken, error) {
	idx := p.view.ColumnIndex(srcColumnID)
	if idx < 0 {
		return interfaces.Column{}, nil, fmt.Errorf("column %s not in view", srcColumnID)
	}
	src := p.view.Columns[idx]
	dup := src
	dup.ID = interfaces.NewTempID()
	dup.Name = src.Name + " copy"

	// Snapshot source values before inserting, so the duplicate's cells carry
	// the values as of this moment.
	values := make(map[string]*string, len(p.view.Rows))
	for i := range p.view.Rows {
		for j := range p.view.Rows[i].Cells {
			if p.view.Rows[i].Cells[j].ColumnID == srcColumnID {
				values[p.view.Rows[i].ID] = p.view.Rows[i].Cells[j].Value
			}
		}
	}

	p.view.insertColumn(dup, idx+1)
	for i := range p.view.Rows {
		row := &p.view.Rows[i]
		for j := range row.Cells {
			if row.Cells[j].ColumnID == dup.ID {
				row.Cells[j].Value = values[row.ID]
			}
		}
	}
	tok := newToken(PatchDuplicateColumn)
	tok.tempID = dup.ID
	return dup, tok, nil
}

// Rollback restores the exact state slice captured by the token.
func (p *Patcher) Rollback(tok *RollbackToken) error {
	if tok == nil {
		return fmt.Errorf("nil rollback token")
	}
	switch tok.Kind {
	case PatchAddRow, PatchDuplicateRow:
		if _, _, ok := p.view.removeRow(tok.tempID); !ok {
			return fmt.Errorf("speculative row %s not in view", tok.tempID)
		}
	case PatchDeleteRow:
		p.view.insertRow(*tok.rowSnapshot, tok.rowIndex)
	case PatchAddColumn, PatchDuplicateColumn:
		if _, _, _, ok := p.view.removeColumn(tok.tempID); !ok {
			return fmt.Errorf("speculative column %s not in view", tok.tempID)
		}
	case PatchDeleteColumn:
		p.view.insertColumn(*tok.colSnapshot, tok.colIndex)
		// insertColumn materializes empty cells; restore the captured ones.
		for i := range p.view.Rows {
			row := &p.view.Rows[i]
			if cell, ok := tok.removedCells[row.ID]; ok {
				for j := range row.Cells {
					if row.Cells[j].ColumnID == tok.colSnapshot.ID {
						row.Cells[j] = cell
					}
				}
			}
		}
	case PatchRenameColumn:
		idx := p.view.ColumnIndex(tok.colSnapshot.ID)
		if idx < 0 {
			return fmt.Errorf("column %s not in view", tok.colSnapshot.ID)
		}
		p.view.Columns[idx].Name = tok.previousName
		for i := range p.view.Rows {
			for j := range p.view.Rows[i].Cells {
				if p.view.Rows[i].Cells[j].ColumnID == tok.colSnapshot.ID {
					p.view.Rows[i].Cells[j].Column.Name = tok.previousName
				}
			}
		}
	default:
		return fmt.Errorf("unknown patch kind %q", tok.Kind)
	}
	return nil
}

// CommitRow replaces the speculative row with the server's canonical entity.
// Returns the (tempID, serverID) pair the caller must feed to the remapper.
func (p *Patcher) CommitRow(tok *RollbackToken, server *interfaces.Row) (tempID, serverID string, err error) {
	if tok == nil || server == nil {
		return "", "", fmt.Errorf("nil token or server row")
	}
	if tok.tempID == "" {
		return "", "", fmt.Errorf("token %s carries no temporary id", tok.ID)
	}
	if !p.view.replaceRow(tok.tempID, *server) {
		return "", "", fmt.Errorf("speculative row %s not in view", tok.tempID)
	}
	return tok.tempID, server.ID, nil
}

// CommitColumn replaces the speculative (or renamed) column with the server's
// canonical entity. Returns a (tempID, serverID) pair; tempID is empty when
// the patch did not create a new entity (rename).
func (p *Patcher) CommitColumn(tok *RollbackToken, server *interfaces.Column) (tempID, serverID string, err error) {
	if tok == nil || server == nil {
		return "", "", fmt.Errorf("nil token or server column")
	}
	target := tok.tempID
	if target == "" && tok.colSnapshot != nil {
		target = tok.colSnapshot.ID
	}
	if target == "" {
		return "", "", fmt.Errorf("token %s has no target column", tok.ID)
	}
	if !p.view.replaceColumn(target, *server) {
		return "", "", fmt.Errorf("column %s not in view", target)
	}
	return tok.tempID, server.ID, nil
}
