package table

import (
	"fmt"
	"sort"
	"time"

	"github.com/freesam77/airtable-clone-sub001/app/interfaces"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// View is the optimistic in-memory state of one open table. It is a shared
// mutable structure with single-writer discipline: only the Write Coordinator
// (through the Patcher) mutates it while the table is being edited, so the
// View itself carries no locks.
type View struct {
	TableID string
	Name    string
	Columns []interfaces.Column
	Rows    []interfaces.Row
}

// NewView builds a view from server data, normalizing positions.
func NewView(tableID, name string, columns []interfaces.Column, rows []interfaces.Row) *View {
	v := &View{TableID: tableID, Name: name, Columns: columns, Rows: rows}
	v.normalize()
	return v
}

// normalize sorts by position and reassigns dense positions.
func (v *View) normalize() {
	sort.SliceStable(v.Columns, func(i, j int) bool { return v.Columns[i].Position < v.Columns[j].Position })
	sort.SliceStable(v.Rows, func(i, j int) bool { return v.Rows[i].Position < v.Rows[j].Position })
	for i := range v.Columns {
		v.Columns[i].Position = i
	}
	for i := range v.Rows {
		v.Rows[i].Position = i
	}
}

// RowIndex returns the index of the row with the given id, or -1.
func (v *View) RowIndex(rowID string) int {
	_, idx, _ := lo.FindIndexOf(v.Rows, func(r interfaces.Row) bool { return r.ID == rowID })
	return idx
}

// ColumnIndex returns the index of the column with the given id, or -1.
func (v *View) ColumnIndex(columnID string) int {
	_, idx, _ := lo.FindIndexOf(v.Columns, func(c interfaces.Column) bool { return c.ID == columnID })
	return idx
}

// Row returns a pointer into the view's row slice, or nil.
func (v *View) Row(rowID string) *interfaces.Row {
	idx := v.RowIndex(rowID)
	if idx < 0 {
		return nil
	}
	return &v.Rows[idx]
}

// Column returns a copy of the column with the given id.
func (v *View) Column(columnID string) (interfaces.Column, bool) {
	idx := v.ColumnIndex(columnID)
	if idx < 0 {
		return interfaces.Column{}, false
	}
	return v.Columns[idx], true
}

// SetCellValue applies a cell value and returns the previous one. If the
// column exists but the row has no cell for it yet (a column added after the
// row), the cell is materialized.
func (v *View) SetCellValue(rowID, columnID string, value *string) (previous *string, err error) {
	row := v.Row(rowID)
	if row == nil {
		return nil, fmt.Errorf("row %s not in view", rowID)
	}
	for i := range row.Cells {
		if row.Cells[i].ColumnID == columnID {
			previous = row.Cells[i].Value
			row.Cells[i].Value = value
			row.UpdatedAt = time.Now()
			return previous, nil
		}
	}
	col, ok := v.Column(columnID)
	if !ok {
		return nil, fmt.Errorf("column %s not in view", columnID)
	}
	row.Cells = append(row.Cells, interfaces.Cell{
		ID:       newCellID(),
		ColumnID: columnID,
		RowID:    rowID,
		Value:    value,
		Column:   col,
	})
	row.UpdatedAt = time.Now()
	return nil, nil
}

// CellValue returns the current value of a cell and whether it exists.
func (v *View) CellValue(rowID, columnID string) (*string, bool) {
	row := v.Row(rowID)
	if row == nil {
		return nil, false
	}
	for i := range row.Cells {
		if row.Cells[i].ColumnID == columnID {
			return row.Cells[i].Value, true
		}
	}
	return nil, false
}

// insertRow places a row at the given index, shifting positions.
func (v *View) insertRow(row interfaces.Row, index int) {
	if index < 0 || index > len(v.Rows) {
		index = len(v.Rows)
	}
	v.Rows = append(v.Rows, interfaces.Row{})
	copy(v.Rows[index+1:], v.Rows[index:])
	v.Rows[index] = row
	for i := range v.Rows {
		v.Rows[i].Position = i
	}
}

// removeRow removes a row by id, returning the removed row and its index.
func (v *View) removeRow(rowID string) (interfaces.Row, int, bool) {
	idx := v.RowIndex(rowID)
	if idx < 0 {
		return interfaces.Row{}, -1, false
	}
	removed := v.Rows[idx]
	v.Rows = append(v.Rows[:idx], v.Rows[idx+1:]...)
	for i := range v.Rows {
		v.Rows[i].Position = i
	}
	return removed, idx, true
}

// insertColumn places a column at the given index and materializes an empty
// cell for it on every row.
func (v *View) insertColumn(col interfaces.Column, index int) {
	if index < 0 || index > len(v.Columns) {
		index = len(v.Columns)
	}
	v.Columns = append(v.Columns, interfaces.Column{})
	copy(v.Columns[index+1:], v.Columns[index:])
	v.Columns[index] = col
	for i := range v.Columns {
		v.Columns[i].Position = i
	}
	for i := range v.Rows {
		v.Rows[i].Cells = append(v.Rows[i].Cells, interfaces.Cell{
			ID:       newCellID(),
			ColumnID: col.ID,
			RowID:    v.Rows[i].ID,
			Value:    nil,
			Column:   col,
		})
	}
}

// removeColumn removes a column and every row's cell for it. The removed
// cells are returned keyed by row id so a rollback can restore them exactly.
func (v *View) removeColumn(columnID string) (interfaces.Column, int, map[string]interfaces.Cell, bool) {
	idx := v.ColumnIndex(columnID)
	if idx < 0 {
		return interfaces.Column{}, -1, nil, false
	}
	removed := v.Columns[idx]
	v.Columns = append(v.Columns[:idx], v.Columns[idx+1:]...)
	for i := range v.Columns {
		v.Columns[i].Position = i
	}
	removedCells := make(map[string]interfaces.Cell)
	for i := range v.Rows {
		row := &v.Rows[i]
		row.Cells = lo.Reject(row.Cells, func(c interfaces.Cell, _ int) bool {
			if c.ColumnID == columnID {
				removedCells[row.ID] = c
				return true
			}
			return false
		})
	}
	return removed, idx, removedCells, true
}

// replaceRow swaps the row with the given id for the server's canonical row,
// keeping the optimistic position. Every queued reference keeps working
// because the caller remaps the identifier afterwards.
func (v *View) replaceRow(rowID string, server interfaces.Row) bool {
	idx := v.RowIndex(rowID)
	if idx < 0 {
		return false
	}
	server.Position = v.Rows[idx].Position
	v.Rows[idx] = server
	return true
}

// replaceColumn swaps a column for the server's canonical column and rewrites
// the column snapshot (and column id) held by each row's cell.
func (v *View) replaceColumn(columnID string, server interfaces.Column) bool {
	idx := v.ColumnIndex(columnID)
	if idx < 0 {
		return false
	}
	server.Position = v.Columns[idx].Position
	v.Columns[idx] = server
	for i := range v.Rows {
		for j := range v.Rows[i].Cells {
			if v.Rows[i].Cells[j].ColumnID == columnID {
				v.Rows[i].Cells[j].ColumnID = server.ID
				v.Rows[i].Cells[j].Column = server
			}
		}
	}
	return true
}

// copyRow deep-copies a row so later edits to the source cannot leak into
// the copy. Used by duplicate operations, which snapshot at request time.
func copyRow(src interfaces.Row) interfaces.Row {
	dup := src
	dup.Cells = make([]interfaces.Cell, len(src.Cells))
	copy(dup.Cells, src.Cells)
	return dup
}

// Snapshot returns deep copies of the view's columns and rows, safe to hand
// to readers outside the coordinator's single-writer scope.
func (v *View) Snapshot() ([]interfaces.Column, []interfaces.Row) {
	cols := make([]interfaces.Column, len(v.Columns))
	copy(cols, v.Columns)
	rows := make([]interfaces.Row, len(v.Rows))
	for i := range v.Rows {
		rows[i] = copyRow(v.Rows[i])
	}
	return cols, rows
}

// newCellID mints an identifier for a cell created client-side.
func newCellID() string {
	return "cell-" + uuid.New().String()
}
