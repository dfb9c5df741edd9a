package sync

import (
	"time"

	"github.com/freesam77/airtable-clone-sub001/app/interfaces"
)

// ErrorResponse is the API's error envelope.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// RefreshRequest asks for a new session token.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	InstanceID   string `json:"instanceId"`
}

// RefreshResponse carries the renewed token pair.
type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// cellValueBody is the payload of a cell upsert. A nil value clears the cell.
type cellValueBody struct {
	Value *string `json:"value"`
}

// createRowRequest creates a row with initial cell values keyed by column id.
type createRowRequest struct {
	Cells map[string]*string `json:"cells,omitempty"`
}

// createColumnRequest creates a column.
type createColumnRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// renameColumnRequest updates a column name.
type renameColumnRequest struct {
	Name string `json:"name"`
}

// wireCell is a cell as the API serializes it.
type wireCell struct {
	ID       string  `json:"id"`
	RowID    string  `json:"rowId"`
	ColumnID string  `json:"columnId"`
	Value    *string `json:"value"`
}

// wireColumn is a column as the API serializes it.
type wireColumn struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Position int    `json:"position"`
	Required bool   `json:"required"`
}

// wireRow is a row as the API serializes it. Timestamps are RFC3339.
type wireRow struct {
	ID        string     `json:"id"`
	Position  int        `json:"position"`
	CreatedAt string     `json:"createdAt"`
	UpdatedAt string     `json:"updatedAt"`
	Cells     []wireCell `json:"cells"`
}

// wireTable is the GET /tables/{id} payload.
type wireTable struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Columns []wireColumn `json:"columns"`
	Rows    []wireRow    `json:"rows"`
}

func (c wireColumn) toColumn() interfaces.Column {
	return interfaces.Column{
		ID:       c.ID,
		Name:     c.Name,
		Type:     interfaces.ColumnType(c.Type),
		Position: c.Position,
		Required: c.Required,
	}
}

func (r wireRow) toRow(columns map[string]interfaces.Column) interfaces.Row {
	row := interfaces.Row{
		ID:        r.ID,
		Position:  r.Position,
		CreatedAt: parseTime(r.CreatedAt),
		UpdatedAt: parseTime(r.UpdatedAt),
	}
	for _, c := range r.Cells {
		row.Cells = append(row.Cells, interfaces.Cell{
			ID:       c.ID,
			RowID:    c.RowID,
			ColumnID: c.ColumnID,
			Value:    c.Value,
			Column:   columns[c.ColumnID],
		})
	}
	return row
}

// Table is the client-facing result of fetching a table.
type Table struct {
	ID      string
	Name    string
	Columns []interfaces.Column
	Rows    []interfaces.Row
}

func (t wireTable) toTable() *Table {
	out := &Table{ID: t.ID, Name: t.Name}
	byID := make(map[string]interfaces.Column, len(t.Columns))
	for _, c := range t.Columns {
		col := c.toColumn()
		out.Columns = append(out.Columns, col)
		byID[col.ID] = col
	}
	for _, r := range t.Rows {
		out.Rows = append(out.Rows, r.toRow(byID))
	}
	return out
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
