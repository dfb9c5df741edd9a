package app

import (
	"fmt"
	"strings"

	"github.com/freesam77/airtable-clone-sub001/app/interfaces"

	clipboard "golang.design/x/clipboard"
)

// Maximum clipboard size in bytes (10MB) - helps avoid X11 BadLength errors on Linux
const maxClipboardSize = 10 * 1024 * 1024

// safeClipboardWrite attempts to write data to clipboard with panic recovery.
// Returns an error if the write fails or data is too large.
func safeClipboardWrite(format clipboard.Format, data []byte) (err error) {
	if len(data) > maxClipboardSize {
		return fmt.Errorf("data too large for clipboard (%d bytes, max %d bytes / %.1f MB). Try selecting fewer rows",
			len(data), maxClipboardSize, float64(maxClipboardSize)/(1024*1024))
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("clipboard write failed: %v", r)
		}
	}()

	clipboard.Write(format, data)
	return nil
}

// initClipboard lazily initializes the system clipboard once per process.
func (a *App) initClipboard() bool {
	a.clipOnce.Do(func() {
		if err := clipboard.Init(); err == nil {
			a.clipOK = true
		} else {
			a.clipOK = false
			if a.ctx != nil {
				a.Log("error", fmt.Sprintf("Clipboard init failed: %v", err))
			}
		}
	})
	return a.clipOK
}

// RangeSpec is a half-open range of zero-based row indexes in the view
type RangeSpec struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// CopySelectionRequest carries the selection and projection information for backend clipboard copy
type CopySelectionRequest struct {
	Ranges        []RangeSpec `json:"ranges"`
	ColumnIDs     []string    `json:"columnIds"`
	IncludeHeader bool        `json:"includeHeader"`
}

// CopySelectionResult reports the number of data rows copied
type CopySelectionResult struct {
	RowsCopied int `json:"rowsCopied"`
}

// CopySelectionToClipboard writes the selected rows of the optimistic view
// to the system clipboard as tab-separated text. When ColumnIDs is empty
// every column is copied in view order.
func (a *App) CopySelectionToClipboard(req CopySelectionRequest) (*CopySelectionResult, error) {
	coord, err := a.activeCoordinator()
	if err != nil {
		return nil, err
	}
	if !a.initClipboard() {
		return nil, fmt.Errorf("clipboard not available")
	}

	columns, rows := coord.Snapshot()
	selected := columns
	if len(req.ColumnIDs) > 0 {
		byID := make(map[string]interfaces.Column, len(columns))
		for _, col := range columns {
			byID[col.ID] = col
		}
		selected = make([]interfaces.Column, 0, len(req.ColumnIDs))
		for _, id := range req.ColumnIDs {
			if col, ok := byID[id]; ok {
				selected = append(selected, col)
			}
		}
	}
	if len(selected) == 0 {
		return &CopySelectionResult{RowsCopied: 0}, nil
	}

	sanitize := func(s string) string {
		ss := strings.ReplaceAll(s, "\t", " ")
		ss = strings.ReplaceAll(ss, "\r", " ")
		ss = strings.ReplaceAll(ss, "\n", " ")
		return ss
	}

	var b strings.Builder
	if req.IncludeHeader {
		for i, col := range selected {
			if i > 0 {
				b.WriteByte('\t')
			}
			b.WriteString(sanitize(col.Name))
		}
		b.WriteByte('\n')
	}

	rowsCopied := 0
	for _, rng := range req.Ranges {
		start, end := rng.Start, rng.End
		if start < 0 {
			start = 0
		}
		if end > len(rows) {
			end = len(rows)
		}
		for r := start; r < end; r++ {
			for i, col := range selected {
				if i > 0 {
					b.WriteByte('\t')
				}
				b.WriteString(sanitize(cellText(rows[r], col.ID)))
			}
			b.WriteByte('\n')
			rowsCopied++
		}
	}

	outBytes := []byte(b.String())
	if err := safeClipboardWrite(clipboard.FmtText, outBytes); err != nil {
		a.Log("error", fmt.Sprintf("Clipboard write failed: %v", err))
		return nil, fmt.Errorf("failed to copy to clipboard: %v", err)
	}

	a.Log("info", fmt.Sprintf("Copied %d rows (%d bytes) to clipboard from table %s",
		rowsCopied, len(outBytes), coord.TableID()))
	return &CopySelectionResult{RowsCopied: rowsCopied}, nil
}

// PasteResult reports how much of the clipboard block was applied.
type PasteResult struct {
	RowsPasted  int `json:"rowsPasted"`
	CellsPasted int `json:"cellsPasted"`
}

// PasteAt applies the clipboard's tab-separated block starting at the given
// anchor cell. Every affected cell is patched optimistically and queued, and
// the whole block is recorded as one undo step. Cells falling outside the
// table are clipped.
func (a *App) PasteAt(anchorRowID, anchorColumnID string) (*PasteResult, error) {
	coord, err := a.activeCoordinator()
	if err != nil {
		return nil, err
	}
	if !a.initClipboard() {
		return nil, fmt.Errorf("clipboard not available")
	}

	text := string(clipboard.Read(clipboard.FmtText))
	if text == "" {
		return &PasteResult{}, nil
	}

	columns, rows := coord.Snapshot()
	anchorRow := -1
	for i, row := range rows {
		if row.ID == anchorRowID {
			anchorRow = i
			break
		}
	}
	anchorCol := -1
	for i, col := range columns {
		if col.ID == anchorColumnID {
			anchorCol = i
			break
		}
	}
	if anchorRow < 0 || anchorCol < 0 {
		return nil, fmt.Errorf("paste anchor %s/%s not found", anchorRowID, anchorColumnID)
	}

	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	var updates []interfaces.CellUpdate
	rowsTouched := 0
	for r, line := range lines {
		targetRow := anchorRow + r
		if targetRow >= len(rows) {
			break
		}
		touched := false
		for c, field := range strings.Split(strings.TrimSuffix(line, "\r"), "\t") {
			targetCol := anchorCol + c
			if targetCol >= len(columns) {
				break
			}
			value := field
			updates = append(updates, interfaces.CellUpdate{
				Address: interfaces.CellAddress{
					RowID:    rows[targetRow].ID,
					ColumnID: columns[targetCol].ID,
				},
				Value: &value,
			})
			touched = true
		}
		if touched {
			rowsTouched++
		}
	}
	if len(updates) == 0 {
		return &PasteResult{}, nil
	}

	if err := coord.ApplyCellEdits(updates); err != nil {
		return nil, fmt.Errorf("failed to apply pasted block: %w", err)
	}

	a.viewCache.InvalidateTable(coord.TableID())
	a.emitTableChanged(coord.TableID())
	a.Log("info", fmt.Sprintf("Pasted %d cells across %d rows into table %s",
		len(updates), rowsTouched, coord.TableID()))
	return &PasteResult{RowsPasted: rowsTouched, CellsPasted: len(updates)}, nil
}

// cellText returns a row's display text for a column, empty when the cell is
// absent or cleared.
func cellText(row interfaces.Row, columnID string) string {
	for _, cell := range row.Cells {
		if cell.ColumnID == columnID && cell.Value != nil {
			return *cell.Value
		}
	}
	return ""
}
