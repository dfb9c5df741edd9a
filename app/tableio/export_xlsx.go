package tableio

import (
	"fmt"

	"github.com/freesam77/airtable-clone-sub001/app/interfaces"

	"github.com/xuri/excelize/v2"
)

// ExportXLSX writes the table's current optimistic state to an .xlsx file,
// one sheet, header row first. Cleared cells export as empty strings.
func ExportXLSX(filePath, sheetName string, columns []interfaces.Column, rows []interfaces.Row) error {
	if filePath == "" {
		return fmt.Errorf("file path is empty")
	}
	if sheetName == "" {
		sheetName = "Sheet1"
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("failed to map header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, col.Name); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	// Values go out in column order regardless of per-row cell order.
	colIndex := make(map[string]int, len(columns))
	for i, col := range columns {
		colIndex[col.ID] = i
	}

	for r, row := range rows {
		for _, cell := range row.Cells {
			ci, ok := colIndex[cell.ColumnID]
			if !ok || cell.Value == nil {
				continue
			}
			name, err := excelize.CoordinatesToCellName(ci+1, r+2)
			if err != nil {
				return fmt.Errorf("failed to map cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, name, *cell.Value); err != nil {
				return fmt.Errorf("failed to write cell: %w", err)
			}
		}
	}

	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}
