package tableio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/freesam77/airtable-clone-sub001/app/interfaces"

	"github.com/xuri/excelize/v2"
)

func strPtr(s string) *string { return &s }

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImportJSONRows(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "data.json", `{
		"items": [
			{"name": "widget", "qty": 3},
			{"name": "gadget", "qty": 7, "tags": ["a", "b"]},
			{"name": "gizmo"}
		]
	}`)

	res, err := ImportJSONRows(path, "$.items")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	// Headers are the sorted union of keys.
	want := []string{"name", "qty", "tags"}
	if len(res.Headers) != len(want) {
		t.Fatalf("headers = %v, want %v", res.Headers, want)
	}
	for i, h := range want {
		if res.Headers[i] != h {
			t.Errorf("header %d = %q, want %q", i, res.Headers[i], h)
		}
	}
	if len(res.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(res.Rows))
	}
	if res.Rows[0][1] == nil || *res.Rows[0][1] != "3" {
		t.Errorf("qty of first row = %v, want 3", res.Rows[0][1])
	}
	// Composite values are JSON-stringified.
	if res.Rows[1][2] == nil || *res.Rows[1][2] != `["a","b"]` {
		t.Errorf("tags = %v, want JSON array text", res.Rows[1][2])
	}
	// Missing keys are nil, not empty strings.
	if res.Rows[2][1] != nil {
		t.Errorf("missing qty = %v, want nil", res.Rows[2][1])
	}
}

func TestImportJSONRowsErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name       string
		content    string
		expression string
	}{
		{"expression selects an object", `{"a": {"b": 1}}`, "$.a"},
		{"expression selects nothing", `{"a": []}`, "$.missing"},
		{"empty array", `{"a": []}`, "$.a"},
		{"array of scalars", `{"a": [1, 2]}`, "$.a"},
		{"invalid expression", `{"a": []}`, "$[("},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.name+".json", tt.content)
			if _, err := ImportJSONRows(path, tt.expression); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestImportGlobRowsMergesFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "in/a.json", `[{"name": "first", "qty": 1}]`)
	writeFile(t, dir, "in/nested/b.json", `[{"name": "second", "color": "red"}]`)
	writeFile(t, dir, "in/skip.txt", `not json`)

	res, err := ImportGlobRows(dir, "in/**/*.json", "$")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(res.Rows))
	}
	if len(res.Headers) != 3 {
		t.Errorf("headers = %v, want union of 3", res.Headers)
	}
	// Rows widened to the merged header set carry nil for absent columns.
	for _, row := range res.Rows {
		if len(row) != len(res.Headers) {
			t.Errorf("row width %d, want %d", len(row), len(res.Headers))
		}
	}
}

func TestImportGlobRowsNoMatches(t *testing.T) {
	if _, err := ImportGlobRows(t.TempDir(), "**/*.json", "$"); err == nil {
		t.Error("expected error for empty match set")
	}
}

func TestExportXLSXRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.xlsx")

	columns := []interfaces.Column{
		{ID: "col-1", Name: "Name", Position: 0},
		{ID: "col-2", Name: "Qty", Position: 1},
	}
	rows := []interfaces.Row{
		{ID: "row-1", Cells: []interfaces.Cell{
			{ColumnID: "col-1", Value: strPtr("widget")},
			{ColumnID: "col-2", Value: strPtr("3")},
		}},
		{ID: "row-2", Cells: []interfaces.Cell{
			{ColumnID: "col-2", Value: strPtr("9")},
			{ColumnID: "col-1", Value: nil},
		}},
	}

	if err := ExportXLSX(path, "Inventory", columns, rows); err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f.Close()

	got, err := f.GetRows("Inventory")
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("sheet rows = %d, want header + 2", len(got))
	}
	if got[0][0] != "Name" || got[0][1] != "Qty" {
		t.Errorf("header row = %v", got[0])
	}
	if got[1][0] != "widget" || got[1][1] != "3" {
		t.Errorf("first row = %v", got[1])
	}
	// Out-of-order cells land in column order.
	if got[2][1] != "9" {
		t.Errorf("second row = %v, want qty in second column", got[2])
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pending.json.xz")

	ops := []interfaces.CellUpdate{
		{Address: interfaces.CellAddress{RowID: "row-1", ColumnID: "col-1"}, Value: strPtr("unsaved")},
		{Address: interfaces.CellAddress{RowID: "row-2", ColumnID: "col-2"}, Value: nil},
	}
	if err := WriteSnapshot(path, "table-1", ops); err != nil {
		t.Fatalf("write: %v", err)
	}

	snap, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if snap.TableID != "table-1" || len(snap.Pending) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}

	restored := snap.Updates()
	if restored[0].Address.RowID != "row-1" || restored[0].Value == nil || *restored[0].Value != "unsaved" {
		t.Errorf("first update = %+v", restored[0])
	}
	if restored[1].Value != nil {
		t.Errorf("nil value not preserved: %+v", restored[1])
	}
}
