package coordinator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/freesam77/airtable-clone-sub001/app/interfaces"
	"github.com/freesam77/airtable-clone-sub001/app/table"
)

func testView() *table.View {
	cols := []interfaces.Column{
		{ID: "col-1", Name: "Name", Type: interfaces.ColumnTypeText, Position: 0},
		{ID: "col-2", Name: "Qty", Type: interfaces.ColumnTypeNumber, Position: 1},
	}
	rows := []interfaces.Row{
		{ID: "row-1", Position: 0, Cells: []interfaces.Cell{
			{ID: "cell-1", RowID: "row-1", ColumnID: "col-1", Value: strPtr("widget"), Column: cols[0]},
			{ID: "cell-2", RowID: "row-1", ColumnID: "col-2", Value: strPtr("3"), Column: cols[1]},
		}},
		{ID: "row-2", Position: 1, Cells: []interfaces.Cell{
			{ID: "cell-3", RowID: "row-2", ColumnID: "col-1", Value: strPtr("gadget"), Column: cols[0]},
			{ID: "cell-4", RowID: "row-2", ColumnID: "col-2", Value: nil, Column: cols[1]},
		}},
	}
	return table.NewView("table-1", "Inventory", cols, rows)
}

// newTestCoordinator builds a coordinator whose settle interval is long
// enough that nothing dispatches unless a test flushes explicitly.
func newTestCoordinator(svc *mockService) *Coordinator {
	return New(Config{
		TableID: "table-1",
		Service: svc,
		View:    testView(),
		Settle:  time.Hour,
	})
}

func TestApplyCellEditPatchesViewSynchronously(t *testing.T) {
	svc := &mockService{}
	c := newTestCoordinator(svc)
	defer c.Close()

	if err := c.ApplyCellEdit("row-1", "col-1", strPtr("gizmo")); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, ok := c.CellValue("row-1", "col-1")
	if !ok || got == nil || *got != "gizmo" {
		t.Errorf("view not patched before persistence, got %v", got)
	}
	if !c.IsDirty() {
		t.Error("coordinator must report dirty while the write is pending")
	}
	if !c.CanUndo() {
		t.Error("edit must be recorded as an undo step")
	}

	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if c.IsDirty() {
		t.Error("coordinator still dirty after flush")
	}
	calls := svc.callsFor("UpsertCell")
	if len(calls) != 1 || calls[0].rowID != "row-1" || *calls[0].value != "gizmo" {
		t.Errorf("unexpected dispatch %+v", calls)
	}
}

func TestUndoRedoRoundTrip(t *testing.T) {
	svc := &mockService{}
	c := newTestCoordinator(svc)
	defer c.Close()

	if err := c.ApplyCellEdit("row-1", "col-1", strPtr("first")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := c.ApplyCellEdit("row-1", "col-1", strPtr("second")); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if !c.Undo() {
		t.Fatal("undo reported nothing to undo")
	}
	if got, _ := c.CellValue("row-1", "col-1"); got == nil || *got != "first" {
		t.Errorf("undo restored %v, want first", got)
	}
	if !c.CanRedo() {
		t.Error("undo must push onto the redo stack")
	}

	if !c.Redo() {
		t.Fatal("redo reported nothing to redo")
	}
	if got, _ := c.CellValue("row-1", "col-1"); got == nil || *got != "second" {
		t.Errorf("redo restored %v, want second", got)
	}

	// Undo and redo both schedule persistence of the restored value.
	if c.PendingCount() == 0 {
		t.Error("undo/redo must enqueue writes for the restored values")
	}
}

func TestUndoPastOriginalRestoresInitialValue(t *testing.T) {
	svc := &mockService{}
	c := newTestCoordinator(svc)
	defer c.Close()

	if err := c.ApplyCellEdit("row-1", "col-1", strPtr("changed")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !c.Undo() {
		t.Fatal("undo reported nothing to undo")
	}
	if got, _ := c.CellValue("row-1", "col-1"); got == nil || *got != "widget" {
		t.Errorf("undo restored %v, want original widget", got)
	}
	if c.Undo() {
		t.Error("undo succeeded past the bottom of the stack")
	}
}

func TestNewEditClearsRedoStack(t *testing.T) {
	svc := &mockService{}
	c := newTestCoordinator(svc)
	defer c.Close()

	_ = c.ApplyCellEdit("row-1", "col-1", strPtr("a"))
	_ = c.ApplyCellEdit("row-1", "col-1", strPtr("b"))
	c.Undo()
	if !c.CanRedo() {
		t.Fatal("expected redo available after undo")
	}

	_ = c.ApplyCellEdit("row-2", "col-1", strPtr("divergent"))
	if c.CanRedo() {
		t.Error("a new edit must clear the redo stack")
	}
}

func TestBatchEditIsOneUndoStep(t *testing.T) {
	svc := &mockService{}
	c := newTestCoordinator(svc)
	defer c.Close()

	err := c.ApplyCellEdits([]interfaces.CellUpdate{
		{Address: interfaces.CellAddress{RowID: "row-1", ColumnID: "col-1"}, Value: strPtr("pasted-a")},
		{Address: interfaces.CellAddress{RowID: "row-2", ColumnID: "col-1"}, Value: strPtr("pasted-b")},
	})
	if err != nil {
		t.Fatalf("batch apply: %v", err)
	}

	if !c.Undo() {
		t.Fatal("undo reported nothing to undo")
	}
	if got, _ := c.CellValue("row-1", "col-1"); got == nil || *got != "widget" {
		t.Errorf("first cell not restored by batch undo, got %v", got)
	}
	if got, _ := c.CellValue("row-2", "col-1"); got == nil || *got != "gadget" {
		t.Errorf("second cell not restored by batch undo, got %v", got)
	}
	if c.CanUndo() {
		t.Error("a batch must consume exactly one undo step")
	}
}

func TestAddColumnRollbackOnFailure(t *testing.T) {
	svc := &mockService{createColumnErr: fmt.Errorf("server rejected")}
	c := newTestCoordinator(svc)
	defer c.Close()

	if _, err := c.AddColumn(context.Background(), "Price", interfaces.ColumnTypeNumber); err == nil {
		t.Fatal("expected error from rejected column create")
	}

	cols, rows := c.Snapshot()
	if len(cols) != 2 {
		t.Fatalf("speculative column not rolled back, view has %d columns", len(cols))
	}
	for _, row := range rows {
		if len(row.Cells) != 2 {
			t.Errorf("row %s kept %d cells after rollback", row.ID, len(row.Cells))
		}
	}
}

func TestAddColumnCommitReplacesTemporaryID(t *testing.T) {
	svc := &mockService{}
	c := newTestCoordinator(svc)
	defer c.Close()

	col, err := c.AddColumn(context.Background(), "Price", interfaces.ColumnTypeNumber)
	if err != nil {
		t.Fatalf("add column: %v", err)
	}
	if interfaces.IsTempID(col.ID) {
		t.Errorf("returned column still carries temporary id %s", col.ID)
	}

	cols, _ := c.Snapshot()
	if len(cols) != 3 {
		t.Fatalf("expected 3 columns after commit, got %d", len(cols))
	}
	for _, sc := range cols {
		if interfaces.IsTempID(sc.ID) {
			t.Errorf("temporary column id %s survived commit", sc.ID)
		}
	}
}

func TestDeleteRowCancelsPendingWrites(t *testing.T) {
	svc := &mockService{}
	c := newTestCoordinator(svc)
	defer c.Close()

	_ = c.ApplyCellEdit("row-1", "col-1", strPtr("doomed"))
	_ = c.ApplyCellEdit("row-1", "col-2", strPtr("also doomed"))
	_ = c.ApplyCellEdit("row-2", "col-1", strPtr("survives"))

	if err := c.DeleteRow(context.Background(), "row-1"); err != nil {
		t.Fatalf("delete row: %v", err)
	}

	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	for _, call := range svc.callsFor("UpsertCell") {
		if call.rowID == "row-1" {
			t.Error("write for deleted row reached the persistence service")
		}
	}
	if len(svc.callsFor("DeleteRow")) != 1 {
		t.Error("row deletion not persisted")
	}
	if _, rows := c.Snapshot(); len(rows) != 1 {
		t.Error("deleted row still in view")
	}
}

func TestDeleteRowNotFoundIsSuccess(t *testing.T) {
	svc := &mockService{deleteRowErr: &interfaces.NotFoundError{Resource: "row", ID: "row-1"}}
	c := newTestCoordinator(svc)
	defer c.Close()

	if err := c.DeleteRow(context.Background(), "row-1"); err != nil {
		t.Fatalf("not-found on delete must be treated as success, got %v", err)
	}
	if _, rows := c.Snapshot(); len(rows) != 1 {
		t.Error("row restored although deletion target was already gone")
	}
}

func TestDeleteRowRollbackOnServerError(t *testing.T) {
	svc := &mockService{deleteRowErr: fmt.Errorf("boom")}
	c := newTestCoordinator(svc)
	defer c.Close()

	if err := c.DeleteRow(context.Background(), "row-1"); err == nil {
		t.Fatal("expected delete error to propagate")
	}
	_, rows := c.Snapshot()
	if len(rows) != 2 || rows[0].ID != "row-1" {
		t.Error("failed deletion must restore the row at its original position")
	}
}

func TestRenameColumnRollbackOnFailure(t *testing.T) {
	svc := &mockService{renameColumnErr: fmt.Errorf("conflict")}
	c := newTestCoordinator(svc)
	defer c.Close()

	if err := c.RenameColumn(context.Background(), "col-1", "Title"); err == nil {
		t.Fatal("expected rename error to propagate")
	}
	cols, _ := c.Snapshot()
	if cols[0].Name != "Name" {
		t.Errorf("column name not rolled back, got %q", cols[0].Name)
	}
}

func TestDuplicateRowPersistsSnapshotValues(t *testing.T) {
	svc := &mockService{}
	c := newTestCoordinator(svc)
	defer c.Close()

	dup, err := c.DuplicateRow(context.Background(), "row-1")
	if err != nil {
		t.Fatalf("duplicate row: %v", err)
	}
	if interfaces.IsTempID(dup.ID) {
		t.Errorf("returned duplicate still carries temporary id %s", dup.ID)
	}

	_, rows := c.Snapshot()
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows after duplication, got %d", len(rows))
	}
	// The duplicate sits directly below its source.
	if rows[1].ID != dup.ID {
		t.Errorf("duplicate at index %d id %s, want position directly below source", 1, rows[1].ID)
	}
	for _, cell := range rows[1].Cells {
		if cell.ColumnID == "col-1" && (cell.Value == nil || *cell.Value != "widget") {
			t.Errorf("duplicate lost source value, got %v", cell.Value)
		}
	}
}

func TestCommitAfterTypingIntoSpeculativeRow(t *testing.T) {
	svc := &mockService{}
	c := newTestCoordinator(svc)
	defer c.Close()

	res, err := c.RequestStructuralChange(StructuralAddRow, StructuralParams{})
	if err != nil {
		t.Fatalf("request add row: %v", err)
	}
	tempID := res.Row.ID
	if !interfaces.IsTempID(tempID) {
		t.Fatalf("speculative row id %s is not temporary", tempID)
	}

	// The user types into the new row while the create is in flight.
	if err := c.ApplyCellEdit(tempID, "col-1", strPtr("typed while saving")); err != nil {
		t.Fatalf("apply: %v", err)
	}

	server := &interfaces.Row{ID: "row-99", Cells: []interfaces.Cell{
		{ID: "cell-x", RowID: "row-99", ColumnID: "col-1", Value: nil},
		{ID: "cell-y", RowID: "row-99", ColumnID: "col-2", Value: nil},
	}}
	if err := c.CommitStructuralChange(res.TokenID, server, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// The typed value survives the swap to the server entity.
	if got, _ := c.CellValue("row-99", "col-1"); got == nil || *got != "typed while saving" {
		t.Errorf("typed value lost across commit, got %v", got)
	}
	// Resolving through the temporary id reaches the same cell.
	if got, _ := c.CellValue(tempID, "col-1"); got == nil || *got != "typed while saving" {
		t.Errorf("temporary id no longer resolves, got %v", got)
	}

	// The queued write dispatches under the server id.
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	calls := svc.callsFor("UpsertCell")
	if len(calls) != 1 || calls[0].rowID != "row-99" {
		t.Errorf("expected one upsert against row-99, got %+v", calls)
	}
}

func TestCommitAfterTypingIntoSpeculativeColumn(t *testing.T) {
	svc := &mockService{}
	c := newTestCoordinator(svc)
	defer c.Close()

	res, err := c.RequestStructuralChange(StructuralAddColumn, StructuralParams{
		Name:       "Notes",
		ColumnType: interfaces.ColumnTypeText,
	})
	if err != nil {
		t.Fatalf("request add column: %v", err)
	}
	tempID := res.Column.ID
	if !interfaces.IsTempID(tempID) {
		t.Fatalf("speculative column id %s is not temporary", tempID)
	}

	// The user types into the new column while the create is in flight.
	if err := c.ApplyCellEdit("row-1", tempID, strPtr("typed while saving")); err != nil {
		t.Fatalf("apply: %v", err)
	}

	server := &interfaces.Column{ID: "col-99", Name: "Notes", Type: interfaces.ColumnTypeText}
	if err := c.CommitStructuralChange(res.TokenID, nil, server); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// The typed value survives the swap to the server column.
	if got, _ := c.CellValue("row-1", "col-99"); got == nil || *got != "typed while saving" {
		t.Errorf("typed value lost across commit, got %v", got)
	}
	// Resolving through the temporary id reaches the same cell.
	if got, _ := c.CellValue("row-1", tempID); got == nil || *got != "typed while saving" {
		t.Errorf("temporary column id no longer resolves, got %v", got)
	}

	// The queued write dispatches under the server column id.
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	calls := svc.callsFor("UpsertCell")
	if len(calls) != 1 || calls[0].columnID != "col-99" {
		t.Errorf("expected one upsert against col-99, got %+v", calls)
	}
}

func TestRollbackStructuralChangeRestoresView(t *testing.T) {
	svc := &mockService{}
	c := newTestCoordinator(svc)
	defer c.Close()

	res, err := c.RequestStructuralChange(StructuralDeleteColumn, StructuralParams{ColumnID: "col-2"})
	if err != nil {
		t.Fatalf("request delete column: %v", err)
	}
	if cols, _ := c.Snapshot(); len(cols) != 1 {
		t.Fatalf("column not removed speculatively, view has %d columns", len(cols))
	}

	if err := c.RollbackStructuralChange(res.TokenID); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	cols, rows := c.Snapshot()
	if len(cols) != 2 || cols[1].ID != "col-2" {
		t.Error("column not restored at its original index")
	}
	for _, row := range rows {
		if row.ID == "row-1" {
			for _, cell := range row.Cells {
				if cell.ColumnID == "col-2" && (cell.Value == nil || *cell.Value != "3") {
					t.Errorf("restored cell lost its value, got %v", cell.Value)
				}
			}
		}
	}
}

func TestUnknownTokenErrors(t *testing.T) {
	svc := &mockService{}
	c := newTestCoordinator(svc)
	defer c.Close()

	if err := c.CommitStructuralChange("nope", nil, nil); err == nil {
		t.Error("commit of unknown token must fail")
	}
	if err := c.RollbackStructuralChange("nope"); err == nil {
		t.Error("rollback of unknown token must fail")
	}
	if _, err := c.RequestStructuralChange(StructuralKind("bogus"), StructuralParams{}); err == nil {
		t.Error("unknown structural kind must fail")
	}
}

func TestClosedCoordinatorRejectsEdits(t *testing.T) {
	svc := &mockService{}
	c := newTestCoordinator(svc)
	c.Close()

	if err := c.ApplyCellEdit("row-1", "col-1", strPtr("late")); err == nil {
		t.Error("edit after close must fail")
	}
	if _, err := c.RequestStructuralChange(StructuralAddRow, StructuralParams{}); err == nil {
		t.Error("structural change after close must fail")
	}
}
