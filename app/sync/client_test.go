package sync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/freesam77/airtable-clone-sub001/app/interfaces"

	"github.com/golang-jwt/jwt/v5"
)

func strPtr(s string) *string { return &s }

func newTestClient(server *httptest.Server) *Client {
	c := NewClient()
	c.base = server.URL
	return c
}

func TestUpsertCellRequestShape(t *testing.T) {
	var gotMethod, gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	c := newTestClient(server)

	if err := c.UpsertCell(context.Background(), "row-1", "col-2", strPtr("hello")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if gotMethod != "PUT" || gotPath != "/rows/row-1/cells/col-2" {
		t.Errorf("request was %s %s", gotMethod, gotPath)
	}
	var payload struct {
		Value *string `json:"value"`
	}
	if err := json.Unmarshal([]byte(gotBody), &payload); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if payload.Value == nil || *payload.Value != "hello" {
		t.Errorf("body value = %v, want hello", payload.Value)
	}
}

func TestUpsertCellNilValueSerializesNull(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	c := newTestClient(server)

	if err := c.UpsertCell(context.Background(), "row-1", "col-2", nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if gotBody != `{"value":null}` {
		t.Errorf("body = %s, want explicit null value", gotBody)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantNotFound bool
		wantDenied   bool
	}{
		{
			name:         "404 maps to not found",
			status:       http.StatusNotFound,
			body:         `{"error":{"code":"ROW_NOT_FOUND","message":"row gone"}}`,
			wantNotFound: true,
		},
		{
			name:       "403 maps to access denied",
			status:     http.StatusForbidden,
			body:       `{"error":{"code":"FORBIDDEN","message":"no access"}}`,
			wantDenied: true,
		},
		{
			name:   "500 is a plain error",
			status: http.StatusInternalServerError,
			body:   `{"error":{"code":"INTERNAL","message":"boom"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()
			c := newTestClient(server)

			err := c.UpsertCell(context.Background(), "row-1", "col-1", strPtr("x"))
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := interfaces.IsNotFound(err); got != tt.wantNotFound {
				t.Errorf("IsNotFound = %v, want %v (err: %v)", got, tt.wantNotFound, err)
			}
			if got := interfaces.IsAccessDenied(err); got != tt.wantDenied {
				t.Errorf("IsAccessDenied = %v, want %v (err: %v)", got, tt.wantDenied, err)
			}
		})
	}
}

func TestCreateRowSendsCellsKeyedByColumn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req createRowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if v, ok := req.Cells["col-1"]; !ok || v == nil || *v != "seed" {
			t.Errorf("cells = %v, want col-1=seed", req.Cells)
		}
		w.Write([]byte(`{"id":"row-9","position":3,"createdAt":"2026-08-01T10:00:00Z","updatedAt":"2026-08-01T10:00:00Z","cells":[{"id":"c1","rowId":"row-9","columnId":"col-1","value":"seed"}]}`))
	}))
	defer server.Close()
	c := newTestClient(server)

	row, err := c.CreateRow(context.Background(), "table-1", []interfaces.CellUpdate{
		{Address: interfaces.CellAddress{RowID: "temp-x", ColumnID: "col-1"}, Value: strPtr("seed")},
	})
	if err != nil {
		t.Fatalf("create row: %v", err)
	}
	if row.ID != "row-9" || row.Position != 3 {
		t.Errorf("row = %+v", row)
	}
	if row.CreatedAt.IsZero() {
		t.Error("createdAt not parsed")
	}
	if len(row.Cells) != 1 || row.Cells[0].Value == nil || *row.Cells[0].Value != "seed" {
		t.Errorf("cells = %+v", row.Cells)
	}
}

func TestGetTableBuildsColumnSnapshots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tables/table-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"id":"table-1","name":"Inventory",
			"columns":[{"id":"col-1","name":"Name","type":"TEXT","position":0}],
			"rows":[{"id":"row-1","position":0,"createdAt":"2026-08-01T10:00:00Z","updatedAt":"2026-08-01T11:00:00Z",
				"cells":[{"id":"c1","rowId":"row-1","columnId":"col-1","value":"widget"}]}]
		}`))
	}))
	defer server.Close()
	c := newTestClient(server)

	table, err := c.GetTable(context.Background(), "table-1")
	if err != nil {
		t.Fatalf("get table: %v", err)
	}
	if table.Name != "Inventory" || len(table.Columns) != 1 || len(table.Rows) != 1 {
		t.Fatalf("table = %+v", table)
	}
	cell := table.Rows[0].Cells[0]
	if cell.Column.Name != "Name" || cell.Column.Type != interfaces.ColumnTypeText {
		t.Errorf("cell column snapshot not attached: %+v", cell.Column)
	}
}

func TestDeleteColumnPath(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()
	c := newTestClient(server)

	if err := c.DeleteColumn(context.Background(), "col-7"); err != nil {
		t.Fatalf("delete column: %v", err)
	}
	if gotMethod != "DELETE" || gotPath != "/columns/col-7" {
		t.Errorf("request was %s %s", gotMethod, gotPath)
	}
}

func TestTokenNeedsRefresh(t *testing.T) {
	mint := func(exp time.Time) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"exp": exp.Unix(),
		})
		signed, err := tok.SignedString([]byte("test-key"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return signed
	}

	if !tokenNeedsRefresh(mint(time.Now().Add(5 * time.Second))) {
		t.Error("token expiring in 5s must need refresh")
	}
	if tokenNeedsRefresh(mint(time.Now().Add(10 * time.Minute))) {
		t.Error("token valid for 10m must not need refresh")
	}
	if tokenNeedsRefresh("not-a-jwt") {
		t.Error("unparseable token must not trigger refresh")
	}
}
