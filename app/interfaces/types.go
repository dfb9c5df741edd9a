package interfaces

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix marks client-generated placeholder identifiers that have not
// yet been confirmed by the server.
const TempIDPrefix = "temp-"

// NewTempID generates a client-side placeholder identifier for an entity
// created optimistically before server confirmation.
func NewTempID() string {
	return TempIDPrefix + uuid.New().String()
}

// IsTempID reports whether an identifier is a client-generated placeholder.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// CellAddress identifies a single editable cell. Two addresses are equal iff
// both components are equal, so the struct is usable as a map key.
type CellAddress struct {
	RowID    string `json:"rowId"`
	ColumnID string `json:"columnId"`
}

func (a CellAddress) String() string {
	return a.RowID + "/" + a.ColumnID
}

// CellUpdate is a single cell write. A nil Value means "clear the cell".
type CellUpdate struct {
	Address CellAddress `json:"address"`
	Value   *string     `json:"value"`
}

// ColumnType enumerates the supported column value types.
type ColumnType string

const (
	ColumnTypeText   ColumnType = "TEXT"
	ColumnTypeNumber ColumnType = "NUMBER"
)

// Column describes a table column in the optimistic view.
type Column struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	Position int        `json:"position"`
	Required bool       `json:"required"`
}

// Cell holds a single value plus a column snapshot for display.
type Cell struct {
	ID       string  `json:"id"`
	ColumnID string  `json:"columnId"`
	RowID    string  `json:"rowId"`
	Value    *string `json:"value"`
	Column   Column  `json:"column"`
}

// Row is a table row in the optimistic view. A row created client-side holds
// a temporary id until the server confirms the creation.
type Row struct {
	ID        string    `json:"id"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Cells     []Cell    `json:"cells"`
}

// CellHistoryChange records one reversible cell transition inside an undo
// step. Undo replays Previous, redo replays Next.
type CellHistoryChange struct {
	RowID    string  `json:"rowId"`
	ColumnID string  `json:"columnId"`
	Previous *string `json:"previousValue"`
	Next     *string `json:"nextValue"`
}

// PersistenceService is the abstract remote store the Write Coordinator
// dispatches to. Implementations are expected to be safe for use from a
// single dispatch goroutine at a time.
type PersistenceService interface {
	UpsertCell(ctx context.Context, rowID, columnID string, value *string) error
	CreateRow(ctx context.Context, tableID string, cells []CellUpdate) (*Row, error)
	CreateColumn(ctx context.Context, tableID, name string, columnType ColumnType) (*Column, error)
	DeleteRow(ctx context.Context, rowID string) error
	DeleteColumn(ctx context.Context, columnID string) error
	RenameColumn(ctx context.Context, columnID, name string) (*Column, error)
	DuplicateColumn(ctx context.Context, columnID string) (*Column, error)
}

// NotFoundError indicates the target row or column no longer exists on the
// server. The coordinator treats it as a benign race and drops the operation.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// AccessDeniedError indicates the caller lacks permission for the target
// entity. Like NotFoundError it is treated as silently droppable.
type AccessDeniedError struct {
	Resource string
	ID       string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied to %s %s", e.Resource, e.ID)
}

// IsStaleTarget reports whether an error means the write target is gone or
// off-limits and the operation should be dropped without surfacing an error.
func IsStaleTarget(err error) bool {
	return IsNotFound(err) || IsAccessDenied(err)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsAccessDenied reports whether err is (or wraps) an AccessDeniedError.
func IsAccessDenied(err error) bool {
	var ad *AccessDeniedError
	return errors.As(err, &ad)
}

// Logger is implemented by anything that can receive leveled log lines.
// Packages that cannot depend on the Wails runtime log through this.
type Logger interface {
	Log(level string, message string)
}
