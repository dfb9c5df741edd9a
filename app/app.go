package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/freesam77/airtable-clone-sub001/app/coordinator"
	"github.com/freesam77/airtable-clone-sub001/app/interfaces"
	"github.com/freesam77/airtable-clone-sub001/app/settings"
	syncclient "github.com/freesam77/airtable-clone-sub001/app/sync"
	"github.com/freesam77/airtable-clone-sub001/app/tableio"
	"github.com/freesam77/airtable-clone-sub001/app/viewcache"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// closeFlushDeadline bounds the best-effort flush that runs when a table is
// closed or the window is about to close.
const closeFlushDeadline = 3 * time.Second

// App struct
type App struct {
	ctx context.Context

	// single active table session
	sessionMu sync.RWMutex
	session   *tableSession

	// clipboard init
	clipOnce sync.Once
	clipOK   bool

	// cached computed table pages
	viewCache *viewcache.Cache

	syncClient *syncclient.Client
}

// NewApp creates a new App application struct
func NewApp() *App {
	currentSettings := settings.GetEffectiveSettings()
	cacheSizeBytes := int64(currentSettings.ViewCacheSizeMB) * 1024 * 1024

	return &App{
		viewCache: viewcache.NewCache(cacheSizeBytes),
	}
}

// SetSyncClient sets the persistence client used to fetch tables and
// dispatch writes.
func (a *App) SetSyncClient(c *syncclient.Client) {
	a.syncClient = c
}

// Startup is called when the app starts. The context is saved
// so we can call the runtime methods
func (a *App) Startup(ctx context.Context) {
	a.ctx = ctx

	if a.viewCache != nil {
		a.viewCache.SetLogger(a)
	}
}

// Ctx returns the app context
func (a *App) Ctx() context.Context {
	return a.ctx
}

// Log emits a structured log event to the frontend console window. Before
// the Wails context is attached it falls back to the process log.
func (a *App) Log(level, message string) {
	if a == nil {
		return
	}
	if a.ctx == nil {
		log.Printf("[%s] %s", level, message)
		return
	}
	runtime.EventsEmit(a.ctx, "log", map[string]any{
		"level":   level,
		"message": message,
	})
}

// EnqueueCellEdit applies a cell edit to the optimistic view, records it as
// an undo step, and queues it for background persistence. A nil value clears
// the cell.
func (a *App) EnqueueCellEdit(rowID, columnID string, value *string) error {
	coord, err := a.activeCoordinator()
	if err != nil {
		return err
	}
	if err := coord.ApplyCellEdit(rowID, columnID, value); err != nil {
		return err
	}
	// The queue invalidates again once the write lands; this keeps page
	// reads consistent with the optimistic value in between.
	a.viewCache.InvalidateTable(coord.TableID())
	return nil
}

// Flush blocks until every queued write has been dispatched.
func (a *App) Flush() error {
	coord, err := a.activeCoordinator()
	if err != nil {
		return err
	}
	ctx := a.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return coord.Flush(ctx)
}

// IsDirty reports whether any write is still queued for the open table.
func (a *App) IsDirty() bool {
	coord, err := a.activeCoordinator()
	if err != nil {
		return false
	}
	return coord.IsDirty()
}

// PendingWriteCount returns the number of queued cell writes.
func (a *App) PendingWriteCount() int {
	coord, err := a.activeCoordinator()
	if err != nil {
		return 0
	}
	return coord.PendingCount()
}

// IsProcessing reports whether a write is currently in flight.
func (a *App) IsProcessing() bool {
	coord, err := a.activeCoordinator()
	if err != nil {
		return false
	}
	return coord.IsProcessing()
}

// CancelForDeletedRow discards every queued write targeting a row, returning
// how many were dropped. Used when the frontend deletes a row it knows has
// pending edits.
func (a *App) CancelForDeletedRow(rowID string) int {
	coord, err := a.activeCoordinator()
	if err != nil {
		return 0
	}
	return coord.CancelForDeletedRow(rowID)
}

// Undo reverts the most recent edit step. Returns false when there is
// nothing to undo.
func (a *App) Undo() bool {
	coord, err := a.activeCoordinator()
	if err != nil {
		return false
	}
	if !coord.Undo() {
		return false
	}
	a.viewCache.InvalidateTable(coord.TableID())
	a.emitTableChanged(coord.TableID())
	return true
}

// Redo re-applies the most recently undone edit step.
func (a *App) Redo() bool {
	coord, err := a.activeCoordinator()
	if err != nil {
		return false
	}
	if !coord.Redo() {
		return false
	}
	a.viewCache.InvalidateTable(coord.TableID())
	a.emitTableChanged(coord.TableID())
	return true
}

// CanUndo reports whether an undo step is available.
func (a *App) CanUndo() bool {
	coord, err := a.activeCoordinator()
	if err != nil {
		return false
	}
	return coord.CanUndo()
}

// CanRedo reports whether a redo step is available.
func (a *App) CanRedo() bool {
	coord, err := a.activeCoordinator()
	if err != nil {
		return false
	}
	return coord.CanRedo()
}

// AddRow creates a row with the given initial values (keyed by column id),
// visible immediately and persisted synchronously.
func (a *App) AddRow(values map[string]*string) (*interfaces.Row, error) {
	coord, err := a.activeCoordinator()
	if err != nil {
		return nil, err
	}
	row, err := coord.AddRow(a.opCtx(), values)
	if err != nil {
		return nil, err
	}
	a.afterStructuralChange(coord.TableID())
	return row, nil
}

// DeleteRow removes a row. Queued writes against it are cancelled first so
// no write can race the deletion.
func (a *App) DeleteRow(rowID string) error {
	coord, err := a.activeCoordinator()
	if err != nil {
		return err
	}
	if err := coord.DeleteRow(a.opCtx(), rowID); err != nil {
		return err
	}
	a.afterStructuralChange(coord.TableID())
	return nil
}

// DuplicateRow copies a row with the values it had at the moment of the
// request.
func (a *App) DuplicateRow(rowID string) (*interfaces.Row, error) {
	coord, err := a.activeCoordinator()
	if err != nil {
		return nil, err
	}
	row, err := coord.DuplicateRow(a.opCtx(), rowID)
	if err != nil {
		return nil, err
	}
	a.afterStructuralChange(coord.TableID())
	return row, nil
}

// AddColumn appends a column of the given type.
func (a *App) AddColumn(name string, columnType string) (*interfaces.Column, error) {
	coord, err := a.activeCoordinator()
	if err != nil {
		return nil, err
	}
	col, err := coord.AddColumn(a.opCtx(), name, interfaces.ColumnType(columnType))
	if err != nil {
		return nil, err
	}
	a.afterStructuralChange(coord.TableID())
	return col, nil
}

// DeleteColumn removes a column and all of its cells.
func (a *App) DeleteColumn(columnID string) error {
	coord, err := a.activeCoordinator()
	if err != nil {
		return err
	}
	if err := coord.DeleteColumn(a.opCtx(), columnID); err != nil {
		return err
	}
	a.afterStructuralChange(coord.TableID())
	return nil
}

// RenameColumn changes a column's display name.
func (a *App) RenameColumn(columnID, name string) error {
	coord, err := a.activeCoordinator()
	if err != nil {
		return err
	}
	if err := coord.RenameColumn(a.opCtx(), columnID, name); err != nil {
		return err
	}
	a.afterStructuralChange(coord.TableID())
	return nil
}

// DuplicateColumn copies a column including its current cell values.
func (a *App) DuplicateColumn(columnID string) (*interfaces.Column, error) {
	coord, err := a.activeCoordinator()
	if err != nil {
		return nil, err
	}
	col, err := coord.DuplicateColumn(a.opCtx(), columnID)
	if err != nil {
		return nil, err
	}
	a.afterStructuralChange(coord.TableID())
	return col, nil
}

// RequestStructuralChange applies a structural change speculatively and
// returns a rollback token. The caller persists the change itself and then
// settles the token with CommitStructuralChange or RollbackStructuralChange.
func (a *App) RequestStructuralChange(kind string, params coordinator.StructuralParams) (*coordinator.StructuralResult, error) {
	coord, err := a.activeCoordinator()
	if err != nil {
		return nil, err
	}
	result, err := coord.RequestStructuralChange(coordinator.StructuralKind(kind), params)
	if err != nil {
		return nil, err
	}
	a.afterStructuralChange(coord.TableID())
	return result, nil
}

// CommitStructuralChange settles a parked token with the server entity the
// persistence call returned (nil for deletions and renames).
func (a *App) CommitStructuralChange(tokenID string, row *interfaces.Row, column *interfaces.Column) error {
	coord, err := a.activeCoordinator()
	if err != nil {
		return err
	}
	if err := coord.CommitStructuralChange(tokenID, row, column); err != nil {
		return err
	}
	a.afterStructuralChange(coord.TableID())
	return nil
}

// RollbackStructuralChange reverts a speculative structural change whose
// persistence failed.
func (a *App) RollbackStructuralChange(tokenID string) error {
	coord, err := a.activeCoordinator()
	if err != nil {
		return err
	}
	if err := coord.RollbackStructuralChange(tokenID); err != nil {
		return err
	}
	a.afterStructuralChange(coord.TableID())
	return nil
}

// TableDataResponse is one page of the open table's optimistic view.
type TableDataResponse struct {
	TableID   string              `json:"tableId"`
	Name      string              `json:"name"`
	Columns   []interfaces.Column `json:"columns"`
	Rows      []interfaces.Row    `json:"rows"`
	TotalRows int                 `json:"totalRows"`
	Offset    int                 `json:"offset"`
	Dirty     bool                `json:"dirty"`
	FromCache bool                `json:"fromCache"`
}

// GetTableData returns a page of rows from the optimistic view. Pages are
// served from the view cache when the table has not changed since they were
// computed.
func (a *App) GetTableData(offset, limit int) (*TableDataResponse, error) {
	session := a.activeSession()
	if session == nil {
		return nil, fmt.Errorf("no table is open")
	}
	coord := session.coord

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 200
	}

	key := viewcache.Key(coord.TableID(), "page", strconv.Itoa(offset), strconv.Itoa(limit))
	if entry, ok := a.viewCache.Get(key); ok {
		return &TableDataResponse{
			TableID:   coord.TableID(),
			Name:      session.name,
			Columns:   entry.Columns,
			Rows:      entry.Rows,
			TotalRows: entry.TotalRows,
			Offset:    offset,
			Dirty:     coord.IsDirty(),
			FromCache: true,
		}, nil
	}

	columns, rows := coord.Snapshot()
	total := len(rows)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := rows[offset:end]

	a.viewCache.Store(key, columns, page, total)

	return &TableDataResponse{
		TableID:   coord.TableID(),
		Name:      session.name,
		Columns:   columns,
		Rows:      page,
		TotalRows: total,
		Offset:    offset,
		Dirty:     coord.IsDirty(),
	}, nil
}

// ImportRowsFromJSON reads a JSON file, selects records with a JSONPath
// expression, and creates one row per record. Columns missing from the table
// are created as text columns. Returns the number of rows created.
func (a *App) ImportRowsFromJSON(filePath, expression string) (int, error) {
	result, err := tableio.ImportJSONRows(filePath, expression)
	if err != nil {
		return 0, err
	}
	return a.applyImport(result)
}

// ImportRowsFromGlob imports rows from every JSON file under root matching
// the doublestar pattern (e.g. "exports/**/*.json").
func (a *App) ImportRowsFromGlob(root, pattern, expression string) (int, error) {
	result, err := tableio.ImportGlobRows(root, pattern, expression)
	if err != nil {
		return 0, err
	}
	return a.applyImport(result)
}

func (a *App) applyImport(result *tableio.ImportResult) (int, error) {
	coord, err := a.activeCoordinator()
	if err != nil {
		return 0, err
	}
	ctx := a.opCtx()

	columns, _ := coord.Snapshot()
	byName := make(map[string]string, len(columns))
	for _, col := range columns {
		byName[col.Name] = col.ID
	}

	columnIDs := make([]string, len(result.Headers))
	for i, header := range result.Headers {
		id, ok := byName[header]
		if !ok {
			col, err := coord.AddColumn(ctx, header, interfaces.ColumnTypeText)
			if err != nil {
				return 0, fmt.Errorf("failed to create column %q: %w", header, err)
			}
			id = col.ID
		}
		columnIDs[i] = id
	}

	created := 0
	for _, row := range result.Rows {
		values := make(map[string]*string, len(row))
		for i, value := range row {
			if value == nil {
				continue
			}
			values[columnIDs[i]] = value
		}
		if _, err := coord.AddRow(ctx, values); err != nil {
			a.afterStructuralChange(coord.TableID())
			return created, fmt.Errorf("failed to create row %d of %d: %w", created+1, len(result.Rows), err)
		}
		created++
	}

	a.Log("info", fmt.Sprintf("[IMPORT] Created %d rows across %d columns", created, len(result.Headers)))
	a.afterStructuralChange(coord.TableID())
	return created, nil
}

// OpenJSONFileDialog opens a file picker for JSON import sources.
func (a *App) OpenJSONFileDialog() (string, error) {
	return runtime.OpenFileDialog(a.ctx, runtime.OpenDialogOptions{
		Title: "Select JSON File to Import",
		Filters: []runtime.FileFilter{
			{DisplayName: "JSON Files", Pattern: "*.json"},
			{DisplayName: "All Files", Pattern: "*"},
		},
	})
}

// OpenImportDirectoryDialog opens a directory picker for glob imports.
func (a *App) OpenImportDirectoryDialog() (string, error) {
	return runtime.OpenDirectoryDialog(a.ctx, runtime.OpenDialogOptions{
		Title: "Select Directory to Import From",
	})
}

// ExportTableSnapshot opens a save dialog and writes the current optimistic
// view to an .xlsx workbook. Returns the chosen path, or "" if the user
// cancelled.
func (a *App) ExportTableSnapshot() (string, error) {
	session := a.activeSession()
	if session == nil {
		return "", fmt.Errorf("no table is open")
	}
	if a.ctx == nil {
		return "", fmt.Errorf("app context not initialized")
	}

	path, err := runtime.SaveFileDialog(a.ctx, runtime.SaveDialogOptions{
		Title:           "Export Table Snapshot",
		DefaultFilename: session.name + ".xlsx",
		Filters:         []runtime.FileFilter{{DisplayName: "Excel Workbook", Pattern: "*.xlsx"}},
	})
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", nil
	}

	columns, rows := session.coord.Snapshot()
	if err := tableio.ExportXLSX(path, session.name, columns, rows); err != nil {
		return "", fmt.Errorf("failed to export table: %w", err)
	}

	a.Log("info", fmt.Sprintf("[EXPORT] Wrote %d rows to %s", len(rows), filepath.Base(path)))
	return path, nil
}

// BeforeClose runs when the window is about to close. A dirty coordinator
// gets a bounded flush; writes that still did not land are preserved in a
// compressed snapshot beside the settings file and the user is asked to
// confirm. Returning true prevents the close.
func (a *App) BeforeClose(ctx context.Context) bool {
	coord, err := a.activeCoordinator()
	if err != nil || !coord.IsDirty() {
		return false
	}

	flushCtx, cancel := context.WithTimeout(ctx, closeFlushDeadline)
	defer cancel()
	if err := coord.Flush(flushCtx); err == nil {
		return false
	}

	pending := coord.PendingOperations()
	a.Log("warning", fmt.Sprintf("[UNLOAD_GUARD] %d writes still pending after flush deadline", len(pending)))

	if path, err := pendingSnapshotPath(); err == nil {
		if err := tableio.WriteSnapshot(path, coord.TableID(), pending); err != nil {
			a.Log("error", fmt.Sprintf("[UNLOAD_GUARD] Failed to write pending snapshot: %v", err))
		} else {
			a.Log("info", fmt.Sprintf("[UNLOAD_GUARD] Saved pending writes to %s", path))
		}
	}

	choice, err := runtime.MessageDialog(ctx, runtime.MessageDialogOptions{
		Type:          runtime.QuestionDialog,
		Title:         "Unsaved Changes",
		Message:       fmt.Sprintf("%d cell changes have not reached the server yet. Quit anyway?", len(pending)),
		Buttons:       []string{"Quit Anyway", "Cancel"},
		DefaultButton: "Cancel",
	})
	if err != nil {
		return false
	}
	return choice == "Cancel"
}

// pendingSnapshotPath returns where unresolved writes are saved on close,
// next to the settings file.
func pendingSnapshotPath() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	return filepath.Join(filepath.Dir(exePath), "gridbase-pending.json.xz"), nil
}

// ClearViewCaches drops every cached table page. Called by the settings
// service when a change invalidates computed views.
func (a *App) ClearViewCaches() {
	if a.viewCache == nil {
		return
	}
	a.viewCache.Clear()
}

// UpdateCacheSize updates the view cache size limit based on current settings
func (a *App) UpdateCacheSize() {
	if a.viewCache == nil {
		return
	}
	currentSettings := settings.GetEffectiveSettings()
	newSizeBytes := int64(currentSettings.ViewCacheSizeMB) * 1024 * 1024
	a.viewCache.UpdateMaxSize(newSizeBytes)

	a.Log("debug", fmt.Sprintf("Updated view cache size limit to %d MB (%d bytes)",
		currentSettings.ViewCacheSizeMB, newSizeBytes))
}

// CacheStatsResponse contains view cache statistics for the frontend
type CacheStatsResponse struct {
	TotalSize    int64   `json:"totalSize"`
	MaxSize      int64   `json:"maxSize"`
	UsagePercent float64 `json:"usagePercent"`
	EntryCount   int     `json:"entryCount"`
	HitRate      float64 `json:"hitRate"`
}

// GetCacheStats returns the current view cache statistics for the frontend
func (a *App) GetCacheStats() CacheStatsResponse {
	if a.viewCache == nil {
		return CacheStatsResponse{}
	}
	stats := a.viewCache.GetStats()
	return CacheStatsResponse{
		TotalSize:    stats.TotalSize,
		MaxSize:      stats.MaxSize,
		UsagePercent: stats.UsagePercent,
		EntryCount:   stats.TotalEntries,
		HitRate:      stats.HitRate,
	}
}

// SaveWindowSize saves the current window dimensions to the settings file
func (a *App) SaveWindowSize(width, height int) error {
	if width < 400 || height < 300 {
		return fmt.Errorf("window size too small: minimum 400x300, got %dx%d", width, height)
	}

	currentSettings := settings.GetEffectiveSettings()
	currentSettings.WindowWidth = width
	currentSettings.WindowHeight = height

	settingsService := settings.NewSettingsService()
	return settingsService.SaveSettings(currentSettings)
}

// GetSavedWindowSize returns the saved window dimensions from settings
func (a *App) GetSavedWindowSize() (width, height int, err error) {
	currentSettings := settings.GetEffectiveSettings()

	width = currentSettings.WindowWidth
	height = currentSettings.WindowHeight

	if width < 400 {
		width = 1280
	}
	if height < 300 {
		height = 800
	}

	return width, height, nil
}

// GetInstanceID returns a unique identifier for this application instance
func (a *App) GetInstanceID() (string, error) {
	currentSettings := settings.GetEffectiveSettings()
	if currentSettings.InstanceID == "" {
		return "", fmt.Errorf("instance ID not found in settings")
	}
	return currentSettings.InstanceID, nil
}

// opCtx returns the context structural operations run under.
func (a *App) opCtx() context.Context {
	if a.ctx != nil {
		return a.ctx
	}
	return context.Background()
}

// afterStructuralChange invalidates cached pages and tells the frontend to
// refetch.
func (a *App) afterStructuralChange(tableID string) {
	a.viewCache.InvalidateTable(tableID)
	a.emitTableChanged(tableID)
}

func (a *App) emitTableChanged(tableID string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, "table:changed", tableID)
}
