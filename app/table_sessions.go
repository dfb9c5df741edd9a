package app

import (
	"context"
	"fmt"
	"time"

	"github.com/freesam77/airtable-clone-sub001/app/coordinator"
	"github.com/freesam77/airtable-clone-sub001/app/settings"
	"github.com/freesam77/airtable-clone-sub001/app/table"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// tableSession holds the live state of the one open table: its optimistic
// view wrapped in a coordinator, plus display metadata.
type tableSession struct {
	coord    *coordinator.Coordinator
	name     string
	openedAt time.Time
}

// OpenTableResult describes the table that was just opened.
type OpenTableResult struct {
	TableID string `json:"tableId"`
	Name    string `json:"name"`
	Columns int    `json:"columns"`
	Rows    int    `json:"rows"`
}

// OpenTable fetches a table from the server and makes it the active session.
// Any previously open table is flushed best-effort and closed first; one
// coordinator exists per open table.
func (a *App) OpenTable(tableID string) (*OpenTableResult, error) {
	if a.syncClient == nil {
		return nil, fmt.Errorf("sync client not initialized")
	}

	ctx := a.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	fetched, err := a.syncClient.GetTable(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch table %s: %w", tableID, err)
	}

	if err := a.CloseTable(); err != nil {
		a.Log("warning", fmt.Sprintf("[SESSION_OPEN] Closing previous table reported: %v", err))
	}

	currentSettings := settings.GetEffectiveSettings()
	view := table.NewView(fetched.ID, fetched.Name, fetched.Columns, fetched.Rows)
	coord := coordinator.New(coordinator.Config{
		TableID:      fetched.ID,
		Service:      a.syncClient,
		View:         view,
		Logger:       a,
		Invalidator:  a.viewCache,
		Settle:       time.Duration(currentSettings.DebounceMs) * time.Millisecond,
		UndoCapacity: currentSettings.UndoCapacity,
	})

	a.sessionMu.Lock()
	a.session = &tableSession{coord: coord, name: fetched.Name, openedAt: time.Now()}
	a.sessionMu.Unlock()

	a.Log("info", fmt.Sprintf("[SESSION_OPEN] Opened table %s (%s) with %d columns, %d rows",
		fetched.ID, fetched.Name, len(fetched.Columns), len(fetched.Rows)))

	if a.ctx != nil {
		runtime.EventsEmit(a.ctx, "table:opened", fetched.ID)
	}

	return &OpenTableResult{
		TableID: fetched.ID,
		Name:    fetched.Name,
		Columns: len(fetched.Columns),
		Rows:    len(fetched.Rows),
	}, nil
}

// CloseTable flushes the active session best-effort and tears it down.
// Closing when no table is open is a no-op.
func (a *App) CloseTable() error {
	a.sessionMu.Lock()
	session := a.session
	a.session = nil
	a.sessionMu.Unlock()

	if session == nil {
		return nil
	}

	var flushErr error
	if session.coord.IsDirty() {
		ctx, cancel := context.WithTimeout(context.Background(), closeFlushDeadline)
		defer cancel()
		if err := session.coord.Flush(ctx); err != nil {
			flushErr = fmt.Errorf("flush on close: %w", err)
			a.Log("error", fmt.Sprintf("[SESSION_CLOSE] Flush failed for table %s: %v",
				session.coord.TableID(), err))
		}
	}

	a.viewCache.InvalidateTable(session.coord.TableID())
	session.coord.Close()
	a.Log("info", fmt.Sprintf("[SESSION_CLOSE] Closed table %s", session.coord.TableID()))
	return flushErr
}

// activeSession returns the current session or nil when no table is open.
func (a *App) activeSession() *tableSession {
	a.sessionMu.RLock()
	defer a.sessionMu.RUnlock()
	return a.session
}

// activeCoordinator returns the coordinator of the open table, or an error
// suitable to surface to the frontend when nothing is open.
func (a *App) activeCoordinator() (*coordinator.Coordinator, error) {
	session := a.activeSession()
	if session == nil {
		return nil, fmt.Errorf("no table is open")
	}
	return session.coord, nil
}

// ActiveTableID returns the id of the open table, or "" when none is open.
func (a *App) ActiveTableID() string {
	session := a.activeSession()
	if session == nil {
		return ""
	}
	return session.coord.TableID()
}
