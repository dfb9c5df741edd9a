// Package sync talks to the Gridbase table API. It implements the
// persistence service the Write Coordinator dispatches to, plus the token
// lifecycle for the authenticated session.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/freesam77/airtable-clone-sub001/app/interfaces"
	"github.com/freesam77/airtable-clone-sub001/app/settings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// BaseURL is the base URL for the table API
	BaseURL = "https://api.gridbase.app/v1"

	// refreshLeeway is how close to expiry a session token may get before a
	// request proactively refreshes it instead of waiting for a 401
	refreshLeeway = 30 * time.Second
)

// Client manages API calls and authentication. The coordinator dispatches
// from a single goroutine per table, so the refresh guard is a plain bool.
type Client struct {
	ctx             context.Context
	client          *http.Client
	refreshingToken bool   // Prevents recursive refresh attempts
	base            string // overrides the resolved base URL when non-empty
}

// NewClient creates an API client.
func NewClient() *Client {
	return &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		refreshingToken: false,
	}
}

// Startup receives the Wails context
func (c *Client) Startup(ctx context.Context) {
	c.ctx = ctx
}

// baseURL returns the settings override if present, else the compiled-in URL.
func (c *Client) baseURL() string {
	if c.base != "" {
		return c.base
	}
	if override := settings.GetEffectiveSettings().APIBaseURL; override != "" {
		return strings.TrimRight(override, "/")
	}
	return BaseURL
}

// IsLoggedIn reports whether a full token pair is stored.
func (c *Client) IsLoggedIn() bool {
	currentSettings := settings.GetEffectiveSettings()
	return currentSettings.SyncSessionToken != "" && currentSettings.SyncRefreshToken != ""
}

// GetTable fetches a table with its columns and rows.
func (c *Client) GetTable(ctx context.Context, tableID string) (*Table, error) {
	if tableID == "" {
		return nil, fmt.Errorf("table id is required")
	}
	body, err := c.doJSON(ctx, "GET", fmt.Sprintf("/tables/%s", tableID), nil, "table", tableID)
	if err != nil {
		return nil, err
	}
	var result wireTable
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal table: %w", err)
	}
	return result.toTable(), nil
}

// UpsertCell writes one cell value. A nil value clears the cell.
func (c *Client) UpsertCell(ctx context.Context, rowID, columnID string, value *string) error {
	path := fmt.Sprintf("/rows/%s/cells/%s", rowID, columnID)
	_, err := c.doJSON(ctx, "PUT", path, cellValueBody{Value: value}, "row", rowID)
	return err
}

// CreateRow creates a row, optionally with initial cell values.
func (c *Client) CreateRow(ctx context.Context, tableID string, cells []interfaces.CellUpdate) (*interfaces.Row, error) {
	reqBody := createRowRequest{}
	if len(cells) > 0 {
		reqBody.Cells = make(map[string]*string, len(cells))
		for _, cell := range cells {
			reqBody.Cells[cell.Address.ColumnID] = cell.Value
		}
	}
	body, err := c.doJSON(ctx, "POST", fmt.Sprintf("/tables/%s/rows", tableID), reqBody, "table", tableID)
	if err != nil {
		return nil, err
	}
	var result wireRow
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal row: %w", err)
	}
	row := result.toRow(nil)
	return &row, nil
}

// CreateColumn creates a column.
func (c *Client) CreateColumn(ctx context.Context, tableID, name string, columnType interfaces.ColumnType) (*interfaces.Column, error) {
	if name == "" {
		return nil, fmt.Errorf("column name is required")
	}
	reqBody := createColumnRequest{Name: name, Type: string(columnType)}
	body, err := c.doJSON(ctx, "POST", fmt.Sprintf("/tables/%s/columns", tableID), reqBody, "table", tableID)
	if err != nil {
		return nil, err
	}
	return unmarshalColumn(body)
}

// DeleteRow deletes a row.
func (c *Client) DeleteRow(ctx context.Context, rowID string) error {
	_, err := c.doJSON(ctx, "DELETE", fmt.Sprintf("/rows/%s", rowID), nil, "row", rowID)
	return err
}

// DeleteColumn deletes a column and its cells.
func (c *Client) DeleteColumn(ctx context.Context, columnID string) error {
	_, err := c.doJSON(ctx, "DELETE", fmt.Sprintf("/columns/%s", columnID), nil, "column", columnID)
	return err
}

// RenameColumn updates a column's name.
func (c *Client) RenameColumn(ctx context.Context, columnID, name string) (*interfaces.Column, error) {
	if name == "" {
		return nil, fmt.Errorf("column name is required")
	}
	reqBody := renameColumnRequest{Name: name}
	body, err := c.doJSON(ctx, "PATCH", fmt.Sprintf("/columns/%s", columnID), reqBody, "column", columnID)
	if err != nil {
		return nil, err
	}
	return unmarshalColumn(body)
}

// DuplicateColumn asks the server to copy a column including cell values.
func (c *Client) DuplicateColumn(ctx context.Context, columnID string) (*interfaces.Column, error) {
	body, err := c.doJSON(ctx, "POST", fmt.Sprintf("/columns/%s/duplicate", columnID), nil, "column", columnID)
	if err != nil {
		return nil, err
	}
	return unmarshalColumn(body)
}

func unmarshalColumn(body []byte) (*interfaces.Column, error) {
	var result wireColumn
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal column: %w", err)
	}
	col := result.toColumn()
	return &col, nil
}

// doJSON builds an authenticated JSON request, sends it through the
// refresh-aware transport, and maps error envelopes to typed errors.
// resource/id feed the typed errors for 403 and 404 responses.
func (c *Client) doJSON(ctx context.Context, method, path string, reqBody any, resource, id string) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		bodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL()+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.doRequestWithAuth(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.apiError(resp.StatusCode, body, resource, id)
	}
	return body, nil
}

// apiError maps an error envelope to a typed error where the coordinator
// needs to distinguish outcomes, and a plain error otherwise.
func (c *Client) apiError(status int, body []byte, resource, id string) error {
	switch status {
	case http.StatusNotFound:
		return &interfaces.NotFoundError{Resource: resource, ID: id}
	case http.StatusForbidden:
		// doRequestWithAuth already refreshed and retried; a 403 here is a
		// real permission failure, not an expired token.
		return &interfaces.AccessDeniedError{Resource: resource, ID: id}
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Code == "" {
		return fmt.Errorf("request failed with status %d: %s", status, string(body))
	}
	return fmt.Errorf("%s: %s", errResp.Error.Code, errResp.Error.Message)
}

// doRequestWithAuth performs an HTTP request with automatic token refresh on 401/403 errors
func (c *Client) doRequestWithAuth(req *http.Request) (*http.Response, error) {
	currentSettings := settings.GetEffectiveSettings()
	if currentSettings.SyncSessionToken != "" {
		// Refresh proactively when the token is about to expire, saving the
		// failed round trip.
		if tokenNeedsRefresh(currentSettings.SyncSessionToken) && !c.refreshingToken {
			if err := c.RefreshAuthToken(); err == nil {
				currentSettings = settings.GetEffectiveSettings()
			}
		}
		req.Header.Set("Authorization", "Bearer "+currentSettings.SyncSessionToken)
	}

	// Buffer the body so the request can be retried after a refresh.
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to buffer request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	// If we get a 401 or 403 and hold a refresh token, refresh and retry
	// once. API gateways return 403 for expired/invalid tokens. Without a
	// refresh token the response stands and maps to a typed error upstream.
	canRefresh := settings.GetEffectiveSettings().SyncRefreshToken != ""
	if canRefresh && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		resp.Body.Close()

		if err := c.RefreshAuthToken(); err != nil {
			if strings.Contains(err.Error(), "token refresh failed with status 401") ||
				strings.Contains(err.Error(), "token refresh failed with status 403") {
				return nil, fmt.Errorf("session expired - please log in again")
			}
			return nil, fmt.Errorf("failed to refresh auth token: %w", err)
		}

		currentSettings = settings.GetEffectiveSettings()
		req.Header.Set("Authorization", "Bearer "+currentSettings.SyncSessionToken)
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, err = c.client.Do(req)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// RefreshAuthToken refreshes the access token using the refresh token
func (c *Client) RefreshAuthToken() error {
	currentSettings := settings.GetEffectiveSettings()
	if currentSettings.SyncRefreshToken == "" {
		return fmt.Errorf("no refresh token available")
	}

	// Prevent recursive refresh attempts
	if c.refreshingToken {
		return fmt.Errorf("token refresh already in progress")
	}
	c.refreshingToken = true
	defer func() { c.refreshingToken = false }()

	reqBody := RefreshRequest{
		RefreshToken: currentSettings.SyncRefreshToken,
		InstanceID:   currentSettings.InstanceID,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL()+"/auth/refresh", strings.NewReader(string(bodyBytes)))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil {
			return fmt.Errorf("token refresh failed with status %d: %s", resp.StatusCode, string(body))
		}
		if errResp.Error.Code == "" && errResp.Error.Message == "" {
			return fmt.Errorf("token refresh failed with status %d: %s", resp.StatusCode, string(body))
		}
		return fmt.Errorf("token refresh failed: %s: %s", errResp.Error.Code, errResp.Error.Message)
	}

	var result RefreshResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	// Update the tokens in settings
	currentSettings.SyncSessionToken = result.AccessToken
	currentSettings.SyncRefreshToken = result.RefreshToken

	settingsSvc := settings.NewSettingsService()
	if err := settingsSvc.SaveSettings(currentSettings); err != nil {
		return fmt.Errorf("failed to save refreshed tokens: %w", err)
	}

	return nil
}

// Logout clears the stored token pair.
func (c *Client) Logout() error {
	settingsSvc := settings.NewSettingsService()
	if err := settingsSvc.ClearSyncTokens(); err != nil {
		return fmt.Errorf("failed to clear sync tokens: %w", err)
	}
	return nil
}

// tokenNeedsRefresh reports whether the session token expires within the
// refresh leeway. The signature is not verified; only the exp claim matters
// here and the server verifies for real.
func tokenNeedsRefresh(token string) bool {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) < refreshLeeway
}
