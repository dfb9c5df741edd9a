package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// SettingsService manages reading/writing settings from disk.
type SettingsService struct {
	ctx          context.Context
	cacheManager CacheManager
}

func NewSettingsService() *SettingsService {
	return &SettingsService{}
}

// SetCacheManager allows the main function to inject the cache manager
func (s *SettingsService) SetCacheManager(cm CacheManager) {
	s.cacheManager = cm
}

// Startup receives the Wails context
func (s *SettingsService) Startup(ctx context.Context) {
	s.ctx = ctx
}

// GetSettings returns the effective settings (defaults overlaid with file overrides if any).
func (s *SettingsService) GetSettings() (Settings, error) {
	settings := defaultSettings
	path, err := settingsFilePath()
	if err != nil {
		return settings, err
	}
	// If file doesn't exist, return defaults
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return settings, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return settings, err
	}
	// Unmarshal into a generic map to detect key presence
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return settings, err
	}
	overlay(&settings, m)
	return settings, nil
}

// SaveSettings saves only the values that differ from defaults into YAML in the binary directory.
func (s *SettingsService) SaveSettings(in Settings) error {
	// Get current settings to detect changes
	old := GetEffectiveSettings()
	cacheSizeChanged := old.ViewCacheSizeMB != in.ViewCacheSizeMB

	// Build a minimal map containing only non-default values to avoid zero-value serialization pitfalls
	data := make(map[string]any)
	if strings.TrimSpace(in.APIBaseURL) != strings.TrimSpace(defaultSettings.APIBaseURL) {
		data["api_base_url"] = strings.TrimSpace(in.APIBaseURL)
	}
	if in.DebounceMs != defaultSettings.DebounceMs && in.DebounceMs >= 0 {
		data["debounce_ms"] = in.DebounceMs
	}
	if in.UndoCapacity != defaultSettings.UndoCapacity && in.UndoCapacity >= 1 {
		data["undo_capacity"] = in.UndoCapacity
	}
	if in.ViewCacheSizeMB != defaultSettings.ViewCacheSizeMB && in.ViewCacheSizeMB >= 1 {
		data["view_cache_size_mb"] = in.ViewCacheSizeMB
	}

	// Preserve sync tokens (not visible in settings dialog, but must persist)
	// Use incoming tokens if provided, otherwise use the existing ones from old settings
	syncSessionToken := strings.TrimSpace(in.SyncSessionToken)
	if syncSessionToken == "" {
		syncSessionToken = strings.TrimSpace(old.SyncSessionToken)
	}
	if syncSessionToken != "" {
		data["sync_session_token"] = syncSessionToken
	}

	syncRefreshToken := strings.TrimSpace(in.SyncRefreshToken)
	if syncRefreshToken == "" {
		syncRefreshToken = strings.TrimSpace(old.SyncRefreshToken)
	}
	if syncRefreshToken != "" {
		data["sync_refresh_token"] = syncRefreshToken
	}

	// Preserve instance ID (not visible in settings dialog, but must persist)
	instanceID := strings.TrimSpace(in.InstanceID)
	if instanceID == "" {
		instanceID = strings.TrimSpace(old.InstanceID)
	}
	if instanceID != "" {
		data["instance_id"] = instanceID
	}

	// Preserve window size (not visible in settings dialog, but must persist)
	windowWidth := in.WindowWidth
	if windowWidth == 0 {
		windowWidth = old.WindowWidth
	}
	if windowWidth != defaultSettings.WindowWidth && windowWidth >= 400 {
		data["window_width"] = windowWidth
	}
	windowHeight := in.WindowHeight
	if windowHeight == 0 {
		windowHeight = old.WindowHeight
	}
	if windowHeight != defaultSettings.WindowHeight && windowHeight >= 300 {
		data["window_height"] = windowHeight
	}

	if err := s.writeSettingsFile(data); err != nil {
		return err
	}

	if cacheSizeChanged && s.cacheManager != nil {
		s.cacheManager.UpdateCacheSize()
	}
	return nil
}

// ClearSyncTokens removes the stored sync tokens, logging the user out.
func (s *SettingsService) ClearSyncTokens() error {
	path, err := settingsFilePath()
	if err != nil {
		return fmt.Errorf("failed to resolve settings path: %w", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil // nothing stored, nothing to clear
		}
		return fmt.Errorf("failed to read settings: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("failed to parse settings: %w", err)
	}
	delete(m, "sync_session_token")
	delete(m, "sync_refresh_token")
	return s.writeSettingsFile(m)
}

// EnsureInstanceID generates and persists an instance id if none exists yet.
func (s *SettingsService) EnsureInstanceID() error {
	current := GetEffectiveSettings()
	if current.InstanceID != "" {
		return nil
	}
	current.InstanceID = uuid.New().String()
	if err := s.SaveSettings(current); err != nil {
		return fmt.Errorf("failed to persist instance id: %w", err)
	}
	return nil
}

func (s *SettingsService) writeSettingsFile(data map[string]any) error {
	path, err := settingsFilePath()
	if err != nil {
		return fmt.Errorf("failed to resolve settings path: %w", err)
	}
	if len(data) == 0 {
		// Nothing differs from defaults; remove the file if present
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove settings file: %w", err)
		}
		return nil
	}
	out, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}
