package settings

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GetEffectiveSettings returns the effective settings (defaults overlaid with file overrides if any).
// If anything goes wrong, it returns defaults.
func GetEffectiveSettings() Settings {
	settings := defaultSettings
	path, err := settingsFilePath()
	if err != nil {
		return settings
	}
	if _, err := os.Stat(path); err != nil {
		// no file or other stat error -> return defaults
		return settings
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return settings
	}
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return settings
	}
	overlay(&settings, m)
	return settings
}

// overlay applies on-disk overrides onto settings. Keys absent from the map
// keep their current value; presence is checked so explicit zero values win.
func overlay(settings *Settings, m map[string]any) {
	if v, ok := m["api_base_url"]; ok {
		if vs, oks := v.(string); oks {
			settings.APIBaseURL = vs
		}
	}
	if v, ok := m["debounce_ms"]; ok {
		if vi, oki := v.(int); oki && vi >= 0 {
			settings.DebounceMs = vi
		}
	}
	if v, ok := m["undo_capacity"]; ok {
		if vi, oki := v.(int); oki && vi >= 1 {
			settings.UndoCapacity = vi
		}
	}
	if v, ok := m["view_cache_size_mb"]; ok {
		if vi, oki := v.(int); oki && vi >= 1 {
			settings.ViewCacheSizeMB = vi
		}
	}
	if v, ok := m["sync_session_token"]; ok {
		if vs, oks := v.(string); oks {
			settings.SyncSessionToken = vs
		}
	}
	if v, ok := m["sync_refresh_token"]; ok {
		if vs, oks := v.(string); oks {
			settings.SyncRefreshToken = vs
		}
	}
	if v, ok := m["instance_id"]; ok {
		if vs, oks := v.(string); oks {
			settings.InstanceID = vs
		}
	}
	if v, ok := m["window_width"]; ok {
		if vi, oki := v.(int); oki && vi >= 400 {
			settings.WindowWidth = vi
		}
	}
	if v, ok := m["window_height"]; ok {
		if vi, oki := v.(int); oki && vi >= 300 {
			settings.WindowHeight = vi
		}
	}
}

func settingsFilePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(exe)
	return filepath.Join(dir, "gridbase.yml"), nil
}
