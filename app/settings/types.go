package settings

// Settings holds application settings that can be overridden by the user.
type Settings struct {
	// Remove omitempty so that zero values are serialized (we need to persist explicit overrides)
	// Base URL of the table API; overridable for self-hosted deployments
	APIBaseURL string `yaml:"api_base_url" json:"api_base_url"`
	// Milliseconds of edit inactivity before queued cell writes dispatch
	DebounceMs int `yaml:"debounce_ms" json:"debounce_ms"`
	// Maximum number of undo steps retained per open table
	UndoCapacity int `yaml:"undo_capacity" json:"undo_capacity"`
	// Size limit in MB for the computed view cache
	ViewCacheSizeMB  int    `yaml:"view_cache_size_mb" json:"view_cache_size_mb"`
	SyncSessionToken string `yaml:"sync_session_token,omitempty" json:"sync_session_token,omitempty"`
	SyncRefreshToken string `yaml:"sync_refresh_token,omitempty" json:"sync_refresh_token,omitempty"`
	// InstanceID is a unique identifier for this Gridbase installation (not visible in settings dialog)
	InstanceID string `yaml:"instance_id,omitempty" json:"instance_id,omitempty"`
	// Window size settings (not visible in settings dialog, but persisted)
	WindowWidth  int `yaml:"window_width,omitempty" json:"window_width,omitempty"`
	WindowHeight int `yaml:"window_height,omitempty" json:"window_height,omitempty"`
}

// CacheManager interface defines methods that SettingsService needs for cache management
// This breaks the circular dependency between app and settings packages
type CacheManager interface {
	ClearViewCaches()
	UpdateCacheSize()
}

// defaultSettings defines the built-in defaults.
var defaultSettings = Settings{
	APIBaseURL: "",  // empty means the compiled-in production URL
	DebounceMs: 400, // settle window between the last keystroke and dispatch
	// 100 steps of undo per table
	UndoCapacity: 100,
	// Default 50MB view cache
	ViewCacheSizeMB: 50,
	// Default window size (matches main.go defaults)
	WindowWidth:  1280,
	WindowHeight: 800,
}
