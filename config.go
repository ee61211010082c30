package studysync

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/hyperengineering/studysync/internal/profile"
	"github.com/hyperengineering/studysync/remote"
)

// Config configures the studysync client.
type Config struct {
	// LocalPath is the path to the local SQLite database.
	// If empty, it is derived from Profile.
	LocalPath string

	// Profile selects the local database.
	// If empty, resolved as explicit > STUDYSYNC_PROFILE env > "default".
	Profile string

	// LocalQuotaBytes caps the local store's size. Zero means unlimited.
	LocalQuotaBytes int64

	// RemoteURL is the base URL of the PostgREST-style remote store.
	// If empty and PostgresDSN is empty, operates local-only.
	RemoteURL string

	// APIKey is the project key sent with every REST request.
	APIKey string

	// PostgresDSN connects directly to a PostgreSQL remote store instead of
	// the REST endpoint.
	PostgresDSN string

	// AccessToken is a JWT whose subject is the user identity.
	AccessToken string

	// User is a fixed identity, used when no AccessToken is set.
	User string

	// SyncInterval is how often background sync runs.
	// Defaults to 5 minutes.
	SyncInterval time.Duration

	// AutoSync enables background syncing.
	AutoSync bool

	// ProbeTTL is how long a remote reachability probe is trusted.
	// Defaults to 30 seconds.
	ProbeTTL time.Duration

	// Debug enables debug-level logging.
	Debug bool

	// DebugLogPath is the path of the rotated debug log.
	// Defaults to stderr if empty.
	DebugLogPath string

	// Remote overrides the remote store built from RemoteURL/PostgresDSN.
	Remote remote.Store

	// Identity overrides the identity provider built from AccessToken/User.
	Identity IdentityProvider

	// Logger overrides the logger built from Debug/DebugLogPath.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Profile:      profile.DefaultID,
		LocalPath:    profile.DBPath(profile.DefaultID),
		SyncInterval: 5 * time.Minute,
		AutoSync:     true,
		ProbeTTL:     DefaultProbeTTL,
	}
}

// ConfigFromEnv reads configuration from environment variables.
//
//	STUDYSYNC_DB_PATH        → LocalPath
//	STUDYSYNC_PROFILE        → Profile
//	STUDYSYNC_QUOTA_BYTES    → LocalQuotaBytes
//	STUDYSYNC_REMOTE_URL     → RemoteURL
//	STUDYSYNC_API_KEY        → APIKey
//	STUDYSYNC_PG_DSN         → PostgresDSN
//	STUDYSYNC_ACCESS_TOKEN   → AccessToken
//	STUDYSYNC_USER           → User
//	STUDYSYNC_SYNC_INTERVAL  → SyncInterval (Go duration)
//	STUDYSYNC_AUTO_SYNC      → AutoSync ("true"/"1")
//	STUDYSYNC_DEBUG          → Debug (any non-empty value enables)
//	STUDYSYNC_DEBUG_LOG      → DebugLogPath
func ConfigFromEnv() Config {
	cfg := Config{
		LocalPath:    os.Getenv("STUDYSYNC_DB_PATH"),
		Profile:      os.Getenv(profile.EnvVar),
		RemoteURL:    os.Getenv("STUDYSYNC_REMOTE_URL"),
		APIKey:       os.Getenv("STUDYSYNC_API_KEY"),
		PostgresDSN:  os.Getenv("STUDYSYNC_PG_DSN"),
		AccessToken:  os.Getenv("STUDYSYNC_ACCESS_TOKEN"),
		User:         os.Getenv("STUDYSYNC_USER"),
		Debug:        os.Getenv("STUDYSYNC_DEBUG") != "",
		DebugLogPath: os.Getenv("STUDYSYNC_DEBUG_LOG"),
	}
	if v, err := strconv.ParseInt(os.Getenv("STUDYSYNC_QUOTA_BYTES"), 10, 64); err == nil {
		cfg.LocalQuotaBytes = v
	}
	if v, err := time.ParseDuration(os.Getenv("STUDYSYNC_SYNC_INTERVAL")); err == nil {
		cfg.SyncInterval = v
	}
	if v, err := strconv.ParseBool(os.Getenv("STUDYSYNC_AUTO_SYNC")); err == nil {
		cfg.AutoSync = v
	}
	return cfg
}

// Validate checks the configuration for errors.
// Returns *ValidationError for invalid fields.
func (c *Config) Validate() error {
	if c.LocalPath == "" {
		return &ValidationError{Field: "LocalPath", Message: "required: path to SQLite database"}
	}

	if c.Profile != "" {
		if err := profile.ValidateID(c.Profile); err != nil {
			return &ValidationError{Field: "Profile", Message: err.Error()}
		}
	}

	if c.RemoteURL != "" && c.PostgresDSN != "" {
		return &ValidationError{Field: "PostgresDSN", Message: "mutually exclusive with RemoteURL"}
	}

	if c.RemoteURL != "" && c.APIKey == "" {
		return &ValidationError{Field: "APIKey", Message: "required when RemoteURL is set"}
	}

	if c.LocalQuotaBytes < 0 {
		return &ValidationError{Field: "LocalQuotaBytes", Message: "must be non-negative"}
	}

	if c.SyncInterval < 0 {
		return &ValidationError{Field: "SyncInterval", Message: "must be non-negative"}
	}

	return nil
}

// IsLocalOnly reports whether no remote store is configured.
func (c *Config) IsLocalOnly() bool {
	return c.Remote == nil && c.RemoteURL == "" && c.PostgresDSN == ""
}

// WithDefaults fills in default values for unset fields.
// Profile resolution: explicit Profile field > STUDYSYNC_PROFILE env > "default".
// LocalPath is derived from the resolved profile if not explicitly set.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.Profile == "" {
		resolved, err := profile.Resolve("")
		if err == nil {
			c.Profile = resolved
		} else {
			c.Profile = profile.DefaultID
		}
	}

	if c.LocalPath == "" {
		c.LocalPath = profile.DBPath(c.Profile)
	}

	if c.SyncInterval == 0 {
		c.SyncInterval = defaults.SyncInterval
	}
	if c.ProbeTTL == 0 {
		c.ProbeTTL = defaults.ProbeTTL
	}

	return c
}
