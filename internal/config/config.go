package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvFeedURL    = "TERMCAL_ICS_URL"
	EnvConfigPath = "TERMCAL_CONFIG"
)

const (
	defaultListen         = "127.0.0.1:8080"
	defaultCacheTTL       = 60
	defaultCacheCapacity  = 64
	defaultPolicy         = "wide"
	defaultWideDays       = 365
	defaultMaxOccurrences = 5000
	defaultRefresh        = "*/5 * * * *"
	defaultLogLevel       = "info"
	defaultMaxEventsShown = 3
)

// FeedConfig describes the subscribed ICS feed.
type FeedConfig struct {
	// URL is the ICS subscription endpoint (http, https or webcal).
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the header.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the JSON API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	Feed FeedConfig `yaml:"feed" json:"feed"`

	// Timezone is the IANA timezone events are displayed in. Empty means
	// the process local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// CacheDir holds the feed body and its HTTP validators. Empty disables
	// the disk cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// CacheTTLSeconds is the width of the resolver's TTL bucket.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`

	// CacheCapacity bounds the number of cached fetch scopes.
	CacheCapacity int `yaml:"cache_capacity" json:"cache_capacity"`

	// Policy is "wide" (one ±WideDays fetch) or "narrow" (one fetch per month).
	Policy string `yaml:"policy" json:"policy"`

	// WideDays is the half-width, in days, of the wide fetch window.
	WideDays int `yaml:"wide_days" json:"wide_days"`

	// MaxOccurrences caps recurrence expansion per event.
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`

	// OfflineFallback serves the last downloaded feed body when the network
	// fetch fails.
	OfflineFallback bool `yaml:"offline_fallback" json:"offline_fallback"`

	// Refresh is the cron schedule used by watch mode (e.g. "*/5 * * * *").
	Refresh string `yaml:"refresh" json:"refresh"`

	// MaxEventsPerDay limits how many events a terminal cell lists.
	MaxEventsPerDay int `yaml:"max_events_per_day" json:"max_events_per_day"`

	// Listen is the HTTP listen address for serve mode.
	Listen string `yaml:"listen" json:"listen"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		CacheDir:        defaultCacheDir(),
		CacheTTLSeconds: defaultCacheTTL,
		CacheCapacity:   defaultCacheCapacity,
		Policy:          defaultPolicy,
		WideDays:        defaultWideDays,
		MaxOccurrences:  defaultMaxOccurrences,
		Refresh:         defaultRefresh,
		MaxEventsPerDay: defaultMaxEventsShown,
		Listen:          defaultListen,
		LogLevel:        defaultLogLevel,
	}
}

// DefaultPath is $TERMCAL_CONFIG, or termcal/config.yaml under the user
// config directory.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "termcal.yaml"
	}
	return filepath.Join(dir, "termcal", "config.yaml")
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "termcal", "ics")
}

// Normalize fills in missing/zero values with defaults so that partially
// filled files still behave correctly.
func (c *Config) Normalize() {
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = defaultCacheTTL
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = defaultCacheCapacity
	}
	c.Policy = strings.ToLower(strings.TrimSpace(c.Policy))
	if c.Policy == "" {
		c.Policy = defaultPolicy
	}
	if c.WideDays <= 0 {
		c.WideDays = defaultWideDays
	}
	if c.MaxOccurrences <= 0 {
		c.MaxOccurrences = defaultMaxOccurrences
	}
	if c.Refresh == "" {
		c.Refresh = defaultRefresh
	}
	if c.MaxEventsPerDay <= 0 {
		c.MaxEventsPerDay = defaultMaxEventsShown
	}
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	c.Feed.URL = strings.TrimSpace(c.Feed.URL)
}

// ApplyEnv overrides file values from the environment. The feed URL is the
// only value that is expected to come from there.
func (c *Config) ApplyEnv() {
	if u := strings.TrimSpace(os.Getenv(EnvFeedURL)); u != "" {
		c.Feed.URL = u
	}
}

// Validate reports values that Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	switch c.Policy {
	case "wide", "narrow":
	default:
		errs = append(errs, fmt.Errorf("policy: unknown value %q", c.Policy))
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("timezone: %w", err))
		}
	}
	if _, err := cron.ParseStandard(c.Refresh); err != nil {
		errs = append(errs, fmt.Errorf("refresh: %w", err))
	}
	return errors.Join(errs...)
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// CacheTTL is CacheTTLSeconds as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written there with
//     0600 permissions and returned.
//   - Otherwise the YAML is unmarshalled and normalised.
//
// Environment overrides are not applied; call ApplyEnv afterwards.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config: path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config: path is empty")
	}
	if cfg == nil {
		return errors.New("config: nil config")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".termcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
