// Package config provides configuration management for contraceptiq.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultServerPort is the default HTTP port for the risk service.
	DefaultServerPort = 8000

	// EnvPrefix prefixes every settings key and environment variable.
	EnvPrefix = "CONTRACEPTIQ_"
)

// Settings keys. The same names are read from the environment.
const (
	KeyModelDir         = EnvPrefix + "MODEL_DIR"
	KeyONNXLibraryPath  = EnvPrefix + "ONNX_LIBRARY_PATH"
	KeyOnDeviceEnabled  = EnvPrefix + "ON_DEVICE_ENABLED"
	KeyRemoteURL        = EnvPrefix + "REMOTE_URL"
	KeyRemoteTimeout    = EnvPrefix + "REMOTE_TIMEOUT_SECONDS"
	KeyRemoteMaxRetries = EnvPrefix + "REMOTE_MAX_RETRIES"
	KeyDedupTTL         = EnvPrefix + "DEDUP_TTL_SECONDS"
	KeyDedupSweep       = EnvPrefix + "DEDUP_SWEEP_SECONDS"
	KeyServerPort       = EnvPrefix + "SERVER_PORT"
	KeyDBPath           = EnvPrefix + "DB_PATH"
	KeyDatabaseDSN      = EnvPrefix + "DATABASE_DSN"
	KeyDBMaxConns       = EnvPrefix + "DB_MAX_CONNS"
	KeyLogLevel         = EnvPrefix + "LOG_LEVEL"
	KeyRateLimit        = EnvPrefix + "RATE_LIMIT"
	KeyRateBurst        = EnvPrefix + "RATE_BURST"
	KeyCodeTTL          = EnvPrefix + "CODE_TTL_HOURS"
)

// Config holds the application configuration.
type Config struct {
	// Model settings
	ModelDir        string `json:"model_dir"`
	ONNXLibraryPath string `json:"onnx_library_path"` // empty uses the runtime's default search path
	OnDeviceEnabled bool   `json:"on_device_enabled"`

	// Remote inference settings
	RemoteURL            string `json:"remote_url"`
	RemoteTimeoutSeconds int    `json:"remote_timeout_seconds"`
	RemoteMaxRetries     int    `json:"remote_max_retries"` // negative disables retries

	// Request deduplication
	DedupTTLSeconds   int `json:"dedup_ttl_seconds"`
	DedupSweepSeconds int `json:"dedup_sweep_seconds"`

	// Service settings
	ServerPort int     `json:"server_port"`
	LogLevel   string  `json:"log_level"`
	RateLimit  float64 `json:"rate_limit"` // requests per second per client IP, 0 disables
	RateBurst  int     `json:"rate_burst"`

	// Consultation store settings
	DBPath       string `json:"db_path"`
	DatabaseDSN  string `json:"database_dsn"` // PostgreSQL; takes precedence over DBPath
	DBMaxConns   int    `json:"db_max_conns"`
	CodeTTLHours int    `json:"code_ttl_hours"`
}

// DataDir returns the data directory path (~/.contraceptiq).
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".contraceptiq")
}

// DBPath returns the default consultation database path.
func DBPath() string {
	return filepath.Join(DataDir(), "consultations.db")
}

// SettingsPath returns the default settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		ModelDir:             filepath.Join(DataDir(), "models"),
		OnDeviceEnabled:      true,
		RemoteTimeoutSeconds: 30,
		RemoteMaxRetries:     3,
		DedupTTLSeconds:      30,
		DedupSweepSeconds:    10,
		ServerPort:           DefaultServerPort,
		LogLevel:             "info",
		RateLimit:            10,
		RateBurst:            20,
		DBPath:               DBPath(),
		DBMaxConns:           10,
		CodeTTLHours:         24,
	}
}

// RemoteTimeout returns the per-attempt remote timeout.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.RemoteTimeoutSeconds) * time.Second
}

// DedupTTL returns how long a pending deduplication entry may live.
func (c *Config) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLSeconds) * time.Second
}

// DedupSweepInterval returns the janitor interval.
func (c *Config) DedupSweepInterval() time.Duration {
	return time.Duration(c.DedupSweepSeconds) * time.Second
}

// CodeTTL returns the lifetime of a consultation code.
func (c *Config) CodeTTL() time.Duration {
	return time.Duration(c.CodeTTLHours) * time.Hour
}

// Addr returns the listen address for the HTTP service.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

// Load reads the settings file at path over the defaults and then applies
// environment overrides. A missing file is not an error. Files ending in
// .yaml or .yml are parsed as YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	cfg := Default()

	settings, err := readSettings(path)
	if err != nil {
		return nil, err
	}
	for _, key := range allKeys {
		if v, ok := os.LookupEnv(key); ok {
			settings[key] = v
		}
	}

	if v, ok := asString(settings[KeyModelDir]); ok && v != "" {
		cfg.ModelDir = v
	}
	if v, ok := asString(settings[KeyONNXLibraryPath]); ok {
		cfg.ONNXLibraryPath = v
	}
	if v, ok := asBool(settings[KeyOnDeviceEnabled]); ok {
		cfg.OnDeviceEnabled = v
	}
	if v, ok := asString(settings[KeyRemoteURL]); ok {
		cfg.RemoteURL = strings.TrimRight(v, "/")
	}
	if v, ok := asInt(settings[KeyRemoteTimeout]); ok && v > 0 {
		cfg.RemoteTimeoutSeconds = v
	}
	if v, ok := asInt(settings[KeyRemoteMaxRetries]); ok {
		cfg.RemoteMaxRetries = v
	}
	if v, ok := asInt(settings[KeyDedupTTL]); ok && v > 0 {
		cfg.DedupTTLSeconds = v
	}
	if v, ok := asInt(settings[KeyDedupSweep]); ok && v > 0 {
		cfg.DedupSweepSeconds = v
	}
	if v, ok := asInt(settings[KeyServerPort]); ok && v > 0 && v < 65536 {
		cfg.ServerPort = v
	}
	if v, ok := asString(settings[KeyLogLevel]); ok && v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v, ok := asFloat(settings[KeyRateLimit]); ok && v >= 0 {
		cfg.RateLimit = v
	}
	if v, ok := asInt(settings[KeyRateBurst]); ok && v > 0 {
		cfg.RateBurst = v
	}
	if v, ok := asString(settings[KeyDBPath]); ok && v != "" {
		cfg.DBPath = v
	}
	if v, ok := asString(settings[KeyDatabaseDSN]); ok {
		cfg.DatabaseDSN = v
	}
	if v, ok := asInt(settings[KeyDBMaxConns]); ok && v > 0 {
		cfg.DBMaxConns = v
	}
	if v, ok := asInt(settings[KeyCodeTTL]); ok && v > 0 {
		cfg.CodeTTLHours = v
	}

	return cfg, nil
}

var allKeys = []string{
	KeyModelDir, KeyONNXLibraryPath, KeyOnDeviceEnabled, KeyRemoteURL, KeyRemoteTimeout,
	KeyRemoteMaxRetries, KeyDedupTTL, KeyDedupSweep, KeyServerPort, KeyDBPath,
	KeyDatabaseDSN, KeyDBMaxConns, KeyLogLevel, KeyRateLimit, KeyRateBurst, KeyCodeTTL,
}

// readSettings decodes the settings file into a flat key/value map.
func readSettings(path string) (map[string]any, error) {
	settings := make(map[string]any)
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return settings, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &settings)
	default:
		err = json.Unmarshal(data, &settings)
	}
	if err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return settings, nil
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case nil:
		return "", false
	default:
		return fmt.Sprint(t), true
	}
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case uint64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return b, err == nil
	}
	return false, false
}
