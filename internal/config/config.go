// Package config loads flowboard settings with Viper: defaults, then
// ~/.flowboard/config.yaml (or --config), then FLOWBOARD_* environment
// variables, then flags bound by the command.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/flowboard/internal/errors"
)

// EnvPrefix prefixes every environment override, e.g. FLOWBOARD_STORE_PATH.
const EnvPrefix = "FLOWBOARD"

// Config holds every flowboard setting.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Board     BoardConfig     `mapstructure:"board" yaml:"board"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	User      UserConfig      `mapstructure:"user" yaml:"user"`
}

// ServerConfig configures flowboard serve, and where clients find it.
type ServerConfig struct {
	Address         string        `mapstructure:"address" yaml:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// URL is the server boards and replays talk to, like --server. Empty
	// means the local database.
	URL string `mapstructure:"url" yaml:"url"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// BoardConfig tunes the editing surface.
type BoardConfig struct {
	Debounce     time.Duration `mapstructure:"debounce" yaml:"debounce"`
	HistoryLimit int           `mapstructure:"history_limit" yaml:"history_limit"` // 0 keeps everything
	CanvasWidth  float64       `mapstructure:"canvas_width" yaml:"canvas_width"`
	CanvasHeight float64       `mapstructure:"canvas_height" yaml:"canvas_height"`
}

type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// UserConfig names the acting user.
type UserConfig struct {
	ID string `mapstructure:"id" yaml:"id"`
}

// defaults are the built-in values; their types also decide how
// Set parses a string.
func defaults() map[string]any {
	return map[string]any{
		"server.address":          ":8080",
		"server.shutdown_timeout": 30 * time.Second,
		"server.url":              "",
		"store.path":              filepath.Join(Home(), "flowboard.db"),
		"log.level":               "info",
		"log.format":              "text",
		"board.debounce":          50 * time.Millisecond,
		"board.history_limit":     0,
		"board.canvas_width":      2400.0,
		"board.canvas_height":     1600.0,
		"telemetry.enabled":       false,
		"telemetry.endpoint":      "",
		"telemetry.sample_rate":   1.0,
		"user.id":                 "",
	}
}

// Keys lists every known key in sorted order.
func Keys() []string {
	d := defaults()
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Home is the flowboard directory, ~/.flowboard unless FLOWBOARD_HOME is set.
func Home() string {
	if dir := os.Getenv(EnvPrefix + "_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowboard"
	}
	return filepath.Join(home, ".flowboard")
}

// DefaultPath is the config file used when --config is not given.
func DefaultPath() string {
	return filepath.Join(Home(), "config.yaml")
}

// New returns a Viper instance with defaults and environment overrides
// applied, reading path (or DefaultPath). A missing file is not an error.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}

	if path == "" {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, errors.NewFileUnmarshalError(path, "YAML", err)
		}
	}
	return v, nil
}

// Decode unmarshals v into a Config and validates it.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "failed to decode configuration", err)
	}
	cfg.Store.Path = expandHome(cfg.Store.Path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is New followed by Decode.
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	invalid := func(key, msg string) error {
		return errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf("%s: %s", key, msg)).
			WithSuggestion("Fix it with: flowboard config set " + key + " <value>")
	}
	switch {
	case c.Store.Path == "":
		return invalid("store.path", "must not be empty")
	case c.Board.Debounce < 0:
		return invalid("board.debounce", "must not be negative")
	case c.Board.HistoryLimit < 0:
		return invalid("board.history_limit", "must not be negative")
	case c.Board.CanvasWidth <= 0 || c.Board.CanvasHeight <= 0:
		return invalid("board.canvas_width", "canvas must have a positive size")
	case c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1:
		return invalid("telemetry.sample_rate", "must be between 0 and 1")
	case c.Server.ShutdownTimeout < 0:
		return invalid("server.shutdown_timeout", "must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return invalid("log.format", fmt.Sprintf("unknown format %q (text or json)", c.Log.Format))
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// ParseValue converts raw to the type of key's default.
func ParseValue(key, raw string) (any, error) {
	def, ok := defaults()[key]
	if !ok {
		return nil, errors.New(errors.ErrCodeConfigKey, fmt.Sprintf("unknown configuration key: %s", key)).
			WithSuggestion("Known keys: " + strings.Join(Keys(), ", "))
	}
	bad := func(err error) error {
		return errors.Wrap(errors.ErrCodeConfigInvalid, fmt.Sprintf("invalid value for %s: %q", key, raw), err)
	}
	switch def.(type) {
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, bad(err)
		}
		return b, nil
	case int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, bad(err)
		}
		return n, nil
	case float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, bad(err)
		}
		return f, nil
	case time.Duration:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, bad(err)
		}
		// Stored as text so the file stays readable.
		return d.String(), nil
	}
	return raw, nil
}

// Set writes key=raw into the YAML file at path, keeping the other keys in
// the file as they are. The result is validated before it is written.
func Set(path, key, raw string) error {
	value, err := ParseValue(key, raw)
	if err != nil {
		return err
	}

	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return errors.NewFileUnmarshalError(path, "YAML", err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	case !os.IsNotExist(err):
		return errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read "+path, err)
	}

	section, leaf, _ := strings.Cut(key, ".")
	inner, _ := doc[section].(map[string]any)
	if inner == nil {
		inner = map[string]any{}
	}
	inner[leaf] = value
	doc[section] = inner

	out, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileMarshal, "failed to encode configuration", err)
	}

	// Reject values that would make the file unloadable.
	tmp := viper.New()
	for k, val := range defaults() {
		tmp.SetDefault(k, val)
	}
	tmp.SetConfigType("yaml")
	if err := tmp.ReadConfig(strings.NewReader(string(out))); err != nil {
		return errors.Wrap(errors.ErrCodeConfigInvalid, "configuration would not parse", err)
	}
	if _, err := Decode(tmp); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeDirectoryFailed, "failed to create "+filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write "+path, err)
	}
	return nil
}

// YAML renders cfg as it would appear in a config file.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileMarshal, "failed to encode configuration", err)
	}
	return out, nil
}
