package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// DefaultFile is the optional config file read from the working directory
const DefaultFile = "tag-flow.toml"

// EnvPrefix prefixes environment overrides (e.g. TAG_FLOW_PORT=9090)
const EnvPrefix = "TAG_FLOW_"

// Config holds all configuration for the application
type Config struct {
	Workspace string        `koanf:"workspace"` // workspace catalog export (JSON)
	Records   string        `koanf:"records"`   // fact sheet export used when no endpoint is set
	Endpoint  string        `koanf:"endpoint"`  // host GraphQL endpoint
	Token     string        `koanf:"token"`     // bearer token for the endpoint
	WebMode   bool          `koanf:"web"`
	Port      int           `koanf:"port"`
	Watch     bool          `koanf:"watch"`
	Metrics   bool          `koanf:"metrics"`  // serve /metrics in web mode
	State     string        `koanf:"state"`    // saved custom state blob
	Debounce  time.Duration `koanf:"debounce"` // quiet period before re-aggregating
	Colors    Colors        `koanf:"colors"`

	// Initial selection; saved state takes precedence
	FactSheetType string `koanf:"type"`
	TagGroup      string `koanf:"tag-group"`
	ShowUntagged  bool   `koanf:"untagged"`

	Verbosity  string `koanf:"verbosity"`
	VerboseCnt int    `koanf:"verbose"`
	JSONLogs   bool   `koanf:"json"`
}

// Colors are the endpoints of the tag group fill gradient
type Colors struct {
	Start string `koanf:"start"`
	End   string `koanf:"end"`
}

// Defaults returns the built-in configuration values keyed by koanf path
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"workspace": "workspace.json",
		"records":   "factsheets.json",
		"endpoint":  "",
		"token":     "",
		"web":       false,
		"port":      8080,
		"watch":     false,
		"metrics":   true,
		"state":     ".tag-flow-state.json",
		"debounce":  "500ms",
		"colors": map[string]interface{}{
			"start": "#2889ff",
			"end":   "#fed9d1",
		},
		"type":      "",
		"tag-group": "",
		"untagged":  false,
		"verbosity": "",
		"verbose":   0,
		"json":      false,
	}
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	return LoadFile(DefaultFile, f)
}

// LoadFile is Load with an explicit config file path
func LoadFile(path string, f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(makeMapProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// The file is optional
	_ = k.Load(file.Provider(path), toml.Parser())

	// TAG_FLOW_COLORS_START -> colors.start, TAG_FLOW_TAG_GROUP stays tag-group
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		if key == "tag_group" {
			return "tag-group"
		}
		return strings.ReplaceAll(key, "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Debounce <= 0 {
		return nil, fmt.Errorf("debounce must be positive, got %s", cfg.Debounce)
	}

	return &cfg, nil
}

// RegisterFlags declares the command-line flags understood by Load
func RegisterFlags(f *pflag.FlagSet) {
	f.String("workspace", "workspace.json", "Workspace catalog export (fact sheet types and tag groups)")
	f.String("records", "factsheets.json", "Fact sheet export used when no GraphQL endpoint is configured")
	f.String("endpoint", "", "Host GraphQL endpoint")
	f.String("token", "", "Bearer token for the GraphQL endpoint")
	f.Bool("web", false, "Start web server instead of printing to console")
	f.Int("port", 8080, "Port for web server (only used with --web)")
	f.Bool("watch", false, "Reload the workspace catalog when it changes")
	f.Bool("metrics", true, "Serve Prometheus metrics at /metrics (only used with --web)")
	f.String("state", ".tag-flow-state.json", "File holding the saved report state")
	f.Duration("debounce", 500*time.Millisecond, "Quiet period before re-aggregating after a change")
	f.String("type", "", "Fact sheet type to aggregate")
	f.String("tag-group", "", "Tag group id to aggregate by")
	f.Bool("untagged", false, "Show fact sheets missing the tag group")
	f.String("verbosity", "", "Log level (trace, debug, info, warn, error)")
	f.CountP("verbose", "v", "Increase log verbosity")
	f.Bool("json", false, "Log as JSON")
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
