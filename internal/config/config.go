// Package config loads and validates the layered slashbot runtime
// configuration. Layers merge in order: built-in defaults, the user file
// ($HOME/.slashbot/config.json), the cwd file, and the workspace file.
// Maps merge recursively; plugins.paths is union-deduped with deeper-layer
// entries appended last; every other array is override-replaced.
package config

import "time"

// ConfigDirName is the per-scope configuration directory.
const ConfigDirName = ".slashbot"

// ConfigFilename is the config file name inside ConfigDirName.
const ConfigFilename = "config.json"

// Config is the validated runtime configuration.
type Config struct {
	Gateway       GatewayConfig       `yaml:"gateway"`
	Plugins       PluginsConfig       `yaml:"plugins"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Hooks         HooksConfig         `yaml:"hooks"`
	CommandSafety CommandSafetyConfig `yaml:"commandSafety"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// GatewayConfig configures the local RPC gateway.
type GatewayConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"authToken"`
}

// PluginsConfig controls plugin discovery and enablement.
type PluginsConfig struct {
	Allow   []string      `yaml:"allow"`
	Deny    []string      `yaml:"deny"`
	Entries []PluginEntry `yaml:"entries"`
	Paths   []string      `yaml:"paths"`
}

// PluginEntry carries per-plugin settings.
type PluginEntry struct {
	ID      string         `yaml:"id"`
	Enabled *bool          `yaml:"enabled"`
	Config  map[string]any `yaml:"config"`
}

// Entry returns the entry for a plugin id, if configured.
func (p PluginsConfig) Entry(id string) (PluginEntry, bool) {
	for _, e := range p.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return PluginEntry{}, false
}

// ProvidersConfig selects the active provider and model.
type ProvidersConfig struct {
	Active *ActiveProvider `yaml:"active"`
}

// ActiveProvider pins the provider/model pair used for new sessions.
type ActiveProvider struct {
	ProviderID string `yaml:"providerId"`
	ModelID    string `yaml:"modelId"`
	APIKey     string `yaml:"apiKey"`
}

// HooksConfig configures the hook dispatcher and config-declared hooks.
type HooksConfig struct {
	DefaultTimeoutMs int                   `yaml:"defaultTimeoutMs"`
	Rules            map[string][]HookRule `yaml:"rules"`
}

// DefaultTimeout returns the default hook timeout as a duration.
func (h HooksConfig) DefaultTimeout() time.Duration {
	if h.DefaultTimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(h.DefaultTimeoutMs) * time.Millisecond
}

// HookRule declares hooks to run for a named event, optionally gated by
// a matcher against the event's match field.
type HookRule struct {
	Matcher string       `yaml:"matcher"`
	Hooks   []HookAction `yaml:"hooks"`
}

// HookAction is one declared hook. Only type "command" is recognized.
type HookAction struct {
	Type      string `yaml:"type"`
	Command   string `yaml:"command"`
	TimeoutMs int    `yaml:"timeoutMs"`
}

// CommandSafetyConfig controls command execution policy.
type CommandSafetyConfig struct {
	DefaultTimeoutMs        int      `yaml:"defaultTimeoutMs"`
	RiskyCommands           []string `yaml:"riskyCommands"`
	RequireExplicitApproval bool     `yaml:"requireExplicitApproval"`
}

// LoggingConfig sets the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Defaults returns the built-in base layer.
func Defaults() map[string]any {
	return map[string]any{
		"gateway": map[string]any{
			"host": "127.0.0.1",
			"port": 4096,
		},
		"plugins": map[string]any{
			"paths": []any{},
		},
		"hooks": map[string]any{
			"defaultTimeoutMs": 10000,
		},
		"commandSafety": map[string]any{
			"defaultTimeoutMs":        30000,
			"requireExplicitApproval": false,
		},
		"logging": map[string]any{
			"level": "info",
		},
	}
}
