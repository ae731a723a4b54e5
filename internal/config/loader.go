package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// pluginPathsKey names the one array that extends instead of overriding.
const pluginPathsKey = "plugins.paths"

// LoadOptions controls which layers participate in a load.
type LoadOptions struct {
	// HomeDir overrides $HOME (tests).
	HomeDir string

	// WorkDir overrides the current working directory (tests).
	WorkDir string

	// WorkspaceDir is the optional workspace root; empty skips the layer.
	WorkspaceDir string
}

// Load merges all config layers and decodes the result into a validated
// Config. Missing layer files are skipped; malformed files bubble up.
func Load(opts LoadOptions) (*Config, error) {
	raw, err := LoadRaw(opts)
	if err != nil {
		return nil, err
	}
	if err := ValidateRaw(raw); err != nil {
		return nil, err
	}
	return decodeRaw(raw)
}

// LoadRaw merges all layers into a raw map without decoding.
func LoadRaw(opts LoadOptions) (map[string]any, error) {
	merged := Defaults()

	for _, path := range layerPaths(opts) {
		layer, err := readLayer(path)
		if err != nil {
			return nil, fmt.Errorf("config layer %s: %w", path, err)
		}
		if layer == nil {
			continue
		}
		merged = mergeLayer(merged, layer, "")
	}

	return merged, nil
}

// layerPaths returns the layer files in merge order (shallowest first).
func layerPaths(opts LoadOptions) []string {
	var paths []string

	home := opts.HomeDir
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	if home != "" {
		paths = append(paths, filepath.Join(home, ConfigDirName, ConfigFilename))
	}

	work := opts.WorkDir
	if work == "" {
		work, _ = os.Getwd()
	}
	if work != "" {
		paths = append(paths, filepath.Join(work, ConfigDirName, ConfigFilename))
	}

	if opts.WorkspaceDir != "" {
		paths = append(paths, filepath.Join(opts.WorkspaceDir, ConfigDirName, ConfigFilename))
	}

	return paths
}

// readLayer parses one layer file. A missing file returns (nil, nil).
func readLayer(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))
	var raw map[string]any
	if err := json5.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// mergeLayer deep-merges src into dst. Maps merge recursively. The
// plugins.paths array unions with dedupe, later-layer entries appended;
// all other values (arrays included) override.
func mergeLayer(dst, src map[string]any, prefix string) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		if valueMap, ok := value.(map[string]any); ok {
			if existing, ok := dst[key].(map[string]any); ok {
				dst[key] = mergeLayer(existing, valueMap, path)
				continue
			}
			dst[key] = mergeLayer(map[string]any{}, valueMap, path)
			continue
		}

		if path == pluginPathsKey {
			dst[key] = unionStrings(dst[key], value)
			continue
		}

		dst[key] = value
	}
	return dst
}

// unionStrings merges two raw string arrays with dedupe, existing entries
// first, new entries appended in order.
func unionStrings(existing, incoming any) []any {
	seen := make(map[string]struct{})
	var out []any

	appendAll := func(v any) {
		list, ok := v.([]any)
		if !ok {
			return
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}

	appendAll(existing)
	appendAll(incoming)
	return out
}

// decodeRaw converts a merged raw map into the typed Config, rejecting
// unknown fields.
func decodeRaw(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("serialize config: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("parse config: expected single document")
	}
	return &cfg, nil
}

// Save writes a raw config map to path atomically (temp file + rename).
func Save(path string, raw map[string]any) error {
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
