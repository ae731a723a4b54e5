package config

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// rawSchema is the JSON Schema applied to the merged raw config before
// decoding into the typed struct.
const rawSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "gateway": {
      "type": "object",
      "properties": {
        "host": {"type": "string"},
        "port": {"type": "integer", "minimum": 0, "maximum": 65535},
        "authToken": {"type": "string"}
      }
    },
    "plugins": {
      "type": "object",
      "properties": {
        "allow": {"type": "array", "items": {"type": "string"}},
        "deny": {"type": "array", "items": {"type": "string"}},
        "paths": {"type": "array", "items": {"type": "string"}},
        "entries": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id"],
            "properties": {
              "id": {"type": "string", "minLength": 1},
              "enabled": {"type": "boolean"},
              "config": {"type": "object"}
            }
          }
        }
      }
    },
    "providers": {
      "type": "object",
      "properties": {
        "active": {
          "type": "object",
          "required": ["providerId", "modelId"],
          "properties": {
            "providerId": {"type": "string", "minLength": 1},
            "modelId": {"type": "string", "minLength": 1},
            "apiKey": {"type": "string"}
          }
        }
      }
    },
    "hooks": {
      "type": "object",
      "properties": {
        "defaultTimeoutMs": {"type": "integer", "minimum": 1},
        "rules": {
          "type": "object",
          "additionalProperties": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["hooks"],
              "properties": {
                "matcher": {"type": "string"},
                "hooks": {
                  "type": "array",
                  "items": {
                    "type": "object",
                    "required": ["type", "command"],
                    "properties": {
                      "type": {"const": "command"},
                      "command": {"type": "string", "minLength": 1},
                      "timeoutMs": {"type": "integer", "minimum": 1}
                    }
                  }
                }
              }
            }
          }
        }
      }
    },
    "commandSafety": {
      "type": "object",
      "properties": {
        "defaultTimeoutMs": {"type": "integer", "minimum": 1},
        "riskyCommands": {"type": "array", "items": {"type": "string"}},
        "requireExplicitApproval": {"type": "boolean"}
      }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {"enum": ["debug", "info", "warn", "error"]}
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("slashbot://config.schema.json", rawSchema)

// ValidateRaw checks a merged raw config map against the schema.
func ValidateRaw(raw map[string]any) error {
	if err := compiledSchema.Validate(normalizeForSchema(raw)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// normalizeForSchema converts parser-specific values into the shapes the
// schema validator expects (json5 numbers decode as float64 already, but
// nested non-string map keys from other sources are stringified).
func normalizeForSchema(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, val := range typed {
			out[k] = normalizeForSchema(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(typed))
		for k, val := range typed {
			out[fmt.Sprint(k)] = normalizeForSchema(val)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, val := range typed {
			out[i] = normalizeForSchema(val)
		}
		return out
	default:
		return v
	}
}

// LayerPathsForDisplay renders layer file paths for diagnostics.
func LayerPathsForDisplay(opts LoadOptions) string {
	return strings.Join(layerPaths(opts), ", ")
}
