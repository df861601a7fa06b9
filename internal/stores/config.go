package stores

import (
	"github.com/systmms/secretxfer/internal/credential"
	dserrors "github.com/systmms/secretxfer/internal/errors"
)

// stringField reads an optional string from a config block.
func stringField(cfg map[string]interface{}, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

// boolField reads an optional bool, falling back to def.
func boolField(cfg map[string]interface{}, key string, def bool) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return def
}

// secretField reads a string that may be an env: or keyring: reference.
func secretField(cfg map[string]interface{}, key string) (string, error) {
	raw := stringField(cfg, key)
	if raw == "" {
		return "", nil
	}
	v, err := credential.ResolveValue(raw)
	if err != nil {
		return "", dserrors.ConfigError{
			Field:      key,
			Message:    err.Error(),
			Suggestion: "Use a literal value, env:VAR_NAME or keyring:service/account",
		}
	}
	return v, nil
}

// requireField returns a ConfigError when a required field is missing.
func requireField(cfg map[string]interface{}, key, suggestion string) (string, error) {
	v := stringField(cfg, key)
	if v == "" {
		return "", dserrors.ConfigError{
			Field:      key,
			Message:    key + " is required",
			Suggestion: suggestion,
		}
	}
	return v, nil
}
