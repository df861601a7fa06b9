package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	dserrors "github.com/systmms/secretxfer/internal/errors"
	"github.com/systmms/secretxfer/internal/logging"
	"github.com/systmms/secretxfer/internal/transfer"
)

//go:embed schema.json
var schema []byte

// Defaults applied when neither the file nor the environment sets a value.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 800 * time.Millisecond
	DefaultMaxDelay    = 8 * time.Second
	DefaultPort        = 8080
	DefaultStoreType   = "azure.keyvault"
)

// DefaultTransientStatuses are the HTTP statuses retried by default.
var DefaultTransientStatuses = []int{429, 500, 502, 503, 504}

// Config holds the runtime configuration
type Config struct {
	Path       string
	EnvFile    string
	Logger     *logging.Logger
	Definition *Definition
}

// Definition represents the secretxfer.yaml structure
type Definition struct {
	Version     int            `yaml:"version"`
	Source      StoreConfig    `yaml:"source"`
	Destination StoreConfig    `yaml:"destination"`
	Transfer    TransferConfig `yaml:"transfer"`
	Retry       RetryConfig    `yaml:"retry"`
	Server      ServerConfig   `yaml:"server"`
}

// StoreConfig holds store-specific configuration. Everything except type and
// timeout_ms is passed through to the store factory.
type StoreConfig struct {
	Type      string                 `yaml:"type"`
	TimeoutMs int                    `yaml:"timeout_ms,omitempty"`
	Config    map[string]interface{} `yaml:",inline"`
}

// Timeout returns the per-call timeout, or zero for the store default.
func (s StoreConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// TransferConfig names the secret to copy.
type TransferConfig struct {
	SourceName string `yaml:"source_name"`
	// DestinationName stays empty unless set explicitly; Request falls back
	// to SourceName so a command-line source override carries over.
	DestinationName string `yaml:"destination_name"`
	CopyTags        *bool  `yaml:"copy_tags"`
	CopyContentType *bool  `yaml:"copy_content_type"`
	DryRun          bool   `yaml:"dry_run"`
}

// RetryConfig tunes the retry executors.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	FetchMaxAttempts  int           `yaml:"fetch_max_attempts"`
	WriteMaxAttempts  int           `yaml:"write_max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	Jitter            float64       `yaml:"jitter"`
	RetryAuthFailures *bool         `yaml:"retry_auth_failures"`
	TransientStatuses []int         `yaml:"transient_statuses"`
}

// FetchAttempts returns the fetch budget.
func (r RetryConfig) FetchAttempts() int {
	if r.FetchMaxAttempts > 0 {
		return r.FetchMaxAttempts
	}
	return r.MaxAttempts
}

// WriteAttempts returns the write budget.
func (r RetryConfig) WriteAttempts() int {
	if r.WriteMaxAttempts > 0 {
		return r.WriteMaxAttempts
	}
	return r.MaxAttempts
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Port       int    `yaml:"port"`
	Store      string `yaml:"store"`
	SecretName string `yaml:"secret_name"`
}

// Load reads configuration from path and envFile. Either may be missing.
func Load(path, envFile string) (*Config, error) {
	cfg := &Config{Path: path, EnvFile: envFile}
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses the configuration file, then applies the
// environment and defaults.
func (c *Config) Load() error {
	if c.EnvFile != "" {
		if err := godotenv.Load(c.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return dserrors.ConfigError{
				Field:      "env_file",
				Value:      c.EnvFile,
				Message:    err.Error(),
				Suggestion: "Use KEY=value lines in the .env file",
			}
		}
	}

	def := &Definition{}
	data, err := os.ReadFile(c.Path)
	switch {
	case err == nil:
		if err := validateDocument(data); err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, def); err != nil {
			return dserrors.ConfigError{
				Message:    "invalid YAML syntax in configuration file: " + err.Error(),
				Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
			}
		}
	case errors.Is(err, fs.ErrNotExist):
		if c.Logger != nil {
			c.Logger.Debug("No configuration file at %s, using environment only", c.Path)
		}
	default:
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	if err := applyEnv(def); err != nil {
		return err
	}
	applyDefaults(def)

	if err := def.Validate(); err != nil {
		return err
	}

	c.Definition = def
	return nil
}

// validateDocument checks the raw YAML against the embedded JSON schema.
func validateDocument(data []byte) error {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return dserrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file: " + err.Error(),
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}
	if raw == nil {
		return nil
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration for validation: %w", err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var messages []string
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}
	return dserrors.ConfigError{
		Field:      result.Errors()[0].Field(),
		Message:    "schema validation failed:\n  - " + strings.Join(messages, "\n  - "),
		Suggestion: "Run 'secretxfer doctor' after fixing the fields listed above",
	}
}

// applyEnv overlays the process environment onto the file settings. Set
// variables always win.
func applyEnv(def *Definition) error {
	if v := firstEnv("SOURCE_VAULT_URL", "AZURE_KEY_VAULT_URL"); v != "" {
		setStoreField(&def.Source, "vault_url", v)
	}
	if v := os.Getenv("DESTINATION_VAULT_URL"); v != "" {
		setStoreField(&def.Destination, "vault_url", v)
	}

	for _, store := range []*StoreConfig{&def.Source, &def.Destination} {
		if store.Type != "" && store.Type != DefaultStoreType {
			continue
		}
		for env, field := range map[string]string{
			"AZURE_TENANT_ID":     "tenant_id",
			"AZURE_CLIENT_ID":     "client_id",
			"AZURE_CLIENT_SECRET": "client_secret",
		} {
			if v := os.Getenv(env); v != "" {
				if _, set := store.Config[field]; !set {
					setStoreField(store, field, v)
				}
			}
		}
	}

	if v := os.Getenv("SOURCE_SECRET_NAME"); v != "" {
		def.Transfer.SourceName = v
	}
	if v := os.Getenv("TARGET_SECRET_NAME"); v != "" {
		def.Transfer.DestinationName = v
	}

	var err error
	if def.Transfer.CopyTags, err = envBool("COPY_TAGS", def.Transfer.CopyTags); err != nil {
		return err
	}
	if def.Transfer.CopyContentType, err = envBool("COPY_CONTENT_TYPE", def.Transfer.CopyContentType); err != nil {
		return err
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return dserrors.ConfigError{
				Field:      "PORT",
				Value:      v,
				Message:    "invalid port",
				Suggestion: "Set PORT to a number between 1 and 65535",
			}
		}
		def.Server.Port = port
	}
	if v := os.Getenv("SECRET_NAME"); v != "" {
		def.Server.SecretName = v
	}
	return nil
}

func applyDefaults(def *Definition) {
	for _, store := range []*StoreConfig{&def.Source, &def.Destination} {
		if store.Type == "" && store.Config["vault_url"] != nil {
			store.Type = DefaultStoreType
		}
	}

	if def.Transfer.CopyTags == nil {
		def.Transfer.CopyTags = boolPtr(true)
	}
	if def.Transfer.CopyContentType == nil {
		def.Transfer.CopyContentType = boolPtr(true)
	}

	r := &def.Retry
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = DefaultMaxAttempts
	}
	if r.BaseDelay <= 0 {
		r.BaseDelay = DefaultBaseDelay
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = DefaultMaxDelay
	}
	if r.RetryAuthFailures == nil {
		r.RetryAuthFailures = boolPtr(true)
	}
	if len(r.TransientStatuses) == 0 {
		r.TransientStatuses = append([]int(nil), DefaultTransientStatuses...)
	}

	if def.Server.Port == 0 {
		def.Server.Port = DefaultPort
	}
	if def.Server.Store == "" {
		def.Server.Store = "source"
	}
	if def.Server.SecretName == "" {
		def.Server.SecretName = def.Transfer.SourceName
	}
}

// Validate checks the fields every command needs.
func (d *Definition) Validate() error {
	if d.Retry.MaxDelay < d.Retry.BaseDelay {
		return dserrors.ConfigError{
			Field:      "retry.max_delay",
			Value:      d.Retry.MaxDelay,
			Message:    "max_delay is shorter than base_delay",
			Suggestion: fmt.Sprintf("Set retry.max_delay to at least %s", d.Retry.BaseDelay),
		}
	}
	if d.Server.Store != "source" && d.Server.Store != "destination" {
		return dserrors.ConfigError{
			Field:      "server.store",
			Value:      d.Server.Store,
			Message:    "unknown store role",
			Suggestion: "Use 'source' or 'destination'",
		}
	}
	return nil
}

// RequireStores reports a ConfigError when a store needed for a transfer is
// not configured.
func (d *Definition) RequireStores() error {
	if d.Source.Type == "" {
		return dserrors.ConfigError{
			Field:      "source.type",
			Message:    "source store is not configured",
			Suggestion: "Set source.vault_url in secretxfer.yaml or SOURCE_VAULT_URL in the environment",
		}
	}
	if d.Destination.Type == "" {
		return dserrors.ConfigError{
			Field:      "destination.type",
			Message:    "destination store is not configured",
			Suggestion: "Set destination.vault_url in secretxfer.yaml or DESTINATION_VAULT_URL in the environment",
		}
	}
	return nil
}

// Store returns the store block for a role name.
func (d *Definition) Store(role string) (StoreConfig, error) {
	switch role {
	case "source":
		return d.Source, nil
	case "destination":
		return d.Destination, nil
	}
	return StoreConfig{}, dserrors.ConfigError{
		Field:      "store",
		Value:      role,
		Message:    "unknown store role",
		Suggestion: "Available stores: source, destination",
	}
}

// Request builds the transfer request described by the configuration.
// The destination name defaults to the source name.
func (d *Definition) Request() transfer.Request {
	dest := d.Transfer.DestinationName
	if dest == "" {
		dest = d.Transfer.SourceName
	}
	return transfer.Request{
		SourceName:      d.Transfer.SourceName,
		DestinationName: dest,
		CopyTags:        d.Transfer.CopyTags != nil && *d.Transfer.CopyTags,
		CopyContentType: d.Transfer.CopyContentType != nil && *d.Transfer.CopyContentType,
	}
}

func setStoreField(store *StoreConfig, key string, value interface{}) {
	if store.Config == nil {
		store.Config = map[string]interface{}{}
	}
	store.Config[key] = value
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func envBool(key string, current *bool) (*bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return current, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, dserrors.ConfigError{
			Field:      key,
			Value:      v,
			Message:    "expected a boolean",
			Suggestion: fmt.Sprintf("Set %s to true or false", key),
		}
	}
	return &b, nil
}

func boolPtr(b bool) *bool { return &b }
