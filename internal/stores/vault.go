package stores

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/systmms/secretxfer/internal/credential"
	dserrors "github.com/systmms/secretxfer/internal/errors"
	"github.com/systmms/secretxfer/internal/logging"
	"github.com/systmms/secretxfer/pkg/secretstore"
)

const (
	defaultVaultMount    = "secret"
	defaultVaultValueKey = "value"

	// vaultTokenScope is the scope passed to credential providers for Vault tokens.
	vaultTokenScope = "vault"
)

// VaultKVAPI is the subset of the KV v2 client used by the store.
type VaultKVAPI interface {
	Get(ctx context.Context, secretPath string) (*vaultapi.KVSecret, error)
	Put(ctx context.Context, secretPath string, data map[string]interface{}, opts ...vaultapi.KVOption) (*vaultapi.KVSecret, error)
	PatchMetadata(ctx context.Context, secretPath string, metadata vaultapi.KVMetadataPatchInput) error
}

// VaultConfig holds HashiCorp Vault-specific configuration.
type VaultConfig struct {
	Address   string
	Token     string
	Namespace string
	Mount     string
	ValueKey  string
}

// Vault stores secrets in a KV v2 engine. The value lives under ValueKey in
// the secret data; tags and the content type live in custom metadata.
type Vault struct {
	name     string
	mount    string
	valueKey string
	logger   *logging.Logger

	api  *vaultapi.Client
	kv   VaultKVAPI
	auth credential.Provider
}

// VaultOption is a functional option for configuring the Vault store.
type VaultOption func(*Vault)

// WithVaultKVClient sets a custom KV client (for testing).
func WithVaultKVClient(kv VaultKVAPI) VaultOption {
	return func(s *Vault) {
		s.kv = kv
	}
}

// ParseVaultConfig reads a vault config block. The token may be an env: or
// keyring: reference; when absent the client falls back to VAULT_TOKEN.
func ParseVaultConfig(cfg map[string]interface{}) (VaultConfig, error) {
	token, err := secretField(cfg, "token")
	if err != nil {
		return VaultConfig{}, err
	}
	c := VaultConfig{
		Address:   stringField(cfg, "address"),
		Token:     token,
		Namespace: stringField(cfg, "namespace"),
		Mount:     stringField(cfg, "mount"),
		ValueKey:  stringField(cfg, "value_key"),
	}
	if c.Mount == "" {
		c.Mount = defaultVaultMount
	}
	if c.ValueKey == "" {
		c.ValueKey = defaultVaultValueKey
	}
	return c, nil
}

// NewVault creates a Vault KV v2 store.
func NewVault(name string, cfg VaultConfig, deps Deps, opts ...VaultOption) (*Vault, error) {
	s := &Vault{
		name:     name,
		mount:    cfg.Mount,
		valueKey: cfg.ValueKey,
		logger:   deps.logger(),
		auth:     deps.Credential,
	}
	if s.mount == "" {
		s.mount = defaultVaultMount
	}
	if s.valueKey == "" {
		s.valueKey = defaultVaultValueKey
	}
	if s.auth == nil && cfg.Token != "" {
		s.auth = credential.NewStatic("vault:token", cfg.Token)
	}
	if s.auth != nil {
		s.auth = credential.NewCached(s.auth)
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.kv != nil {
		return s, nil
	}

	apiCfg := vaultapi.DefaultConfig()
	if apiCfg.Error != nil {
		return nil, fmt.Errorf("failed to read vault environment: %w", apiCfg.Error)
	}
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	apiCfg.MaxRetries = 0
	apiCfg.Timeout = deps.timeout()

	client, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return nil, dserrors.ConfigError{
			Field:      "address",
			Value:      cfg.Address,
			Message:    err.Error(),
			Suggestion: "Use format: https://vault.example.com:8200",
		}
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	s.api = client
	s.kv = client.KVv2(s.mount)
	return s, nil
}

// Name returns the store name.
func (s *Vault) Name() string { return s.name }

// authorize refreshes the client token from the credential provider.
func (s *Vault) authorize(ctx context.Context) error {
	if s.auth == nil || s.api == nil {
		return nil
	}
	tok, err := s.auth.AcquireToken(ctx, vaultTokenScope)
	if err != nil {
		return err
	}
	s.api.SetToken(tok.Value)
	return nil
}

// Fetch reads the current version of a secret.
func (s *Vault) Fetch(ctx context.Context, name string) (secretstore.Record, error) {
	if err := s.authorize(ctx); err != nil {
		return secretstore.Record{}, s.translateError(secretstore.OpFetch, name, err)
	}
	s.logger.Debug("Fetching secret %s from Vault mount %s", name, s.mount)

	secret, err := s.kv.Get(ctx, name)
	if err != nil {
		return secretstore.Record{}, s.translateError(secretstore.OpFetch, name, err)
	}

	raw, ok := secret.Data[s.valueKey]
	if !ok {
		return secretstore.Record{}, &secretstore.Error{
			Store: s.name,
			Op:    secretstore.OpFetch,
			Name:  name,
			Err:   fmt.Errorf("key %q not present in secret data", s.valueKey),
		}
	}
	value, ok := raw.(string)
	if !ok {
		return secretstore.Record{}, &secretstore.Error{
			Store: s.name,
			Op:    secretstore.OpFetch,
			Name:  name,
			Err:   fmt.Errorf("key %q is %T, not a string", s.valueKey, raw),
		}
	}

	opts := splitContentTypeTag(fromVaultMetadata(secret.CustomMetadata))
	if secret.VersionMetadata != nil {
		opts = append(opts, secretstore.WithVersion(strconv.Itoa(secret.VersionMetadata.Version)))
	}
	return secretstore.NewRecord(name, value, opts...), nil
}

// Upsert writes rec as a new version and replaces the custom metadata when
// rec carries tags or a content type.
func (s *Vault) Upsert(ctx context.Context, name string, rec secretstore.Record) (secretstore.Record, error) {
	if err := s.authorize(ctx); err != nil {
		return secretstore.Record{}, s.translateError(secretstore.OpUpsert, name, err)
	}
	s.logger.Debug("Writing secret %s to Vault mount %s", name, s.mount)

	written, err := s.kv.Put(ctx, name, map[string]interface{}{s.valueKey: rec.Value()})
	if err != nil {
		return secretstore.Record{}, s.translateError(secretstore.OpUpsert, name, err)
	}

	if meta := joinContentTypeTag(rec); len(meta) > 0 {
		err := s.kv.PatchMetadata(ctx, name, vaultapi.KVMetadataPatchInput{
			CustomMetadata: toVaultMetadata(meta),
		})
		if err != nil {
			return secretstore.Record{}, s.translateError(secretstore.OpUpsert, name, err)
		}
	}

	opts := recordMetadata(rec)
	if written != nil && written.VersionMetadata != nil {
		opts = append(opts, secretstore.WithVersion(strconv.Itoa(written.VersionMetadata.Version)))
	}
	return secretstore.NewRecord(name, rec.Value(), opts...), nil
}

// Validate looks up the current token. Injected clients are assumed valid.
func (s *Vault) Validate(ctx context.Context) error {
	if s.api == nil {
		return nil
	}
	if err := s.authorize(ctx); err != nil {
		return s.translateError(secretstore.OpValidate, "", err)
	}
	if _, err := s.api.Auth().Token().LookupSelfWithContext(ctx); err != nil {
		return s.translateError(secretstore.OpValidate, "", err)
	}
	return nil
}

// translateError maps Vault client errors to secretstore errors.
func (s *Vault) translateError(op, name string, err error) error {
	var authErr *credential.AuthenticationError
	if errors.As(err, &authErr) {
		return authErr
	}

	if errors.Is(err, vaultapi.ErrSecretNotFound) && op != secretstore.OpValidate {
		return &secretstore.NotFoundError{Store: s.name, Name: name}
	}

	var respErr *vaultapi.ResponseError
	if errors.As(err, &respErr) {
		if respErr.StatusCode == http.StatusNotFound && op != secretstore.OpValidate {
			return &secretstore.NotFoundError{Store: s.name, Name: name}
		}
		return &secretstore.Error{
			Store:      s.name,
			Op:         op,
			Name:       name,
			StatusCode: respErr.StatusCode,
			Code:       http.StatusText(respErr.StatusCode),
			Err:        err,
		}
	}

	return &secretstore.Error{Store: s.name, Op: op, Name: name, Err: err}
}

func fromVaultMetadata(meta map[string]interface{}) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func toVaultMetadata(tags map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

// NewVaultFactory creates a Vault store from config.
func NewVaultFactory(name string, cfg map[string]interface{}, deps Deps) (secretstore.Store, error) {
	parsed, err := ParseVaultConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewVault(name, parsed, deps)
}
