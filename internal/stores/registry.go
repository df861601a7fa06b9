package stores

import (
	"fmt"
	"sort"
	"time"

	"github.com/systmms/secretxfer/internal/credential"
	"github.com/systmms/secretxfer/internal/logging"
	"github.com/systmms/secretxfer/pkg/secretstore"
)

// Store type keys.
const (
	TypeAzureKeyVault     = "azure.keyvault"
	TypeAWSSecretsManager = "aws.secretsmanager"
	TypeAWSSSM            = "aws.ssm"
	TypeGCPSecretManager  = "gcp.secretmanager"
	TypeVault             = "vault"
	TypeMemory            = "memory"
)

const defaultRequestTimeout = 30 * time.Second

// contentTypeTag carries the content type on stores without a native field.
const contentTypeTag = "content-type"

// Deps carries collaborators shared by all stores.
type Deps struct {
	// Credential overrides the store's own credential configuration.
	Credential credential.Provider

	// Logger receives debug output. Nil means no logging.
	Logger *logging.Logger

	// Timeout bounds a single store call at the transport level.
	Timeout time.Duration
}

func (d Deps) logger() *logging.Logger {
	if d.Logger == nil {
		return logging.NewNop()
	}
	return d.Logger
}

func (d Deps) timeout() time.Duration {
	if d.Timeout <= 0 {
		return defaultRequestTimeout
	}
	return d.Timeout
}

// Factory creates a store from its configuration block.
type Factory func(name string, cfg map[string]interface{}, deps Deps) (secretstore.Store, error)

// Registry manages store creation by type key.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in store types.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.RegisterFactory(TypeAzureKeyVault, NewAzureKeyVaultFactory)
	r.RegisterFactory(TypeAWSSecretsManager, NewAWSSecretsManagerFactory)
	r.RegisterFactory(TypeAWSSSM, NewAWSSSMFactory)
	r.RegisterFactory(TypeGCPSecretManager, NewGCPSecretManagerFactory)
	r.RegisterFactory(TypeVault, NewVaultFactory)
	r.RegisterFactory(TypeMemory, NewMemoryFactory)

	return r
}

// RegisterFactory registers a factory for a store type.
func (r *Registry) RegisterFactory(storeType string, factory Factory) {
	r.factories[storeType] = factory
}

// Create builds a store of the given type.
func (r *Registry) Create(name, storeType string, cfg map[string]interface{}, deps Deps) (secretstore.Store, error) {
	factory, exists := r.factories[storeType]
	if !exists {
		return nil, fmt.Errorf("unknown store type: %s", storeType)
	}
	if cfg == nil {
		cfg = map[string]interface{}{}
	}
	return factory(name, cfg, deps)
}

// SupportedTypes returns the registered store types, sorted.
func (r *Registry) SupportedTypes() []string {
	types := make([]string, 0, len(r.factories))
	for storeType := range r.factories {
		types = append(types, storeType)
	}
	sort.Strings(types)
	return types
}

// IsSupported checks if a store type is registered.
func (r *Registry) IsSupported(storeType string) bool {
	_, exists := r.factories[storeType]
	return exists
}
