package fakes

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
)

// FakeVaultKV is an in-memory stand-in for a KV v2 mount.
type FakeVaultKV struct {
	mu sync.Mutex

	// Secrets maps secret paths to their data.
	Secrets map[string]*VaultSecretData
	// Errors maps secret paths to errors returned by every call.
	Errors map[string]error

	// Calls counts invocations per operation name.
	Calls map[string]int
}

// VaultSecretData holds the current version of a fake KV secret.
type VaultSecretData struct {
	Data           map[string]interface{}
	CustomMetadata map[string]interface{}
	Version        int
}

// NewFakeVaultKV creates an empty fake mount.
func NewFakeVaultKV() *FakeVaultKV {
	return &FakeVaultKV{
		Secrets: make(map[string]*VaultSecretData),
		Errors:  make(map[string]error),
		Calls:   make(map[string]int),
	}
}

// AddSecret adds a secret at path. A zero version becomes 1.
func (f *FakeVaultKV) AddSecret(path string, data *VaultSecretData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if data.Version == 0 {
		data.Version = 1
	}
	f.Secrets[path] = data
}

// AddError configures the fake to fail every call for path.
func (f *FakeVaultKV) AddError(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[path] = err
}

// Secret returns the stored data for path.
func (f *FakeVaultKV) Secret(path string) (*VaultSecretData, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.Secrets[path]
	return data, ok
}

// Get implements KVv2.Get.
func (f *FakeVaultKV) Get(_ context.Context, secretPath string) (*vaultapi.KVSecret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls["Get"]++
	if err, exists := f.Errors[secretPath]; exists {
		return nil, err
	}
	data, exists := f.Secrets[secretPath]
	if !exists {
		return nil, fmt.Errorf("%w: at secret/data/%s", vaultapi.ErrSecretNotFound, secretPath)
	}
	return &vaultapi.KVSecret{
		Data:           maps.Clone(data.Data),
		CustomMetadata: maps.Clone(data.CustomMetadata),
		VersionMetadata: &vaultapi.KVVersionMetadata{
			Version:     data.Version,
			CreatedTime: time.Now(),
		},
	}, nil
}

// Put implements KVv2.Put.
func (f *FakeVaultKV) Put(_ context.Context, secretPath string, data map[string]interface{}, _ ...vaultapi.KVOption) (*vaultapi.KVSecret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls["Put"]++
	if err, exists := f.Errors[secretPath]; exists {
		return nil, err
	}
	current, exists := f.Secrets[secretPath]
	if !exists {
		current = &VaultSecretData{}
		f.Secrets[secretPath] = current
	}
	current.Data = maps.Clone(data)
	current.Version++
	return &vaultapi.KVSecret{
		VersionMetadata: &vaultapi.KVVersionMetadata{Version: current.Version},
	}, nil
}

// PatchMetadata implements KVv2.PatchMetadata. Custom metadata keys merge.
func (f *FakeVaultKV) PatchMetadata(_ context.Context, secretPath string, metadata vaultapi.KVMetadataPatchInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls["PatchMetadata"]++
	if err, exists := f.Errors[secretPath]; exists {
		return err
	}
	current, exists := f.Secrets[secretPath]
	if !exists {
		return fmt.Errorf("%w: at secret/metadata/%s", vaultapi.ErrSecretNotFound, secretPath)
	}
	if current.CustomMetadata == nil {
		current.CustomMetadata = map[string]interface{}{}
	}
	for k, v := range metadata.CustomMetadata {
		current.CustomMetadata[k] = v
	}
	return nil
}

// VaultResponseError creates a Vault API error with the given status.
func VaultResponseError(status int, msg string) error {
	return &vaultapi.ResponseError{
		HTTPMethod: "GET",
		StatusCode: status,
		Errors:     []string{msg},
	}
}
