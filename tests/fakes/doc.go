// Package fakes provides test doubles for secret store SDK clients.
//
// The fakes implement the narrow client interfaces declared in
// internal/stores so adapters can be tested without real cloud services.
// FlakyStore scripts failures at the secretstore.Store level for driving
// retries and transfers. Fakes are written by hand, not generated, so tests
// keep precise control over behavior.
//
// Usage:
//
//	fake := fakes.NewFakeAzureKeyVaultClient()
//	fake.AddSecretString("db-pass", "p@ss")
//	store, _ := stores.NewAzureKeyVault("parent", cfg, deps,
//	    stores.WithAzureKeyVaultClient(fake))
package fakes
