// Package secretstore defines the contract between secretxfer and the secret
// stores it copies between.
//
// A secret store is a managed key-value service holding sensitive string values
// together with metadata: an optional content type, a set of tags, and an opaque
// store-assigned version. Azure Key Vault, AWS Secrets Manager, AWS SSM Parameter
// Store, Google Secret Manager and HashiCorp Vault KV v2 are all secret stores in
// this sense.
//
// # The Store Contract
//
// Every adapter implements two operations:
//
//   - Fetch returns the current version of a named secret as a Record.
//   - Upsert writes a Record under a name and returns the Record as stored,
//     including the version the store assigned.
//
// Upsert must be idempotent with respect to content: writing the same value,
// content type and tags under the same name twice leaves the store holding the
// same secret, even if a second version was created. The transfer orchestrator
// relies on this to retry writes safely.
//
// Store construction must be side-effect free. No network call may happen until
// the first Fetch or Upsert.
//
// # Error Handling
//
// Adapters translate their SDK errors into the types defined here:
//   - NotFoundError when the named secret does not exist
//   - Error carrying the HTTP-equivalent status code for everything else
//
// Retry decisions are never made inside an adapter. The retry package classifies
// these errors and decides whether another attempt is worthwhile.
//
// # Records
//
// Record is immutable. Its tag map is copied on construction and on every read,
// so a Record obtained from a store can be passed around and compared without
// defensive copying by callers. Record.String never includes the secret value.
package secretstore
