package secretstore

import "context"

// Store is a client bound to one secret store endpoint.
//
// Implementations must be safe for concurrent use once constructed.
type Store interface {
	// Name returns the configured store name, used in logs and errors.
	Name() string

	// Fetch returns the current version of the named secret.
	// Returns *NotFoundError when the secret does not exist.
	Fetch(ctx context.Context, name string) (Record, error)

	// Upsert writes rec under name and returns the record as stored.
	// The name argument wins over rec.Name().
	Upsert(ctx context.Context, name string, rec Record) (Record, error)
}

// Validator is implemented by stores that can check connectivity and
// permissions without touching a particular secret.
type Validator interface {
	Validate(ctx context.Context) error
}
