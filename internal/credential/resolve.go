package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// ErrUnresolved is returned when a reference names a value that does not exist.
var ErrUnresolved = errors.New("credential reference could not be resolved")

// ResolveValue resolves a config value that may hold a secret reference.
//
//	env:NAME                 value of environment variable NAME
//	keyring:service/account  entry from the OS keyring
//	anything else            used literally
func ResolveValue(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "env:"):
		name := strings.TrimPrefix(ref, "env:")
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return "", fmt.Errorf("%w: environment variable %s is not set", ErrUnresolved, name)
		}
		return v, nil

	case strings.HasPrefix(ref, "keyring:"):
		service, account, ok := strings.Cut(strings.TrimPrefix(ref, "keyring:"), "/")
		if !ok || service == "" || account == "" {
			return "", fmt.Errorf("invalid keyring reference %q: expected keyring:service/account", ref)
		}
		v, err := keyring.Get(service, account)
		if err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				return "", fmt.Errorf("%w: keyring entry %s/%s not found", ErrUnresolved, service, account)
			}
			return "", fmt.Errorf("failed to read keyring entry %s/%s: %w", service, account, err)
		}
		return v, nil

	default:
		return ref, nil
	}
}
