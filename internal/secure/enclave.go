package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned by Reveal after Destroy.
var ErrDestroyed = errors.New("sealed value has been destroyed")

// Sealed holds one secret value encrypted at rest in memory.
type Sealed struct {
	mu      sync.RWMutex
	enclave *memguard.Enclave

	// memguard refuses zero-length enclaves
	empty     bool
	destroyed bool
}

// Seal copies value into a memguard enclave.
func Seal(value string) *Sealed {
	if value == "" {
		return &Sealed{empty: true}
	}
	// NewEnclave wipes its input, so hand it a private copy.
	return &Sealed{enclave: memguard.NewEnclave([]byte(value))}
}

// Reveal decrypts the value and passes it to fn. The decrypted buffer is
// wiped when fn returns.
func (s *Sealed) Reveal(fn func(value string) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed {
		return ErrDestroyed
	}
	if s.empty {
		return fn("")
	}

	locked, err := s.enclave.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()

	// Copy out: the locked buffer is unmapped on Destroy.
	return fn(string(locked.Bytes()))
}

// Size returns the length of the sealed value in bytes.
func (s *Sealed) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed || s.empty {
		return 0
	}
	return s.enclave.Size()
}

// Destroy drops the enclave. It is safe to call more than once.
//
// The enclave ciphertext is left to the garbage collector; call
// memguard.Purge at process exit to wipe the session key.
func (s *Sealed) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enclave = nil
	s.destroyed = true
}
