package stores

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/systmms/secretxfer/internal/logging"
	"github.com/systmms/secretxfer/pkg/secretstore"
)

// Memory is an in-process store used for dry runs and tests. Every Upsert
// gets a fresh UUID version.
type Memory struct {
	name   string
	logger *logging.Logger

	mu      sync.RWMutex
	records map[string]secretstore.Record
	writes  int
}

// NewMemory creates an empty in-memory store.
func NewMemory(name string, deps Deps) *Memory {
	return &Memory{
		name:    name,
		logger:  deps.logger(),
		records: make(map[string]secretstore.Record),
	}
}

// Name returns the store name.
func (m *Memory) Name() string { return m.name }

// Seed stores rec under name without counting it as a write.
func (m *Memory) Seed(name string, rec secretstore.Record) secretstore.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(name, rec)
}

// Fetch returns the stored record or a NotFoundError.
func (m *Memory) Fetch(_ context.Context, name string) (secretstore.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[name]
	if !ok {
		return secretstore.Record{}, &secretstore.NotFoundError{Store: m.name, Name: name}
	}
	return rec, nil
}

// Upsert replaces the record under name.
func (m *Memory) Upsert(ctx context.Context, name string, rec secretstore.Record) (secretstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return secretstore.Record{}, &secretstore.Error{Store: m.name, Op: secretstore.OpUpsert, Name: name, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes++
	m.logger.Debug("Stored secret %s in memory store %s", name, m.name)
	return m.put(name, rec), nil
}

// Writes returns the number of Upsert calls that succeeded.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Len returns the number of stored secrets.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *Memory) put(name string, rec secretstore.Record) secretstore.Record {
	opts := append(recordMetadata(rec), secretstore.WithVersion(uuid.NewString()))
	stored := secretstore.NewRecord(name, rec.Value(), opts...)
	m.records[name] = stored
	return stored
}

// NewMemoryFactory creates a memory store. A "secrets" map of name to value
// seeds it.
func NewMemoryFactory(name string, cfg map[string]interface{}, deps Deps) (secretstore.Store, error) {
	m := NewMemory(name, deps)
	if seed, ok := cfg["secrets"].(map[string]interface{}); ok {
		for k, v := range seed {
			if s, ok := v.(string); ok {
				m.Seed(k, secretstore.NewRecord(k, s))
			}
		}
	}
	return m, nil
}
