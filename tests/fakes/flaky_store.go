package fakes

import (
	"context"
	"strconv"
	"sync"

	"github.com/systmms/secretxfer/pkg/secretstore"
)

// FlakyStore is a scripted secretstore.Store. Queued errors are returned in
// order before calls reach the in-memory records, so a test can say "fail
// twice with 503, then succeed".
type FlakyStore struct {
	name string

	mu             sync.Mutex
	records        map[string]secretstore.Record
	fetchFailures  []error
	upsertFailures []error
	fetchCalls     int
	upsertCalls    int
	version        int

	// OnFetch runs before every Fetch with the 1-based call number.
	OnFetch func(call int)
	// OnUpsert runs before every Upsert with the 1-based call number.
	OnUpsert func(call int)
}

// NewFlakyStore creates an empty scripted store.
func NewFlakyStore(name string) *FlakyStore {
	return &FlakyStore{name: name, records: make(map[string]secretstore.Record)}
}

// Name returns the store name.
func (s *FlakyStore) Name() string { return s.name }

// Put stores rec under name directly.
func (s *FlakyStore) Put(name string, rec secretstore.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(name, rec)
}

// Record returns the stored record for name.
func (s *FlakyStore) Record(name string) (secretstore.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[name]
	return rec, ok
}

// FailFetch queues n fetch failures with the given HTTP status.
func (s *FlakyStore) FailFetch(n, status int) *FlakyStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.fetchFailures = append(s.fetchFailures, StatusError(s.name, secretstore.OpFetch, status))
	}
	return s
}

// FailUpsert queues n upsert failures with the given HTTP status.
func (s *FlakyStore) FailUpsert(n, status int) *FlakyStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.upsertFailures = append(s.upsertFailures, StatusError(s.name, secretstore.OpUpsert, status))
	}
	return s
}

// QueueFetchError queues an arbitrary fetch failure.
func (s *FlakyStore) QueueFetchError(err error) *FlakyStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchFailures = append(s.fetchFailures, err)
	return s
}

// QueueUpsertError queues an arbitrary upsert failure.
func (s *FlakyStore) QueueUpsertError(err error) *FlakyStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertFailures = append(s.upsertFailures, err)
	return s
}

// FetchCalls returns the number of Fetch calls.
func (s *FlakyStore) FetchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls
}

// UpsertCalls returns the number of Upsert calls.
func (s *FlakyStore) UpsertCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertCalls
}

// Fetch returns the next queued error or the stored record.
func (s *FlakyStore) Fetch(_ context.Context, name string) (secretstore.Record, error) {
	s.mu.Lock()
	s.fetchCalls++
	call, hook := s.fetchCalls, s.OnFetch
	s.mu.Unlock()
	if hook != nil {
		hook(call)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.fetchFailures) > 0 {
		err := s.fetchFailures[0]
		s.fetchFailures = s.fetchFailures[1:]
		return secretstore.Record{}, err
	}
	rec, ok := s.records[name]
	if !ok {
		return secretstore.Record{}, &secretstore.NotFoundError{Store: s.name, Name: name}
	}
	return rec, nil
}

// Upsert returns the next queued error or stores rec.
func (s *FlakyStore) Upsert(_ context.Context, name string, rec secretstore.Record) (secretstore.Record, error) {
	s.mu.Lock()
	s.upsertCalls++
	call, hook := s.upsertCalls, s.OnUpsert
	s.mu.Unlock()
	if hook != nil {
		hook(call)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.upsertFailures) > 0 {
		err := s.upsertFailures[0]
		s.upsertFailures = s.upsertFailures[1:]
		return secretstore.Record{}, err
	}
	return s.put(name, rec), nil
}

func (s *FlakyStore) put(name string, rec secretstore.Record) secretstore.Record {
	s.version++
	opts := []secretstore.RecordOption{
		secretstore.WithTags(rec.Tags()),
		secretstore.WithVersion("v" + strconv.Itoa(s.version)),
	}
	if ct, ok := rec.ContentType(); ok {
		opts = append(opts, secretstore.WithContentType(ct))
	}
	stored := secretstore.NewRecord(name, rec.Value(), opts...)
	s.records[name] = stored
	return stored
}

// StatusError creates a store error carrying an HTTP status.
func StatusError(store, op string, status int) error {
	return &secretstore.Error{Store: store, Op: op, StatusCode: status}
}
