package store

import (
	"errors"
	"sort"
	"sync"
)

// errReadOnly is returned by writes inside a View transaction.
var errReadOnly = errors.New("store: write in read-only transaction")

// MemStore is an in-memory Store. Update works on a copy of the data and
// swaps it in only when the callback succeeds.
type MemStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
	closed  bool
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	buckets := make(map[string]map[string][]byte, len(allBuckets))
	for _, name := range allBuckets {
		buckets[string(name)] = make(map[string][]byte)
	}
	return &MemStore{buckets: buckets}
}

// View runs fn against the current data.
func (s *MemStore) View(fn func(tx Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return fn(s.txOver(s.buckets, true))
}

// Update runs fn against a copy and commits the copy if fn returns nil.
func (s *MemStore) Update(fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	working := make(map[string]map[string][]byte, len(s.buckets))
	for name, b := range s.buckets {
		cp := make(map[string][]byte, len(b))
		for k, v := range b {
			cp[k] = v
		}
		working[name] = cp
	}

	if err := fn(s.txOver(working, false)); err != nil {
		return err
	}
	s.buckets = working
	return nil
}

// Close marks the store closed.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemStore) txOver(buckets map[string]map[string][]byte, readOnly bool) *recordTx {
	mk := func(name []byte) *memBucket {
		return &memBucket{data: buckets[string(name)], readOnly: readOnly}
	}
	return &recordTx{
		admin:    mk(bucketAdmin),
		escrows:  mk(bucketEscrows),
		accounts: mk(bucketAccounts),
	}
}

// memBucket is a map-backed bucket. Values are stored as private copies.
type memBucket struct {
	data     map[string][]byte
	readOnly bool
}

func (b *memBucket) Get(key []byte) []byte {
	return b.data[string(key)]
}

func (b *memBucket) Put(key, value []byte) error {
	if b.readOnly {
		return errReadOnly
	}
	v := make([]byte, len(value))
	copy(v, value)
	b.data[string(key)] = v
	return nil
}

func (b *memBucket) Delete(key []byte) error {
	if b.readOnly {
		return errReadOnly
	}
	delete(b.data, string(key))
	return nil
}

// ForEach visits keys in byte order, matching bbolt cursor order.
func (b *memBucket) ForEach(fn func(k, v []byte) error) error {
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), b.data[k]); err != nil {
			return err
		}
	}
	return nil
}
