// Package store persists escrow state. Every Update runs as one atomic
// transaction: if the callback returns an error nothing it wrote is kept.
package store

import (
	"fmt"

	"github.com/bitfsorg/milestone-escrow/identity"
	"github.com/bitfsorg/milestone-escrow/state"
)

// Store runs read-only and read-write transactions over escrow state.
// Update transactions are serialized.
type Store interface {
	// View runs fn in a read-only transaction.
	View(fn func(tx Tx) error) error

	// Update runs fn in a read-write transaction, committing only if fn returns nil.
	Update(fn func(tx Tx) error) error

	// Close releases the store.
	Close() error
}

// Tx is the record access available inside a transaction.
type Tx interface {
	// Admin returns the AdminConfig singleton.
	Admin() (*state.AdminConfig, error)

	// CreateAdmin stores the AdminConfig singleton. Returns ErrExists if present.
	CreateAdmin(cfg *state.AdminConfig) error

	// PutAdmin overwrites the AdminConfig singleton. Returns ErrNotFound if absent.
	PutAdmin(cfg *state.AdminConfig) error

	// Escrow returns the record stored at addr.
	Escrow(addr identity.Address) (*state.EscrowRecord, error)

	// CreateEscrow stores a new record at addr. Returns ErrExists if occupied.
	CreateEscrow(addr identity.Address, rec *state.EscrowRecord) error

	// PutEscrow overwrites the record at addr. Returns ErrNotFound if absent.
	PutEscrow(addr identity.Address, rec *state.EscrowRecord) error

	// DeleteEscrow removes the record at addr.
	DeleteEscrow(addr identity.Address) error

	// Escrows returns every stored record ordered by address.
	Escrows() ([]*state.EscrowRecord, error)

	// Account returns the token account at addr.
	Account(addr identity.Address) (*state.TokenAccount, error)

	// PutAccount creates or overwrites the token account at acct.Address.
	PutAccount(acct *state.TokenAccount) error

	// DeleteAccount removes the token account at addr.
	DeleteAccount(addr identity.Address) error
}

var (
	bucketAdmin    = []byte("admin")
	bucketEscrows  = []byte("escrows")
	bucketAccounts = []byte("accounts")

	// adminKey is the single key of the admin bucket.
	adminKey = []byte("admin")

	allBuckets = [][]byte{bucketAdmin, bucketEscrows, bucketAccounts}
)

// bucket is the key/value surface shared by *bbolt.Bucket and memBucket.
type bucket interface {
	Get(key []byte) []byte
	Put(key, value []byte) error
	Delete(key []byte) error
	ForEach(fn func(k, v []byte) error) error
}

// recordTx implements Tx over three buckets.
type recordTx struct {
	admin    bucket
	escrows  bucket
	accounts bucket
}

var _ Tx = (*recordTx)(nil)

func (t *recordTx) Admin() (*state.AdminConfig, error) {
	data := t.admin.Get(adminKey)
	if data == nil {
		return nil, fmt.Errorf("%w: admin config", ErrNotFound)
	}
	return state.DeserializeAdmin(data)
}

func (t *recordTx) CreateAdmin(cfg *state.AdminConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: admin config", ErrNilParam)
	}
	if t.admin.Get(adminKey) != nil {
		return fmt.Errorf("%w: admin config", ErrExists)
	}
	return t.admin.Put(adminKey, state.SerializeAdmin(cfg))
}

func (t *recordTx) PutAdmin(cfg *state.AdminConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: admin config", ErrNilParam)
	}
	if t.admin.Get(adminKey) == nil {
		return fmt.Errorf("%w: admin config", ErrNotFound)
	}
	return t.admin.Put(adminKey, state.SerializeAdmin(cfg))
}

func (t *recordTx) Escrow(addr identity.Address) (*state.EscrowRecord, error) {
	data := t.escrows.Get(addr[:])
	if data == nil {
		return nil, fmt.Errorf("%w: escrow %s", ErrNotFound, addr)
	}
	return state.DeserializeEscrow(data)
}

func (t *recordTx) CreateEscrow(addr identity.Address, rec *state.EscrowRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: escrow record", ErrNilParam)
	}
	if t.escrows.Get(addr[:]) != nil {
		return fmt.Errorf("%w: escrow %s", ErrExists, addr)
	}
	return t.escrows.Put(addr[:], state.SerializeEscrow(rec))
}

func (t *recordTx) PutEscrow(addr identity.Address, rec *state.EscrowRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: escrow record", ErrNilParam)
	}
	if t.escrows.Get(addr[:]) == nil {
		return fmt.Errorf("%w: escrow %s", ErrNotFound, addr)
	}
	return t.escrows.Put(addr[:], state.SerializeEscrow(rec))
}

func (t *recordTx) DeleteEscrow(addr identity.Address) error {
	if t.escrows.Get(addr[:]) == nil {
		return fmt.Errorf("%w: escrow %s", ErrNotFound, addr)
	}
	return t.escrows.Delete(addr[:])
}

func (t *recordTx) Escrows() ([]*state.EscrowRecord, error) {
	var recs []*state.EscrowRecord
	err := t.escrows.ForEach(func(k, v []byte) error {
		rec, err := state.DeserializeEscrow(v)
		if err != nil {
			return fmt.Errorf("store: decode escrow %x: %w", k, err)
		}
		recs = append(recs, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (t *recordTx) Account(addr identity.Address) (*state.TokenAccount, error) {
	data := t.accounts.Get(addr[:])
	if data == nil {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, addr)
	}
	return state.DeserializeAccount(data)
}

func (t *recordTx) PutAccount(acct *state.TokenAccount) error {
	if acct == nil {
		return fmt.Errorf("%w: token account", ErrNilParam)
	}
	return t.accounts.Put(acct.Address[:], state.SerializeAccount(acct))
}

func (t *recordTx) DeleteAccount(addr identity.Address) error {
	if t.accounts.Get(addr[:]) == nil {
		return fmt.Errorf("%w: account %s", ErrNotFound, addr)
	}
	return t.accounts.Delete(addr[:])
}
