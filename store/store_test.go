package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/milestone-escrow/identity"
	"github.com/bitfsorg/milestone-escrow/state"
)

func makeAddr(seed byte) identity.Address {
	var a identity.Address
	for i := range a {
		a[i] = seed
	}
	return a
}

func tempBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "sub", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// backends runs fn once per Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemStore()) })
	t.Run("bolt", func(t *testing.T) { fn(t, tempBoltStore(t)) })
}

func testAdmin() *state.AdminConfig {
	return &state.AdminConfig{Admin1: makeAddr(1), Admin2: makeAddr(2), Resolver: makeAddr(3)}
}

func testEscrow(seed uint64) *state.EscrowRecord {
	return &state.EscrowRecord{
		Seed: seed, Initializer: makeAddr(0xA0), Taker: makeAddr(0xB0),
		Currency: makeAddr(0xC0), Vault: makeAddr(byte(seed)),
		Milestones: state.Milestones{100, 200},
	}
}

// ---------------------------------------------------------------------------
// Admin tests
// ---------------------------------------------------------------------------

func TestStore_AdminLifecycle(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		err := s.View(func(tx Tx) error {
			_, err := tx.Admin()
			return err
		})
		assert.ErrorIs(t, err, ErrNotFound)

		err = s.Update(func(tx Tx) error { return tx.PutAdmin(testAdmin()) })
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.Update(func(tx Tx) error { return tx.CreateAdmin(testAdmin()) }))

		err = s.Update(func(tx Tx) error { return tx.CreateAdmin(testAdmin()) })
		assert.ErrorIs(t, err, ErrExists)

		updated := testAdmin()
		updated.AdminFeePercent = 20
		require.NoError(t, s.Update(func(tx Tx) error { return tx.PutAdmin(updated) }))

		var got *state.AdminConfig
		require.NoError(t, s.View(func(tx Tx) error {
			var err error
			got, err = tx.Admin()
			return err
		}))
		assert.Equal(t, updated, got)
	})
}

// ---------------------------------------------------------------------------
// Escrow tests
// ---------------------------------------------------------------------------

func TestStore_EscrowLifecycle(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		addr := makeAddr(0x77)
		rec := testEscrow(7)

		require.NoError(t, s.Update(func(tx Tx) error { return tx.CreateEscrow(addr, rec) }))
		err := s.Update(func(tx Tx) error { return tx.CreateEscrow(addr, rec) })
		assert.ErrorIs(t, err, ErrExists)

		rec.Milestones[0] = 0
		rec.Disputed = true
		require.NoError(t, s.Update(func(tx Tx) error { return tx.PutEscrow(addr, rec) }))

		require.NoError(t, s.View(func(tx Tx) error {
			got, err := tx.Escrow(addr)
			require.NoError(t, err)
			assert.Equal(t, rec, got)
			return nil
		}))

		require.NoError(t, s.Update(func(tx Tx) error { return tx.DeleteEscrow(addr) }))
		err = s.View(func(tx Tx) error {
			_, err := tx.Escrow(addr)
			return err
		})
		assert.ErrorIs(t, err, ErrNotFound)

		err = s.Update(func(tx Tx) error { return tx.DeleteEscrow(addr) })
		assert.ErrorIs(t, err, ErrNotFound)
		err = s.Update(func(tx Tx) error { return tx.PutEscrow(addr, rec) })
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_EscrowsOrdered(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		require.NoError(t, s.Update(func(tx Tx) error {
			for _, seed := range []byte{3, 1, 2} {
				if err := tx.CreateEscrow(makeAddr(seed), testEscrow(uint64(seed))); err != nil {
					return err
				}
			}
			return nil
		}))

		require.NoError(t, s.View(func(tx Tx) error {
			recs, err := tx.Escrows()
			require.NoError(t, err)
			require.Len(t, recs, 3)
			for i, rec := range recs {
				assert.Equal(t, uint64(i+1), rec.Seed)
			}
			return nil
		}))
	})
}

// ---------------------------------------------------------------------------
// Account tests
// ---------------------------------------------------------------------------

func TestStore_Accounts(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		acct := &state.TokenAccount{Address: makeAddr(9), Mint: makeAddr(8), Owner: makeAddr(7), Amount: 500}
		require.NoError(t, s.Update(func(tx Tx) error { return tx.PutAccount(acct) }))

		acct.Amount = 250
		require.NoError(t, s.Update(func(tx Tx) error { return tx.PutAccount(acct) }))

		require.NoError(t, s.View(func(tx Tx) error {
			got, err := tx.Account(acct.Address)
			require.NoError(t, err)
			assert.Equal(t, uint64(250), got.Amount)
			return nil
		}))

		require.NoError(t, s.Update(func(tx Tx) error { return tx.DeleteAccount(acct.Address) }))
		err := s.View(func(tx Tx) error {
			_, err := tx.Account(acct.Address)
			return err
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_NilParams(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		err := s.Update(func(tx Tx) error { return tx.CreateAdmin(nil) })
		assert.ErrorIs(t, err, ErrNilParam)
		err = s.Update(func(tx Tx) error { return tx.CreateEscrow(makeAddr(1), nil) })
		assert.ErrorIs(t, err, ErrNilParam)
		err = s.Update(func(tx Tx) error { return tx.PutAccount(nil) })
		assert.ErrorIs(t, err, ErrNilParam)
	})
}

// ---------------------------------------------------------------------------
// Atomicity tests
// ---------------------------------------------------------------------------

func TestStore_UpdateRollsBackOnError(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		boom := errors.New("boom")
		acct := &state.TokenAccount{Address: makeAddr(1), Amount: 10}

		err := s.Update(func(tx Tx) error {
			if err := tx.CreateAdmin(testAdmin()); err != nil {
				return err
			}
			if err := tx.PutAccount(acct); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		require.NoError(t, s.View(func(tx Tx) error {
			_, err := tx.Admin()
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = tx.Account(acct.Address)
			assert.ErrorIs(t, err, ErrNotFound)
			return nil
		}))
	})
}

func TestStore_ViewIsReadOnly(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		err := s.View(func(tx Tx) error { return tx.CreateAdmin(testAdmin()) })
		assert.Error(t, err)
	})
}

func TestBoltStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrow.db")
	s, err := OpenBoltStore(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	require.NoError(t, s.Update(func(tx Tx) error { return tx.CreateEscrow(makeAddr(7), testEscrow(7)) }))
	require.NoError(t, s.Close())

	s, err = OpenBoltStore(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.View(func(tx Tx) error {
		rec, err := tx.Escrow(makeAddr(7))
		require.NoError(t, err)
		assert.Equal(t, uint64(7), rec.Seed)
		return nil
	}))
}

func TestMemStore_Closed(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.View(func(Tx) error { return nil }), ErrClosed)
	assert.ErrorIs(t, s.Update(func(Tx) error { return nil }), ErrClosed)
}
