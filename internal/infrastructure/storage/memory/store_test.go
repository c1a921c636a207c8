package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/tx"
	"motoledger/internal/core/types"
	"motoledger/internal/domain/ledger"
)

func seedProduct(t *testing.T, repo *LedgerRepo) *ledger.Product {
	t.Helper()
	p := ledger.NewProduct("CHN-520", "Chain 520", types.MustMoney("40"), types.MustMoney("30"))
	require.NoError(t, repo.CreateProduct(context.Background(), p))
	return p
}

func TestTxManager_RollbackDiscardsWrites(t *testing.T) {
	store := NewStore()
	repo := NewLedgerRepo(store)
	txm := NewTxManager(store)
	ctx := context.Background()
	p := seedProduct(t, repo)

	boom := errors.New("boom")
	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		lot, err := ledger.NewLot(p.ID, types.Units(5), types.MustMoney("1"), time.Now(), "")
		require.NoError(t, err)
		require.NoError(t, repo.CreateLot(ctx, lot))

		lots, err := repo.ListActiveLots(ctx, p.ID)
		require.NoError(t, err)
		assert.Len(t, lots, 1, "own writes are visible inside the transaction")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	lots, err := repo.ListActiveLots(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, lots)
}

func TestTxManager_CommitDetectsLostUpdate(t *testing.T) {
	store := NewStore()
	repo := NewLedgerRepo(store)
	txm := NewTxManager(store)
	ctx := context.Background()
	p := seedProduct(t, repo)

	err := txm.RunInTransaction(ctx, func(txCtx context.Context) error {
		inTx, err := repo.GetProduct(txCtx, p.ID)
		require.NoError(t, err)
		inTx.Name = "from tx"
		require.NoError(t, repo.UpdateProduct(txCtx, inTx))

		// a concurrent writer commits first
		outside, err := repo.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		outside.Name = "from outside"
		require.NoError(t, repo.UpdateProduct(ctx, outside))
		return nil
	})
	require.True(t, apperror.IsConcurrentModification(err))

	got, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "from outside", got.Name)
	assert.Equal(t, 2, got.Version)
}

func TestStore_StagedWriteBuildsOnCheckedVersion(t *testing.T) {
	store := NewStore()
	repo := NewLedgerRepo(store)
	ctx := context.Background()
	p := seedProduct(t, repo)

	txn := newTxn()
	txCtx := context.WithValue(ctx, txnKey{}, txn)
	require.NoError(t, store.put(txCtx, tableProducts, p.ID, p.Version, *p))

	staged := txn.writes[rowKey{tableProducts, p.ID}]
	assert.Equal(t, p.Version, staged.base)
	assert.Equal(t, p.Version+1, staged.row.version)

	// another writer moves the row; the staged write must not commit over it
	outside, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateProduct(ctx, outside))
	assert.True(t, apperror.IsConcurrentModification(store.commit(txn)))
}

func TestTxManager_ParallelReadModifyWrite(t *testing.T) {
	store := NewStore()
	repo := NewLedgerRepo(store)
	txm := NewTxManager(store)
	ctx := context.Background()
	p := seedProduct(t, repo)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
					cur, err := repo.GetProduct(ctx, p.ID)
					if err != nil {
						return err
					}
					cur.StockQty += types.Units(1)
					return repo.UpdateProduct(ctx, cur)
				})
				if err == nil {
					mu.Lock()
					committed++
					mu.Unlock()
					continue
				}
				assert.True(t, apperror.IsConcurrentModification(err), "unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Units(int64(committed)), got.StockQty, "every committed increment is kept")
	assert.Equal(t, committed+1, got.Version)
}

func TestTxManager_NestedRollbackKeepsOuterWrites(t *testing.T) {
	store := NewStore()
	repo := NewLedgerRepo(store)
	txm := NewTxManager(store)
	ctx := context.Background()
	p := seedProduct(t, repo)

	var hookRan bool
	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		assert.True(t, txm.InTransaction(ctx))
		tx.AfterCommit(ctx, func(context.Context) { hookRan = true })

		outer, err := ledger.NewLot(p.ID, types.Units(1), types.MustMoney("1"), time.Now(), "outer")
		require.NoError(t, err)
		require.NoError(t, repo.CreateLot(ctx, outer))

		inner := txm.RunInTransaction(ctx, func(ctx context.Context) error {
			lot, err := ledger.NewLot(p.ID, types.Units(1), types.MustMoney("1"), time.Now(), "inner")
			require.NoError(t, err)
			require.NoError(t, repo.CreateLot(ctx, lot))
			return errors.New("inner failed")
		})
		assert.Error(t, inner)
		assert.False(t, hookRan)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, hookRan)

	lots, err := repo.ListLots(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, "outer", lots[0].SourceRef)
}

func TestOutbox_RequiresTransaction(t *testing.T) {
	o := NewOutbox(NewStore())
	err := o.Publish(context.Background(), ledger.Event{Type: ledger.EventLotReceived})
	assert.Error(t, err)
}
