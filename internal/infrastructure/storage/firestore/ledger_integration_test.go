//go:build integration

package firestore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/gcloud"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
	"motoledger/internal/core/tx"
	"motoledger/internal/core/types"
	"motoledger/internal/domain/ledger"
	"motoledger/internal/infrastructure/storage/firestore"
)

const emulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:367.0.0-emulators"

type fsFixture struct {
	svc    *ledger.Service
	repo   *firestore.LedgerRepo
	outbox *firestore.Outbox
}

func newFSFixture(t *testing.T) *fsFixture {
	t.Helper()
	ctx := context.Background()

	container, err := gcloud.RunFirestore(ctx, emulatorImage, gcloud.WithProjectID("motoledger-test"))
	require.NoError(t, err, "start firestore emulator")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	t.Setenv("FIRESTORE_EMULATOR_HOST", container.URI)
	client, err := firestore.NewClient(ctx, firestore.Config{
		ProjectID: "motoledger-test",
		Prefix:    "t" + id.New().String()[:8] + "_",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	txm := firestore.NewTxManager(client)
	f := &fsFixture{
		repo:   firestore.NewLedgerRepo(client, txm),
		outbox: firestore.NewOutbox(client, txm),
	}
	f.svc = ledger.NewService(f.repo, txm,
		ledger.WithAuditor(firestore.NewAuditor(client, txm)),
		ledger.WithPublisher(f.outbox),
		ledger.WithRetryPolicy(tx.RetryPolicy{MaxAttempts: 8, BaseDelay: 5 * time.Millisecond, MaxDelay: 50 * time.Millisecond}),
	)
	return f
}

func TestFirestoreLedger_FIFOScenario(t *testing.T) {
	f := newFSFixture(t)
	ctx := context.Background()
	day1 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	p := ledger.NewProduct("CHN-520", "Drive chain 520", types.MustMoney("45"), types.MustMoney("20"))
	require.NoError(t, f.svc.CreateProduct(ctx, p))

	dup := ledger.NewProduct("chn-520", "Duplicate", types.MustMoney("1"), types.MustMoney("0"))
	err := f.svc.CreateProduct(ctx, dup)
	assert.Equal(t, apperror.CodeDuplicate, appCode(t, err))

	l1, err := f.svc.ReceiveLot(ctx, ledger.ReceiveInput{ProductID: p.ID, Quantity: types.Units(10), UnitCost: types.MustMoney("5"), ReceivedAt: day1, SourceRef: "intake:1"})
	require.NoError(t, err)
	l2, err := f.svc.ReceiveLot(ctx, ledger.ReceiveInput{ProductID: p.ID, Quantity: types.Units(10), UnitCost: types.MustMoney("7"), ReceivedAt: day1.AddDate(0, 0, 1), SourceRef: "intake:2"})
	require.NoError(t, err)

	plan, err := f.svc.Allocate(ctx, p.ID, types.Units(15))
	require.NoError(t, err)
	require.Len(t, plan.Lines, 2)
	assert.Equal(t, l1.ID, plan.Lines[0].LotID)
	assert.Equal(t, types.Units(10), plan.Lines[0].Quantity)
	assert.Equal(t, l2.ID, plan.Lines[1].LotID)
	assert.Equal(t, types.Units(5), plan.Lines[1].Quantity)

	rec, err := f.svc.CommitConsumption(ctx, plan, "credit:fs:1")
	require.NoError(t, err)

	got, err := f.svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Units(5), got.StockQty)
	assert.True(t, got.UnitCost.Equal(types.MustMoney("7")))

	_, err = f.svc.Reverse(ctx, rec.ID, "return:fs:1")
	require.NoError(t, err)
	got, err = f.svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Units(20), got.StockQty)
	assert.True(t, got.UnitCost.Equal(types.MustMoney("5")))

	_, err = f.svc.Reverse(ctx, rec.ID, "return:fs:2")
	assert.True(t, apperror.IsConflict(err))

	_, err = f.svc.Allocate(ctx, p.ID, types.Units(25))
	require.True(t, apperror.IsInsufficientStock(err))
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, types.Units(5), appErr.Details["shortfall"])

	pending, err := f.outbox.FetchPending(ctx, 50)
	require.NoError(t, err)
	assert.NotEmpty(t, pending)
}

func TestFirestoreLedger_ConcurrentConsumption(t *testing.T) {
	f := newFSFixture(t)
	ctx := context.Background()

	p := ledger.NewProduct("SPK-IRI", "Iridium spark plug", types.MustMoney("15"), types.MustMoney("8"))
	require.NoError(t, f.svc.CreateProduct(ctx, p))
	_, err := f.svc.ReceiveLot(ctx, ledger.ReceiveInput{ProductID: p.ID, Quantity: types.Units(10), UnitCost: types.MustMoney("6")})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Consume(ctx, p.ID, types.Units(8), "credit:race")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperror.IsInsufficientStock(err) || apperror.IsConflict(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	drift, err := f.svc.Verify(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, drift.Consistent())
	assert.Equal(t, types.Units(2), drift.LotsRemaining)
}

func appCode(t *testing.T, err error) string {
	t.Helper()
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok, "expected app error, got %v", err)
	return appErr.Code
}
