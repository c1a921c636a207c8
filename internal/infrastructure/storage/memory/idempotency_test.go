package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motoledger/internal/core/apperror"
)

func TestIdempotencyStore_ReleaseKey(t *testing.T) {
	ctx := context.Background()
	s := NewIdempotencyStore(0)

	replay, err := s.AcquireKey(ctx, "k1", "u-1", "POST /ledger/allocations", "hash-a")
	require.NoError(t, err)
	assert.Nil(t, replay)

	_, err = s.AcquireKey(ctx, "k1", "u-1", "POST /ledger/allocations", "hash-a")
	assert.True(t, apperror.IsAppError(err), "pending key is held")

	require.NoError(t, s.ReleaseKey(ctx, "k1"))
	replay, err = s.AcquireKey(ctx, "k1", "u-1", "POST /ledger/allocations", "hash-a")
	require.NoError(t, err)
	assert.Nil(t, replay, "released key is owned again")

	require.NoError(t, s.FailKey(ctx, "k1", 422, "", map[string]string{"code": "INSUFFICIENT_STOCK"}))
	require.NoError(t, s.ReleaseKey(ctx, "k1"))
	replay, err = s.AcquireKey(ctx, "k1", "u-1", "POST /ledger/allocations", "hash-a")
	require.NoError(t, err)
	require.NotNil(t, replay, "finished keys are not released")
	assert.Equal(t, 422, replay.StatusCode)

	assert.NoError(t, s.ReleaseKey(ctx, "missing"))
}
