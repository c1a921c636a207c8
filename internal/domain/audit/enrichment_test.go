package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "motoledger/internal/core/context"
	"motoledger/internal/core/entity"
)

func TestStamp(t *testing.T) {
	t.Run("uses operator email", func(t *testing.T) {
		doc := entity.NewDocument()
		ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u1", Email: "parts@shop.test"})

		require.NoError(t, Stamp(ctx, &doc))
		assert.Equal(t, "parts@shop.test", doc.CreatedBy)
		assert.Equal(t, "parts@shop.test", doc.UpdatedBy)
	})

	t.Run("keeps creator on update", func(t *testing.T) {
		doc := entity.NewDocument()
		doc.Stamp("first@shop.test")

		ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u2", Email: "second@shop.test"})
		require.NoError(t, Stamp(ctx, &doc))
		assert.Equal(t, "first@shop.test", doc.CreatedBy)
		assert.Equal(t, "second@shop.test", doc.UpdatedBy)
	})

	t.Run("falls back to system", func(t *testing.T) {
		doc := entity.NewDocument()
		require.NoError(t, Stamp(context.Background(), &doc))
		assert.Equal(t, "system", doc.CreatedBy)
	})
}
