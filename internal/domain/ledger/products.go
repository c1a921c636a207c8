package ledger

import (
	"context"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
	"motoledger/internal/core/tx"
	"motoledger/internal/core/types"
	"motoledger/pkg/logger"
)

// CreateProduct registers a catalog item. Stock and cost always start at zero.
func (s *Service) CreateProduct(ctx context.Context, p *Product) error {
	p.StockQty = 0
	p.UnitCost = types.Zero()
	if err := p.Validate(ctx); err != nil {
		return err
	}
	return s.RunAtomic(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateProduct(ctx, p); err != nil {
			return err
		}
		return s.record(ctx, AuditEntry{
			EntityType: "product",
			EntityID:   p.ID,
			Action:     "create",
			Changes: map[string]any{
				"sku":         p.SKU,
				"name":        p.Name,
				"sale_price":  p.SalePrice.String(),
				"price_floor": p.PriceFloor.String(),
			},
		})
	})
}

// GetProduct reads a product through the snapshot cache.
// Inside a transaction the cache is bypassed. The read-through write is
// versioned, so a snapshot read before a concurrent commit cannot replace
// that commit's invalidation.
func (s *Service) GetProduct(ctx context.Context, productID id.ID) (*Product, error) {
	if s.cache == nil || s.txm.InTransaction(ctx) {
		return s.repo.GetProduct(ctx, productID)
	}

	if p, ok, err := s.cache.GetProduct(ctx, productID); err != nil {
		logger.Warn(ctx, "product cache read failed", "product_id", productID, "error", err)
	} else if ok {
		return p, nil
	}

	p, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetProduct(ctx, p); err != nil {
		logger.Warn(ctx, "product cache write failed", "product_id", productID, "error", err)
	}
	return p, nil
}

// ListProducts lists products matching filter.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.ListProducts(ctx, filter)
}

// PricingInput changes the selling side of a product.
type PricingInput struct {
	Name       *string
	SalePrice  *types.Money
	PriceFloor *types.Money
	Version    int
}

// UpdatePricing updates name and prices. Stock and cost are never touched here.
func (s *Service) UpdatePricing(ctx context.Context, productID id.ID, in PricingInput) (*Product, error) {
	var product *Product
	err := s.RunAtomic(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if err := p.ExpectVersion("product", in.Version); err != nil {
			return err
		}

		changes := map[string]any{}
		if in.Name != nil && *in.Name != p.Name {
			changes["name"] = map[string]any{"old": p.Name, "new": *in.Name}
			p.Name = *in.Name
		}
		if in.SalePrice != nil && !in.SalePrice.Equal(p.SalePrice) {
			changes["sale_price"] = map[string]any{"old": p.SalePrice.String(), "new": in.SalePrice.String()}
			p.SalePrice = *in.SalePrice
		}
		if in.PriceFloor != nil && !in.PriceFloor.Equal(p.PriceFloor) {
			changes["price_floor"] = map[string]any{"old": p.PriceFloor.String(), "new": in.PriceFloor.String()}
			p.PriceFloor = *in.PriceFloor
		}
		if err := p.Validate(ctx); err != nil {
			return err
		}
		product = p
		if len(changes) == 0 {
			return nil
		}

		p.UpdatedAt = s.now()
		if err := s.repo.UpdateProduct(ctx, p); err != nil {
			return err
		}
		if err := s.record(ctx, AuditEntry{
			EntityType: "product",
			EntityID:   p.ID,
			Action:     "update",
			Changes:    changes,
		}); err != nil {
			return err
		}
		s.invalidateAfterCommit(ctx, p.ID, p.Version)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// ListLots returns all lots of a product in FIFO order.
func (s *Service) ListLots(ctx context.Context, productID id.ID) ([]Lot, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListLots(ctx, productID)
}

// GetAllocation returns a committed allocation record.
func (s *Service) GetAllocation(ctx context.Context, allocationID id.ID) (*AllocationRecord, error) {
	return s.repo.GetAllocation(ctx, allocationID)
}

// ListReversals returns every reversal of an allocation, oldest first.
func (s *Service) ListReversals(ctx context.Context, allocationID id.ID) ([]Reversal, error) {
	if _, err := s.repo.GetAllocation(ctx, allocationID); err != nil {
		return nil, err
	}
	return s.repo.ListReversals(ctx, allocationID)
}

// ListAllocationsByContext returns the allocations committed for a business document.
func (s *Service) ListAllocationsByContext(ctx context.Context, contextRef string) ([]AllocationRecord, error) {
	if contextRef == "" {
		return nil, apperror.NewValidation("context reference is required")
	}
	return s.repo.ListAllocationsByContext(ctx, contextRef)
}

func (s *Service) invalidateAfterCommit(ctx context.Context, productID id.ID, version int) {
	if s.cache == nil {
		return
	}
	tx.AfterCommit(ctx, func(ctx context.Context) {
		if err := s.cache.Invalidate(ctx, productID, version); err != nil {
			logger.Warn(ctx, "product cache invalidation failed", "product_id", productID, "error", err)
		}
	})
}

// History returns the audit trail of a ledger entity.
func (s *Service) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]AuditEntry, error) {
	if s.audit == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.audit.History(ctx, entityType, entityID, limit)
}
