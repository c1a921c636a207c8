package dto

import (
	"time"

	"motoledger/internal/core/id"
	"motoledger/internal/core/types"
	"motoledger/internal/domain/ledger"
)

// CreateProductRequest registers a catalog product.
type CreateProductRequest struct {
	SKU        string      `json:"sku" binding:"required,sku"`
	Name       string      `json:"name" binding:"required,max=200"`
	SalePrice  types.Money `json:"salePrice"`
	PriceFloor types.Money `json:"priceFloor"`
}

// ToProduct maps the request to a new product.
func (r CreateProductRequest) ToProduct() *ledger.Product {
	return ledger.NewProduct(r.SKU, r.Name, r.SalePrice, r.PriceFloor)
}

// UpdatePricingRequest changes name and prices. Version enables optimistic locking.
type UpdatePricingRequest struct {
	Name       *string      `json:"name" binding:"omitempty,max=200"`
	SalePrice  *types.Money `json:"salePrice"`
	PriceFloor *types.Money `json:"priceFloor"`
	Version    int          `json:"version" binding:"min=0"`
}

// ToInput maps the request to the ledger input.
func (r UpdatePricingRequest) ToInput() ledger.PricingInput {
	return ledger.PricingInput{Name: r.Name, SalePrice: r.SalePrice, PriceFloor: r.PriceFloor, Version: r.Version}
}

// ProductListQuery filters the product list.
type ProductListQuery struct {
	Search  string `form:"search"`
	InStock *bool  `form:"inStock"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset  int    `form:"offset" binding:"omitempty,min=0"`
}

// ToFilter builds the ledger filter.
func (q ProductListQuery) ToFilter() ledger.ProductFilter {
	return ledger.ProductFilter{Search: q.Search, InStock: q.InStock, Limit: q.Limit, Offset: q.Offset}
}

// ProductResponse is the API view of a product.
type ProductResponse struct {
	ID         id.ID          `json:"id"`
	Version    int            `json:"version"`
	SKU        string         `json:"sku"`
	Name       string         `json:"name"`
	StockQty   types.Quantity `json:"stockQty"`
	UnitCost   types.Money    `json:"unitCost"`
	SalePrice  types.Money    `json:"salePrice"`
	PriceFloor types.Money    `json:"priceFloor"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// FromProduct maps a product.
func FromProduct(p *ledger.Product) ProductResponse {
	return ProductResponse{
		ID:         p.ID,
		Version:    p.Version,
		SKU:        p.SKU,
		Name:       p.Name,
		StockQty:   p.StockQty,
		UnitCost:   p.UnitCost,
		SalePrice:  p.SalePrice,
		PriceFloor: p.PriceFloor,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

// CorrectionRequest adjusts stock after a recount.
type CorrectionRequest struct {
	Delta    types.Quantity `json:"delta" binding:"required"`
	UnitCost *types.Money   `json:"unitCost"`
	Reason   string         `json:"reason" binding:"required,max=200"`
}

// RecalculateResponse reports the re-derived effective cost.
type RecalculateResponse struct {
	ProductID id.ID       `json:"productId"`
	UnitCost  types.Money `json:"unitCost"`
}
