package ledger

import (
	"time"

	"motoledger/internal/core/id"
	"motoledger/internal/core/types"
)

// Event types written to the outbox.
const (
	EventLotReceived         = "ledger.lot_received"
	EventStockConsumed       = "ledger.stock_consumed"
	EventConsumptionReversed = "ledger.consumption_reversed"
	EventCostChanged         = "ledger.cost_changed"
)

// AggregateProduct is the aggregate type of every ledger event.
const AggregateProduct = "product"

// Event is a domain event emitted by a committed ledger operation.
type Event struct {
	Type        string
	AggregateID id.ID
	Payload     any
	OccurredAt  time.Time
}

// LotReceivedPayload is the body of EventLotReceived.
type LotReceivedPayload struct {
	LotID      id.ID          `json:"lotId"`
	ProductID  id.ID          `json:"productId"`
	Quantity   types.Quantity `json:"quantity"`
	UnitCost   types.Money    `json:"unitCost"`
	SourceRef  string         `json:"sourceRef"`
	StockAfter types.Quantity `json:"stockAfter"`
}

// StockConsumedPayload is the body of EventStockConsumed.
type StockConsumedPayload struct {
	AllocationID id.ID            `json:"allocationId"`
	ProductID    id.ID            `json:"productId"`
	ContextRef   string           `json:"contextRef"`
	Quantity     types.Quantity   `json:"quantity"`
	TotalCost    types.Money      `json:"totalCost"`
	Lines        []AllocationLine `json:"lines"`
	StockAfter   types.Quantity   `json:"stockAfter"`
}

// ConsumptionReversedPayload is the body of EventConsumptionReversed.
type ConsumptionReversedPayload struct {
	ReversalID   id.ID          `json:"reversalId"`
	AllocationID id.ID          `json:"allocationId"`
	ProductID    id.ID          `json:"productId"`
	ContextRef   string         `json:"contextRef"`
	Lines        []ReversalLine `json:"lines"`
	StockAfter   types.Quantity `json:"stockAfter"`
}

// CostChangedPayload is the body of EventCostChanged.
type CostChangedPayload struct {
	ProductID id.ID       `json:"productId"`
	Previous  types.Money `json:"previous"`
	Current   types.Money `json:"current"`
}
