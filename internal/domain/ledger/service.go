package ledger

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"motoledger/internal/core/apperror"
	appctx "motoledger/internal/core/context"
	"motoledger/internal/core/id"
	"motoledger/internal/core/tx"
	"motoledger/internal/core/types"
	"motoledger/pkg/logger"
)

// Service is the transaction coordinator of the ledger. Every mutation reads
// all it needs first, then writes lots, the product aggregate, the
// allocation/reversal record, the audit entry and the outbox event in one
// transaction.
type Service struct {
	repo    Repository
	txm     tx.Manager
	audit   Auditor
	events  Publisher
	cache   SnapshotCache
	retry   tx.RetryPolicy
	now     func() time.Time
	metrics *metrics
}

// Option configures Service.
type Option func(*Service)

// WithAuditor enables audit entries.
func WithAuditor(a Auditor) Option { return func(s *Service) { s.audit = a } }

// WithPublisher enables outbox events.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.events = p } }

// WithCache enables the product snapshot cache.
func WithCache(c SnapshotCache) Option { return func(s *Service) { s.cache = c } }

// WithRetryPolicy overrides the optimistic retry policy.
func WithRetryPolicy(p tx.RetryPolicy) Option { return func(s *Service) { s.retry = p } }

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates the ledger service.
func NewService(repo Repository, txm tx.Manager, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		txm:     txm,
		retry:   tx.DefaultRetryPolicy(),
		now:     func() time.Time { return time.Now().UTC() },
		metrics: newMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunAtomic runs fn in a transaction, retrying optimistic-locking failures at the
// outermost level. Exhausted retries surface as CONFLICT.
// Document services use it to wrap multi-line operations.
func (s *Service) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	nested := s.txm.InTransaction(ctx)
	err := tx.RunWithRetry(ctx, s.txm, s.retry, apperror.IsConcurrentModification, fn)
	if err != nil && !nested && apperror.IsConcurrentModification(err) {
		return apperror.NewConflict("stock changed concurrently, please retry").WithCause(err)
	}
	return err
}

// --- Allocation ---

// Allocate plans a FIFO consumption without writing anything.
func (s *Service) Allocate(ctx context.Context, productID id.ID, qty types.Quantity) (*AllocationPlan, error) {
	ctx, span := s.startSpan(ctx, "ledger.Allocate", productID)
	defer span.End()

	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, spanErr(span, err)
	}
	lots, err := s.repo.ListActiveLots(ctx, productID)
	if err != nil {
		return nil, spanErr(span, err)
	}
	plan, err := PlanFIFO(productID, lots, qty, s.now())
	return plan, spanErr(span, err)
}

// CommitConsumption applies a previously computed plan. The plan must still be
// the FIFO plan over the product's lots; if any lot changed since planning the
// commit fails with CONFLICT and nothing is written.
func (s *Service) CommitConsumption(ctx context.Context, plan *AllocationPlan, contextRef string) (*AllocationRecord, error) {
	if err := checkPlanShape(plan); err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "ledger.CommitConsumption", plan.ProductID)
	defer span.End()

	var rec *AllocationRecord
	err := s.RunAtomic(ctx, func(ctx context.Context) error {
		op := newOperation(OpConsume, plan.ProductID)

		product, err := s.repo.GetProduct(ctx, plan.ProductID)
		if err != nil {
			return op.fail(ctx, err)
		}
		lots, err := s.repo.ListActiveLots(ctx, plan.ProductID)
		if err != nil {
			return op.fail(ctx, err)
		}
		if err := verifyPlan(plan, lots); err != nil {
			return op.fail(ctx, err)
		}

		rec, err = s.commitPlan(ctx, op, product, lots, plan, contextRef)
		return err
	})
	return rec, spanErr(span, err)
}

// Consume allocates and commits in one transaction, retrying on concurrent updates.
func (s *Service) Consume(ctx context.Context, productID id.ID, qty types.Quantity, contextRef string) (*AllocationRecord, error) {
	ctx, span := s.startSpan(ctx, "ledger.Consume", productID)
	defer span.End()

	var rec *AllocationRecord
	err := s.RunAtomic(ctx, func(ctx context.Context) error {
		op := newOperation(OpConsume, productID)

		product, err := s.repo.GetProduct(ctx, productID)
		if err != nil {
			return op.fail(ctx, err)
		}
		lots, err := s.repo.ListActiveLots(ctx, productID)
		if err != nil {
			return op.fail(ctx, err)
		}
		plan, err := PlanFIFO(productID, lots, qty, s.now())
		if err != nil {
			return op.fail(ctx, err)
		}

		rec, err = s.commitPlan(ctx, op, product, lots, plan, contextRef)
		return err
	})
	return rec, spanErr(span, err)
}

func (s *Service) commitPlan(
	ctx context.Context,
	op *operation,
	product *Product,
	activeLots []Lot,
	plan *AllocationPlan,
	contextRef string,
) (*AllocationRecord, error) {
	if err := op.advance(OpValidating); err != nil {
		return nil, op.fail(ctx, err)
	}

	post := cloneLots(activeLots)
	byID := indexLots(post)
	if err := applyPlan(byID, plan); err != nil {
		return nil, op.fail(ctx, err)
	}

	if err := op.advance(OpCommitting); err != nil {
		return nil, op.fail(ctx, err)
	}

	now := s.now()
	rec := &AllocationRecord{
		ID:         id.New(),
		ProductID:  plan.ProductID,
		ContextRef: contextRef,
		TotalCost:  types.Zero(),
		CreatedBy:  appctx.Operator(ctx),
		CreatedAt:  now,
	}

	written := make(map[id.ID]bool, len(plan.Lines))
	for _, line := range plan.Lines {
		lot := byID[line.LotID]
		recLine := AllocationLine{
			LotID:      lot.ID,
			Quantity:   line.Quantity,
			UnitCost:   lot.UnitCost,
			ReceivedAt: lot.ReceivedAt,
		}
		rec.Lines = append(rec.Lines, recLine)
		rec.Quantity += line.Quantity
		rec.TotalCost = rec.TotalCost.Add(recLine.Cost())

		if written[lot.ID] {
			continue
		}
		written[lot.ID] = true
		if err := s.repo.UpdateLot(ctx, lot); err != nil {
			return nil, op.fail(ctx, err)
		}
	}

	prevCost, err := s.refreshAggregate(ctx, product, post, now)
	if err != nil {
		return nil, op.fail(ctx, err)
	}

	if err := s.repo.CreateAllocation(ctx, rec); err != nil {
		return nil, op.fail(ctx, err)
	}

	if err := s.record(ctx, AuditEntry{
		EntityType: "allocation",
		EntityID:   rec.ID,
		Action:     string(OpConsume),
		Changes: map[string]any{
			"product_id":  product.ID.String(),
			"context_ref": contextRef,
			"quantity":    rec.Quantity,
			"lines":       rec.Lines,
			"stock_after": product.StockQty,
		},
	}); err != nil {
		return nil, op.fail(ctx, err)
	}

	if err := s.publish(ctx, EventStockConsumed, product.ID, StockConsumedPayload{
		AllocationID: rec.ID,
		ProductID:    product.ID,
		ContextRef:   contextRef,
		Quantity:     rec.Quantity,
		TotalCost:    rec.TotalCost,
		Lines:        rec.Lines,
		StockAfter:   product.StockQty,
	}); err != nil {
		return nil, op.fail(ctx, err)
	}
	if err := s.publishCostChange(ctx, product, prevCost); err != nil {
		return nil, op.fail(ctx, err)
	}

	s.onCommit(ctx, op, product, rec.Quantity, "stock consumed",
		"allocation_id", rec.ID,
		"context_ref", contextRef,
		"quantity", rec.Quantity,
		"stock_after", product.StockQty,
	)
	return rec, nil
}

// --- Reversal ---

// Reverse re-credits every lot of an allocation by its unreversed quantity.
func (s *Service) Reverse(ctx context.Context, allocationID id.ID, contextRef string) (*ReversalResult, error) {
	return s.reverse(ctx, allocationID, contextRef, func(rec *AllocationRecord, prior []Reversal) ([]ReversalLine, error) {
		lines := FullReversalLines(rec, prior)
		if len(lines) == 0 {
			return nil, apperror.NewConflict("allocation already reversed").
				WithDetail("allocation_id", rec.ID.String())
		}
		return lines, nil
	})
}

// ReverseLines re-credits explicit (lot, quantity) pairs of an allocation.
func (s *Service) ReverseLines(ctx context.Context, allocationID id.ID, lines []ReversalLine, contextRef string) (*ReversalResult, error) {
	return s.reverse(ctx, allocationID, contextRef, func(rec *AllocationRecord, prior []Reversal) ([]ReversalLine, error) {
		return ValidateReversalLines(rec, prior, lines)
	})
}

// ReverseQuantity re-credits qty units of an allocation, newest consumed lot first.
func (s *Service) ReverseQuantity(ctx context.Context, allocationID id.ID, qty types.Quantity, contextRef string) (*ReversalResult, error) {
	return s.reverse(ctx, allocationID, contextRef, func(rec *AllocationRecord, prior []Reversal) ([]ReversalLine, error) {
		return PlanPartialReversal(rec, prior, qty)
	})
}

type lineSelector func(rec *AllocationRecord, prior []Reversal) ([]ReversalLine, error)

func (s *Service) reverse(ctx context.Context, allocationID id.ID, contextRef string, selectLines lineSelector) (*ReversalResult, error) {
	ctx, span := tracer.Start(ctx, "ledger.Reverse",
		trace.WithAttributes(attribute.String("allocation.id", allocationID.String())))
	defer span.End()

	var result *ReversalResult
	err := s.RunAtomic(ctx, func(ctx context.Context) error {
		op := newOperation(OpReverse, id.Nil())

		rec, err := s.repo.GetAllocation(ctx, allocationID)
		if err != nil {
			return op.fail(ctx, err)
		}
		op.productID = rec.ProductID

		prior, err := s.repo.ListReversals(ctx, allocationID)
		if err != nil {
			return op.fail(ctx, err)
		}
		lines, err := selectLines(rec, prior)
		if err != nil {
			return op.fail(ctx, err)
		}

		product, err := s.repo.GetProduct(ctx, rec.ProductID)
		if err != nil {
			return op.fail(ctx, err)
		}
		active, err := s.repo.ListActiveLots(ctx, rec.ProductID)
		if err != nil {
			return op.fail(ctx, err)
		}
		referenced, err := s.repo.GetLots(ctx, reversalLotIDs(lines))
		if err != nil {
			return op.fail(ctx, err)
		}

		if err := op.advance(OpValidating); err != nil {
			return op.fail(ctx, err)
		}

		post, byID := mergeLots(active, referenced)
		for _, l := range lines {
			if lot, ok := byID[l.LotID]; !ok || lot.ProductID != rec.ProductID {
				return op.fail(ctx, apperror.NewNotFound("lot", l.LotID.String()))
			}
		}
		if err := applyReversal(byID, lines); err != nil {
			return op.fail(ctx, err)
		}

		if err := op.advance(OpCommitting); err != nil {
			return op.fail(ctx, err)
		}

		now := s.now()
		rev := &Reversal{
			ID:           id.New(),
			AllocationID: rec.ID,
			ProductID:    rec.ProductID,
			ContextRef:   contextRef,
			Lines:        lines,
			CreatedBy:    appctx.Operator(ctx),
			CreatedAt:    now,
		}
		touched := make([]Lot, 0, len(lines))
		written := make(map[id.ID]bool, len(lines))
		for _, l := range lines {
			rev.Quantity += l.Quantity
			if written[l.LotID] {
				continue
			}
			written[l.LotID] = true
			lot := byID[l.LotID]
			if err := s.repo.UpdateLot(ctx, lot); err != nil {
				return op.fail(ctx, err)
			}
			touched = append(touched, *lot)
		}

		prevCost, err := s.refreshAggregate(ctx, product, post, now)
		if err != nil {
			return op.fail(ctx, err)
		}
		if err := s.repo.CreateReversal(ctx, rev); err != nil {
			return op.fail(ctx, err)
		}

		if err := s.record(ctx, AuditEntry{
			EntityType: "allocation",
			EntityID:   rec.ID,
			Action:     string(OpReverse),
			Changes: map[string]any{
				"reversal_id": rev.ID.String(),
				"context_ref": contextRef,
				"lines":       lines,
				"stock_after": product.StockQty,
			},
		}); err != nil {
			return op.fail(ctx, err)
		}
		if err := s.publish(ctx, EventConsumptionReversed, product.ID, ConsumptionReversedPayload{
			ReversalID:   rev.ID,
			AllocationID: rec.ID,
			ProductID:    product.ID,
			ContextRef:   contextRef,
			Lines:        lines,
			StockAfter:   product.StockQty,
		}); err != nil {
			return op.fail(ctx, err)
		}
		if err := s.publishCostChange(ctx, product, prevCost); err != nil {
			return op.fail(ctx, err)
		}

		remaining := Outstanding(rec, append(prior, *rev))
		fully := true
		for _, q := range remaining {
			if q.IsPositive() {
				fully = false
				break
			}
		}

		result = &ReversalResult{
			Reversal:      rev,
			Lots:          touched,
			StockQty:      product.StockQty,
			UnitCost:      product.UnitCost,
			FullyReversed: fully,
		}

		s.onCommit(ctx, op, product, rev.Quantity, "consumption reversed",
			"allocation_id", rec.ID,
			"reversal_id", rev.ID,
			"context_ref", contextRef,
			"quantity", rev.Quantity,
		)
		return nil
	})
	return result, spanErr(span, err)
}

// --- Intake & corrections ---

// ReceiveInput describes a new lot.
type ReceiveInput struct {
	ProductID  id.ID
	Quantity   types.Quantity
	UnitCost   types.Money
	ReceivedAt time.Time
	SourceRef  string
}

// ReceiveLot creates a lot and refreshes the product aggregate.
func (s *Service) ReceiveLot(ctx context.Context, in ReceiveInput) (*Lot, error) {
	ctx, span := s.startSpan(ctx, "ledger.ReceiveLot", in.ProductID)
	defer span.End()

	var lot *Lot
	err := s.RunAtomic(ctx, func(ctx context.Context) error {
		op := newOperation(OpReceive, in.ProductID)

		product, err := s.repo.GetProduct(ctx, in.ProductID)
		if err != nil {
			return op.fail(ctx, err)
		}
		active, err := s.repo.ListActiveLots(ctx, in.ProductID)
		if err != nil {
			return op.fail(ctx, err)
		}

		if err := op.advance(OpValidating); err != nil {
			return op.fail(ctx, err)
		}
		receivedAt := in.ReceivedAt
		if receivedAt.IsZero() {
			receivedAt = s.now()
		}
		lot, err = NewLot(in.ProductID, in.Quantity, in.UnitCost, receivedAt, in.SourceRef)
		if err != nil {
			return op.fail(ctx, err)
		}
		if stock := TotalRemaining(active); stock > types.MaxQuantity-lot.OriginalQty {
			return op.fail(ctx, apperror.NewValidation("stock would exceed the maximum quantity").
				WithDetail("product_id", product.ID.String()).
				WithDetail("stock", stock).
				WithDetail("quantity", lot.OriginalQty).
				WithDetail("max", types.MaxQuantity))
		}

		if err := op.advance(OpCommitting); err != nil {
			return op.fail(ctx, err)
		}
		if err := s.repo.CreateLot(ctx, lot); err != nil {
			return op.fail(ctx, err)
		}

		post := append(cloneLots(active), *lot)
		prevCost, err := s.refreshAggregate(ctx, product, post, s.now())
		if err != nil {
			return op.fail(ctx, err)
		}

		if err := s.record(ctx, AuditEntry{
			EntityType: "lot",
			EntityID:   lot.ID,
			Action:     string(OpReceive),
			Changes: map[string]any{
				"product_id":  product.ID.String(),
				"quantity":    lot.OriginalQty,
				"unit_cost":   lot.UnitCost.String(),
				"source_ref":  lot.SourceRef,
				"stock_after": product.StockQty,
			},
		}); err != nil {
			return op.fail(ctx, err)
		}
		if err := s.publish(ctx, EventLotReceived, product.ID, LotReceivedPayload{
			LotID:      lot.ID,
			ProductID:  product.ID,
			Quantity:   lot.OriginalQty,
			UnitCost:   lot.UnitCost,
			SourceRef:  lot.SourceRef,
			StockAfter: product.StockQty,
		}); err != nil {
			return op.fail(ctx, err)
		}
		if err := s.publishCostChange(ctx, product, prevCost); err != nil {
			return op.fail(ctx, err)
		}

		s.onCommit(ctx, op, product, lot.OriginalQty, "lot received",
			"lot_id", lot.ID,
			"source_ref", lot.SourceRef,
			"quantity", lot.OriginalQty,
		)
		return nil
	})
	return lot, spanErr(span, err)
}

// CorrectionInput describes a manual stock correction.
// A positive delta creates a correction lot, a negative delta consumes FIFO.
type CorrectionInput struct {
	ProductID id.ID
	Delta     types.Quantity
	// UnitCost of the correction lot; defaults to the current effective cost.
	UnitCost *types.Money
	Reason   string
}

// CorrectionResult holds whichever record the correction produced.
type CorrectionResult struct {
	Lot        *Lot              `json:"lot,omitempty"`
	Allocation *AllocationRecord `json:"allocation,omitempty"`
}

// CorrectStock adjusts stock through lots so the aggregate invariant holds.
func (s *Service) CorrectStock(ctx context.Context, in CorrectionInput) (*CorrectionResult, error) {
	if in.Delta.IsZero() {
		return nil, apperror.NewValidation("correction delta must not be zero")
	}
	if in.Reason == "" {
		return nil, apperror.NewValidation("correction reason is required").WithDetail("field", "reason")
	}
	ref := "correction:" + in.Reason

	if in.Delta.IsNegative() {
		rec, err := s.Consume(ctx, in.ProductID, in.Delta.Neg(), ref)
		if err != nil {
			return nil, err
		}
		return &CorrectionResult{Allocation: rec}, nil
	}

	var lot *Lot
	err := s.RunAtomic(ctx, func(ctx context.Context) error {
		cost := types.Zero()
		if in.UnitCost != nil {
			cost = *in.UnitCost
		} else {
			product, err := s.repo.GetProduct(ctx, in.ProductID)
			if err != nil {
				return err
			}
			cost = product.UnitCost
		}

		var err error
		lot, err = s.ReceiveLot(ctx, ReceiveInput{
			ProductID: in.ProductID,
			Quantity:  in.Delta,
			UnitCost:  cost,
			SourceRef: ref,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &CorrectionResult{Lot: lot}, nil
}

// --- Cost ---

// RecalculateCost re-derives the effective cost from the single oldest active lot
// and persists it when it changed.
func (s *Service) RecalculateCost(ctx context.Context, productID id.ID) (types.Money, error) {
	ctx, span := s.startSpan(ctx, "ledger.RecalculateCost", productID)
	defer span.End()

	cost := types.Zero()
	err := s.RunAtomic(ctx, func(ctx context.Context) error {
		op := newOperation(OpReprice, productID)

		product, err := s.repo.GetProduct(ctx, productID)
		if err != nil {
			return op.fail(ctx, err)
		}
		oldest, err := s.repo.OldestActiveLot(ctx, productID)
		if err != nil {
			return op.fail(ctx, err)
		}

		cost = types.Zero()
		if oldest != nil {
			cost = oldest.UnitCost
		}

		if err := op.advance(OpValidating); err != nil {
			return op.fail(ctx, err)
		}
		if err := op.advance(OpCommitting); err != nil {
			return op.fail(ctx, err)
		}
		if cost.Equal(product.UnitCost) {
			s.onCommit(ctx, op, product, 0, "cost unchanged", "unit_cost", cost.String())
			return nil
		}

		prev := product.UnitCost
		product.UnitCost = cost
		product.UpdatedAt = s.now()
		if err := s.repo.UpdateProduct(ctx, product); err != nil {
			return op.fail(ctx, err)
		}
		if err := s.record(ctx, AuditEntry{
			EntityType: "product",
			EntityID:   product.ID,
			Action:     string(OpReprice),
			Changes:    map[string]any{"unit_cost": map[string]any{"old": prev.String(), "new": cost.String()}},
		}); err != nil {
			return op.fail(ctx, err)
		}
		if err := s.publishCostChange(ctx, product, prev); err != nil {
			return op.fail(ctx, err)
		}

		s.onCommit(ctx, op, product, 0, "cost recalculated", "unit_cost", cost.String())
		return nil
	})
	if err != nil {
		return types.Zero(), spanErr(span, err)
	}
	return cost, nil
}

// Verify compares a product's aggregates with its lots.
func (s *Service) Verify(ctx context.Context, productID id.ID) (*Drift, error) {
	var (
		product *Product
		lots    []Lot
	)
	err := tx.ReadOnly(ctx, s.txm, func(ctx context.Context) error {
		var err error
		if product, err = s.repo.GetProduct(ctx, productID); err != nil {
			return err
		}
		lots, err = s.repo.ListLots(ctx, productID)
		return err
	})
	if err != nil {
		return nil, err
	}

	d := &Drift{
		ProductID:     productID,
		StockQty:      product.StockQty,
		LotsRemaining: TotalRemaining(lots),
		ExpectedCost:  EffectiveCost(lots),
		UnitCost:      product.UnitCost,
	}
	d.Difference = d.StockQty - d.LotsRemaining
	for _, l := range lots {
		wantState := LotExhausted
		if l.RemainingQty.IsPositive() {
			wantState = LotActive
		}
		if l.RemainingQty.IsNegative() || l.RemainingQty > l.OriginalQty || l.State != wantState {
			d.BadLots = append(d.BadLots, l.ID)
		}
	}

	if !d.Consistent() {
		logger.Error(ctx, "ledger drift detected",
			"product_id", productID,
			"stock_qty", d.StockQty,
			"lots_remaining", d.LotsRemaining,
			"bad_lots", len(d.BadLots),
		)
	}
	return d, nil
}

// --- helpers ---

// refreshAggregate recomputes stock and cost from the post-write lot set and
// persists the product. It returns the cost before the change.
func (s *Service) refreshAggregate(ctx context.Context, product *Product, post []Lot, now time.Time) (types.Money, error) {
	prev := product.UnitCost
	product.StockQty = TotalRemaining(post)
	product.UnitCost = EffectiveCost(post)
	product.UpdatedAt = now
	if err := s.repo.UpdateProduct(ctx, product); err != nil {
		return prev, err
	}
	return prev, nil
}

func (s *Service) record(ctx context.Context, entry AuditEntry) error {
	if s.audit == nil {
		return nil
	}
	entry.Operator = appctx.Operator(ctx)
	entry.At = s.now()
	return s.audit.Record(ctx, entry)
}

func (s *Service) publish(ctx context.Context, eventType string, aggregateID id.ID, payload any) error {
	if s.events == nil {
		return nil
	}
	return s.events.Publish(ctx, Event{
		Type:        eventType,
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  s.now(),
	})
}

func (s *Service) publishCostChange(ctx context.Context, product *Product, prev types.Money) error {
	if prev.Equal(product.UnitCost) {
		return nil
	}
	return s.publish(ctx, EventCostChanged, product.ID, CostChangedPayload{
		ProductID: product.ID,
		Previous:  prev,
		Current:   product.UnitCost,
	})
}

// onCommit defers the Committed transition, metrics, logging and cache
// invalidation until the outermost transaction has committed. product is the
// aggregate as written by the operation.
func (s *Service) onCommit(ctx context.Context, op *operation, product *Product, qty types.Quantity, msg string, kv ...any) {
	version := product.Version
	tx.AfterCommit(ctx, func(ctx context.Context) {
		if err := op.advance(OpCommitted); err != nil {
			logger.Error(ctx, "ledger operation state", "error", err)
		}
		s.metrics.finished(ctx, op.kind, op.state)
		if qty.IsPositive() {
			s.metrics.moved(ctx, op.kind, qty.Float64())
		}
		logger.Info(ctx, msg, append([]any{"product_id", op.productID}, kv...)...)

		if s.cache != nil {
			if err := s.cache.Invalidate(ctx, op.productID, version); err != nil {
				logger.Warn(ctx, "product cache invalidation failed", "product_id", op.productID, "error", err)
			}
		}
	})
}

func (s *Service) startSpan(ctx context.Context, name string, productID id.ID) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("product.id", productID.String())))
}

func spanErr(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func cloneLots(lots []Lot) []Lot {
	out := make([]Lot, len(lots))
	copy(out, lots)
	return out
}

func indexLots(lots []Lot) map[id.ID]*Lot {
	byID := make(map[id.ID]*Lot, len(lots))
	for i := range lots {
		byID[lots[i].ID] = &lots[i]
	}
	return byID
}

// mergeLots unions active lots with explicitly referenced ones (which may be exhausted).
func mergeLots(active, referenced []Lot) ([]Lot, map[id.ID]*Lot) {
	seen := make(map[id.ID]int, len(active)+len(referenced))
	post := make([]Lot, 0, len(active)+len(referenced))
	for _, l := range active {
		seen[l.ID] = len(post)
		post = append(post, l)
	}
	for _, l := range referenced {
		if i, ok := seen[l.ID]; ok {
			post[i] = l
			continue
		}
		seen[l.ID] = len(post)
		post = append(post, l)
	}
	return post, indexLots(post)
}

func reversalLotIDs(lines []ReversalLine) []id.ID {
	ids := make([]id.ID, 0, len(lines))
	seen := make(map[id.ID]bool, len(lines))
	for _, l := range lines {
		if !seen[l.LotID] {
			seen[l.LotID] = true
			ids = append(ids, l.LotID)
		}
	}
	return ids
}
