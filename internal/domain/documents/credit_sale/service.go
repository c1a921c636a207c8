package credit_sale

import (
	"context"
	"fmt"
	"time"

	"motoledger/internal/core/apperror"
	appctx "motoledger/internal/core/context"
	"motoledger/internal/core/id"
	"motoledger/internal/core/numerator"
	"motoledger/internal/core/tx"
	"motoledger/internal/core/types"
	"motoledger/internal/domain"
	"motoledger/internal/domain/audit"
	"motoledger/internal/domain/ledger"
	"motoledger/pkg/logger"
)

// Ledger is the part of the ledger service credit sales need.
type Ledger interface {
	RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error
	GetProduct(ctx context.Context, productID id.ID) (*ledger.Product, error)
	Consume(ctx context.Context, productID id.ID, qty types.Quantity, contextRef string) (*ledger.AllocationRecord, error)
	Reverse(ctx context.Context, allocationID id.ID, contextRef string) (*ledger.ReversalResult, error)
}

// Service provides business operations for credit sales.
type Service struct {
	*domain.DocumentService[*CreditSale]
	ledger Ledger
	policy *PricePolicy
	now    func() time.Time
}

// NewService creates a new credit sale service. A nil policy uses DefaultPricePolicy.
func NewService(repo domain.DocumentRepository[*CreditSale], txm tx.Manager, gen numerator.Generator, l Ledger, policy *PricePolicy) (*Service, error) {
	if policy == nil {
		var err error
		if policy, err = NewPricePolicy(DefaultPricePolicy); err != nil {
			return nil, err
		}
	}
	base := domain.NewDocumentService(domain.DocumentServiceConfig[*CreditSale]{
		Repo:       repo,
		TxManager:  txm,
		Numerator:  gen,
		EntityName: "credit sale",
		Prefix:     NumberPrefix,
		Strategy:   NumeratorStrategy,
	})
	base.Hooks().OnBeforeCreate(audit.Stamp[*CreditSale])
	base.Hooks().OnBeforeUpdate(audit.Stamp[*CreditSale])
	return &Service{
		DocumentService: base,
		ledger:          l,
		policy:          policy,
		now:             func() time.Time { return time.Now().UTC() },
	}, nil
}

// ContextRef is the allocation context of a credit sale.
func ContextRef(number string) string { return "credit:" + number }

// Create checks every line against the price policy and consumes all lines
// from stock in one transaction. Either every line is allocated or nothing is.
func (s *Service) Create(ctx context.Context, doc *CreditSale) error {
	doc.Status = StatusOpen
	doc.Payments = doc.Payments[:0]
	if err := s.Prepare(ctx, doc); err != nil {
		return err
	}

	err := s.ledger.RunAtomic(ctx, func(ctx context.Context) error {
		for i := range doc.Lines {
			line := &doc.Lines[i]
			product, err := s.ledger.GetProduct(ctx, line.ProductID)
			if err != nil {
				return fmt.Errorf("line %d: %w", line.LineNo, err)
			}
			if err := s.policy.Check(product, line.UnitPrice, line.Quantity); err != nil {
				if appErr, ok := apperror.AsAppError(err); ok {
					return appErr.WithDetail("lineNo", line.LineNo)
				}
				return err
			}

			rec, err := s.ledger.Consume(ctx, line.ProductID, line.Quantity, ContextRef(doc.Number))
			if err != nil {
				if appErr, ok := apperror.AsAppError(err); ok && apperror.IsInsufficientStock(err) {
					return appErr.WithDetail("lineNo", line.LineNo)
				}
				return fmt.Errorf("line %d: %w", line.LineNo, err)
			}
			line.AllocationID = rec.ID
			line.CostOfGoods = rec.TotalCost
		}
		doc.recalculateTotals()
		return s.Insert(ctx, doc)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "credit sale created",
		"id", doc.ID,
		"number", doc.Number,
		"total", doc.Total.String(),
		"cost_of_goods", doc.CostOfGoods.String())
	return nil
}

// PaymentInput is a payment to record.
type PaymentInput struct {
	Amount    types.Money
	Method    string
	Reference string
	PaidAt    time.Time
}

// RecordPayment adds a payment. The sale settles when the balance reaches zero.
func (s *Service) RecordPayment(ctx context.Context, docID id.ID, in PaymentInput) (*CreditSale, error) {
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}

	var doc *CreditSale
	err := s.ledger.RunAtomic(ctx, func(ctx context.Context) error {
		var err error
		if doc, err = s.Get(ctx, docID); err != nil {
			return err
		}
		if err := doc.AddPayment(Payment{
			ID:         id.New(),
			Amount:     in.Amount,
			Method:     in.Method,
			Reference:  in.Reference,
			PaidAt:     paidAt,
			RecordedBy: appctx.Operator(ctx),
		}); err != nil {
			return err
		}
		return s.Save(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "credit sale payment recorded",
		"number", doc.Number,
		"amount", in.Amount.String(),
		"balance", doc.Balance().String(),
		"status", doc.Status)
	return doc, nil
}

// Cancel voids an unpaid sale and puts everything not yet returned back into
// the lots it came from.
func (s *Service) Cancel(ctx context.Context, docID id.ID, reason string) (*CreditSale, error) {
	var doc *CreditSale
	err := s.ledger.RunAtomic(ctx, func(ctx context.Context) error {
		var err error
		if doc, err = s.Get(ctx, docID); err != nil {
			return err
		}
		if len(doc.Payments) > 0 {
			return apperror.NewBusinessRule(apperror.CodeBusinessRule, "credit sale with payments cannot be cancelled").
				WithDetail("paid", doc.Paid.String())
		}
		for _, line := range doc.Lines {
			if line.PendingReturnQty.IsPositive() {
				return apperror.NewBusinessRule(apperror.CodeBusinessRule, "credit sale has pending return requests").
					WithDetail("lineNo", line.LineNo)
			}
		}
		if doc.Status, err = States.Transition(doc.Status, StatusCancelled); err != nil {
			return err
		}

		for _, line := range doc.Lines {
			if line.ReturnedQty >= line.Quantity || id.IsNil(line.AllocationID) {
				continue
			}
			if _, err := s.ledger.Reverse(ctx, line.AllocationID, "credit-cancel:"+doc.Number); err != nil {
				return fmt.Errorf("line %d: %w", line.LineNo, err)
			}
		}
		if reason != "" {
			doc.Comment = reason
		}
		return s.Save(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "credit sale cancelled", "id", doc.ID, "number", doc.Number)
	return doc, nil
}

// Policy returns the active price policy.
func (s *Service) Policy() *PricePolicy { return s.policy }
