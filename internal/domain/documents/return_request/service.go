package return_request

import (
	"context"
	"fmt"

	"motoledger/internal/core/id"
	"motoledger/internal/core/numerator"
	"motoledger/internal/core/tx"
	"motoledger/internal/core/types"
	"motoledger/internal/domain"
	"motoledger/internal/domain/audit"
	"motoledger/internal/domain/documents/credit_sale"
	"motoledger/internal/domain/ledger"
	"motoledger/pkg/logger"
)

// Ledger is the part of the ledger service returns need.
type Ledger interface {
	RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error
	ReverseQuantity(ctx context.Context, allocationID id.ID, qty types.Quantity, contextRef string) (*ledger.ReversalResult, error)
}

// Sales loads and stores the credit sales being returned against.
type Sales interface {
	Get(ctx context.Context, docID id.ID) (*credit_sale.CreditSale, error)
	Save(ctx context.Context, doc *credit_sale.CreditSale) error
}

// Service provides business operations for return requests.
type Service struct {
	*domain.DocumentService[*ReturnRequest]
	ledger Ledger
	sales  Sales
}

// NewService creates a new return request service.
func NewService(repo domain.DocumentRepository[*ReturnRequest], txm tx.Manager, gen numerator.Generator, l Ledger, sales Sales) *Service {
	base := domain.NewDocumentService(domain.DocumentServiceConfig[*ReturnRequest]{
		Repo:       repo,
		TxManager:  txm,
		Numerator:  gen,
		EntityName: "return request",
		Prefix:     NumberPrefix,
		Strategy:   NumeratorStrategy,
	})
	base.Hooks().OnBeforeCreate(audit.Stamp[*ReturnRequest])
	base.Hooks().OnBeforeUpdate(audit.Stamp[*ReturnRequest])
	return &Service{DocumentService: base, ledger: l, sales: sales}
}

// ContextRef is the reversal context of a return.
func ContextRef(number string) string { return "return:" + number }

// Create records a return request and reserves its quantities on the credit
// sale so that concurrent requests cannot claim more than was sold.
func (s *Service) Create(ctx context.Context, doc *ReturnRequest) error {
	doc.Status = StatusRequested
	if err := s.Prepare(ctx, doc); err != nil {
		return err
	}

	err := s.ledger.RunAtomic(ctx, func(ctx context.Context) error {
		sale, err := s.sales.Get(ctx, doc.CreditSaleID)
		if err != nil {
			return err
		}
		doc.CreditSaleNumber = sale.Number
		for i := range doc.Lines {
			line := &doc.Lines[i]
			if err := sale.ReserveReturn(line.SaleLineNo, line.Quantity); err != nil {
				return err
			}
			saleLine, _ := sale.Line(line.SaleLineNo)
			line.ProductID = saleLine.ProductID
			line.UnitPrice = saleLine.UnitPrice
		}
		doc.recalculateTotals()
		if err := s.sales.Save(ctx, sale); err != nil {
			return err
		}
		return s.Insert(ctx, doc)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "return requested",
		"number", doc.Number,
		"credit_sale", doc.CreditSaleNumber,
		"quantity", doc.TotalQuantity)
	return nil
}

// Approve puts every returned line back into stock and credits the customer.
// A lot that cannot take its units back fails the whole return.
func (s *Service) Approve(ctx context.Context, docID id.ID) (*ReturnRequest, error) {
	var doc *ReturnRequest
	err := s.ledger.RunAtomic(ctx, func(ctx context.Context) error {
		var err error
		if doc, err = s.Get(ctx, docID); err != nil {
			return err
		}
		if doc.Status, err = States.Transition(doc.Status, StatusApproved); err != nil {
			return err
		}
		sale, err := s.sales.Get(ctx, doc.CreditSaleID)
		if err != nil {
			return err
		}

		for i := range doc.Lines {
			line := &doc.Lines[i]
			saleLine, err := sale.Line(line.SaleLineNo)
			if err != nil {
				return err
			}
			res, err := s.ledger.ReverseQuantity(ctx, saleLine.AllocationID, line.Quantity, ContextRef(doc.Number))
			if err != nil {
				return fmt.Errorf("line %d: %w", line.LineNo, err)
			}
			line.ReversalID = &res.Reversal.ID
			line.RestockedCost = restockedCost(res)
			if err := sale.CompleteReturn(line.SaleLineNo, line.Quantity); err != nil {
				return err
			}
		}
		if err := s.sales.Save(ctx, sale); err != nil {
			return err
		}
		return s.Save(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "return approved",
		"number", doc.Number,
		"credit_sale", doc.CreditSaleNumber,
		"credit", doc.CreditAmount.String())
	return doc, nil
}

// Reject closes the request and releases its claim on the credit sale.
func (s *Service) Reject(ctx context.Context, docID id.ID, reason string) (*ReturnRequest, error) {
	var doc *ReturnRequest
	err := s.ledger.RunAtomic(ctx, func(ctx context.Context) error {
		var err error
		if doc, err = s.Get(ctx, docID); err != nil {
			return err
		}
		if doc.Status, err = States.Transition(doc.Status, StatusRejected); err != nil {
			return err
		}
		sale, err := s.sales.Get(ctx, doc.CreditSaleID)
		if err != nil {
			return err
		}
		for _, line := range doc.Lines {
			if err := sale.ReleaseReturn(line.SaleLineNo, line.Quantity); err != nil {
				return err
			}
		}
		doc.RejectReason = reason
		if err := s.sales.Save(ctx, sale); err != nil {
			return err
		}
		return s.Save(ctx, doc)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "return rejected", "number", doc.Number, "reason", reason)
	return doc, nil
}

// restockedCost values the returned units at the cost of the lots they went back to.
func restockedCost(res *ledger.ReversalResult) types.Money {
	costs := make(map[id.ID]types.Money, len(res.Lots))
	for _, lot := range res.Lots {
		costs[lot.ID] = lot.UnitCost
	}
	total := types.Zero()
	for _, l := range res.Reversal.Lines {
		total = total.Add(l.Quantity.Cost(costs[l.LotID]))
	}
	return total
}
