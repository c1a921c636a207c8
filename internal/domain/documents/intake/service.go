package intake

import (
	"context"
	"fmt"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
	"motoledger/internal/core/numerator"
	"motoledger/internal/core/tx"
	"motoledger/internal/domain"
	"motoledger/internal/domain/audit"
	"motoledger/internal/domain/ledger"
	"motoledger/pkg/logger"
)

// Ledger is the part of the ledger service intakes need.
type Ledger interface {
	RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error
	GetProduct(ctx context.Context, productID id.ID) (*ledger.Product, error)
	ReceiveLot(ctx context.Context, in ledger.ReceiveInput) (*ledger.Lot, error)
}

// Service provides business operations for stock intakes.
type Service struct {
	*domain.DocumentService[*Intake]
	ledger Ledger
}

// NewService creates a new intake service.
func NewService(repo domain.DocumentRepository[*Intake], txm tx.Manager, gen numerator.Generator, l Ledger) *Service {
	base := domain.NewDocumentService(domain.DocumentServiceConfig[*Intake]{
		Repo:       repo,
		TxManager:  txm,
		Numerator:  gen,
		EntityName: "intake",
		Prefix:     NumberPrefix,
		Strategy:   NumeratorStrategy,
	})
	base.Hooks().OnBeforeCreate(audit.Stamp[*Intake])
	base.Hooks().OnBeforeUpdate(audit.Stamp[*Intake])
	return &Service{DocumentService: base, ledger: l}
}

// Create stores a new temporary intake after checking that every product exists.
func (s *Service) Create(ctx context.Context, doc *Intake) error {
	doc.Status = StatusTemporary
	if err := s.checkProducts(ctx, doc.Lines); err != nil {
		return err
	}
	if err := s.DocumentService.Create(ctx, doc); err != nil {
		return err
	}
	logger.Info(ctx, "intake created", "id", doc.ID, "number", doc.Number, "lines", len(doc.Lines))
	return nil
}

// UpdateInput carries the editable fields of a temporary intake.
type UpdateInput struct {
	Version     int
	SupplierRef *string
	Comment     *string
	Lines       []Line
}

// Update replaces lines and header fields of a temporary intake.
func (s *Service) Update(ctx context.Context, docID id.ID, in UpdateInput) (*Intake, error) {
	if len(in.Lines) > 0 {
		if err := s.checkProducts(ctx, in.Lines); err != nil {
			return nil, err
		}
	}

	var doc *Intake
	err := s.ledger.RunAtomic(ctx, func(ctx context.Context) error {
		var err error
		if doc, err = s.Get(ctx, docID); err != nil {
			return err
		}
		if err := doc.ExpectVersion("intake", in.Version); err != nil {
			return err
		}
		if err := doc.CanModify(); err != nil {
			return err
		}
		if in.SupplierRef != nil {
			doc.SupplierRef = *in.SupplierRef
		}
		if in.Comment != nil {
			doc.Comment = *in.Comment
		}
		if len(in.Lines) > 0 {
			doc.SetLines(in.Lines)
		}
		return s.Save(ctx, doc)
	})
	return doc, err
}

// Activate turns every line into a lot. All lots are created in one
// transaction or none is.
func (s *Service) Activate(ctx context.Context, docID id.ID) (*Intake, error) {
	var doc *Intake
	err := s.ledger.RunAtomic(ctx, func(ctx context.Context) error {
		var err error
		if doc, err = s.Get(ctx, docID); err != nil {
			return err
		}
		if doc.Status, err = States.Transition(doc.Status, StatusActive); err != nil {
			return err
		}

		for i := range doc.Lines {
			line := &doc.Lines[i]
			lot, err := s.ledger.ReceiveLot(ctx, ledger.ReceiveInput{
				ProductID:  line.ProductID,
				Quantity:   line.Quantity,
				UnitCost:   line.UnitCost,
				ReceivedAt: doc.Date,
				SourceRef:  sourceRef(doc, line.LineNo),
			})
			if err != nil {
				return fmt.Errorf("line %d: %w", line.LineNo, err)
			}
			line.LotID = &lot.ID
		}
		return s.Save(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "intake activated", "id", doc.ID, "number", doc.Number, "lots", len(doc.Lines))
	return doc, nil
}

// Discard closes a temporary intake without touching stock.
func (s *Service) Discard(ctx context.Context, docID id.ID, reason string) (*Intake, error) {
	var doc *Intake
	err := s.ledger.RunAtomic(ctx, func(ctx context.Context) error {
		var err error
		if doc, err = s.Get(ctx, docID); err != nil {
			return err
		}
		if doc.Status, err = States.Transition(doc.Status, StatusDiscarded); err != nil {
			return err
		}
		doc.DiscardReason = reason
		return s.Save(ctx, doc)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "intake discarded", "id", doc.ID, "number", doc.Number)
	return doc, nil
}

func (s *Service) checkProducts(ctx context.Context, lines []Line) error {
	for i, line := range lines {
		if id.IsNil(line.ProductID) {
			continue
		}
		if _, err := s.ledger.GetProduct(ctx, line.ProductID); err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewValidation("unknown product").
					WithDetail("lineNo", i+1).
					WithDetail("productId", line.ProductID.String())
			}
			return err
		}
	}
	return nil
}

func sourceRef(doc *Intake, lineNo int) string {
	return fmt.Sprintf("intake:%s#%d", doc.Number, lineNo)
}
