package domain

import (
	"context"
	"fmt"
	"time"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
	"motoledger/internal/core/numerator"
	"motoledger/internal/core/tx"
)

// DocumentService holds the lifecycle shared by all documents: numbering,
// hooks, validation and optimistic persistence. Concrete document services
// embed it and add their state transitions.
type DocumentService[T Document] struct {
	repo      DocumentRepository[T]
	txManager tx.Manager
	numerator numerator.Generator
	numbering numerator.Config
	numOpts   *numerator.Options
	hooks     *HookRegistry[T]

	// entityName for error messages
	entityName string
}

// DocumentServiceConfig configures the document service.
type DocumentServiceConfig[T Document] struct {
	Repo       DocumentRepository[T]
	TxManager  tx.Manager
	Numerator  numerator.Generator
	EntityName string
	// Prefix of generated numbers, e.g. "CR"
	Prefix   string
	Strategy numerator.Strategy
}

// NewDocumentService creates a new document service.
func NewDocumentService[T Document](cfg DocumentServiceConfig[T]) *DocumentService[T] {
	return &DocumentService[T]{
		repo:       cfg.Repo,
		txManager:  cfg.TxManager,
		numerator:  cfg.Numerator,
		numbering:  numerator.DefaultConfig(cfg.Prefix),
		numOpts:    &numerator.Options{Strategy: cfg.Strategy},
		hooks:      NewHookRegistry[T](),
		entityName: cfg.EntityName,
	}
}

// Hooks returns the hook registry for external registration.
func (s *DocumentService[T]) Hooks() *HookRegistry[T] {
	return s.hooks
}

func (s *DocumentService[T]) normalizeValidationErr(err error) error {
	if err == nil {
		return nil
	}
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewValidation(err.Error())
}

func (s *DocumentService[T]) normalizeGetErr(err error, key any) error {
	if err == nil {
		return nil
	}
	if apperror.IsNotFound(err) {
		return apperror.NewNotFound(s.entityName, key)
	}
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewInternal(err).WithDetail("entity", s.entityName).WithDetail("id", key)
}

// Prepare runs before-create hooks, validates and assigns a number.
// Call it before opening the transaction: numbers are reserved outside it.
func (s *DocumentService[T]) Prepare(ctx context.Context, doc T) error {
	if err := s.hooks.Run(ctx, BeforeCreate, doc); err != nil {
		return err
	}
	if err := doc.Validate(ctx); err != nil {
		return s.normalizeValidationErr(err)
	}
	if doc.GetNumber() != "" {
		return nil
	}

	period := doc.GetDate()
	if period.IsZero() {
		period = time.Now().UTC()
	}
	number, err := s.numerator.GetNextNumber(ctx, s.numbering, s.numOpts, period)
	if err != nil {
		return fmt.Errorf("generate %s number: %w", s.entityName, err)
	}
	doc.SetNumber(number)
	return nil
}

// Insert stores a prepared document in the transaction carried by ctx.
func (s *DocumentService[T]) Insert(ctx context.Context, doc T) error {
	if err := s.repo.Create(ctx, doc); err != nil {
		return fmt.Errorf("create %s: %w", s.entityName, err)
	}
	s.afterCommit(ctx, AfterCreate, doc)
	return nil
}

// Save validates and updates a document in the transaction carried by ctx.
func (s *DocumentService[T]) Save(ctx context.Context, doc T) error {
	if err := s.hooks.Run(ctx, BeforeUpdate, doc); err != nil {
		return err
	}
	if err := doc.Validate(ctx); err != nil {
		return s.normalizeValidationErr(err)
	}
	if err := s.repo.Update(ctx, doc); err != nil {
		if apperror.IsAppError(err) {
			return err
		}
		return fmt.Errorf("update %s: %w", s.entityName, err)
	}
	s.afterCommit(ctx, AfterUpdate, doc)
	return nil
}

// Create prepares and stores a document in its own transaction.
func (s *DocumentService[T]) Create(ctx context.Context, doc T) error {
	if err := s.Prepare(ctx, doc); err != nil {
		return err
	}
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.Insert(ctx, doc)
	})
}

// Get retrieves a document by ID.
func (s *DocumentService[T]) Get(ctx context.Context, docID id.ID) (T, error) {
	doc, err := s.repo.GetByID(ctx, docID)
	return doc, s.normalizeGetErr(err, docID.String())
}

// GetByNumber retrieves a document by its number.
func (s *DocumentService[T]) GetByNumber(ctx context.Context, number string) (T, error) {
	doc, err := s.repo.GetByNumber(ctx, number)
	return doc, s.normalizeGetErr(err, number)
}

// List retrieves documents with filtering.
func (s *DocumentService[T]) List(ctx context.Context, filter ListFilter) (ListResult[T], error) {
	return s.repo.List(ctx, filter.Normalize())
}

// afterCommit runs after-hooks once the transaction commits. Their errors
// cannot undo the change and are only logged by the hook itself.
func (s *DocumentService[T]) afterCommit(ctx context.Context, event HookEvent, doc T) {
	tx.AfterCommit(ctx, func(ctx context.Context) {
		_ = s.hooks.Run(ctx, event, doc)
	})
}
