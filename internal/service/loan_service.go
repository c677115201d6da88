package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	apperrors "lendingledger/internal/errors"
	"lendingledger/internal/model"
	"lendingledger/internal/repository"
)

// Query keys understood by ListItems.
const (
	QueryLoanedTo = "loanedto"
	QueryContains = "contains"
	QueryLimit    = "limit"
	QueryOffset   = "offset"
)

// LoanService exposes the loan ledger.
type LoanService interface {
	CreateItem(ctx context.Context, id, description string) (*model.LoanItem, error)
	GetItem(ctx context.Context, id string) (*model.LoanItem, error)
	ListItems(ctx context.Context, query url.Values) ([]model.LoanItem, error)
	UpdateLoan(ctx context.Context, id string, loanedTo *string) (*model.LoanItem, error)
	RemoveItem(ctx context.Context, id string) (*model.LoanItem, error)
}

type loanService struct {
	items     repository.LoanItemRepository
	modes     repository.ModeStore
	requester requesterLookup
	log       logrus.FieldLogger
}

// NewLoanService creates a new loan service.
func NewLoanService(
	items repository.LoanItemRepository,
	users repository.UserRepository,
	modes repository.ModeStore,
	log logrus.FieldLogger,
) LoanService {
	return &loanService{
		items:     items,
		modes:     modes,
		requester: requesterLookup{users: users},
		log:       log,
	}
}

// CreateItem adds an available item to the catalog. Admin only.
func (s *loanService) CreateItem(ctx context.Context, id, description string) (*model.LoanItem, error) {
	if _, err := s.requester.admin(ctx); err != nil {
		return nil, err
	}

	_, err := s.items.FindByID(ctx, id)
	if err == nil {
		return nil, apperrors.ErrDuplicateLoanItem
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check loan item existence: %w", err)
	}

	item := &model.LoanItem{ID: id, Description: description}
	if err := s.items.Create(ctx, item); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.ErrDuplicateLoanItem
		}
		return nil, fmt.Errorf("create loan item: %w", err)
	}

	s.log.WithField("loan_item_id", id).Info("loan item created")
	return item, nil
}

// GetItem returns one item including its holder. Admin only.
func (s *loanService) GetItem(ctx context.Context, id string) (*model.LoanItem, error) {
	if _, err := s.requester.admin(ctx); err != nil {
		return nil, err
	}
	return s.find(ctx, id)
}

// ListItems returns the items matching query. Any authenticated user may list.
func (s *loanService) ListItems(ctx context.Context, query url.Values) ([]model.LoanItem, error) {
	if _, err := s.requester.current(ctx); err != nil {
		return nil, err
	}
	filter, err := ParseLoanItemQuery(query)
	if err != nil {
		return nil, err
	}
	items, err := s.items.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list loan items: %w", err)
	}
	return items, nil
}

// UpdateLoan loans the item to loanedTo, or returns it when loanedTo is nil.
//
// Admins may always change the holder. Other users may only loan out an
// available item, and only while the mode is self-service. The write only
// succeeds if the holder is still the one the decision was based on.
func (s *loanService) UpdateLoan(ctx context.Context, id string, loanedTo *string) (*model.LoanItem, error) {
	requester, err := s.requester.current(ctx)
	if err != nil {
		return nil, err
	}
	item, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.mayChangeHolder(ctx, requester, item) {
		return nil, apperrors.ErrNotAllowed
	}
	if sameHolder(item.LoanedTo, loanedTo) {
		return item, nil
	}

	swapped, err := s.items.CompareAndSetHolder(ctx, id, item.LoanedTo, loanedTo)
	if err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return nil, apperrors.ErrUnknownUser
		}
		return nil, fmt.Errorf("update loan: %w", err)
	}
	if !swapped {
		return nil, apperrors.ErrLoanItemChanged
	}

	updated, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"loan_item_id": id,
		"requester":    requester.Username,
		"from":         item.HolderName(),
		"to":           updated.HolderName(),
	}).Info("loan updated")
	return updated, nil
}

// RemoveItem deletes an available item and returns it. Admin only.
func (s *loanService) RemoveItem(ctx context.Context, id string) (*model.LoanItem, error) {
	requester, err := s.requester.admin(ctx)
	if err != nil {
		return nil, err
	}
	item, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.Available() {
		return nil, apperrors.ErrCannotDeleteLoanedItem
	}

	deleted, err := s.items.DeleteIfAvailable(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("delete loan item: %w", err)
	}
	if !deleted {
		// Loaned out or removed since the read above.
		if _, err := s.find(ctx, id); err != nil {
			return nil, err
		}
		return nil, apperrors.ErrCannotDeleteLoanedItem
	}

	s.log.WithFields(logrus.Fields{"loan_item_id": id, "requester": requester.Username}).Info("loan item deleted")
	return item, nil
}

func (s *loanService) mayChangeHolder(ctx context.Context, requester *model.User, item *model.LoanItem) bool {
	if requester.IsAdmin() {
		return true
	}
	if !item.Available() {
		return false
	}
	return s.modes.Get(ctx) == model.ModeSelfService
}

func (s *loanService) find(ctx context.Context, id string) (*model.LoanItem, error) {
	item, err := s.items.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUnknownLoanItem
		}
		return nil, fmt.Errorf("get loan item: %w", err)
	}
	return item, nil
}

// ParseLoanItemQuery turns request query parameters into a filter.
//
// Unrecognized keys are ignored as long as at least one recognized key is
// present; a query made only of unrecognized keys is rejected. limit and
// offset must be non-negative integers.
func ParseLoanItemQuery(query url.Values) (repository.LoanItemFilter, error) {
	var filter repository.LoanItemFilter
	recognized := false

	if _, ok := query[QueryLoanedTo]; ok {
		v := query.Get(QueryLoanedTo)
		filter.LoanedTo = &v
		recognized = true
	}
	if _, ok := query[QueryContains]; ok {
		v := query.Get(QueryContains)
		filter.Contains = &v
		recognized = true
	}
	for _, key := range []string{QueryLimit, QueryOffset} {
		if _, ok := query[key]; !ok {
			continue
		}
		n, err := strconv.Atoi(query.Get(key))
		if err != nil || n < 0 {
			return repository.LoanItemFilter{}, apperrors.ErrInvalidRequest
		}
		if key == QueryLimit {
			filter.Limit = &n
		} else {
			filter.Offset = &n
		}
		recognized = true
	}

	if !recognized && len(query) > 0 {
		return repository.LoanItemFilter{}, apperrors.ErrInvalidRequest
	}
	return filter, nil
}

func sameHolder(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
