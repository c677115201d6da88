package repository

import (
	"context"
	"math"
	"strings"

	"gorm.io/gorm"

	"lendingledger/internal/model"
)

// likeEscape is the escape character used in LIKE patterns. Backslash is
// avoided because MySQL treats it specially inside string literals.
const likeEscape = "!"

// LoanItemFilter narrows a loan item listing. Nil fields are not applied.
type LoanItemFilter struct {
	LoanedTo *string
	Contains *string
	Limit    *int
	Offset   *int
}

// LoanItemRepository defines loan item persistence operations.
type LoanItemRepository interface {
	Create(ctx context.Context, item *model.LoanItem) error
	FindByID(ctx context.Context, id string) (*model.LoanItem, error)
	List(ctx context.Context, filter LoanItemFilter) ([]model.LoanItem, error)
	CompareAndSetHolder(ctx context.Context, id string, expected, next *string) (bool, error)
	DeleteIfAvailable(ctx context.Context, id string) (bool, error)
	UpdateDescription(ctx context.Context, id, description string) error
	// Transaction methods
	WithTransaction(ctx context.Context, fn func(ctx context.Context, repo LoanItemRepository) error) error
}

type loanItemRepository struct {
	db *gorm.DB
}

// NewLoanItemRepository creates a new loan item repository.
func NewLoanItemRepository(db *gorm.DB) LoanItemRepository {
	return &loanItemRepository{db: db}
}

// Create creates a new loan item.
func (r *loanItemRepository) Create(ctx context.Context, item *model.LoanItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// FindByID finds a loan item by ID.
func (r *loanItemRepository) FindByID(ctx context.Context, id string) (*model.LoanItem, error) {
	var item model.LoanItem
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// List returns the items matching filter in creation order.
func (r *loanItemRepository) List(ctx context.Context, filter LoanItemFilter) ([]model.LoanItem, error) {
	q := r.db.WithContext(ctx).Model(&model.LoanItem{})
	if filter.LoanedTo != nil {
		q = q.Where("loanedto = ?", *filter.LoanedTo)
	}
	if filter.Contains != nil {
		q = q.Where("search_text LIKE ? ESCAPE '"+likeEscape+"'", containsPattern(*filter.Contains))
	}
	if filter.Limit != nil {
		q = q.Limit(*filter.Limit)
	} else if filter.Offset != nil {
		// MySQL rejects OFFSET without LIMIT.
		q = q.Limit(math.MaxInt)
	}
	if filter.Offset != nil {
		q = q.Offset(*filter.Offset)
	}

	var items []model.LoanItem
	if err := q.Order("created_at").Order("id").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// CompareAndSetHolder sets loanedto to next only if it still equals expected.
// It reports whether the row was updated.
func (r *loanItemRepository) CompareAndSetHolder(ctx context.Context, id string, expected, next *string) (bool, error) {
	q := r.db.WithContext(ctx).Model(&model.LoanItem{}).Where("id = ?", id)
	if expected == nil {
		q = q.Where("loanedto IS NULL")
	} else {
		q = q.Where("loanedto = ?", *expected)
	}
	res := q.Update("loanedto", next)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteIfAvailable removes the item only while nobody holds it.
func (r *loanItemRepository) DeleteIfAvailable(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ? AND loanedto IS NULL", id).Delete(&model.LoanItem{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateDescription changes the description of an existing item.
func (r *loanItemRepository) UpdateDescription(ctx context.Context, id, description string) error {
	res := r.db.WithContext(ctx).Model(&model.LoanItem{}).Where("id = ?", id).Updates(map[string]interface{}{
		"description": description,
		"search_text": model.FoldText(description),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// WithTransaction executes a function within a database transaction.
func (r *loanItemRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, repo LoanItemRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &loanItemRepository{db: tx}
		return fn(ctx, txRepo)
	})
}

func containsPattern(s string) string {
	r := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return "%" + r.Replace(model.FoldText(s)) + "%"
}
