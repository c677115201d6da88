package model

import (
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
)

// LoanItem is a catalog entry that is loaned to at most one user at a time.
type LoanItem struct {
	ID          string  `json:"id" gorm:"primaryKey;size:255"`
	Description string  `json:"description" gorm:"type:text;not null"`
	LoanedTo    *string `json:"loanedto" gorm:"column:loanedto;size:255;index"`
	// SearchText is Description case-folded for substring matching.
	SearchText string    `json:"-" gorm:"column:search_text;type:text"`
	CreatedAt  time.Time `json:"-" gorm:"index;precision:6"`
	UpdatedAt  time.Time `json:"-"`

	// Relations
	Holder *User `json:"-" gorm:"foreignKey:LoanedTo;references:Username;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// FoldText case-folds s the way SearchText is stored.
func FoldText(s string) string {
	return strings.ToLower(s)
}

var createClock struct {
	sync.Mutex
	last time.Time
}

// nextCreatedAt returns the current time at microsecond precision, moved
// past the previous value so items created by one process never tie.
func nextCreatedAt() time.Time {
	createClock.Lock()
	defer createClock.Unlock()

	now := time.Now().Local().Truncate(time.Microsecond)
	if !now.After(createClock.last) {
		now = createClock.last.Add(time.Microsecond)
	}
	createClock.last = now
	return now
}

// BeforeCreate fills SearchText and CreatedAt. Later description changes go
// through repository.UpdateDescription, which refolds it.
func (i *LoanItem) BeforeCreate(tx *gorm.DB) error {
	i.SearchText = FoldText(i.Description)
	if i.CreatedAt.IsZero() {
		i.CreatedAt = nextCreatedAt()
	}
	return nil
}

// Available reports whether nobody holds the item.
func (i *LoanItem) Available() bool {
	return i.LoanedTo == nil
}

// HolderName returns the username the item is loaned to, or "" when available.
func (i *LoanItem) HolderName() string {
	if i.LoanedTo == nil {
		return ""
	}
	return *i.LoanedTo
}
