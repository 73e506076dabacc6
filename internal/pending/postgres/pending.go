package postgres

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wingscash/books-gateway/internal"
	"github.com/wingscash/books-gateway/internal/pending"
)

// PendingRepository implements the pending.Repository interface using GORM
type PendingRepository struct {
	db *gorm.DB
}

// NewPendingRepository creates a new pending ledger repository
func NewPendingRepository(db *gorm.DB) pending.Repository {
	return &PendingRepository{db: db}
}

// Create saves a new pending record to the database
func (r *PendingRepository) Create(ctx context.Context, record *pending.PendingExpense) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// GetByID retrieves a pending record by its ID
func (r *PendingRepository) GetByID(ctx context.Context, id string) (*pending.PendingExpense, error) {
	var record pending.PendingExpense
	err := r.db.WithContext(ctx).Where("expense_id = ?", id).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.ErrExpenseNotFound
		}
		return nil, err
	}
	return &record, nil
}

// Update persists the full record
func (r *PendingRepository) Update(ctx context.Context, record *pending.PendingExpense) error {
	record.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(record).Error
}

// Delete permanently removes a record
func (r *PendingRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("expense_id = ?", id).Delete(&pending.PendingExpense{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return internal.ErrExpenseNotFound
	}
	return nil
}

// List returns records matching the filter, newest first. Date bounds
// compare the record's date field, end exclusive.
func (r *PendingRepository) List(ctx context.Context, filter pending.ListFilter) ([]*pending.PendingExpense, error) {
	query := r.db.WithContext(ctx).Model(&pending.PendingExpense{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PendingKind != "" {
		query = query.Where("pending_kind = ?", filter.PendingKind)
	}
	if filter.ExpenseType != "" {
		query = query.Where("expense_type = ?", filter.ExpenseType)
	}
	if filter.DateFrom != "" {
		query = query.Where("date >= ?", filter.DateFrom)
	}
	if filter.DateToExcl != "" {
		query = query.Where("date < ?", filter.DateToExcl)
	}
	if filter.AccountID != "" {
		query = query.Where("paid_through_account_id = ?", filter.AccountID)
	}
	if filter.CreatedBy != "" {
		query = query.Where("created_by = ?", filter.CreatedBy)
	}

	// Non-admin visibility: records the actor created, or records paid
	// through an account on their allow-list.
	if filter.IncludeOwnFor != "" {
		if len(filter.AllowedIDs) > 0 {
			query = query.Where("created_by = ? OR paid_through_account_id IN ?", filter.IncludeOwnFor, filter.AllowedIDs)
		} else {
			query = query.Where("created_by = ?", filter.IncludeOwnFor)
		}
	}

	var records []*pending.PendingExpense
	err := query.Order("created_at DESC").Find(&records).Error
	return records, err
}

// PendingTotalForAccount sums pending amounts for one paid-through account
func (r *PendingRepository) PendingTotalForAccount(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.WithContext(ctx).Model(&pending.PendingExpense{}).
		Where("status = ? AND paid_through_account_id = ?", pending.StatusPending, accountID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
