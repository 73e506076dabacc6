package pending

import (
	"encoding/json"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wingscash/books-gateway/internal"
)

// Actor carries the caller's identity and permissions into service
// operations. Access control is a parameter, not ambient state.
type Actor struct {
	ID                string
	IsAdmin           bool
	AllowedAccountIDs []string
}

// CanSeeAccount reports whether the actor may view records paid through
// the given account. Admins see everything.
func (a Actor) CanSeeAccount(accountID string) bool {
	if a.IsAdmin {
		return true
	}
	for _, id := range a.AllowedAccountIDs {
		if id == accountID {
			return true
		}
	}
	return false
}

// CreateExpenseDTO is the request body for submitting a pending expense.
type CreateExpenseDTO struct {
	Date             string          `json:"date"`
	VendorID         string          `json:"vendor_id"`
	VendorName       string          `json:"vendor_name"`
	Amount           decimal.Decimal `json:"amount"`
	ReferenceNumber  string          `json:"reference_number"`
	Description      string          `json:"description"`
	ExpenseAccountID string          `json:"expense_account_id"`

	// Required for ordinary expenses, absent for accrued ones.
	PaidThroughAccountID   string `json:"paid_through_account_id"`
	PaidThroughAccountName string `json:"paid_through_account_name"`

	// "ordinary" (default) or "accrued".
	ExpenseType string `json:"expense_type"`
}

func (d *CreateExpenseDTO) Validate() error {
	if d.Amount.LessThanOrEqual(decimal.Zero) {
		return internal.NewValidationFieldError("amount", "amount must be greater than 0", internal.ErrCodeInvalidAmount)
	}
	if d.Date == "" {
		return internal.NewValidationFieldError("date", "date is required", internal.ErrCodeInvalidDate)
	}
	if _, err := time.Parse("2006-01-02", d.Date); err != nil {
		return internal.NewValidationFieldError("date", "date must be in YYYY-MM-DD format", internal.ErrCodeInvalidDate)
	}
	if d.ExpenseAccountID == "" {
		return internal.NewValidationFieldError("expense_account_id", "expense_account_id is required", internal.ErrCodeInvalidAccount)
	}
	switch d.ExpenseType {
	case "", TypeOrdinary:
		if d.PaidThroughAccountID == "" {
			return internal.NewValidationFieldError("paid_through_account_id", "paid_through_account_id is required for ordinary expenses", internal.ErrCodeInvalidAccount)
		}
	case TypeAccrued:
		// Accrued expenses have no cash leg at submission time.
	default:
		return internal.NewValidationFieldError("expense_type", "expense_type must be ordinary or accrued", internal.ErrCodeValidationFailed)
	}
	return nil
}

// NormalizedType returns the expense type with the default applied.
func (d *CreateExpenseDTO) NormalizedType() string {
	if d.ExpenseType == "" {
		return TypeOrdinary
	}
	return d.ExpenseType
}

// UpdateExpenseDTO is a partial patch; nil fields are left untouched.
// Decoding rejects unknown fields so typos fail loudly instead of being
// silently dropped.
type UpdateExpenseDTO struct {
	Date                   *string          `json:"date"`
	VendorID               *string          `json:"vendor_id"`
	VendorName             *string          `json:"vendor_name"`
	Amount                 *decimal.Decimal `json:"amount"`
	ReferenceNumber        *string          `json:"reference_number"`
	Description            *string          `json:"description"`
	ExpenseAccountID       *string          `json:"expense_account_id"`
	PaidThroughAccountID   *string          `json:"paid_through_account_id"`
	PaidThroughAccountName *string          `json:"paid_through_account_name"`
}

// DecodeUpdateExpenseDTO parses an update body strictly.
func DecodeUpdateExpenseDTO(r io.Reader) (*UpdateExpenseDTO, error) {
	var dto UpdateExpenseDTO
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&dto); err != nil {
		return nil, err
	}
	return &dto, nil
}

func (d *UpdateExpenseDTO) Validate() error {
	if d.Amount != nil && d.Amount.LessThanOrEqual(decimal.Zero) {
		return internal.NewValidationFieldError("amount", "amount must be greater than 0", internal.ErrCodeInvalidAmount)
	}
	if d.Date != nil {
		if _, err := time.Parse("2006-01-02", *d.Date); err != nil {
			return internal.NewValidationFieldError("date", "date must be in YYYY-MM-DD format", internal.ErrCodeInvalidDate)
		}
	}
	return nil
}

// ApplyTo patches the record in place.
func (d *UpdateExpenseDTO) ApplyTo(e *PendingExpense) {
	if d.Date != nil {
		e.Date = *d.Date
	}
	if d.VendorID != nil {
		e.VendorID = *d.VendorID
	}
	if d.VendorName != nil {
		e.VendorName = *d.VendorName
	}
	if d.Amount != nil {
		e.Amount = *d.Amount
	}
	if d.ReferenceNumber != nil {
		e.ReferenceNumber = *d.ReferenceNumber
	}
	if d.Description != nil {
		e.Description = *d.Description
	}
	if d.ExpenseAccountID != nil {
		e.ExpenseAccountID = *d.ExpenseAccountID
	}
	if d.PaidThroughAccountID != nil {
		e.PaidThroughAccountID = *d.PaidThroughAccountID
	}
	if d.PaidThroughAccountName != nil {
		e.PaidThroughAccountName = *d.PaidThroughAccountName
	}
	e.UpdatedAt = time.Now()
}

// ClearingDTO is the request body for a clearing payment against an
// approved accrued expense.
type ClearingDTO struct {
	Amount                 decimal.Decimal `json:"amount"`
	PaidThroughAccountID   string          `json:"paid_through_account_id"`
	PaidThroughAccountName string          `json:"paid_through_account_name"`
	Date                   string          `json:"date"`
	ReferenceNumber        string          `json:"reference_number"`
}

func (d *ClearingDTO) Validate() error {
	if d.Amount.LessThanOrEqual(decimal.Zero) {
		return internal.NewValidationFieldError("amount", "amount must be greater than 0", internal.ErrCodeInvalidAmount)
	}
	if d.PaidThroughAccountID == "" {
		return internal.NewValidationFieldError("paid_through_account_id", "paid_through_account_id is required", internal.ErrCodeInvalidAccount)
	}
	if d.Date == "" {
		return internal.NewValidationFieldError("date", "date is required", internal.ErrCodeInvalidDate)
	}
	if _, err := time.Parse("2006-01-02", d.Date); err != nil {
		return internal.NewValidationFieldError("date", "date must be in YYYY-MM-DD format", internal.ErrCodeInvalidDate)
	}
	return nil
}

// ListFilter narrows listing queries. Zero values mean "no filter".
type ListFilter struct {
	Status        string
	PendingKind   string
	ExpenseType   string
	DateFrom      string
	DateToExcl    string
	AccountID     string
	CreatedBy     string
	IncludeOwnFor string // union: created_by OR allowed accounts
	AllowedIDs    []string
}

// MonthBounds returns [first of month, first of next month) for the
// given reference time, formatted as dates.
func MonthBounds(ref time.Time) (string, string) {
	first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	next := first.AddDate(0, 1, 0)
	return first.Format("2006-01-02"), next.Format("2006-01-02")
}
