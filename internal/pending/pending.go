package pending

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Expense statuses. Approved and rejected are terminal.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Pending kinds: what the record becomes upstream once approved.
const (
	KindExpense        = "expense"
	KindAccruedPayment = "accrued_payment"
)

// Expense types for expense-kind records.
const (
	TypeOrdinary = "ordinary"
	TypeAccrued  = "accrued"
)

// ClearingEntry is a partial or full cash payment against an accrued
// expense's remaining balance.
type ClearingEntry struct {
	ID                     string          `json:"id"`
	Amount                 decimal.Decimal `json:"amount"`
	PaidThroughAccountID   string          `json:"paid_through_account_id"`
	PaidThroughAccountName string          `json:"paid_through_account_name"`
	Date                   string          `json:"date"`
	ReferenceNumber        string          `json:"reference_number"`
	SourcePaymentID        string          `json:"source_payment_id,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
}

// Receipt is an attachment reference; bytes live in the upload store.
type Receipt struct {
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

type ClearingEntries []ClearingEntry

func (c ClearingEntries) Value() (driver.Value, error) {
	if c == nil {
		c = ClearingEntries{}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *ClearingEntries) Scan(value interface{}) error {
	return scanJSON(value, c)
}

type Receipts []Receipt

func (r Receipts) Value() (driver.Value, error) {
	if r == nil {
		r = Receipts{}
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *Receipts) Scan(value interface{}) error {
	return scanJSON(value, r)
}

// RawJSON stores an opaque upstream response body for audit.
type RawJSON json.RawMessage

func (j RawJSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *RawJSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = RawJSON(v)
	default:
		return fmt.Errorf("unsupported type for RawJSON: %T", value)
	}
	return nil
}

func (j RawJSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *RawJSON) UnmarshalJSON(data []byte) error {
	*j = append((*j)[0:0], data...)
	return nil
}

func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported column type: %T", value)
	}
}

// PendingExpense is a locally staged expense-like transaction awaiting
// admin approval before being posted to Zoho Books.
type PendingExpense struct {
	ID          string `json:"expense_id" gorm:"primaryKey;column:expense_id"`
	Status      string `json:"status" gorm:"column:status;default:pending;index"`
	PendingKind string `json:"pending_kind" gorm:"column:pending_kind;default:expense;index"`
	ExpenseType string `json:"expense_type" gorm:"column:expense_type;default:ordinary"`

	Date                   string          `json:"date" gorm:"column:date"`
	VendorID               string          `json:"vendor_id" gorm:"column:vendor_id"`
	VendorName             string          `json:"vendor_name" gorm:"column:vendor_name"`
	Amount                 decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(18,2)"`
	ReferenceNumber        string          `json:"reference_number" gorm:"column:reference_number"`
	Description            string          `json:"description" gorm:"column:description"`
	ExpenseAccountID       string          `json:"expense_account_id" gorm:"column:expense_account_id"`
	PaidThroughAccountID   string          `json:"paid_through_account_id" gorm:"column:paid_through_account_id;index"`
	PaidThroughAccountName string          `json:"paid_through_account_name" gorm:"column:paid_through_account_name"`

	CreatedBy string `json:"created_by" gorm:"column:created_by;index"`

	// Accrual sub-ledger. Balance is amount minus the clearing total,
	// clamped at zero, maintained on every mutation.
	Balance   decimal.Decimal `json:"balance" gorm:"column:balance;type:numeric(18,2)"`
	Clearing  ClearingEntries `json:"clearing" gorm:"column:clearing;type:text"`
	ClearedAt *time.Time      `json:"cleared_at,omitempty" gorm:"column:cleared_at"`

	// Back-reference for accrued_payment records.
	SourceAccruedExpenseID string `json:"source_accrued_expense_id,omitempty" gorm:"column:source_accrued_expense_id;index"`

	Receipts Receipts `json:"receipts" gorm:"column:receipts;type:text"`

	// Upstream posting outcome. A failed approval leaves the record
	// pending with ZohoError set, so "attempted and failed" is
	// distinguishable from "never attempted".
	ZohoPosted           bool    `json:"zoho_posted" gorm:"column:zoho_posted"`
	ZohoExpenseID        string  `json:"zoho_expense_id,omitempty" gorm:"column:zoho_expense_id"`
	ZohoJournalID        string  `json:"zoho_journal_id,omitempty" gorm:"column:zoho_journal_id"`
	ZohoResponse         RawJSON `json:"zoho_response,omitempty" gorm:"column:zoho_response;type:text"`
	ZohoError            string  `json:"zoho_error,omitempty" gorm:"column:zoho_error"`
	ZohoAttachmentPosted bool    `json:"zoho_attachment_posted" gorm:"column:zoho_attachment_posted"`
	ZohoAttachmentError  string  `json:"zoho_attachment_error,omitempty" gorm:"column:zoho_attachment_error"`

	CreatedAt  time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"column:updated_at"`
	ApprovedAt *time.Time `json:"approved_at,omitempty" gorm:"column:approved_at"`
	RejectedAt *time.Time `json:"rejected_at,omitempty" gorm:"column:rejected_at"`
}

// TableName returns the table name for GORM
func (PendingExpense) TableName() string {
	return "pending_expenses"
}

func (e *PendingExpense) IsPending() bool {
	return e.Status == StatusPending
}

func (e *PendingExpense) IsAccrued() bool {
	return e.ExpenseType == TypeAccrued
}

func (e *PendingExpense) CanBeApproved() bool {
	return e.Status == StatusPending
}

func (e *PendingExpense) CanBeRejected() bool {
	return e.Status == StatusPending
}

// CanBeCleared reports whether a clearing payment may target this record.
func (e *PendingExpense) CanBeCleared() bool {
	return e.Status == StatusApproved && e.IsAccrued() && e.PendingKind == KindExpense
}

func (e *PendingExpense) Approve() {
	e.Status = StatusApproved
	now := time.Now()
	e.ApprovedAt = &now
	e.UpdatedAt = now
}

func (e *PendingExpense) Reject() {
	e.Status = StatusRejected
	now := time.Now()
	e.RejectedAt = &now
	e.UpdatedAt = now
}

// TotalCleared sums the clearing entries.
func (e *PendingExpense) TotalCleared() decimal.Decimal {
	total := decimal.Zero
	for _, c := range e.Clearing {
		total = total.Add(c.Amount)
	}
	return total
}

// RecomputeBalance re-derives the remaining balance from amount and the
// full clearing list: max(0, amount - sum(clearing)), rounded to 2dp.
// Over-payment clamps to zero rather than going negative.
func (e *PendingExpense) RecomputeBalance() {
	bal := e.Amount.Sub(e.TotalCleared()).Round(2)
	if bal.IsNegative() {
		bal = decimal.Zero
	}
	e.Balance = bal

	if e.Balance.LessThanOrEqual(decimal.Zero) {
		if e.ClearedAt == nil {
			now := time.Now()
			e.ClearedAt = &now
		}
	} else {
		e.ClearedAt = nil
	}
}

// AddClearing appends an entry and recomputes the balance. The caller is
// responsible for status/type validation.
func (e *PendingExpense) AddClearing(entry ClearingEntry) {
	e.Clearing = append(e.Clearing, entry)
	e.RecomputeBalance()
	e.UpdatedAt = time.Now()
}

func (e *PendingExpense) AddReceipt(filename, url string) Receipt {
	receipt := Receipt{
		Filename:  filename,
		URL:       url,
		CreatedAt: time.Now(),
	}
	e.Receipts = append(e.Receipts, receipt)
	e.UpdatedAt = time.Now()
	return receipt
}

// FindClearing returns the clearing entry with the given id, or nil.
func (e *PendingExpense) FindClearing(clearingID string) *ClearingEntry {
	for i := range e.Clearing {
		if e.Clearing[i].ID == clearingID {
			return &e.Clearing[i]
		}
	}
	return nil
}
