package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	ExpenseCreated  = "expense.created"
	ExpenseApproved = "expense.approved"
	ExpenseRejected = "expense.rejected"
	AccruedCleared  = "accrued.cleared"
)

func NewExpenseCreatedEvent(expenseID, createdBy, expenseType string, amount string) Event {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      ExpenseCreated,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"expense_id":   expenseID,
			"created_by":   createdBy,
			"expense_type": expenseType,
			"amount":       amount,
		},
	}
}

func NewExpenseApprovedEvent(expenseID, pendingKind, upstreamID string) Event {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      ExpenseApproved,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"expense_id":   expenseID,
			"pending_kind": pendingKind,
			"upstream_id":  upstreamID,
		},
	}
}

func NewExpenseRejectedEvent(expenseID string) Event {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      ExpenseRejected,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"expense_id": expenseID,
		},
	}
}

func NewAccruedClearedEvent(expenseID, sourcePaymentID string, amount, balance string) Event {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      AccruedCleared,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"expense_id":        expenseID,
			"source_payment_id": sourcePaymentID,
			"amount":            amount,
			"balance":           balance,
		},
	}
}
