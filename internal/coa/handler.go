package coa

import (
	"log/slog"
	"net/http"

	"github.com/wingscash/books-gateway/internal/transport"
	"github.com/wingscash/books-gateway/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	store *Store
}

func NewHandler(store *Store) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		store:       store,
	}
}

// GetExpenseAccounts serves the expense-account dropdown.
func (h *Handler) GetExpenseAccounts(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": h.store.ExpenseAccounts(),
	})
}

// GetPaidThroughAccounts serves the cash/bank account dropdown.
func (h *Handler) GetPaidThroughAccounts(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": h.store.PaidThroughAccounts(),
	})
}
