package cash

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/wingscash/books-gateway/internal/auth"
	"github.com/wingscash/books-gateway/internal/pending"
	"github.com/wingscash/books-gateway/internal/transport"
	"github.com/wingscash/books-gateway/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	service *Service
}

func NewHandler(service *Service) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		service:     service,
	}
}

func actorFrom(user *auth.User) pending.Actor {
	return pending.Actor{
		ID:                user.ID,
		IsAdmin:           user.IsAdmin,
		AllowedAccountIDs: user.AllowedAccountIDs,
	}
}

// GetDashboard serves the cash position for all visible accounts.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	positions, err := h.service.Dashboard(r.Context(), actorFrom(user))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"accounts": positions})
}

// GetAccount serves one account's cash position.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	accountID := chi.URLParam(r, "account_id")
	if accountID == "" {
		h.WriteError(w, http.StatusBadRequest, "account id is required")
		return
	}

	position, err := h.service.AccountPosition(r.Context(), actorFrom(user), accountID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, position)
}
