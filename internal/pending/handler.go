package pending

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/wingscash/books-gateway/internal/auth"
	"github.com/wingscash/books-gateway/internal/transport"
	"github.com/wingscash/books-gateway/pkg/logger"
)

// maxReceiptSize bounds uploaded receipt files.
const maxReceiptSize = 10 << 20

type ServiceAPI interface {
	CreateExpense(ctx context.Context, actor Actor, dto *CreateExpenseDTO) (*PendingExpense, error)
	GetExpense(ctx context.Context, actor Actor, id string) (*PendingExpense, error)
	UpdateExpense(ctx context.Context, actor Actor, id string, dto *UpdateExpenseDTO) (*PendingExpense, error)
	DeleteExpense(ctx context.Context, actor Actor, id string) error
	ListPending(ctx context.Context, actor Actor) ([]*PendingExpense, error)
	ListApproved(ctx context.Context, actor Actor, dateFrom, dateTo string) ([]*PendingExpense, error)
	ListAccrued(ctx context.Context, actor Actor, includeCleared bool) ([]*PendingExpense, error)
	ListPaymentsMade(ctx context.Context, actor Actor, status string) ([]*PendingExpense, error)
	Approve(ctx context.Context, actor Actor, id string) (*PendingExpense, error)
	Reject(ctx context.Context, actor Actor, id string) (*PendingExpense, error)
	ClearAccrued(ctx context.Context, actor Actor, sourceID string, dto *ClearingDTO) (*PendingExpense, error)
	AddReceipt(ctx context.Context, actor Actor, id, filename string, content []byte) (*PendingExpense, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (Actor, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return Actor{}, false
	}
	return Actor{
		ID:                user.ID,
		IsAdmin:           user.IsAdmin,
		AllowedAccountIDs: user.AllowedAccountIDs,
	}, true
}

func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var dto CreateExpenseDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateExpense: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.Service.CreateExpense(r.Context(), actor, &dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, record)
}

func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	record, err := h.Service.GetExpense(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	dto, err := DecodeUpdateExpenseDTO(r.Body)
	if err != nil {
		h.Logger.Error("UpdateExpense: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	record, err := h.Service.UpdateExpense(r.Context(), actor, chi.URLParam(r, "id"), dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	if err := h.Service.DeleteExpense(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.WriteAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	records, err := h.Service.ListPending(r.Context(), actor)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"expenses": records})
}

func (h *Handler) ListApproved(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	records, err := h.Service.ListApproved(r.Context(), actor, query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"expenses": records})
}

func (h *Handler) ListAccrued(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	includeCleared := r.URL.Query().Get("include_cleared") == "true"
	records, err := h.Service.ListAccrued(r.Context(), actor, includeCleared)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"expenses": records})
}

func (h *Handler) ListPaymentsMade(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	records, err := h.Service.ListPaymentsMade(r.Context(), actor, r.URL.Query().Get("status"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"payments": records})
}

func (h *Handler) ApproveExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	record, err := h.Service.Approve(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) RejectExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	record, err := h.Service.Reject(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) ClearAccrued(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var dto ClearingDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("ClearAccrued: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payment, err := h.Service.ClearAccrued(r.Context(), actor, chi.URLParam(r, "id"), &dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, payment)
}

// UploadReceipt accepts a multipart file field named "file".
func (h *Handler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxReceiptSize); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxReceiptSize))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	record, err := h.Service.AddReceipt(r.Context(), actor, chi.URLParam(r, "id"), header.Filename, content)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, record)
}
