package assets

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

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

// CreateAsset registers a fixed asset upstream.
func (h *Handler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var dto CreateAssetDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	asset, err := h.service.Create(r.Context(), &dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":             true,
		"fixed_asset_id": asset.FixedAssetID,
		"asset_number":   asset.AssetNumber,
		"status":         asset.Status,
	})
}

// ListAssets serves all fixed assets, any status.
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.service.List(r.Context())
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"count":  len(assets),
		"assets": assets,
	})
}

// GetAsset serves the raw upstream record for one asset.
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "asset_id")
	if assetID == "" {
		h.WriteError(w, http.StatusBadRequest, "asset id is required")
		return
	}

	raw, err := h.service.Get(r.Context(), assetID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, raw)
}
