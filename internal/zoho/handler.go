package zoho

import (
	"log/slog"
	"net/http"

	"github.com/wingscash/books-gateway/internal"
	"github.com/wingscash/books-gateway/internal/transport"
	"github.com/wingscash/books-gateway/pkg/logger"
)

// Handler exposes upstream reference data used by expense forms.
type Handler struct {
	*transport.BaseHandler
	client *Client
}

func NewHandler(client *Client) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		client:      client,
	}
}

// GetVendors serves the vendor dropdown.
func (h *Handler) GetVendors(w http.ResponseWriter, r *http.Request) {
	if h.client == nil {
		h.WriteJSON(w, http.StatusOK, map[string]interface{}{"vendors": []Vendor{}})
		return
	}

	vendors, err := h.client.ListVendors(r.Context())
	if err != nil {
		h.Logger.Error("failed to list vendors", "error", err)
		h.WriteAppError(w, internal.NewUpstreamError("failed to fetch vendors", err))
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"vendors": vendors})
}
