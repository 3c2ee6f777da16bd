package dividend

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerline/deposit-core/internal/platform/httpx"
)

// Handler exposes the dividend administration endpoints.
type Handler struct {
	distributor *Distributor
	dividends   Repository
	logger      *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, distributor *Distributor, dividends Repository) *Handler {
	return &Handler{distributor: distributor, dividends: dividends, logger: logger}
}

// MountRoutes attaches dividend routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/products/{id}/dividends", h.distribute)
	r.Get("/products/{id}/dividends", h.list)
}

func (h *Handler) distribute(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	var req DistributeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	dueDate, rate, err := req.Parse()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := actorFrom(r)
	if err := h.distributor.Distribute(r.Context(), productID, dueDate, rate, actor); err != nil {
		h.logger.Error("dividend distribution", slog.String("product", productID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	distributions, err := h.dividends.ListByProduct(r.Context(), productID)
	if err != nil {
		h.logger.Error("list distributions", slog.String("product", productID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]DistributionView, 0, len(distributions))
	for _, d := range distributions {
		views = append(views, toView(d))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func actorFrom(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "system"
}
