package beat

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ledgerline/deposit-core/internal/platform/httpx"
	"github.com/ledgerline/deposit-core/internal/shared"
)

var validate = validator.New()

// Request is the external beat trigger. ForTime's date component is the
// accrual date.
type Request struct {
	Identifier string    `json:"identifier" validate:"required"`
	ForTime    time.Time `json:"for_time" validate:"required"`
}

// Handler exposes the beat endpoint.
type Handler struct {
	runner *Runner
	logger *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, runner *Runner) *Handler {
	return &Handler{runner: runner, logger: logger}
}

// MountRoutes attaches the beat route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/beat", h.trigger)
}

func (h *Handler) trigger(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Wrap(shared.KindBadRequest, err, "invalid beat request"))
		return
	}
	if err := h.runner.Run(r.Context(), req.ForTime, "beat:"+req.Identifier); err != nil {
		h.logger.Error("beat failed",
			slog.String("identifier", req.Identifier),
			slog.Time("for_time", req.ForTime),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
