package transaction

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ledgerline/deposit-core/internal/platform/httpx"
)

// Handler exposes the transaction endpoints.
type Handler struct {
	processor    *Processor
	transactions Repository
	logger       *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, processor *Processor, transactions Repository) *Handler {
	return &Handler{processor: processor, transactions: transactions, logger: logger}
}

// MountRoutes attaches transaction routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{id}", h.find)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	actor := actorFrom(r)

	var (
		receipt Receipt
		err     error
	)
	switch req.Action {
	case ActionDeposit:
		receipt, err = h.processor.Deposit(r.Context(), req, actor)
	case ActionWithdrawal:
		receipt, err = h.processor.Withdraw(r.Context(), req, actor)
	default:
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unrecognized action")
		return
	}
	if err != nil {
		h.logger.Error("processing transaction",
			slog.String("account", req.AccountID),
			slog.String("action", req.Action),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipt)
}

func (h *Handler) find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "transaction identifier must be a UUID")
		return
	}
	txn, err := h.transactions.FindByID(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(txn))
}

func actorFrom(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "system"
}
