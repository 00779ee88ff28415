package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/varia-hq/varia-engine/pkg/services"
)

// LedgerHandler handles approve/reject actions and ledger queries.
type LedgerHandler struct {
	ledgerService services.LedgerService
	logger        *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledgerService services.LedgerService, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledgerService: ledgerService, logger: logger}
}

// RegisterRoutes registers the ledger handler's routes on the given mux.
func (h *LedgerHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/decisions/{decision_id}/approve", h.Approve)
	mux.HandleFunc("POST /api/decisions/{decision_id}/reject", h.Reject)
	mux.HandleFunc("GET /api/decisions/{decision_id}/status", h.Status)
	mux.HandleFunc("GET /api/datasets/{dataset_id}/ledger", h.ListEntries)
}

type ledgerActionRequest struct {
	DatasetID string `json:"dataset_id"`
	ActedBy   string `json:"acted_by"`
	Notes     string `json:"notes"`
}

// Approve handles POST /api/decisions/{decision_id}/approve.
func (h *LedgerHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, true)
}

// Reject handles POST /api/decisions/{decision_id}/reject.
func (h *LedgerHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, false)
}

func (h *LedgerHandler) act(w http.ResponseWriter, r *http.Request, approve bool) {
	decisionID, err := uuid.Parse(r.PathValue("decision_id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_decision_id", "decision_id must be a UUID")
		return
	}

	var req ledgerActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_body", "request body must be JSON")
		return
	}
	if req.DatasetID == "" || req.ActedBy == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "missing_fields", "dataset_id and acted_by are required")
		return
	}

	var entry interface{}
	if approve {
		entry, err = h.ledgerService.Approve(r.Context(), req.DatasetID, decisionID, req.ActedBy, req.Notes)
	} else {
		entry, err = h.ledgerService.Reject(r.Context(), req.DatasetID, decisionID, req.ActedBy, req.Notes)
	}
	if err != nil {
		h.logger.Warn("Ledger action failed",
			zap.String("decision_id", decisionID.String()),
			zap.Bool("approve", approve),
			zap.Error(err))
		_ = writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusCreated, entry)
}

// Status handles GET /api/decisions/{decision_id}/status.
func (h *LedgerHandler) Status(w http.ResponseWriter, r *http.Request) {
	decisionID, err := uuid.Parse(r.PathValue("decision_id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_decision_id", "decision_id must be a UUID")
		return
	}

	status, err := h.ledgerService.StatusOf(r.Context(), decisionID)
	if err != nil {
		_ = writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{
		"decision_id": decisionID.String(),
		"status":      string(status),
	})
}

// ListEntries handles GET /api/datasets/{dataset_id}/ledger?order=desc.
// The default ascending order replays the audit trail oldest first.
func (h *LedgerHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	descending := r.URL.Query().Get("order") == "desc"

	entries, err := h.ledgerService.ListEntries(r.Context(), r.PathValue("dataset_id"), descending)
	if err != nil {
		_ = writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}
