package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AryanJadile/restoflow/internal/payment"
)

// GatewayHandler consumes the payment gateway's callback contract: the
// gateway (or its hosted popup) reports each pending authorization as
// approved, dismissed, or errored.
type GatewayHandler struct {
	GW  *payment.CallbackGateway
	Log *slog.Logger
}

type callbackReq struct {
	Status     string `json:"status"` // approved | dismissed | errored
	PaymentRef string `json:"payment_ref,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func (h *GatewayHandler) Register(r *chi.Mux) {
	r.Route("/payments", func(r chi.Router) {
		r.Get("/pending", h.pending)
		r.Post("/{auth}/callback", h.callback)
	})
}

func (h *GatewayHandler) pending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.GW.Pending())
}

func (h *GatewayHandler) callback(w http.ResponseWriter, r *http.Request) {
	authID := chi.URLParam(r, "auth")
	var req callbackReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	var out payment.Outcome
	switch req.Status {
	case "approved":
		out = payment.Outcome{Kind: payment.OutcomeApproved, Ref: req.PaymentRef}
	case "dismissed":
		out = payment.Outcome{Kind: payment.OutcomeDismissed}
	case "errored":
		out = payment.Outcome{Kind: payment.OutcomeErrored, Reason: req.Reason}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status"})
		return
	}

	if err := h.GW.Resolve(authID, out); err != nil {
		if errors.Is(err, payment.ErrUnknownAuth) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	h.Log.Info("gateway callback", "auth_id", authID, "status", req.Status)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
