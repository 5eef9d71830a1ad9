package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AryanJadile/restoflow/internal/kitchen"
)

// KitchenHandler is the display's HTTP surface over the live feed.
type KitchenHandler struct {
	Feed *kitchen.Feed
	PIN  string
	Log  *slog.Logger
}

func (h *KitchenHandler) Register(r *chi.Mux) {
	r.Route("/kitchen", func(r chi.Router) {
		r.Use(RequirePIN(h.PIN))
		r.Get("/orders", h.queue)
		r.Post("/orders/{id}/done", h.markDone)
	})
}

func (h *KitchenHandler) queue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"live":   h.Feed.Live(),
		"orders": h.Feed.Orders(),
	})
}

func (h *KitchenHandler) markDone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Feed errors here mean even the resync failed; the queue may be
	// stale until the next successful one.
	if err := h.Feed.MarkDone(ctx, id); err != nil {
		h.Log.Warn("mark done resync failed", "order_id", id, "err", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": h.Feed.Orders()})
}
