package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/AryanJadile/restoflow/internal/orders"
	"github.com/AryanJadile/restoflow/internal/payment"
	"github.com/AryanJadile/restoflow/internal/redisx"
)

// Catalog is the read side of the externally managed menu.
type Catalog interface {
	ListProducts(ctx context.Context) ([]orders.Product, error)
	GetProduct(ctx context.Context, id string) (orders.Product, error)
}

// History is the admin read side of the order collection.
type History interface {
	ListHistory(ctx context.Context, limit int) ([]orders.Order, error)
	GetOrder(ctx context.Context, id string) (orders.Order, error)
}

type PosHandler struct {
	Catalog  Catalog
	History  History
	Sessions *payment.Manager
	Redis    *redis.Client
	AdminPIN string
	Log      *slog.Logger
}

type addItemReq struct {
	ProductID string `json:"product_id"`
}

type qtyReq struct {
	Delta int `json:"delta"`
}

type checkoutReq struct {
	OrderType orders.OrderType `json:"order_type"`
	Method    orders.Method    `json:"method"`
}

type cashReq struct {
	CashGiven decimal.Decimal `json:"cash_given"`
}

type splitReq struct {
	CashPortion decimal.Decimal `json:"cash_portion"`
}

func (h *PosHandler) Register(r *chi.Mux) {
	r.Get("/products", h.listProducts)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.getCart)
		r.Delete("/", h.clearCart)
		r.Post("/items", h.addItem)
		r.Patch("/items/{id}", h.changeQty)
		r.Delete("/items/{id}", h.removeItem)
		r.Get("/suggestions", h.suggestions)
	})

	r.Route("/checkout", func(r chi.Router) {
		r.Post("/", h.selectMethod)
		r.Post("/cash", h.confirmCash)
		r.Post("/split", h.confirmSplit)
		r.Post("/cancel", h.cancel)
		r.Get("/receipt", h.receipt)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(RequirePIN(h.AdminPIN))
		r.Get("/orders", h.listHistory)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/{id}/status", h.getOrderStatus)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func terminal(r *http.Request) string {
	if t := r.Header.Get("X-Terminal-ID"); t != "" {
		return t
	}
	return "counter-1"
}

func (h *PosHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.ListProducts(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

type cartView struct {
	Lines    any             `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

func (h *PosHandler) cartJSON(w http.ResponseWriter, r *http.Request) {
	c := h.Sessions.Session(r.Context(), terminal(r)).Cart()
	writeJSON(w, http.StatusOK, cartView{
		Lines:    c.Lines(),
		Subtotal: c.Subtotal().Round(2),
		Tax:      c.Tax().Round(2),
		Total:    c.Total().Round(2),
	})
}

func (h *PosHandler) getCart(w http.ResponseWriter, r *http.Request) {
	h.cartJSON(w, r)
}

func (h *PosHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	h.Sessions.Session(ctx, terminal(r)).Cart().Add(ctx, p)
	h.cartJSON(w, r)
}

func (h *PosHandler) changeQty(w http.ResponseWriter, r *http.Request) {
	var req qtyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Delta == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid delta"})
		return
	}
	ctx := r.Context()
	h.Sessions.Session(ctx, terminal(r)).Cart().ChangeQty(ctx, chi.URLParam(r, "id"), req.Delta)
	h.cartJSON(w, r)
}

func (h *PosHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.Sessions.Session(ctx, terminal(r)).Cart().Remove(ctx, chi.URLParam(r, "id"))
	h.cartJSON(w, r)
}

func (h *PosHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.Sessions.Session(ctx, terminal(r)).Cart().Clear(ctx)
	h.cartJSON(w, r)
}

func (h *PosHandler) suggestions(w http.ResponseWriter, r *http.Request) {
	c := h.Sessions.Session(r.Context(), terminal(r)).Cart()
	total := c.Total().Round(2)
	writeJSON(w, http.StatusOK, map[string]any{
		"total":       total,
		"suggestions": payment.Suggest(total),
	})
}

func (h *PosHandler) selectMethod(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	s := h.Sessions.Session(r.Context(), terminal(r))
	rcpt, err := s.Select(r.Context(), req.OrderType, req.Method)
	h.checkoutResult(w, r, s, rcpt, err)
}

func (h *PosHandler) confirmCash(w http.ResponseWriter, r *http.Request) {
	var req cashReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	s := h.Sessions.Session(r.Context(), terminal(r))
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	rcpt, err := s.ConfirmCash(ctx, req.CashGiven)
	h.checkoutResult(w, r, s, rcpt, err)
}

func (h *PosHandler) confirmSplit(w http.ResponseWriter, r *http.Request) {
	var req splitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	s := h.Sessions.Session(r.Context(), terminal(r))
	rcpt, err := s.ConfirmSplit(r.Context(), req.CashPortion)
	h.checkoutResult(w, r, s, rcpt, err)
}

func (h *PosHandler) cancel(w http.ResponseWriter, r *http.Request) {
	s := h.Sessions.Session(r.Context(), terminal(r))
	s.Cancel()
	writeJSON(w, http.StatusOK, map[string]any{"state": s.State()})
}

func (h *PosHandler) receipt(w http.ResponseWriter, r *http.Request) {
	s := h.Sessions.Session(r.Context(), terminal(r))
	rcpt := s.LastReceipt()
	if rcpt == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no receipt"})
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
}

func (h *PosHandler) checkoutResult(w http.ResponseWriter, r *http.Request, s *payment.Session, rcpt *payment.Receipt, err error) {
	switch {
	case err == nil && rcpt == nil:
		// interactive capture opened
		writeJSON(w, http.StatusOK, map[string]any{"state": s.State()})
	case err == nil:
		h.cacheStatus(r.Context(), rcpt.OrderID)
		resp := map[string]any{"status": "placed", "receipt": rcpt}
		if !rcpt.ItemsPersisted {
			resp["warning"] = "order saved but item details were not"
		}
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, payment.ErrDismissed):
		writeJSON(w, http.StatusOK, map[string]any{"status": "dismissed", "state": s.State()})
	case errors.Is(err, payment.ErrGatewayDeclined):
		writeJSON(w, http.StatusOK, map[string]any{"status": "declined", "error": err.Error()})
	case errors.Is(err, payment.ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, payment.ErrEmptyCart),
		errors.Is(err, payment.ErrInsufficientCash),
		errors.Is(err, payment.ErrInvalidSplit),
		errors.Is(err, payment.ErrNoCapture),
		errors.Is(err, payment.ErrBadMethod),
		errors.Is(err, payment.ErrBadOrderType):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// cacheStatus primes the status cache so the admin read right after a
// sale skips the DB.
func (h *PosHandler) cacheStatus(ctx context.Context, orderID string) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	_ = h.Redis.Set(ctx, key, `{"status":"pending"}`, redisx.TTLStatusCache).Err()
}

func (h *PosHandler) listHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	os, err := h.History.ListHistory(ctx, 100)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, os)
}

func (h *PosHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.History.GetOrder(ctx, id)
	if errors.Is(err, orders.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *PosHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) try cache
	key := fmt.Sprintf(redisx.KeyOrderStatus, id)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	// 2) fallback DB
	o, err := h.History.GetOrder(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	body, _ := json.Marshal(map[string]any{"status": orders.Norm(o.Status)})
	if h.Redis != nil {
		_ = h.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
