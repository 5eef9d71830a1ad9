package payment

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OutcomeKind string

const (
	OutcomeApproved  OutcomeKind = "approved"
	OutcomeDismissed OutcomeKind = "dismissed"
	OutcomeErrored   OutcomeKind = "errored"
)

// Outcome is the gateway's answer to an authorization: approved with an
// opaque transaction reference, dismissed by the customer, or errored.
type Outcome struct {
	Kind   OutcomeKind
	Ref    string
	Reason string
}

// AuthRequest mirrors the gateway SDK contract: amount in minor
// currency units, ISO currency code, and a descriptive name.
type AuthRequest struct {
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

// Gateway is the external payment collaborator. Authorize blocks until
// the customer completes or abandons the flow, bounded by ctx.
type Gateway interface {
	Authorize(ctx context.Context, req AuthRequest) (Outcome, error)
}

// MinorUnits converts a decimal amount to minor currency units,
// rounding to the nearest unit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

var ErrUnknownAuth = errors.New("unknown authorization")

// PendingAuth is an authorization parked on the gateway waiting for its
// callback.
type PendingAuth struct {
	ID      string      `json:"id"`
	Request AuthRequest `json:"request"`
	Started time.Time   `json:"started"`
}

// CallbackGateway consumes the external gateway's callback contract:
// Authorize parks a pending authorization and blocks until the gateway
// calls back with the result. A wait that outlives the deadline resolves
// as an errored outcome, never a hang.
type CallbackGateway struct {
	wait time.Duration
	log  *slog.Logger

	mu      sync.Mutex
	pending map[string]chan Outcome
	info    map[string]PendingAuth
}

func NewCallbackGateway(wait time.Duration, log *slog.Logger) *CallbackGateway {
	return &CallbackGateway{
		wait:    wait,
		log:     log,
		pending: make(map[string]chan Outcome),
		info:    make(map[string]PendingAuth),
	}
}

func (g *CallbackGateway) Authorize(ctx context.Context, req AuthRequest) (Outcome, error) {
	id := uuid.NewString()
	ch := make(chan Outcome, 1)

	g.mu.Lock()
	g.pending[id] = ch
	g.info[id] = PendingAuth{ID: id, Request: req, Started: time.Now()}
	g.mu.Unlock()
	defer g.drop(id)

	g.log.Info("authorization pending", "auth_id", id, "amount_minor", req.AmountMinor, "currency", req.Currency)

	ctx, cancel := context.WithTimeout(ctx, g.wait)
	defer cancel()

	select {
	case out := <-ch:
		return out, nil
	case <-ctx.Done():
		return Outcome{Kind: OutcomeErrored, Reason: "authorization timed out"}, nil
	}
}

// Resolve delivers the gateway callback for a pending authorization.
func (g *CallbackGateway) Resolve(id string, out Outcome) error {
	g.mu.Lock()
	ch, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
		delete(g.info, id)
	}
	g.mu.Unlock()
	if !ok {
		return ErrUnknownAuth
	}
	ch <- out
	return nil
}

// Pending lists authorizations still waiting for their callback.
func (g *CallbackGateway) Pending() []PendingAuth {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]PendingAuth, 0, len(g.info))
	for _, p := range g.info {
		out = append(out, p)
	}
	return out
}

func (g *CallbackGateway) drop(id string) {
	g.mu.Lock()
	delete(g.pending, id)
	delete(g.info, id)
	g.mu.Unlock()
}
