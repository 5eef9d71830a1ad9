package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/AryanJadile/restoflow/internal/cart"
	"github.com/AryanJadile/restoflow/internal/orders"
)

// Checkout states. One Session serves one terminal; it returns to Idle
// after every completed or abandoned checkout.
type State string

const (
	StateIdle               State = "Idle"
	StateMethodSelected     State = "MethodSelected"
	StateAwaitingCashInput  State = "AwaitingCashInput"
	StateAwaitingSplitInput State = "AwaitingSplitInput"
	StateAwaitingGateway    State = "AwaitingGateway"
	StateSubmitting         State = "Submitting"
	StateSuccess            State = "Success"
	StateFailed             State = "Failed"
)

var validNext = map[State]map[State]bool{
	StateIdle:               {StateMethodSelected: true},
	StateMethodSelected:     {StateAwaitingCashInput: true, StateAwaitingSplitInput: true, StateAwaitingGateway: true, StateSubmitting: true, StateIdle: true},
	StateAwaitingCashInput:  {StateSubmitting: true, StateIdle: true},
	StateAwaitingSplitInput: {StateAwaitingGateway: true, StateIdle: true},
	StateAwaitingGateway:    {StateSubmitting: true, StateIdle: true},
	StateSubmitting:         {StateSuccess: true, StateFailed: true},
	StateSuccess:            {StateIdle: true},
	StateFailed:             {StateIdle: true},
}

func CanTransition(from, to State) bool {
	return validNext[from][to]
}

var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrBadOrderType     = errors.New("invalid order type")
	ErrBadMethod        = errors.New("invalid payment method")
	ErrInsufficientCash = errors.New("insufficient cash")
	ErrInvalidSplit     = errors.New("invalid split amount")
	ErrNoCapture        = errors.New("no capture in progress")
	ErrBusy             = errors.New("checkout already in progress")
	ErrDismissed        = errors.New("payment dismissed")
	ErrGatewayDeclined  = errors.New("payment not completed")
)

// Placer hides the two-part order write behind one operation.
type Placer interface {
	PlaceOrder(ctx context.Context, d orders.Draft) (orders.PlaceResult, error)
}

// Publisher hands a serialized order.placed event to the push channel.
// Publishing is fire-and-forget: a lost event never fails a checkout,
// the kitchen converges via its backfill.
type Publisher interface {
	Publish(key, value []byte)
}

type PublisherFunc func(key, value []byte)

func (f PublisherFunc) Publish(key, value []byte) { f(key, value) }

// Receipt is what the cashier sees after Submitting resolves.
// ItemsPersisted=false flags the saved-but-itemless warning case.
type Receipt struct {
	OrderID        string           `json:"order_id"`
	OrderType      orders.OrderType `json:"order_type"`
	Method         orders.Method    `json:"payment_method"`
	Total          decimal.Decimal  `json:"total_amount"`
	CashGiven      decimal.Decimal  `json:"cash_given"`
	Change         decimal.Decimal  `json:"change_returned"`
	GatewayRef     string           `json:"gateway_ref,omitempty"`
	ItemsPersisted bool             `json:"items_persisted"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Session drives one terminal's checkout state machine. The mutex is
// the single-flight guard: Submitting runs with the lock held, so a
// second confirm can never produce a second order for the same cart.
// The lock IS released while the gateway popup is open.
type Session struct {
	terminal string
	cart     *cart.Cart
	gateway  Gateway
	placer   Placer
	pub      Publisher
	producer string
	currency string
	log      *slog.Logger

	mu        sync.Mutex
	state     State
	orderType orders.OrderType
	method    orders.Method
	last      *Receipt
}

func NewSession(terminal string, ct *cart.Cart, deps Deps) *Session {
	return &Session{
		terminal: terminal,
		cart:     ct,
		gateway:  deps.Gateway,
		placer:   deps.Placer,
		pub:      deps.Pub,
		producer: deps.Producer,
		currency: deps.Currency,
		log:      deps.Log.With("terminal", terminal),
		state:    StateIdle,
	}
}

func (s *Session) Cart() *cart.Cart { return s.cart }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) LastReceipt() *Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Select picks the payment method for the current cart. Cash and Split
// open interactive capture and return a nil receipt; Online drives the
// whole total through the gateway; CardMachine submits directly.
// Re-selecting while a capture is open abandons the previous capture.
func (s *Session) Select(ctx context.Context, ot orders.OrderType, m orders.Method) (*Receipt, error) {
	if ot == "" {
		ot = orders.TypeDineIn
	}
	if !ot.Valid() {
		return nil, ErrBadOrderType
	}
	if !m.Valid() {
		return nil, ErrBadMethod
	}

	s.mu.Lock()
	if s.state == StateSubmitting || s.state == StateAwaitingGateway {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if s.state != StateIdle {
		s.to(StateIdle)
	}
	if s.cart.Empty() {
		s.mu.Unlock()
		return nil, ErrEmptyCart
	}
	s.orderType, s.method = ot, m
	s.to(StateMethodSelected)

	switch m {
	case orders.MethodCash:
		s.to(StateAwaitingCashInput)
		s.mu.Unlock()
		return nil, nil
	case orders.MethodSplit:
		s.to(StateAwaitingSplitInput)
		s.mu.Unlock()
		return nil, nil
	case orders.MethodCardMachine:
		total := s.cart.Total()
		return s.submitLocked(ctx, total, decimal.Zero, decimal.Zero, "")
	default: // Online
		total := s.cart.Total()
		return s.authorizeLocked(ctx, total, total, decimal.Zero)
	}
}

// ConfirmCash validates the tendered cash and submits. Insufficient
// cash keeps the capture open; exact tender is accepted with change 0.
func (s *Session) ConfirmCash(ctx context.Context, given decimal.Decimal) (*Receipt, error) {
	s.mu.Lock()
	st := s.state
	if st != StateAwaitingCashInput {
		s.mu.Unlock()
		if st == StateSubmitting || st == StateAwaitingGateway {
			return nil, ErrBusy
		}
		return nil, ErrNoCapture
	}
	total := s.cart.Total()
	if given.LessThan(total) {
		s.mu.Unlock()
		return nil, ErrInsufficientCash
	}
	return s.submitLocked(ctx, total, given, given.Sub(total), "")
}

// ConfirmSplit validates the cash portion strictly between 0 and the
// total -- the boundaries belong to the Online and Cash flows -- and
// sends the online balance through the gateway.
func (s *Session) ConfirmSplit(ctx context.Context, cashPortion decimal.Decimal) (*Receipt, error) {
	s.mu.Lock()
	st := s.state
	if st != StateAwaitingSplitInput {
		s.mu.Unlock()
		if st == StateSubmitting || st == StateAwaitingGateway {
			return nil, ErrBusy
		}
		return nil, ErrNoCapture
	}
	total := s.cart.Total()
	if cashPortion.LessThanOrEqual(decimal.Zero) || cashPortion.GreaterThanOrEqual(total) {
		s.mu.Unlock()
		return nil, ErrInvalidSplit
	}
	return s.authorizeLocked(ctx, total, total.Sub(cashPortion), cashPortion)
}

// Cancel collapses any pre-submit state back to Idle. It never touches
// an in-flight write: during Submitting it simply waits its turn and
// then finds nothing to cancel.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateMethodSelected, StateAwaitingCashInput, StateAwaitingSplitInput, StateAwaitingGateway:
		s.to(StateIdle)
	}
}

// authorizeLocked is entered with the lock held and releases it while
// the gateway popup is open, so Cancel and the callback endpoint stay
// responsive. Only an approved outcome reaches Submitting.
func (s *Session) authorizeLocked(ctx context.Context, total, amount, cashPortion decimal.Decimal) (*Receipt, error) {
	s.to(StateAwaitingGateway)
	s.mu.Unlock()

	out, err := s.gateway.Authorize(ctx, AuthRequest{
		AmountMinor: MinorUnits(amount),
		Currency:    s.currency,
		Description: "Bill Payment",
	})

	s.mu.Lock()
	if s.state != StateAwaitingGateway {
		// cancelled while the popup was open
		s.mu.Unlock()
		return nil, ErrDismissed
	}
	if err != nil {
		s.to(StateIdle)
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrGatewayDeclined, err)
	}
	switch out.Kind {
	case OutcomeApproved:
		return s.submitLocked(ctx, total, cashPortion, decimal.Zero, out.Ref)
	case OutcomeDismissed:
		s.to(StateIdle)
		s.mu.Unlock()
		return nil, ErrDismissed
	default:
		s.to(StateIdle)
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrGatewayDeclined, out.Reason)
	}
}

// submitLocked is entered with the lock held and keeps it until the
// checkout resolves. Amounts are rounded to 2dp here, at the persist
// boundary; everything upstream is full precision.
func (s *Session) submitLocked(ctx context.Context, total, cashGiven, change decimal.Decimal, ref string) (*Receipt, error) {
	s.to(StateSubmitting)
	method := s.method
	d := orders.Draft{
		OrderType:      s.orderType,
		PaymentMethod:  string(method),
		TotalAmount:    total.Round(2),
		CashGiven:      cashGiven.Round(2),
		ChangeReturned: change.Round(2),
	}
	for _, l := range s.cart.Lines() {
		d.Items = append(d.Items, orders.OrderItem{
			ProductName: l.Product.Name,
			Price:       l.Product.Price,
			Qty:         l.Qty,
		})
	}

	res, err := s.placer.PlaceOrder(ctx, d)
	if err != nil {
		// Header never committed: the checkout failed, the cart stays
		// intact, the cashier retries manually.
		s.to(StateFailed)
		s.to(StateIdle)
		s.mu.Unlock()
		return nil, fmt.Errorf("place order: %w", err)
	}

	rcpt := &Receipt{
		OrderID:        res.OrderID,
		OrderType:      d.OrderType,
		Method:         method,
		Total:          d.TotalAmount,
		CashGiven:      d.CashGiven,
		Change:         d.ChangeReturned,
		GatewayRef:     ref,
		ItemsPersisted: res.ItemsPersisted,
		CreatedAt:      res.CreatedAt,
	}
	if !res.ItemsPersisted {
		// The header is durable and payment was taken; only the line
		// detail is lost. Surfaced as a warning, not a failure.
		s.log.Warn("order saved but items failed", "order_id", res.OrderID, "err", res.ItemsErr)
	}
	s.publish(res, d)
	s.cart.Clear(ctx)
	s.last = rcpt
	ordersPlaced.WithLabelValues(string(method)).Inc()
	s.to(StateSuccess)
	s.to(StateIdle)
	s.mu.Unlock()

	s.log.Info("order placed", "order_id", res.OrderID, "method", method,
		"total", d.TotalAmount, "items_persisted", res.ItemsPersisted)
	return rcpt, nil
}

func (s *Session) publish(res orders.PlaceResult, d orders.Draft) {
	if s.pub == nil {
		return
	}
	items := make([]orders.ItemLine, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, orders.ItemLine{ProductName: it.ProductName, Price: it.Price, Qty: it.Qty})
	}
	payload, err := json.Marshal(orders.OrderPlacedPayload{
		OrderID:        res.OrderID,
		OrderType:      d.OrderType,
		PaymentMethod:  d.PaymentMethod,
		TotalAmount:    d.TotalAmount,
		CashGiven:      d.CashGiven,
		ChangeReturned: d.ChangeReturned,
		CreatedAt:      res.CreatedAt,
		Items:          items,
	})
	if err != nil {
		s.log.Error("marshal order.placed payload", "err", err)
		return
	}
	env, err := json.Marshal(orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderPlaced,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.producer,
		CorrelationID: res.OrderID,
		Payload:       payload,
	})
	if err != nil {
		s.log.Error("marshal order.placed envelope", "err", err)
		return
	}
	s.pub.Publish(orders.PartitionKey(res.OrderID), env)
}

// to performs a checked state transition. Callers guard every path, so
// an illegal move here is a programming error worth shouting about.
func (s *Session) to(next State) {
	if !CanTransition(s.state, next) {
		s.log.Error("illegal checkout transition", "from", s.state, "to", next)
		return
	}
	s.state = next
}
