package payment

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AryanJadile/restoflow/internal/cart"
	"github.com/AryanJadile/restoflow/internal/orders"
)

// Mock cart persister
type nopPersister struct{}

func (nopPersister) Save(ctx context.Context, terminal string, lines []cart.Line) error {
	return nil
}
func (nopPersister) Load(ctx context.Context, terminal string) ([]cart.Line, error) {
	return nil, nil
}

// Mock gateway with a scripted outcome
type mockGateway struct {
	mu      sync.Mutex
	outcome Outcome
	calls   int
	lastReq AuthRequest
}

func (g *mockGateway) Authorize(ctx context.Context, req AuthRequest) (Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastReq = req
	return g.outcome, nil
}

// Mock placer
type mockPlacer struct {
	mu    sync.Mutex
	res   orders.PlaceResult
	err   error
	delay time.Duration
	calls atomic.Int32
	draft orders.Draft
}

func (p *mockPlacer) PlaceOrder(ctx context.Context, d orders.Draft) (orders.PlaceResult, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	p.draft = d
	p.mu.Unlock()
	return p.res, p.err
}

type mockPub struct {
	mu     sync.Mutex
	events [][]byte
}

func (m *mockPub) Publish(key, value []byte) {
	m.mu.Lock()
	m.events = append(m.events, value)
	m.mu.Unlock()
}

func (m *mockPub) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestSession(gw Gateway, placer Placer, pub Publisher) *Session {
	ct := cart.New("t1", nopPersister{}, slog.Default())
	return NewSession("t1", ct, Deps{
		Gateway:  gw,
		Placer:   placer,
		Pub:      pub,
		Currency: "INR",
		Producer: "pos-api-test",
		Log:      slog.Default(),
	})
}

// loads the worked-example cart: subtotal 580, tax 29, total 609
func loadCart(t *testing.T, s *Session) {
	t.Helper()
	ctx := context.Background()
	p1 := orders.Product{ID: "p1", Name: "Paneer Tikka", Price: dec("250")}
	s.Cart().Add(ctx, p1)
	s.Cart().Add(ctx, p1)
	s.Cart().Add(ctx, orders.Product{ID: "p2", Name: "Lassi", Price: dec("80")})
}

func okPlacer() *mockPlacer {
	return &mockPlacer{res: orders.PlaceResult{OrderID: "o-1", CreatedAt: time.Now(), ItemsPersisted: true}}
}

func TestSelect_EmptyCartRejected(t *testing.T) {
	s := newTestSession(&mockGateway{}, okPlacer(), &mockPub{})

	_, err := s.Select(context.Background(), orders.TypeDineIn, orders.MethodCash)
	if !errors.Is(err, ErrEmptyCart) {
		t.Errorf("expected ErrEmptyCart, got %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("expected Idle, got %s", s.State())
	}
}

func TestCashFlow(t *testing.T) {
	ctx := context.Background()
	placer := okPlacer()
	pub := &mockPub{}
	s := newTestSession(&mockGateway{}, placer, pub)
	loadCart(t, s)

	rcpt, err := s.Select(ctx, orders.TypeDineIn, orders.MethodCash)
	if err != nil || rcpt != nil {
		t.Fatalf("select cash: rcpt=%v err=%v", rcpt, err)
	}
	if s.State() != StateAwaitingCashInput {
		t.Fatalf("expected AwaitingCashInput, got %s", s.State())
	}

	// insufficient cash blocks and keeps the capture open
	if _, err := s.ConfirmCash(ctx, dec("600")); !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("expected ErrInsufficientCash, got %v", err)
	}
	if s.State() != StateAwaitingCashInput {
		t.Fatalf("state after rejection = %s, want AwaitingCashInput", s.State())
	}

	rcpt, err = s.ConfirmCash(ctx, dec("700"))
	if err != nil {
		t.Fatalf("confirm cash: %v", err)
	}
	if !rcpt.Total.Equal(dec("609")) {
		t.Errorf("total = %s, want 609", rcpt.Total)
	}
	if !rcpt.Change.Equal(dec("91")) {
		t.Errorf("change = %s, want 91", rcpt.Change)
	}
	if !rcpt.CashGiven.Equal(dec("700")) {
		t.Errorf("cash given = %s, want 700", rcpt.CashGiven)
	}

	placer.mu.Lock()
	d := placer.draft
	placer.mu.Unlock()
	if d.PaymentMethod != "Cash" || len(d.Items) != 2 {
		t.Errorf("draft = %+v, want Cash with 2 items", d)
	}
	if !d.TotalAmount.Equal(dec("609")) || !d.ChangeReturned.Equal(dec("91")) {
		t.Errorf("persisted amounts = %s/%s, want 609/91", d.TotalAmount, d.ChangeReturned)
	}

	if !s.Cart().Empty() {
		t.Error("cart not cleared after success")
	}
	if s.State() != StateIdle {
		t.Errorf("state after success = %s, want Idle", s.State())
	}
	if pub.count() != 1 {
		t.Errorf("published %d events, want 1", pub.count())
	}
}

func TestCashFlow_ExactTender(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(&mockGateway{}, okPlacer(), &mockPub{})
	loadCart(t, s)

	if _, err := s.Select(ctx, orders.TypeTakeaway, orders.MethodCash); err != nil {
		t.Fatal(err)
	}
	rcpt, err := s.ConfirmCash(ctx, dec("609"))
	if err != nil {
		t.Fatalf("exact tender rejected: %v", err)
	}
	if !rcpt.Change.IsZero() {
		t.Errorf("change = %s, want 0", rcpt.Change)
	}
}

func TestSplitFlow_Validation(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{outcome: Outcome{Kind: OutcomeApproved, Ref: "txn-1"}}
	s := newTestSession(gw, okPlacer(), &mockPub{})
	loadCart(t, s)

	if _, err := s.Select(ctx, orders.TypeDineIn, orders.MethodSplit); err != nil {
		t.Fatal(err)
	}

	// 0 and total belong to the Online/Cash flows
	if _, err := s.ConfirmSplit(ctx, dec("0")); !errors.Is(err, ErrInvalidSplit) {
		t.Errorf("cash portion 0: expected ErrInvalidSplit, got %v", err)
	}
	if _, err := s.ConfirmSplit(ctx, dec("609")); !errors.Is(err, ErrInvalidSplit) {
		t.Errorf("cash portion == total: expected ErrInvalidSplit, got %v", err)
	}
	if gw.calls != 0 {
		t.Errorf("gateway called %d times on invalid splits", gw.calls)
	}
}

func TestSplitFlow_Approved(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{outcome: Outcome{Kind: OutcomeApproved, Ref: "txn-1"}}
	placer := okPlacer()
	s := newTestSession(gw, placer, &mockPub{})
	loadCart(t, s)

	if _, err := s.Select(ctx, orders.TypeDineIn, orders.MethodSplit); err != nil {
		t.Fatal(err)
	}
	rcpt, err := s.ConfirmSplit(ctx, dec("109"))
	if err != nil {
		t.Fatalf("confirm split: %v", err)
	}

	// online portion = total - cash = 500 -> 50000 minor units
	if gw.lastReq.AmountMinor != 50000 {
		t.Errorf("authorized %d minor units, want 50000", gw.lastReq.AmountMinor)
	}
	if rcpt.Method != orders.MethodSplit {
		t.Errorf("method = %s, want Split", rcpt.Method)
	}
	if !rcpt.CashGiven.Equal(dec("109")) || !rcpt.Change.IsZero() {
		t.Errorf("cash/change = %s/%s, want 109/0", rcpt.CashGiven, rcpt.Change)
	}
	if rcpt.GatewayRef != "txn-1" {
		t.Errorf("gateway ref = %q, want txn-1", rcpt.GatewayRef)
	}
}

func TestOnline_Dismissed(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{outcome: Outcome{Kind: OutcomeDismissed}}
	placer := okPlacer()
	s := newTestSession(gw, placer, &mockPub{})
	loadCart(t, s)

	_, err := s.Select(ctx, orders.TypeDineIn, orders.MethodOnline)
	if !errors.Is(err, ErrDismissed) {
		t.Fatalf("expected ErrDismissed, got %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %s, want Idle", s.State())
	}
	if placer.calls.Load() != 0 {
		t.Error("order placed despite dismissal")
	}
	if s.Cart().Empty() {
		t.Error("cart cleared despite dismissal")
	}

	// pay action is re-enabled: a second attempt goes through
	gw.mu.Lock()
	gw.outcome = Outcome{Kind: OutcomeApproved, Ref: "txn-2"}
	gw.mu.Unlock()
	rcpt, err := s.Select(ctx, orders.TypeDineIn, orders.MethodOnline)
	if err != nil {
		t.Fatalf("retry after dismissal: %v", err)
	}
	if !rcpt.CashGiven.IsZero() || !rcpt.Change.IsZero() {
		t.Errorf("online cash/change = %s/%s, want 0/0", rcpt.CashGiven, rcpt.Change)
	}
}

func TestOnline_GatewayErrored(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{outcome: Outcome{Kind: OutcomeErrored, Reason: "network"}}
	s := newTestSession(gw, okPlacer(), &mockPub{})
	loadCart(t, s)

	_, err := s.Select(ctx, orders.TypeDineIn, orders.MethodOnline)
	if !errors.Is(err, ErrGatewayDeclined) {
		t.Fatalf("expected ErrGatewayDeclined, got %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %s, want Idle", s.State())
	}
}

func TestCardMachine_DirectSubmit(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	placer := okPlacer()
	s := newTestSession(gw, placer, &mockPub{})
	loadCart(t, s)

	rcpt, err := s.Select(ctx, orders.TypeDineIn, orders.MethodCardMachine)
	if err != nil {
		t.Fatalf("card machine: %v", err)
	}
	if gw.calls != 0 {
		t.Error("card machine must not touch the gateway")
	}
	if !rcpt.CashGiven.IsZero() || !rcpt.Change.IsZero() {
		t.Errorf("cash/change = %s/%s, want 0/0", rcpt.CashGiven, rcpt.Change)
	}
}

func TestHeaderFailure_CartIntact(t *testing.T) {
	ctx := context.Background()
	placer := &mockPlacer{err: errors.New("db down")}
	pub := &mockPub{}
	s := newTestSession(&mockGateway{}, placer, pub)
	loadCart(t, s)

	if _, err := s.Select(ctx, orders.TypeDineIn, orders.MethodCash); err != nil {
		t.Fatal(err)
	}
	_, err := s.ConfirmCash(ctx, dec("700"))
	if err == nil {
		t.Fatal("expected failure")
	}
	if s.State() != StateIdle {
		t.Errorf("state = %s, want Idle", s.State())
	}
	if s.Cart().Empty() {
		t.Error("cart must stay intact after a failed checkout")
	}
	if pub.count() != 0 {
		t.Error("no event may be published for a failed checkout")
	}
}

func TestItemsFailure_StillSuccess(t *testing.T) {
	ctx := context.Background()
	placer := &mockPlacer{res: orders.PlaceResult{
		OrderID:   "o-2",
		CreatedAt: time.Now(),
		ItemsErr:  errors.New("items table gone"),
	}}
	s := newTestSession(&mockGateway{}, placer, &mockPub{})
	loadCart(t, s)

	if _, err := s.Select(ctx, orders.TypeDineIn, orders.MethodCash); err != nil {
		t.Fatal(err)
	}
	rcpt, err := s.ConfirmCash(ctx, dec("700"))
	if err != nil {
		t.Fatalf("items failure must not fail the checkout: %v", err)
	}
	if rcpt.ItemsPersisted {
		t.Error("receipt must flag missing item detail")
	}
	if rcpt.OrderID != "o-2" {
		t.Errorf("order id = %s, want o-2", rcpt.OrderID)
	}
	if !s.Cart().Empty() {
		t.Error("cart must clear: the business transaction stands")
	}
}

func TestCancel_ReturnsToIdle(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(&mockGateway{}, okPlacer(), &mockPub{})
	loadCart(t, s)

	if _, err := s.Select(ctx, orders.TypeDineIn, orders.MethodSplit); err != nil {
		t.Fatal(err)
	}
	s.Cancel()
	if s.State() != StateIdle {
		t.Errorf("state = %s, want Idle", s.State())
	}
	if _, err := s.ConfirmSplit(ctx, dec("100")); !errors.Is(err, ErrNoCapture) {
		t.Errorf("expected ErrNoCapture after cancel, got %v", err)
	}
}

func TestSingleFlight_NoDoubleSubmit(t *testing.T) {
	ctx := context.Background()
	placer := okPlacer()
	placer.delay = 100 * time.Millisecond
	s := newTestSession(&mockGateway{}, placer, &mockPub{})
	loadCart(t, s)

	if _, err := s.Select(ctx, orders.TypeDineIn, orders.MethodCash); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var okCount, errCount atomic.Int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ConfirmCash(ctx, dec("700")); err != nil {
				errCount.Add(1)
			} else {
				okCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if placer.calls.Load() != 1 {
		t.Errorf("PlaceOrder called %d times, want exactly 1", placer.calls.Load())
	}
	if okCount.Load() != 1 || errCount.Load() != 1 {
		t.Errorf("ok=%d err=%d, want exactly one of each", okCount.Load(), errCount.Load())
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateIdle, StateMethodSelected, true},
		{StateMethodSelected, StateAwaitingCashInput, true},
		{StateAwaitingCashInput, StateSubmitting, true},
		{StateSubmitting, StateSuccess, true},
		{StateSuccess, StateIdle, true},
		{StateFailed, StateIdle, true},
		{StateIdle, StateSubmitting, false},
		{StateSubmitting, StateAwaitingCashInput, false},
		{StateSuccess, StateSubmitting, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}
