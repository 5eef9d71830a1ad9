package orders

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Integration tests. Need a reachable Postgres with schema.sql applied;
// skipped otherwise.
func testRepo(t *testing.T) *Repo {
	t.Helper()
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skipf("POSTGRES_DSN not set, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("postgres unreachable: %v", err)
	}
	t.Cleanup(pool.Close)
	return &Repo{DB: pool}
}

func testDraft() Draft {
	return Draft{
		OrderType:      TypeDineIn,
		PaymentMethod:  "Cash",
		TotalAmount:    decimal.RequireFromString("609.00"),
		CashGiven:      decimal.RequireFromString("700.00"),
		ChangeReturned: decimal.RequireFromString("91.00"),
		Items: []OrderItem{
			{ProductName: "Paneer Tikka", Price: decimal.RequireFromString("250.00"), Qty: 2},
			{ProductName: "Lassi", Price: decimal.RequireFromString("80.00"), Qty: 1},
		},
	}
}

func TestPlaceOrder_RoundTrip(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	res, err := r.PlaceOrder(ctx, testDraft())
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if res.OrderID == "" {
		t.Fatal("no order id assigned")
	}
	if !res.ItemsPersisted {
		t.Fatalf("items not persisted: %v", res.ItemsErr)
	}

	got, err := r.GetOrder(ctx, res.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if !got.TotalAmount.Equal(decimal.RequireFromString("609.00")) {
		t.Errorf("total = %s, want 609.00", got.TotalAmount)
	}
	if len(got.Items) != 2 {
		t.Errorf("items = %d, want 2", len(got.Items))
	}
}

// The qty CHECK rejects the second item mid-write. The header and the
// first item must survive: the business transaction already happened.
func TestPlaceOrder_ItemsFailureKeepsHeader(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	d := testDraft()
	d.Items[1].Qty = 0

	res, err := r.PlaceOrder(ctx, d)
	if err != nil {
		t.Fatalf("header write must succeed: %v", err)
	}
	if res.ItemsPersisted || res.ItemsErr == nil {
		t.Fatal("expected a reported items failure")
	}

	got, err := r.GetOrder(ctx, res.OrderID)
	if err != nil {
		t.Fatalf("header must remain queryable: %v", err)
	}
	if len(got.Items) != 1 {
		t.Errorf("items = %d, want the 1 written before the failure", len(got.Items))
	}
}

func TestMarkDone_IdempotentAndExcludedFromOpen(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	res, err := r.PlaceOrder(ctx, testDraft())
	if err != nil {
		t.Fatal(err)
	}

	if err := r.MarkDone(ctx, res.OrderID); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	// second flip is a no-op, not an error
	if err := r.MarkDone(ctx, res.OrderID); err != nil {
		t.Fatalf("repeat mark done: %v", err)
	}

	got, err := r.GetOrder(ctx, res.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusDone {
		t.Errorf("status = %s, want done", got.Status)
	}

	open, err := r.ListOpen(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	for _, o := range open {
		if o.ID == res.OrderID {
			t.Error("done order still listed as open")
		}
	}
}

func TestListOpen_OldestFirstWithItems(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	first, err := r.PlaceOrder(ctx, testDraft())
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.PlaceOrder(ctx, testDraft())
	if err != nil {
		t.Fatal(err)
	}

	open, err := r.ListOpen(ctx, 1000)
	if err != nil {
		t.Fatal(err)
	}
	var iFirst, iSecond = -1, -1
	for i, o := range open {
		switch o.ID {
		case first.OrderID:
			iFirst = i
		case second.OrderID:
			iSecond = i
		}
		if o.ID == first.OrderID && len(o.Items) != 2 {
			t.Errorf("open order items = %d, want 2", len(o.Items))
		}
	}
	if iFirst == -1 || iSecond == -1 {
		t.Fatal("placed orders missing from the open list")
	}
	if iFirst > iSecond {
		t.Error("open list not oldest first")
	}
}
