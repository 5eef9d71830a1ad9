package payment

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestCallbackGateway_TimeoutErrored(t *testing.T) {
	gw := NewCallbackGateway(50*time.Millisecond, slog.Default())

	out, err := gw.Authorize(context.Background(), AuthRequest{
		AmountMinor: 60900,
		Currency:    "INR",
		Description: "Bill Payment",
	})
	if err != nil {
		t.Fatalf("a timed-out authorization must not error: %v", err)
	}
	if out.Kind != OutcomeErrored {
		t.Errorf("outcome = %s, want errored", out.Kind)
	}
	if n := len(gw.Pending()); n != 0 {
		t.Errorf("%d pending entries left after timeout, want 0", n)
	}
}

func TestCallbackGateway_ResolveApproved(t *testing.T) {
	gw := NewCallbackGateway(5*time.Second, slog.Default())

	type result struct {
		out Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := gw.Authorize(context.Background(), AuthRequest{
			AmountMinor: 50000,
			Currency:    "INR",
			Description: "Bill Payment",
		})
		done <- result{out, err}
	}()

	// wait for the authorization to park
	var id string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p := gw.Pending(); len(p) == 1 {
			id = p[0].ID
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if id == "" {
		t.Fatal("authorization never showed up as pending")
	}

	if err := gw.Resolve(id, Outcome{Kind: OutcomeApproved, Ref: "txn-9"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	res := <-done
	if res.err != nil {
		t.Fatalf("authorize: %v", res.err)
	}
	if res.out.Kind != OutcomeApproved || res.out.Ref != "txn-9" {
		t.Errorf("outcome = %+v, want approved txn-9", res.out)
	}
	if n := len(gw.Pending()); n != 0 {
		t.Errorf("%d pending entries left after resolve, want 0", n)
	}
}

func TestCallbackGateway_ResolveUnknown(t *testing.T) {
	gw := NewCallbackGateway(time.Second, slog.Default())

	err := gw.Resolve("never-parked", Outcome{Kind: OutcomeApproved, Ref: "txn-1"})
	if !errors.Is(err, ErrUnknownAuth) {
		t.Errorf("expected ErrUnknownAuth, got %v", err)
	}
}
