package kitchen

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/AryanJadile/restoflow/internal/kafka"
	"github.com/AryanJadile/restoflow/internal/orders"
)

// OrderStore is the read/update side of the order collection the feed
// works against.
type OrderStore interface {
	ListOpen(ctx context.Context, limit int) ([]orders.Order, error)
	MarkDone(ctx context.Context, id string) error
}

// Notifier rings the audible new-order alert.
type Notifier interface {
	Ring()
}

// Source is the push subscription delivering order.placed events.
type Source interface {
	Start(ctx context.Context, h kafkax.Handler) error
}

// Feed maintains the kitchen's live queue of unfulfilled orders: a
// bounded backfill at activation, then push events appended in arrival
// order. The push channel is at-least-once and may race the backfill,
// so everything is deduped by order id. Completion is optimistic; a
// failed store update falls back to a full resync, never a point fix.
type Feed struct {
	store OrderStore
	bell  Notifier
	limit int
	log   *slog.Logger

	mu    sync.Mutex
	queue []orders.Order
	seen  map[string]struct{}
	done  map[string]struct{}

	live   atomic.Bool
	cancel context.CancelFunc
}

func New(store OrderStore, bell Notifier, limit int, log *slog.Logger) *Feed {
	return &Feed{
		store: store,
		bell:  bell,
		limit: limit,
		log:   log,
		seen:  make(map[string]struct{}),
		done:  make(map[string]struct{}),
	}
}

// Activate backfills the queue and attaches the push subscription.
// Close tears the subscription down again.
func (f *Feed) Activate(ctx context.Context, src Source) error {
	if err := f.Resync(ctx); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	go func() {
		f.live.Store(true)
		defer f.live.Store(false)
		if err := src.Start(runCtx, f.HandleOrderPlaced); err != nil {
			f.log.Error("feed subscription exited", "err", err)
		}
	}()
	return nil
}

// Close detaches the push subscription. Safe to call more than once.
func (f *Feed) Close() {
	if f.cancel != nil {
		f.cancel()
	}
}

// Live reports whether the push subscription is attached.
func (f *Feed) Live() bool { return f.live.Load() }

// HandleOrderPlaced consumes one push event. Duplicates -- redelivery
// or the backfill race window -- are dropped by order id.
func (f *Feed) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		f.log.Warn("bad event envelope", "err", err)
		return nil // poison message, commit and move on
	}
	if env.EventType != orders.EventOrderPlaced {
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
	if err != nil {
		f.log.Warn("bad order.placed payload", "event_id", env.EventID, "err", err)
		return nil
	}

	f.mu.Lock()
	if _, dup := f.seen[p.OrderID]; dup {
		f.mu.Unlock()
		feedDuplicates.Inc()
		return nil
	}
	f.seen[p.OrderID] = struct{}{}
	f.queue = append(f.queue, p.Order())
	f.mu.Unlock()

	feedEvents.Inc()
	f.bell.Ring()
	f.log.Info("order received", "order_id", p.OrderID, "order_type", p.OrderType)
	return nil
}

// Orders snapshots the queue in arrival order. The queue is never
// re-sorted after optimistic removals.
func (f *Feed) Orders() []orders.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]orders.Order, len(f.queue))
	copy(out, f.queue)
	return out
}

// MarkDone removes the order from the local queue first (optimistic),
// then updates the store. On failure the feed resyncs from the store
// rather than trying to undo the removal, so the order reappears only
// if it is really still open. The chef never sees the error.
func (f *Feed) MarkDone(ctx context.Context, id string) error {
	f.mu.Lock()
	for i := range f.queue {
		if f.queue[i].ID == id {
			f.queue = append(f.queue[:i], f.queue[i+1:]...)
			break
		}
	}
	f.done[id] = struct{}{}
	f.mu.Unlock()

	if err := f.store.MarkDone(ctx, id); err != nil {
		f.log.Warn("mark done failed, resyncing", "order_id", id, "err", err)
		return f.Resync(ctx)
	}
	return nil
}

// Resync replaces the queue with the canonical open-order snapshot:
// status != done, oldest first, bounded. Serves as both the initial
// backfill and the recovery path. Completed ids stay in the dedup set
// so a late redelivery after a resync cannot resurrect a done order;
// an order the store still reports open drops back out of that set.
func (f *Feed) Resync(ctx context.Context) error {
	list, err := f.store.ListOpen(ctx, f.limit)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.queue = list
	f.seen = make(map[string]struct{}, len(list)+len(f.done))
	for _, o := range list {
		f.seen[o.ID] = struct{}{}
		delete(f.done, o.ID)
	}
	for id := range f.done {
		f.seen[id] = struct{}{}
	}
	f.mu.Unlock()
	return nil
}
