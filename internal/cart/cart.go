package cart

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/AryanJadile/restoflow/internal/orders"
)

// TaxRate is the flat 5% service tax applied on the pre-tax subtotal.
var TaxRate = decimal.New(5, -2)

// Line is one cart entry: at most one per product id.
type Line struct {
	Product orders.Product `json:"product"`
	Qty     int            `json:"qty"`
}

// Persister is the write-through side channel. Every mutation saves the
// full cart; Load restores it when a terminal session comes back.
type Persister interface {
	Save(ctx context.Context, terminal string, lines []Line) error
	Load(ctx context.Context, terminal string) ([]Line, error)
}

// Cart holds a terminal's current lines. Totals are derived reads,
// recomputed on every call -- nothing is cached.
type Cart struct {
	mu       sync.Mutex
	terminal string
	lines    []Line
	store    Persister
	log      *slog.Logger
}

func New(terminal string, store Persister, log *slog.Logger) *Cart {
	return &Cart{terminal: terminal, store: store, log: log}
}

// Restore loads the persisted cart, replacing whatever is in memory.
func (c *Cart) Restore(ctx context.Context) error {
	lines, err := c.store.Load(ctx, c.terminal)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.lines = lines
	c.mu.Unlock()
	return nil
}

// Add increments the line for p.ID, or appends a fresh line with qty 1.
func (c *Cart) Add(ctx context.Context, p orders.Product) {
	c.mu.Lock()
	found := false
	for i := range c.lines {
		if c.lines[i].Product.ID == p.ID {
			c.lines[i].Qty++
			found = true
			break
		}
	}
	if !found {
		c.lines = append(c.lines, Line{Product: p, Qty: 1})
	}
	c.mu.Unlock()
	c.persist(ctx)
}

// ChangeQty adjusts a line by delta; a result <= 0 removes the line
// entirely rather than clamping at zero.
func (c *Cart) ChangeQty(ctx context.Context, productID string, delta int) {
	c.mu.Lock()
	for i := range c.lines {
		if c.lines[i].Product.ID == productID {
			c.lines[i].Qty += delta
			if c.lines[i].Qty <= 0 {
				c.lines = append(c.lines[:i], c.lines[i+1:]...)
			}
			break
		}
	}
	c.mu.Unlock()
	c.persist(ctx)
}

func (c *Cart) Remove(ctx context.Context, productID string) {
	c.mu.Lock()
	for i := range c.lines {
		if c.lines[i].Product.ID == productID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	c.persist(ctx)
}

func (c *Cart) Clear(ctx context.Context) {
	c.mu.Lock()
	c.lines = nil
	c.mu.Unlock()
	c.persist(ctx)
}

func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines) == 0
}

// Subtotal is sum(price*qty) at full precision.
func (c *Cart) Subtotal() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := decimal.Zero
	for _, l := range c.lines {
		sub = sub.Add(l.Product.Price.Mul(decimal.NewFromInt(int64(l.Qty))))
	}
	return sub
}

func (c *Cart) Tax() decimal.Decimal {
	return c.Subtotal().Mul(TaxRate)
}

// Total is subtotal + tax, full precision. Round only at display or
// persist time.
func (c *Cart) Total() decimal.Decimal {
	sub := c.Subtotal()
	return sub.Add(sub.Mul(TaxRate))
}

// persist is write-through after every mutation. Failures are logged,
// never fatal: the in-memory cart stays authoritative for the session.
func (c *Cart) persist(ctx context.Context) {
	if err := c.store.Save(ctx, c.terminal, c.Lines()); err != nil {
		c.log.Warn("cart persist failed", "terminal", c.terminal, "err", err)
	}
}
