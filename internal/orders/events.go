package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced = "OrderPlaced"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemLine struct {
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Qty         int             `json:"qty"`
}

// OrderPlacedPayload carries the full header plus lines so the kitchen
// can render the ticket without a read back to the store.
type OrderPlacedPayload struct {
	OrderID        string          `json:"order_id"`
	OrderType      OrderType       `json:"order_type"`
	PaymentMethod  string          `json:"payment_method"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	CashGiven      decimal.Decimal `json:"cash_given"`
	ChangeReturned decimal.Decimal `json:"change_returned"`
	CreatedAt      time.Time       `json:"created_at"`
	Items          []ItemLine      `json:"items"`
}

// Order reconstructs the header the payload describes. Fresh rows are
// always pending; done orders are never announced.
func (p OrderPlacedPayload) Order() Order {
	o := Order{
		ID:             p.OrderID,
		OrderType:      p.OrderType,
		PaymentMethod:  p.PaymentMethod,
		TotalAmount:    p.TotalAmount,
		CashGiven:      p.CashGiven,
		ChangeReturned: p.ChangeReturned,
		Status:         StatusPending,
		CreatedAt:      p.CreatedAt,
	}
	for _, it := range p.Items {
		o.Items = append(o.Items, OrderItem{
			OrderID:     p.OrderID,
			ProductName: it.ProductName,
			Price:       it.Price,
			Qty:         it.Qty,
		})
	}
	return o
}
