package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a copy of catalog reference data; the catalog itself is
// managed elsewhere.
type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Img      string          `json:"img,omitempty"`
}

type OrderType string

const (
	TypeDineIn   OrderType = "Dine-In"
	TypeTakeaway OrderType = "Takeaway"
	TypeDelivery OrderType = "Delivery"
)

func (t OrderType) Valid() bool {
	switch t {
	case TypeDineIn, TypeTakeaway, TypeDelivery:
		return true
	}
	return false
}

type Method string

const (
	MethodCash        Method = "Cash"
	MethodOnline      Method = "Online"
	MethodSplit       Method = "Split"
	MethodCardMachine Method = "CardMachine"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodOnline, MethodSplit, MethodCardMachine:
		return true
	}
	return false
}

// Order is the header row: one per completed checkout, created exactly
// once, never deleted here. Only status transitions after the fact.
type Order struct {
	ID             string          `json:"id"`
	OrderType      OrderType       `json:"order_type"`
	PaymentMethod  string          `json:"payment_method"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	CashGiven      decimal.Decimal `json:"cash_given"`
	ChangeReturned decimal.Decimal `json:"change_returned"`
	Status         Status          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	Items          []OrderItem     `json:"items,omitempty"`
}

// OrderItem is one product line belonging to an order. Lines always sum
// (price*qty) to the order's pre-tax subtotal.
type OrderItem struct {
	OrderID     string          `json:"order_id"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Qty         int             `json:"qty"`
}

// Draft is what a checkout hands to PlaceOrder. The id and creation
// timestamp are assigned by the store.
type Draft struct {
	OrderType      OrderType
	PaymentMethod  string
	TotalAmount    decimal.Decimal
	CashGiven      decimal.Decimal
	ChangeReturned decimal.Decimal
	Items          []OrderItem
}
