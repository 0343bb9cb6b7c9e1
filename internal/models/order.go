package models

import "time"

// OrderSide is the direction of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the other side
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType selects how an order is filled
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is a simulated order. Filled and cancelled are terminal.
type Order struct {
	ID             string      `json:"id"`
	Symbol         string      `json:"symbol"`
	Side           OrderSide   `json:"side"`
	Type           OrderType   `json:"type"`
	Quantity       float64     `json:"quantity"`
	FilledQuantity float64     `json:"filled_quantity"`
	Price          *float64    `json:"price,omitempty"`
	StopLoss       *float64    `json:"stop_loss,omitempty"`
	TakeProfit     *float64    `json:"take_profit,omitempty"`
	Status         OrderStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	FilledAt       *time.Time  `json:"filled_at,omitempty"`
	FillPrice      float64     `json:"fill_price"`
	Commission     float64     `json:"commission"`
	Slippage       float64     `json:"slippage"`
	// ReduceOnly orders only shrink the position they were placed against
	ReduceOnly bool `json:"reduce_only,omitempty"`
}

// IsTerminal reports whether the order can no longer change
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusFilled || o.Status == OrderStatusCancelled
}

// RemainingQuantity returns the unfilled quantity
func (o *Order) RemainingQuantity() float64 {
	rem := o.Quantity - o.FilledQuantity
	if rem < 0 {
		return 0
	}
	return rem
}
