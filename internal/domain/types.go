package domain

import "time"

// Side represents the order side (buy or sell).
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Sign returns +1 for buys and -1 for sells.
func (s Side) Sign() float64 {
	if s == SideBuy {
		return 1
	}
	return -1
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid reports whether the side is a known value.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderType represents the type of order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// Valid reports whether the order type is a known value.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStop, OrderTypeStopLimit:
		return true
	}
	return false
}

// RequiresLimitPrice reports whether orders of this type must carry a limit price.
func (t OrderType) RequiresLimitPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStopLimit
}

// RequiresStopPrice reports whether orders of this type must carry a stop price.
func (t OrderType) RequiresStopPrice() bool {
	return t == OrderTypeStop || t == OrderTypeStopLimit
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// Order represents an order in the trading system. The ID is the only
// identity: symbol, side and price are attributes and never key anything.
type Order struct {
	ID             string      `json:"id"`
	Symbol         string      `json:"symbol"`
	Side           Side        `json:"side"`
	Type           OrderType   `json:"type"`
	Quantity       float64     `json:"quantity"`
	FilledQuantity float64     `json:"filled_quantity"`
	Price          float64     `json:"price,omitempty"` // limit price, 0 for market orders
	StopPrice      float64     `json:"stop_price,omitempty"`
	AvgFillPrice   float64     `json:"avg_fill_price"`
	Status         OrderStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// RemainingQuantity returns the unfilled quantity. Always derived, never stored.
func (o *Order) RemainingQuantity() float64 {
	return o.Quantity - o.FilledQuantity
}

// IsActive reports whether the order can still trade.
func (o *Order) IsActive() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusPartiallyFilled
}

// Execution represents a single fill between a taker and a maker order.
// Price is always the resting (maker) order's price.
type Execution struct {
	ExecID       string    `json:"exec_id"`
	OrderID      string    `json:"order_id"`
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"` // taker side
	Quantity     float64   `json:"quantity"`
	Price        float64   `json:"price"`
	MakerOrderID string    `json:"maker_order_id"`
	SequenceID   uint64    `json:"sequence_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// SignedQuantity returns the fill quantity signed by the taker side.
func (e *Execution) SignedQuantity() float64 {
	return e.Side.Sign() * e.Quantity
}

// PriceLevel represents an aggregated price level in the L2 order book.
type PriceLevel struct {
	Price      float64 `json:"price"`
	Size       float64 `json:"size"`
	OrderCount int     `json:"order_count"`
}

// L2OrderBook represents an aggregated order book snapshot.
type L2OrderBook struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// Quote is a top-of-book view. The Has flags distinguish an absent side
// from a legitimate zero, so an empty book is never mistaken for price 0.
type Quote struct {
	Symbol  string  `json:"symbol"`
	Bid     float64 `json:"bid"`
	Ask     float64 `json:"ask"`
	Mid     float64 `json:"mid"`
	Spread  float64 `json:"spread"`
	Last    float64 `json:"last"`
	HasBid  bool    `json:"has_bid"`
	HasAsk  bool    `json:"has_ask"`
	HasLast bool    `json:"has_last"`
}

// Candlestick represents OHLCV data for a time interval.
type Candlestick struct {
	Symbol    string    `json:"symbol"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
	Interval  string    `json:"interval"` // e.g. "1m", "5m"
}

// MarketTick is a single market data update for a symbol.
type MarketTick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Volume    int64     `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}
