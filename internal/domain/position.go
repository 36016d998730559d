package domain

import (
	"math"
	"time"
)

// flatEpsilon is the quantity below which a position counts as flat.
const flatEpsilon = 1e-6

// Position tracks the net exposure for a single symbol. Quantity is signed:
// positive for long, negative for short.
type Position struct {
	Symbol        string    `json:"symbol"`
	Quantity      float64   `json:"quantity"`
	AvgPrice      float64   `json:"avg_price"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	LastPrice     float64   `json:"last_price"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MarketValue returns quantity times the last marked price.
func (p *Position) MarketValue() float64 {
	return p.Quantity * p.LastPrice
}

// CostBasis returns quantity times the average entry price.
func (p *Position) CostBasis() float64 {
	return p.Quantity * p.AvgPrice
}

// TotalPnL returns realized plus unrealized P&L.
func (p *Position) TotalPnL() float64 {
	return p.RealizedPnL + p.UnrealizedPnL
}

// IsFlat reports whether the position is effectively zero.
func (p *Position) IsFlat() bool {
	return math.Abs(p.Quantity) < flatEpsilon
}

// IsLong reports whether the position is net long.
func (p *Position) IsLong() bool {
	return p.Quantity > 0 && !p.IsFlat()
}

// IsShort reports whether the position is net short.
func (p *Position) IsShort() bool {
	return p.Quantity < 0 && !p.IsFlat()
}

// TradeRecord is one settled trade applied to the ledger. Quantity is
// signed: positive buys, negative sells.
type TradeRecord struct {
	TradeID     string    `json:"trade_id"`
	OrderID     string    `json:"order_id,omitempty"`
	Symbol      string    `json:"symbol"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price"`
	Commission  float64   `json:"commission"`
	RealizedPnL float64   `json:"realized_pnl"`
	Timestamp   time.Time `json:"timestamp"`
}

// Value returns the cash impact of the trade excluding commission.
func (t *TradeRecord) Value() float64 {
	return t.Quantity * t.Price
}

// PortfolioSummary aggregates ledger state for reporting. Flat positions
// are omitted.
type PortfolioSummary struct {
	Cash           float64    `json:"cash"`
	InitialCapital float64    `json:"initial_capital"`
	TotalValue     float64    `json:"total_value"`
	TotalPnL       float64    `json:"total_pnl"`
	ReturnPct      float64    `json:"return_pct"`
	Positions      []Position `json:"positions"`
	TradeCount     int        `json:"trade_count"`
}
