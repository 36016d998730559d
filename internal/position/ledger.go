// Package position tracks per-symbol positions, cash, and realized and
// unrealized P&L using average-cost accounting.
package position

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nathanyu/algo-trading/internal/domain"
)

// flatEpsilon snaps residual float dust to an exactly flat position.
const flatEpsilon = 1e-6

var (
	ErrInvalidQuantity = errors.New("trade quantity must be non-zero")
	ErrInvalidPrice    = errors.New("trade price must be positive")
)

// Ledger is the portfolio ledger: positions keyed by symbol, a cash
// balance, and the trade history. All methods are safe for concurrent use.
type Ledger struct {
	mu             sync.RWMutex
	initialCapital float64
	cash           float64
	positions      map[string]*domain.Position
	trades         []domain.TradeRecord
}

// NewLedger creates a ledger with the given starting capital.
func NewLedger(initialCapital float64) *Ledger {
	return &Ledger{
		initialCapital: initialCapital,
		cash:           initialCapital,
		positions:      make(map[string]*domain.Position),
	}
}

// position returns the live position for symbol, creating it when absent.
// Caller holds the write lock.
func (l *Ledger) position(symbol string) *domain.Position {
	pos, exists := l.positions[symbol]
	if !exists {
		pos = &domain.Position{Symbol: symbol}
		l.positions[symbol] = pos
	}
	return pos
}

// ApplyTrade applies a signed trade (positive buys, negative sells) to the
// symbol's position and returns the realized P&L. Average-cost rules:
//
//   - flat position: the trade price becomes the average price
//   - same direction: quantity-weighted average price, nothing realized
//   - opposite, smaller: realized on the closed quantity, average unchanged
//   - opposite, larger: the position flips; realized on the old quantity,
//     the remainder opens at the trade price
//
// Cash moves by -(quantity*price) and then by -commission. Zero quantities
// and non-positive prices are rejected with an error before any state
// changes.
func (l *Ledger) ApplyTrade(symbol string, quantity, price, commission float64, orderID string) (float64, error) {
	if quantity == 0 {
		return 0, ErrInvalidQuantity
	}
	if price <= 0 {
		return 0, ErrInvalidPrice
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.position(symbol)
	realized := applyToPosition(pos, quantity, price)

	l.cash -= quantity * price
	l.cash -= commission

	l.trades = append(l.trades, domain.TradeRecord{
		TradeID:     uuid.New().String(),
		OrderID:     orderID,
		Symbol:      symbol,
		Quantity:    quantity,
		Price:       price,
		Commission:  commission,
		RealizedPnL: realized,
		Timestamp:   time.Now(),
	})
	return realized, nil
}

// ApplyExecution applies a book execution: the quantity is signed by the
// taker side.
func (l *Ledger) ApplyExecution(exec domain.Execution, commission float64) (float64, error) {
	return l.ApplyTrade(exec.Symbol, exec.SignedQuantity(), exec.Price, commission, exec.OrderID)
}

// applyToPosition mutates the position for one trade and returns the
// realized P&L. Caller holds the write lock.
func applyToPosition(p *domain.Position, quantity, price float64) float64 {
	var realized float64

	// Opposite-direction trades realize P&L on the closed quantity.
	if (p.Quantity > 0 && quantity < 0) || (p.Quantity < 0 && quantity > 0) {
		closing := math.Min(math.Abs(p.Quantity), math.Abs(quantity))
		if p.Quantity > 0 {
			realized = closing * (price - p.AvgPrice)
		} else {
			realized = closing * (p.AvgPrice - price)
		}
		p.RealizedPnL += realized
	}

	switch {
	case p.Quantity == 0:
		p.Quantity = quantity
		p.AvgPrice = price
	case (p.Quantity > 0) == (quantity > 0):
		// Signed arithmetic: both terms share the sign, so the ratio is
		// a positive weighted average for longs and shorts alike.
		totalCost := p.Quantity*p.AvgPrice + quantity*price
		p.Quantity += quantity
		p.AvgPrice = totalCost / p.Quantity
	default:
		flips := math.Abs(quantity) > math.Abs(p.Quantity)
		p.Quantity += quantity
		if flips {
			p.AvgPrice = price
		}
	}

	if math.Abs(p.Quantity) < flatEpsilon {
		p.Quantity = 0
		p.AvgPrice = 0
	}

	refreshUnrealized(p)
	p.UpdatedAt = time.Now()
	return realized
}

// refreshUnrealized recomputes unrealized P&L from the last marked price.
// A flat or unmarked position carries zero unrealized P&L.
func refreshUnrealized(p *domain.Position) {
	if p.Quantity != 0 && p.AvgPrice > 0 && p.LastPrice > 0 {
		p.UnrealizedPnL = p.Quantity * (p.LastPrice - p.AvgPrice)
	} else {
		p.UnrealizedPnL = 0
	}
}

// MarkPrice records a new market price for the symbol and refreshes its
// unrealized P&L. Non-positive prices are ignored. The position is created
// when absent, so marks may arrive before the first trade.
func (l *Ledger) MarkPrice(symbol string, price float64) {
	if price <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.position(symbol)
	pos.LastPrice = price
	pos.UpdatedAt = time.Now()
	refreshUnrealized(pos)
}

// GetPosition returns a copy of the position for symbol.
func (l *Ledger) GetPosition(symbol string) (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, exists := l.positions[symbol]
	if !exists {
		return domain.Position{}, false
	}
	return *pos, true
}

// OpenPositions returns copies of all non-flat positions sorted by symbol.
func (l *Ledger) OpenPositions() []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []domain.Position
	for _, pos := range l.positions {
		if !pos.IsFlat() {
			result = append(result, *pos)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

// InitialCapital returns the starting capital.
func (l *Ledger) InitialCapital() float64 {
	return l.initialCapital
}

// TotalMarketValue sums quantity times last price over all positions.
func (l *Ledger) TotalMarketValue() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalMarketValue()
}

func (l *Ledger) totalMarketValue() float64 {
	var total float64
	for _, pos := range l.positions {
		total += pos.MarketValue()
	}
	return total
}

// TotalCostBasis sums quantity times average price over all positions.
func (l *Ledger) TotalCostBasis() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total float64
	for _, pos := range l.positions {
		total += pos.CostBasis()
	}
	return total
}

// TotalUnrealizedPnL sums unrealized P&L over all positions.
func (l *Ledger) TotalUnrealizedPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total float64
	for _, pos := range l.positions {
		total += pos.UnrealizedPnL
	}
	return total
}

// TotalRealizedPnL sums realized P&L over all positions.
func (l *Ledger) TotalRealizedPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total float64
	for _, pos := range l.positions {
		total += pos.RealizedPnL
	}
	return total
}

// TotalPortfolioValue returns cash plus the market value of all positions.
func (l *Ledger) TotalPortfolioValue() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash + l.totalMarketValue()
}

// TotalPnL returns the sum of every position's realized and unrealized
// P&L plus the cash delta against the starting capital.
func (l *Ledger) TotalPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalPnL()
}

func (l *Ledger) totalPnL() float64 {
	var positionPnL float64
	for _, pos := range l.positions {
		positionPnL += pos.TotalPnL()
	}
	return positionPnL + (l.cash - l.initialCapital)
}

// TradeHistory returns the most recent trades, newest last. limit <= 0
// returns the full history.
func (l *Ledger) TradeHistory(limit int) []domain.TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := 0
	if limit > 0 && len(l.trades) > limit {
		start = len(l.trades) - limit
	}
	result := make([]domain.TradeRecord, len(l.trades)-start)
	copy(result, l.trades[start:])
	return result
}

// TradeCount returns the number of trades applied so far.
func (l *Ledger) TradeCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.trades)
}

// Summary assembles the portfolio report: cash, totals, and all non-flat
// positions sorted by symbol.
func (l *Ledger) Summary() domain.PortfolioSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var positions []domain.Position
	for _, pos := range l.positions {
		if !pos.IsFlat() {
			positions = append(positions, *pos)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	totalValue := l.cash + l.totalMarketValue()
	totalPnL := l.totalPnL()

	summary := domain.PortfolioSummary{
		Cash:           l.cash,
		InitialCapital: l.initialCapital,
		TotalValue:     totalValue,
		TotalPnL:       totalPnL,
		Positions:      positions,
		TradeCount:     len(l.trades),
	}
	if l.initialCapital > 0 {
		summary.ReturnPct = totalPnL / l.initialCapital * 100
	}
	return summary
}
