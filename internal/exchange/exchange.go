// Package exchange composes the order manager, matching engine and
// position ledger into a single trading facade. All order flow for a
// symbol is serialized through a per-symbol lock, so executions settle
// into the ledger in the exact order the books produced them.
package exchange

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nathanyu/algo-trading/internal/domain"
	"github.com/nathanyu/algo-trading/internal/matching"
	"github.com/nathanyu/algo-trading/internal/ordermanager"
	"github.com/nathanyu/algo-trading/internal/position"
	"github.com/nathanyu/algo-trading/internal/telemetry"
)

// Settlement pairs an execution with the commission charged and the
// realized P&L it produced.
type Settlement struct {
	Execution   domain.Execution `json:"execution"`
	Commission  float64          `json:"commission"`
	RealizedPnL float64          `json:"realized_pnl"`
}

// TradeRecord converts the settlement into a ledger-shaped trade record
// keyed by the execution ID.
func (s Settlement) TradeRecord() domain.TradeRecord {
	return domain.TradeRecord{
		TradeID:     s.Execution.ExecID,
		OrderID:     s.Execution.OrderID,
		Symbol:      s.Execution.Symbol,
		Quantity:    s.Execution.SignedQuantity(),
		Price:       s.Execution.Price,
		Commission:  s.Commission,
		RealizedPnL: s.RealizedPnL,
		Timestamp:   s.Execution.Timestamp,
	}
}

// Config controls exchange behavior.
type Config struct {
	InitialCapital     float64
	CommissionPerShare float64
	SettlementBuffer   int
}

// Exchange is the trading facade. Lifecycle state lives in the manager,
// resting orders live in the books, and fills land in the ledger.
type Exchange struct {
	manager *ordermanager.Manager
	engine  *matching.Engine
	ledger  *position.Ledger

	commissionPerShare float64

	seq atomic.Uint64

	mu      sync.Mutex
	symbols map[string]*sync.Mutex

	settlements chan Settlement
}

// New creates an exchange with a fresh manager, matching engine and ledger.
func New(cfg Config) *Exchange {
	if cfg.SettlementBuffer <= 0 {
		cfg.SettlementBuffer = 1024
	}
	return &Exchange{
		manager:            ordermanager.NewManager(),
		engine:             matching.NewEngine(),
		ledger:             position.NewLedger(cfg.InitialCapital),
		commissionPerShare: cfg.CommissionPerShare,
		symbols:            make(map[string]*sync.Mutex),
		settlements:        make(chan Settlement, cfg.SettlementBuffer),
	}
}

// symbolLock returns the serialization lock for a symbol, creating it on
// first use.
func (e *Exchange) symbolLock(symbol string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.symbols[symbol]
	if !ok {
		l = &sync.Mutex{}
		e.symbols[symbol] = l
	}
	return l
}

// createOrder validates and registers a new order, returning the live
// registry order for internal routing.
func (e *Exchange) createOrder(symbol string, side domain.Side, quantity float64, typ domain.OrderType, price, stopPrice float64) (*domain.Order, error) {
	order, err := e.manager.CreateOrder(symbol, side, quantity, typ, price, stopPrice)
	if err != nil {
		return nil, err
	}
	telemetry.OrdersTotal.WithLabelValues("created", symbol).Inc()
	return order, nil
}

// CreateOrder validates and registers a new order without routing it to
// any book. The returned order is a snapshot; look it up again to observe
// later fills.
func (e *Exchange) CreateOrder(symbol string, side domain.Side, quantity float64, typ domain.OrderType, price, stopPrice float64) (domain.Order, error) {
	order, err := e.createOrder(symbol, side, quantity, typ, price, stopPrice)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

// PlaceOrder creates an order and, for limit and market types, routes it
// to the matching engine. Stop orders are registered but held in the
// manager until triggered; the books never see them. The returned order is
// a post-match snapshot.
func (e *Exchange) PlaceOrder(symbol string, side domain.Side, quantity float64, typ domain.OrderType, price, stopPrice float64) (domain.Order, []domain.Execution, error) {
	order, err := e.createOrder(symbol, side, quantity, typ, price, stopPrice)
	if err != nil {
		return domain.Order{}, nil, err
	}
	if typ != domain.OrderTypeLimit && typ != domain.OrderTypeMarket {
		return *order, nil, nil
	}

	placed, execs, err := e.submit(order)
	if err != nil {
		e.manager.RejectOrder(order.ID)
		rejected, _ := e.manager.GetOrder(order.ID)
		return rejected, nil, err
	}
	return placed, execs, nil
}

// submit routes an active order to its book and settles any resulting
// executions into the ledger. The snapshot is taken before the symbol lock
// is released, so it never captures a half-applied fill from a concurrent
// submission.
func (e *Exchange) submit(order *domain.Order) (domain.Order, []domain.Execution, error) {
	lock := e.symbolLock(order.Symbol)
	lock.Lock()
	defer lock.Unlock()

	execs, err := e.engine.Submit(order)
	if err != nil {
		return domain.Order{}, nil, err
	}

	for i := range execs {
		execs[i].SequenceID = e.seq.Add(1)
		e.settle(execs[i])
	}

	// A market order remainder never rests; close out whatever is left.
	if order.Type == domain.OrderTypeMarket && order.IsActive() {
		e.manager.CancelOrder(order.ID)
	}

	if len(execs) > 0 {
		e.updatePortfolioMetrics(order.Symbol)
	}
	e.updateDepthMetrics(order.Symbol)

	return *order, execs, nil
}

// settle books one execution into the ledger and publishes it. Callers
// hold the symbol lock, so per-symbol settlement order matches match order.
func (e *Exchange) settle(exec domain.Execution) {
	commission := e.commissionPerShare * exec.Quantity
	realized, err := e.ledger.ApplyExecution(exec, commission)
	if err != nil {
		// Unreachable through the books, which validate price and quantity
		// before producing executions.
		slog.Error("ledger refused execution",
			"exec_id", exec.ExecID,
			"symbol", exec.Symbol,
			"error", err,
		)
		return
	}

	telemetry.SequenceNumber.Set(float64(exec.SequenceID))
	telemetry.ExecutionsTotal.WithLabelValues(exec.Symbol).Inc()
	telemetry.ExecutedQuantity.WithLabelValues(exec.Symbol).Add(exec.Quantity)
	telemetry.LastTradePrice.WithLabelValues(exec.Symbol).Set(exec.Price)

	slog.Info("execution settled",
		"exec_id", exec.ExecID,
		"symbol", exec.Symbol,
		"side", string(exec.Side),
		"quantity", exec.Quantity,
		"price", exec.Price,
		"sequence_id", exec.SequenceID,
		"realized_pnl", realized,
	)

	select {
	case e.settlements <- Settlement{Execution: exec, Commission: commission, RealizedPnL: realized}:
	default:
		slog.Warn("settlement channel full, dropping event", "exec_id", exec.ExecID)
	}
}

// ExecuteOrder applies a fill to an order outside the matching path, at a
// price supplied by the caller. Strategies use this to fill market orders
// at the current feed price. Returns false when the order cannot accept
// the fill.
func (e *Exchange) ExecuteOrder(orderID string, quantity, price float64) bool {
	order, ok := e.manager.GetOrder(orderID)
	if !ok {
		return false
	}

	lock := e.symbolLock(order.Symbol)
	lock.Lock()
	defer lock.Unlock()

	if !e.manager.RecordExecution(orderID, quantity, price) {
		return false
	}

	seq := e.seq.Add(1)
	e.settle(domain.Execution{
		ExecID:     fmt.Sprintf("%s-exec-%d", orderID, seq),
		OrderID:    orderID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   quantity,
		Price:      price,
		SequenceID: seq,
		Timestamp:  time.Now(),
	})
	e.updatePortfolioMetrics(order.Symbol)
	return true
}

// CancelOrder cancels an order by ID, removing it from its book when
// resting. Returns false for unknown or terminal orders.
func (e *Exchange) CancelOrder(orderID string) bool {
	order, ok := e.manager.GetOrder(orderID)
	if !ok {
		return false
	}

	lock := e.symbolLock(order.Symbol)
	lock.Lock()
	defer lock.Unlock()

	if !e.manager.CancelOrder(orderID) {
		return false
	}
	e.engine.Cancel(&order)
	telemetry.OrdersTotal.WithLabelValues("cancelled", order.Symbol).Inc()
	e.updateDepthMetrics(order.Symbol)
	return true
}

// RejectOrder rejects a pending order, removing it from its book when
// resting. Orders that have any fill cannot be rejected.
func (e *Exchange) RejectOrder(orderID string) bool {
	order, ok := e.manager.GetOrder(orderID)
	if !ok {
		return false
	}

	lock := e.symbolLock(order.Symbol)
	lock.Lock()
	defer lock.Unlock()

	if !e.manager.RejectOrder(orderID) {
		return false
	}
	e.engine.Cancel(&order)
	telemetry.OrdersTotal.WithLabelValues("rejected", order.Symbol).Inc()
	e.updateDepthMetrics(order.Symbol)
	return true
}

// MarkPrice updates the mark price used for unrealized P&L.
func (e *Exchange) MarkPrice(symbol string, price float64) {
	e.ledger.MarkPrice(symbol, price)
	telemetry.PortfolioTotalPnL.Set(e.ledger.TotalPnL())
}

func (e *Exchange) updatePortfolioMetrics(symbol string) {
	telemetry.PortfolioCash.Set(e.ledger.Cash())
	telemetry.PortfolioTotalPnL.Set(e.ledger.TotalPnL())
	if pos, ok := e.ledger.GetPosition(symbol); ok {
		telemetry.PositionQuantity.WithLabelValues(symbol).Set(pos.Quantity)
	}
}

func (e *Exchange) updateDepthMetrics(symbol string) {
	snap := e.engine.Snapshot(symbol, 0)
	telemetry.OrderBookDepth.WithLabelValues(symbol, "bid").Set(float64(len(snap.Bids)))
	telemetry.OrderBookDepth.WithLabelValues(symbol, "ask").Set(float64(len(snap.Asks)))
}

// GetOrder returns a snapshot of an order by ID.
func (e *Exchange) GetOrder(orderID string) (domain.Order, bool) {
	return e.manager.GetOrder(orderID)
}

// QueryOrders returns snapshots of the orders matching the filter.
func (e *Exchange) QueryOrders(filter ordermanager.OrderFilter) []domain.Order {
	return e.manager.QueryOrders(filter)
}

// ActiveOrders returns snapshots of all orders that can still trade.
func (e *Exchange) ActiveOrders() []domain.Order {
	return e.manager.ActiveOrders()
}

// Quote returns the top-of-book view for a symbol.
func (e *Exchange) Quote(symbol string) domain.Quote {
	return e.engine.Quote(symbol)
}

// Snapshot returns an aggregated book snapshot for a symbol.
func (e *Exchange) Snapshot(symbol string, depth int) domain.L2OrderBook {
	return e.engine.Snapshot(symbol, depth)
}

// Symbols returns all symbols with an instantiated book.
func (e *Exchange) Symbols() []string {
	return e.engine.Symbols()
}

// Position returns the position for a symbol.
func (e *Exchange) Position(symbol string) (domain.Position, bool) {
	return e.ledger.GetPosition(symbol)
}

// Positions returns all open positions.
func (e *Exchange) Positions() []domain.Position {
	return e.ledger.OpenPositions()
}

// Portfolio returns a portfolio summary.
func (e *Exchange) Portfolio() domain.PortfolioSummary {
	return e.ledger.Summary()
}

// TradeHistory returns the most recent trades, oldest first.
func (e *Exchange) TradeHistory(limit int) []domain.TradeRecord {
	return e.ledger.TradeHistory(limit)
}

// Settlements exposes the settlement event stream. Events are dropped
// rather than blocking order flow when no consumer keeps up.
func (e *Exchange) Settlements() <-chan Settlement {
	return e.settlements
}
