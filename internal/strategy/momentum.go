// Package strategy implements trading strategies driven by the market
// data feed.
package strategy

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/nathanyu/algo-trading/internal/domain"
	"github.com/nathanyu/algo-trading/internal/exchange"
	"github.com/nathanyu/algo-trading/internal/marketdata"
	"github.com/nathanyu/algo-trading/internal/telemetry"
)

// Signal is a directional trading signal.
type Signal int

const (
	SignalSell Signal = -1
	SignalHold Signal = 0
	SignalBuy  Signal = 1
)

// SignalState records the last evaluation for a symbol.
type SignalState struct {
	Momentum  float64   `json:"momentum"`
	Signal    Signal    `json:"signal"`
	Timestamp time.Time `json:"timestamp"`
}

// MomentumConfig controls the momentum strategy.
type MomentumConfig struct {
	Symbols        []string
	ShortWindow    int
	LongWindow     int
	Threshold      float64
	PositionSize   float64
	UpdateInterval time.Duration
}

// Momentum trades moving average crossovers. When the short moving
// average pulls away from the long one by more than the threshold, it
// opens or flips a position in the signal's direction.
type Momentum struct {
	cfg  MomentumConfig
	ex   *exchange.Exchange
	feed *marketdata.Feed

	mu      sync.RWMutex
	history map[string]*marketdata.RingBuffer[float64]
	signals map[string]SignalState

	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
}

// NewMomentum creates a momentum strategy bound to an exchange and feed.
func NewMomentum(cfg MomentumConfig, ex *exchange.Exchange, feed *marketdata.Feed) *Momentum {
	if cfg.ShortWindow <= 0 {
		cfg.ShortWindow = 5
	}
	if cfg.LongWindow <= cfg.ShortWindow {
		cfg.LongWindow = 20
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.01
	}
	if cfg.PositionSize <= 0 {
		cfg.PositionSize = 100
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = 60 * time.Second
	}

	return &Momentum{
		cfg:     cfg,
		ex:      ex,
		feed:    feed,
		history: make(map[string]*marketdata.RingBuffer[float64]),
		signals: make(map[string]SignalState),
		done:    make(chan struct{}),
	}
}

// OnTick records a price observation for momentum calculation.
func (m *Momentum) OnTick(tick domain.MarketTick) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rb, ok := m.history[tick.Symbol]
	if !ok {
		rb = marketdata.NewRingBuffer[float64](max(100, 3*m.cfg.LongWindow))
		m.history[tick.Symbol] = rb
	}
	rb.Push(tick.Price)
}

// CalculateMomentum returns the momentum indicator for a symbol, or false
// when the history is shorter than the long window.
func (m *Momentum) CalculateMomentum(symbol string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rb, ok := m.history[symbol]
	if !ok || rb.Len() < m.cfg.LongWindow {
		return 0, false
	}

	prices := rb.GetRecent(m.cfg.LongWindow)
	longMA := mean(prices)
	shortMA := mean(prices[len(prices)-m.cfg.ShortWindow:])
	return (shortMA - longMA) / longMA, true
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Evaluate computes fresh signals for the configured symbols.
func (m *Momentum) Evaluate() map[string]Signal {
	signals := make(map[string]Signal, len(m.cfg.Symbols))
	now := time.Now()

	for _, symbol := range m.cfg.Symbols {
		momentum, ok := m.CalculateMomentum(symbol)
		if !ok {
			signals[symbol] = SignalHold // Not enough data
			continue
		}

		signal := SignalHold
		switch {
		case momentum > m.cfg.Threshold:
			signal = SignalBuy
		case momentum < -m.cfg.Threshold:
			signal = SignalSell
		}
		signals[symbol] = signal

		m.mu.Lock()
		m.signals[symbol] = SignalState{Momentum: momentum, Signal: signal, Timestamp: now}
		m.mu.Unlock()
	}
	return signals
}

// executeSignals turns non-hold signals into market orders filled at the
// current feed price.
func (m *Momentum) executeSignals(signals map[string]Signal) {
	for symbol, signal := range signals {
		if signal == SignalHold {
			continue
		}

		var currentQty float64
		if pos, ok := m.ex.Position(symbol); ok {
			currentQty = pos.Quantity
		}

		price, ok := m.feed.LatestPrice(symbol)
		if !ok {
			slog.Warn("no market price available", "symbol", symbol)
			continue
		}

		side := domain.SideBuy
		direction := "buy"
		if signal == SignalSell {
			side = domain.SideSell
			direction = "sell"
		}

		// Reversals close the existing exposure and open the full
		// position size on the other side.
		qty := m.cfg.PositionSize
		if (signal == SignalBuy && currentQty <= 0) || (signal == SignalSell && currentQty >= 0) {
			qty = m.cfg.PositionSize + math.Abs(currentQty)
		}

		order, err := m.ex.CreateOrder(symbol, side, qty, domain.OrderTypeMarket, 0, 0)
		if err != nil {
			slog.Error("failed to create order for signal", "symbol", symbol, "error", err)
			continue
		}
		if !m.ex.ExecuteOrder(order.ID, qty, price) {
			slog.Warn("order execution refused", "order_id", order.ID, "symbol", symbol)
			continue
		}

		telemetry.StrategySignals.WithLabelValues(symbol, direction).Inc()

		momentum := 0.0
		m.mu.RLock()
		if state, ok := m.signals[symbol]; ok {
			momentum = state.Momentum
		}
		m.mu.RUnlock()

		slog.Info("executed order on momentum signal",
			"symbol", symbol,
			"side", direction,
			"quantity", qty,
			"price", price,
			"momentum", momentum,
		)
	}
}

// update runs one strategy cycle.
func (m *Momentum) update() {
	m.executeSignals(m.Evaluate())

	summary := m.ex.Portfolio()
	slog.Info("strategy updated",
		"portfolio_value", summary.TotalValue,
		"total_pnl", summary.TotalPnL,
	)
}

// Signals returns the last computed signal state per symbol.
func (m *Momentum) Signals() map[string]SignalState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]SignalState, len(m.signals))
	for k, v := range m.signals {
		out[k] = v
	}
	return out
}

// Start subscribes to the feed and begins the evaluation loop.
func (m *Momentum) Start() {
	m.feed.Subscribe(m.OnTick)
	for _, symbol := range m.cfg.Symbols {
		m.feed.AddSymbol(symbol)
	}

	m.ticker = time.NewTicker(m.cfg.UpdateInterval)
	go m.run()

	slog.Info("momentum strategy started",
		"symbols", len(m.cfg.Symbols),
		"short_window", m.cfg.ShortWindow,
		"long_window", m.cfg.LongWindow,
		"threshold", m.cfg.Threshold,
	)
}

// Stop shuts down the evaluation loop.
func (m *Momentum) Stop() {
	m.stopOnce.Do(func() {
		if m.ticker != nil {
			m.ticker.Stop()
		}
		close(m.done)
	})
}

func (m *Momentum) run() {
	for {
		select {
		case <-m.ticker.C:
			m.update()
		case <-m.done:
			slog.Info("momentum strategy stopped")
			return
		}
	}
}
