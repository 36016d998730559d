package marketdata

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nathanyu/algo-trading/internal/domain"
)

const defaultCandleInterval = time.Minute

// candleState tracks the current (building) candlestick for a symbol.
type candleState struct {
	current *domain.Candlestick
	hasData bool
}

// FlushHandler receives completed candles after each rotation.
type FlushHandler func([]domain.Candlestick)

// Aggregator condenses market ticks into fixed-interval candlesticks and
// keeps a ring of completed candles per symbol.
type Aggregator struct {
	mu       sync.RWMutex
	interval time.Duration
	label    string
	capacity int
	candles  map[string]*RingBuffer[domain.Candlestick]
	states   map[string]*candleState
	flushers []FlushHandler

	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
}

// NewAggregator creates an aggregator producing candles of the given
// interval, keeping up to capacity completed candles per symbol.
func NewAggregator(interval time.Duration, capacity int) *Aggregator {
	if interval <= 0 {
		interval = defaultCandleInterval
	}
	if capacity <= 0 {
		capacity = defaultRingCapacity
	}
	return &Aggregator{
		interval: interval,
		label:    intervalLabel(interval),
		capacity: capacity,
		candles:  make(map[string]*RingBuffer[domain.Candlestick]),
		states:   make(map[string]*candleState),
		done:     make(chan struct{}),
	}
}

// intervalLabel renders a duration as a short candle interval label.
func intervalLabel(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}

// Record folds one tick into the building candle for its symbol.
func (a *Aggregator) Record(tick domain.MarketTick) {
	a.mu.Lock()
	defer a.mu.Unlock()

	state, ok := a.states[tick.Symbol]
	if !ok {
		state = &candleState{}
		a.states[tick.Symbol] = state
	}

	if !state.hasData {
		// First tick in this interval
		state.current = &domain.Candlestick{
			Symbol:    tick.Symbol,
			Open:      tick.Price,
			High:      tick.Price,
			Low:       tick.Price,
			Close:     tick.Price,
			Volume:    tick.Volume,
			Timestamp: tick.Timestamp.Truncate(a.interval),
			Interval:  a.label,
		}
		state.hasData = true
		return
	}

	c := state.current
	if tick.Price > c.High {
		c.High = tick.Price
	}
	if tick.Price < c.Low {
		c.Low = tick.Price
	}
	c.Close = tick.Price
	c.Volume += tick.Volume
}

// OnFlush registers a handler for completed candles. Handlers run on the
// aggregator goroutine after each rotation.
func (a *Aggregator) OnFlush(h FlushHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flushers = append(a.flushers, h)
}

// Start begins the rotation loop.
func (a *Aggregator) Start() {
	a.ticker = time.NewTicker(a.interval)
	go a.run()
	slog.Info("candle aggregator started", "interval", a.label)
}

// Stop shuts down the aggregator and flushes the building candles.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() {
		if a.ticker != nil {
			a.ticker.Stop()
		}
		close(a.done)
		a.rotate()
	})
}

func (a *Aggregator) run() {
	for {
		select {
		case <-a.ticker.C:
			a.rotate()
		case <-a.done:
			slog.Info("candle aggregator stopped")
			return
		}
	}
}

// rotate closes the building candles, pushes them into the rings and
// hands them to the flush handlers.
func (a *Aggregator) rotate() {
	a.mu.Lock()
	var completed []domain.Candlestick
	for symbol, state := range a.states {
		if !state.hasData {
			continue
		}

		rb, ok := a.candles[symbol]
		if !ok {
			rb = NewRingBuffer[domain.Candlestick](a.capacity)
			a.candles[symbol] = rb
		}
		rb.Push(*state.current)
		completed = append(completed, *state.current)

		// Reset state for next interval
		state.hasData = false
		state.current = nil
	}
	flushers := make([]FlushHandler, len(a.flushers))
	copy(flushers, a.flushers)
	a.mu.Unlock()

	if len(completed) == 0 {
		return
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].Symbol < completed[j].Symbol
	})
	for _, h := range flushers {
		h(completed)
	}
}

// GetCandles returns up to count recent completed candles for a symbol,
// plus the building candle when it has data.
func (a *Aggregator) GetCandles(symbol string, count int) []domain.Candlestick {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var result []domain.Candlestick
	if rb, ok := a.candles[symbol]; ok {
		result = rb.GetRecent(count)
	}
	if state, ok := a.states[symbol]; ok && state.hasData {
		result = append(result, *state.current)
	}
	return result
}
