// Package marketdata simulates a live market. The feed walks each symbol
// through a scenario-driven random process, the aggregator condenses ticks
// into candlesticks, and the archive persists completed candles to parquet.
package marketdata

import (
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nathanyu/algo-trading/internal/domain"
	"github.com/nathanyu/algo-trading/internal/telemetry"
)

// Scenario selects the market regime the synthetic feed simulates.
type Scenario string

const (
	ScenarioNormal Scenario = "normal"
	ScenarioHigh   Scenario = "high"
	ScenarioLow    Scenario = "low"
	ScenarioCrash  Scenario = "crash"
	ScenarioRally  Scenario = "rally"
)

// volatilityProfiles maps each scenario to its volatility multiplier.
var volatilityProfiles = map[Scenario]float64{
	ScenarioNormal: 1.0,
	ScenarioHigh:   2.5,
	ScenarioLow:    0.5,
	ScenarioCrash:  4.0,
	ScenarioRally:  2.0,
}

// Valid reports whether the scenario is a known profile.
func (s Scenario) Valid() bool {
	_, ok := volatilityProfiles[s]
	return ok
}

// basePrices holds real-world reference prices for common stocks. Symbols
// not listed here get a synthetic price derived from the symbol hash.
var basePrices = map[string]float64{
	"AAPL":  185.92,
	"MSFT":  425.52,
	"GOOGL": 175.53,
	"AMZN":  186.51,
	"META":  504.55,
	"TSLA":  178.08,
	"NVDA":  125.61,
	"JPM":   204.32,
	"V":     275.96,
	"JNJ":   149.78,
	"WMT":   68.69,
	"PG":    165.73,
	"XOM":   114.23,
	"BAC":   39.78,
	"DIS":   101.41,
}

// techSymbols trade with higher base volatility than the rest.
var techSymbols = map[string]bool{
	"AAPL": true, "MSFT": true, "GOOGL": true, "AMZN": true,
	"META": true, "TSLA": true, "NVDA": true,
}

func symbolHash(symbol string) int {
	h := 0
	for _, c := range symbol {
		h += int(c)
	}
	return h
}

// BasePrice returns the reference price for a symbol. Unknown symbols get
// a deterministic synthetic price between 50 and 500.
func BasePrice(symbol string) float64 {
	if p, ok := basePrices[strings.ToUpper(symbol)]; ok {
		return p
	}
	return float64(50 + symbolHash(symbol)%450)
}

// symbolState is the random walk state for one simulated symbol.
type symbolState struct {
	symbol  string
	price   float64
	baseVol float64
	drift   float64
	rng     *rand.Rand
}

func newSymbolState(symbol string) *symbolState {
	upper := strings.ToUpper(symbol)
	hash := symbolHash(upper)

	var baseVol, drift float64
	if techSymbols[upper] {
		baseVol = 0.015
		drift = 0.0004
		if hash%3 == 0 {
			drift = -0.0002
		}
	} else {
		baseVol = 0.008
		drift = 0.0002
		if hash%2 != 0 {
			drift = -0.0002
		}
	}

	return &symbolState{
		symbol:  upper,
		price:   BasePrice(upper),
		baseVol: baseVol,
		drift:   drift,
		rng:     rand.New(rand.NewSource(int64(hash))),
	}
}

// step advances the walk one tick and returns the resulting market tick.
func (s *symbolState) step(scenario Scenario, now time.Time) domain.MarketTick {
	factor := volatilityProfiles[scenario]
	vol := s.baseVol * factor * factor

	noise := s.rng.NormFloat64() * vol
	drift := s.drift

	switch scenario {
	case ScenarioCrash:
		// Panic selling: cap upside noise and force a steady decline.
		noise = math.Min(math.Max(noise, -0.02), 0.01)
		drift = -0.003
	case ScenarioRally:
		drift = 0.002
	}

	prev := s.price
	s.price = prev * math.Exp(noise+drift)
	if scenario == ScenarioCrash && s.price >= prev {
		s.price = prev * 0.995
	}

	half := s.price * spreadPct(s.price, factor) / 2

	baseVolume := float64(symbolHash(s.symbol)%10 + 1)
	impact := math.Abs(noise) * 100
	volume := int64(baseVolume * (1 + 5*impact) * (0.7 + 0.6*s.rng.Float64()) * 100000)
	if volume < 100 {
		volume = 100
	}

	return domain.MarketTick{
		Symbol:    s.symbol,
		Price:     s.price,
		Bid:       s.price - half,
		Ask:       s.price + half,
		Volume:    volume,
		Timestamp: now,
	}
}

// spreadPct returns the relative bid-ask spread for a price tier. Higher
// priced stocks have narrower percentage spreads.
func spreadPct(price, factor float64) float64 {
	switch {
	case price < 10:
		return 0.002 * factor
	case price < 50:
		return 0.0012 * factor
	case price < 200:
		return 0.0008 * factor
	default:
		return 0.0005 * factor
	}
}

// TickHandler receives market data updates.
type TickHandler func(domain.MarketTick)

// FeedConfig controls the synthetic feed.
type FeedConfig struct {
	Symbols  []string
	Interval time.Duration
	Scenario Scenario
}

// Feed generates synthetic market data on a fixed interval and fans the
// ticks out to subscribers.
type Feed struct {
	mu       sync.RWMutex
	interval time.Duration
	scenario Scenario
	states   map[string]*symbolState
	handlers []TickHandler
	latest   map[string]domain.MarketTick

	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
}

// NewFeed creates a feed for the configured symbols.
func NewFeed(cfg FeedConfig) *Feed {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	scenario := cfg.Scenario
	if !scenario.Valid() {
		scenario = ScenarioNormal
	}

	f := &Feed{
		interval: cfg.Interval,
		scenario: scenario,
		states:   make(map[string]*symbolState),
		latest:   make(map[string]domain.MarketTick),
		done:     make(chan struct{}),
	}
	for _, s := range cfg.Symbols {
		f.AddSymbol(s)
	}
	return f
}

// AddSymbol adds a symbol to the feed. Returns false if already present.
func (f *Feed) AddSymbol(symbol string) bool {
	symbol = strings.ToUpper(symbol)

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.states[symbol]; ok {
		return false
	}
	f.states[symbol] = newSymbolState(symbol)
	slog.Info("symbol added to market data feed", "symbol", symbol)
	return true
}

// RemoveSymbol removes a symbol from the feed. Returns false if not present.
func (f *Feed) RemoveSymbol(symbol string) bool {
	symbol = strings.ToUpper(symbol)

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.states[symbol]; !ok {
		return false
	}
	delete(f.states, symbol)
	delete(f.latest, symbol)
	slog.Info("symbol removed from market data feed", "symbol", symbol)
	return true
}

// Subscribe registers a handler for every tick. Handlers run on the feed
// goroutine and must not block.
func (f *Feed) Subscribe(h TickHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, h)
}

// SetScenario switches the market regime. Returns false for unknown
// scenarios.
func (f *Feed) SetScenario(s Scenario) bool {
	if !s.Valid() {
		return false
	}

	f.mu.Lock()
	f.scenario = s
	f.mu.Unlock()

	slog.Info("market scenario changed", "scenario", string(s), "volatility", volatilityProfiles[s])
	return true
}

// Scenario returns the active market regime.
func (f *Feed) Scenario() Scenario {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.scenario
}

// Symbols returns all symbols on the feed, sorted.
func (f *Feed) Symbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	symbols := make([]string, 0, len(f.states))
	for s := range f.states {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// LatestTick returns the most recent tick for a symbol.
func (f *Feed) LatestTick(symbol string) (domain.MarketTick, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.latest[strings.ToUpper(symbol)]
	return t, ok
}

// LatestPrice returns the most recent price for a symbol.
func (f *Feed) LatestPrice(symbol string) (float64, bool) {
	t, ok := f.LatestTick(symbol)
	if !ok {
		return 0, false
	}
	return t.Price, true
}

// Start begins the tick loop.
func (f *Feed) Start() {
	f.mu.RLock()
	symbols := len(f.states)
	scenario := f.scenario
	f.mu.RUnlock()

	f.ticker = time.NewTicker(f.interval)
	go f.run()

	slog.Info("market data feed started",
		"symbols", symbols,
		"interval", f.interval.String(),
		"scenario", string(scenario),
	)
}

// Stop shuts down the feed.
func (f *Feed) Stop() {
	f.stopOnce.Do(func() {
		if f.ticker != nil {
			f.ticker.Stop()
		}
		close(f.done)
	})
}

func (f *Feed) run() {
	f.publish()
	for {
		select {
		case <-f.ticker.C:
			f.publish()
		case <-f.done:
			slog.Info("market data feed stopped")
			return
		}
	}
}

// publish advances every symbol one tick and notifies subscribers.
// Handlers are invoked outside the lock.
func (f *Feed) publish() {
	now := time.Now()

	f.mu.Lock()
	symbols := make([]string, 0, len(f.states))
	for s := range f.states {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	ticks := make([]domain.MarketTick, 0, len(symbols))
	for _, s := range symbols {
		tick := f.states[s].step(f.scenario, now)
		f.latest[s] = tick
		ticks = append(ticks, tick)
	}
	handlers := make([]TickHandler, len(f.handlers))
	copy(handlers, f.handlers)
	f.mu.Unlock()

	for _, tick := range ticks {
		telemetry.TicksTotal.WithLabelValues(tick.Symbol).Inc()
		for _, h := range handlers {
			h(tick)
		}
	}
}
