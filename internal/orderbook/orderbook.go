package orderbook

import (
	"container/list"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/nathanyu/algo-trading/internal/domain"
)

const (
	// priceEpsilon is the tolerance for price comparisons. Two prices
	// closer than this land on the same level.
	priceEpsilon = 1e-9
	// quantityEpsilon is the tolerance below which a remaining quantity
	// counts as fully filled.
	quantityEpsilon = 1e-9
)

var (
	ErrNilOrder        = errors.New("order is nil")
	ErrSymbolMismatch  = errors.New("order symbol does not match book")
	ErrWrongOrderType  = errors.New("order type not accepted by this operation")
	ErrInvalidPrice    = errors.New("price must be positive")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrOrderInactive   = errors.New("order is not active")
	ErrDuplicateOrder  = errors.New("order already resting in book")
)

// orderEntry maps an order ID to its place in the book for O(1) cancel.
// The side pointer records where the order actually rests, so a stale
// Side field on the order cannot misdirect removal.
type orderEntry struct {
	order   *domain.Order
	element *list.Element
	level   *bookLevel
	side    *bookSide
}

// bookLevel is a single price level: a FIFO queue of resting orders.
// size is always the sum of the members' remaining quantities.
type bookLevel struct {
	price  float64
	size   float64
	orders *list.List // of *domain.Order
}

// bookSide holds one side of the book as a single slice of levels kept in
// priority order: bids descending by price, asks ascending. Lookup and
// insertion go through binary search with an epsilon compare, so float
// prices never key a map.
type bookSide struct {
	side   domain.Side
	levels []*bookLevel
}

func newBookSide(side domain.Side) *bookSide {
	return &bookSide{side: side}
}

// search returns the index of the level matching price within epsilon and
// true, or the insertion index that keeps priority order and false.
func (s *bookSide) search(price float64) (int, bool) {
	i := sort.Search(len(s.levels), func(i int) bool {
		if s.side == domain.SideBuy {
			return s.levels[i].price <= price+priceEpsilon
		}
		return s.levels[i].price >= price-priceEpsilon
	})
	if i < len(s.levels) && math.Abs(s.levels[i].price-price) < priceEpsilon {
		return i, true
	}
	return i, false
}

// getOrCreate returns the level for price, inserting it in priority order
// when absent.
func (s *bookSide) getOrCreate(price float64) *bookLevel {
	i, found := s.search(price)
	if found {
		return s.levels[i]
	}
	level := &bookLevel{price: price, orders: list.New()}
	s.levels = append(s.levels, nil)
	copy(s.levels[i+1:], s.levels[i:])
	s.levels[i] = level
	return level
}

// best returns the highest-priority level, nil when the side is empty.
func (s *bookSide) best() *bookLevel {
	if len(s.levels) == 0 {
		return nil
	}
	return s.levels[0]
}

// removeLevel deletes the level at index i.
func (s *bookSide) removeLevel(i int) {
	s.levels = append(s.levels[:i], s.levels[i+1:]...)
}

// removeLevelByPrice locates a level by price and deletes it.
func (s *bookSide) removeLevelByPrice(price float64) {
	if i, found := s.search(price); found {
		s.removeLevel(i)
	}
}

// OrderBook is the two-sided book for a single symbol with price-time
// priority matching. All operations are safe for concurrent use; the book
// instance is the unit of mutual exclusion, so books for different symbols
// never contend.
type OrderBook struct {
	mu      sync.RWMutex
	symbol  string
	bids    *bookSide
	asks    *bookSide
	entries map[string]*orderEntry // order ID -> entry

	lastTradePrice float64
	hasLastTrade   bool
}

// NewOrderBook creates an empty order book for a symbol.
func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		symbol:  symbol,
		bids:    newBookSide(domain.SideBuy),
		asks:    newBookSide(domain.SideSell),
		entries: make(map[string]*orderEntry),
	}
}

// Symbol returns the symbol this book trades.
func (ob *OrderBook) Symbol() string {
	return ob.symbol
}

func (ob *OrderBook) validate(order *domain.Order, want domain.OrderType) error {
	if order == nil {
		return ErrNilOrder
	}
	if order.Symbol != ob.symbol {
		return ErrSymbolMismatch
	}
	if order.Type != want {
		return ErrWrongOrderType
	}
	if order.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !order.IsActive() {
		return ErrOrderInactive
	}
	return nil
}

// SubmitLimit matches a limit order against the opposite side as far as its
// limit price allows, then rests any remainder. Executions are returned in
// match order and always carry the resting order's price. The book is not
// touched when validation fails.
func (ob *OrderBook) SubmitLimit(order *domain.Order) ([]domain.Execution, error) {
	if err := ob.validate(order, domain.OrderTypeLimit); err != nil {
		return nil, err
	}
	if order.Price <= 0 {
		return nil, ErrInvalidPrice
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	if _, exists := ob.entries[order.ID]; exists {
		return nil, ErrDuplicateOrder
	}

	execs := ob.match(order, order.Price, true)
	if order.RemainingQuantity() > quantityEpsilon {
		ob.rest(order)
	}
	return execs, nil
}

// SubmitMarket matches a market order until the opposite side is exhausted.
// Any remainder is discarded, never rested; the caller decides whether to
// cancel the leftover.
func (ob *OrderBook) SubmitMarket(order *domain.Order) ([]domain.Execution, error) {
	if err := ob.validate(order, domain.OrderTypeMarket); err != nil {
		return nil, err
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	if _, exists := ob.entries[order.ID]; exists {
		return nil, ErrDuplicateOrder
	}
	return ob.match(order, 0, false), nil
}

// match walks the opposite side consuming liquidity in price-time order.
// limit bounds the walk for limit orders; bounded=false walks to exhaustion.
func (ob *OrderBook) match(taker *domain.Order, limit float64, bounded bool) []domain.Execution {
	opposite := ob.asks
	if taker.Side == domain.SideSell {
		opposite = ob.bids
	}

	var execs []domain.Execution
	seq := 0

	for taker.RemainingQuantity() > quantityEpsilon {
		level := opposite.best()
		if level == nil {
			break
		}
		if bounded && !crosses(taker.Side, limit, level.price) {
			break
		}

		// FIFO within the level: consume from the head.
		for taker.RemainingQuantity() > quantityEpsilon && level.orders.Len() > 0 {
			front := level.orders.Front()
			maker := front.Value.(*domain.Order)

			qty := math.Min(taker.RemainingQuantity(), maker.RemainingQuantity())
			price := maker.Price // execute at the resting order's price

			applyFill(taker, qty, price)
			applyFill(maker, qty, price)
			level.size -= qty

			if maker.RemainingQuantity() <= quantityEpsilon {
				level.orders.Remove(front)
				delete(ob.entries, maker.ID)
			}

			seq++
			execs = append(execs, domain.Execution{
				ExecID:       fmt.Sprintf("%s-exec-%d", taker.ID, seq),
				OrderID:      taker.ID,
				Symbol:       taker.Symbol,
				Side:         taker.Side,
				Quantity:     qty,
				Price:        price,
				MakerOrderID: maker.ID,
				Timestamp:    time.Now(),
			})
			ob.lastTradePrice = price
			ob.hasLastTrade = true
		}

		if level.orders.Len() == 0 {
			opposite.removeLevel(0)
		}
	}

	return execs
}

// crosses reports whether a resting price is marketable against the limit.
func crosses(takerSide domain.Side, limit, restingPrice float64) bool {
	if takerSide == domain.SideBuy {
		return restingPrice <= limit+priceEpsilon
	}
	return restingPrice >= limit-priceEpsilon
}

// applyFill advances an order's filled quantity, volume-weighted average
// fill price, and status. A remainder inside quantityEpsilon is clamped so
// the order reads exactly filled.
func applyFill(o *domain.Order, qty, price float64) {
	o.AvgFillPrice = (o.AvgFillPrice*o.FilledQuantity + price*qty) / (o.FilledQuantity + qty)
	o.FilledQuantity += qty
	if o.RemainingQuantity() <= quantityEpsilon {
		o.FilledQuantity = o.Quantity
		o.Status = domain.OrderStatusFilled
	} else {
		o.Status = domain.OrderStatusPartiallyFilled
	}
	o.UpdatedAt = time.Now()
}

// rest appends the order to the tail of its price level. Caller holds the lock.
func (ob *OrderBook) rest(order *domain.Order) {
	side := ob.bids
	if order.Side == domain.SideSell {
		side = ob.asks
	}
	level := side.getOrCreate(order.Price)
	level.size += order.RemainingQuantity()
	elem := level.orders.PushBack(order)
	ob.entries[order.ID] = &orderEntry{order: order, element: elem, level: level, side: side}
}

// Cancel removes a resting order from the book by ID. The entry records the
// side the order actually rests on, so a stale Side field on the argument
// is irrelevant. Returns false when the order is not resting. The order's
// status is left untouched; lifecycle transitions belong to the caller.
func (ob *OrderBook) Cancel(order *domain.Order) bool {
	if order == nil {
		return false
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	entry, ok := ob.entries[order.ID]
	if !ok {
		return false
	}

	entry.level.orders.Remove(entry.element)
	entry.level.size -= entry.order.RemainingQuantity()
	if entry.level.orders.Len() == 0 {
		entry.side.removeLevelByPrice(entry.level.price)
	}
	delete(ob.entries, entry.order.ID)
	return true
}

// BestBid returns the highest resting buy price. The bool is false when the
// bid side is empty.
func (ob *OrderBook) BestBid() (float64, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if level := ob.bids.best(); level != nil {
		return level.price, true
	}
	return 0, false
}

// BestAsk returns the lowest resting sell price. The bool is false when the
// ask side is empty.
func (ob *OrderBook) BestAsk() (float64, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if level := ob.asks.best(); level != nil {
		return level.price, true
	}
	return 0, false
}

// MidPrice returns the midpoint of the best bid and ask. Undefined (false)
// unless both sides have orders.
func (ob *OrderBook) MidPrice() (float64, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	bid, ask := ob.bids.best(), ob.asks.best()
	if bid == nil || ask == nil {
		return 0, false
	}
	return (bid.price + ask.price) / 2, true
}

// Spread returns best ask minus best bid. Undefined (false) unless both
// sides have orders.
func (ob *OrderBook) Spread() (float64, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	bid, ask := ob.bids.best(), ob.asks.best()
	if bid == nil || ask == nil {
		return 0, false
	}
	return ask.price - bid.price, true
}

// LastTradePrice returns the price of the most recent execution in this
// book, false before any trade.
func (ob *OrderBook) LastTradePrice() (float64, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.lastTradePrice, ob.hasLastTrade
}

// Quote assembles the top-of-book view in one locked pass.
func (ob *OrderBook) Quote() domain.Quote {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	q := domain.Quote{Symbol: ob.symbol}
	if level := ob.bids.best(); level != nil {
		q.Bid = level.price
		q.HasBid = true
	}
	if level := ob.asks.best(); level != nil {
		q.Ask = level.price
		q.HasAsk = true
	}
	if q.HasBid && q.HasAsk {
		q.Mid = (q.Bid + q.Ask) / 2
		q.Spread = q.Ask - q.Bid
	}
	if ob.hasLastTrade {
		q.Last = ob.lastTradePrice
		q.HasLast = true
	}
	return q
}

// Snapshot returns the top depth levels per side as aggregated price,
// size and order count. depth <= 0 returns all levels.
func (ob *OrderBook) Snapshot(depth int) domain.L2OrderBook {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return domain.L2OrderBook{
		Symbol:    ob.symbol,
		Bids:      aggregateLevels(ob.bids, depth),
		Asks:      aggregateLevels(ob.asks, depth),
		Timestamp: time.Now(),
	}
}

// aggregateLevels copies levels in priority order up to depth.
func aggregateLevels(side *bookSide, depth int) []domain.PriceLevel {
	n := len(side.levels)
	if depth > 0 && n > depth {
		n = depth
	}
	levels := make([]domain.PriceLevel, n)
	for i := 0; i < n; i++ {
		level := side.levels[i]
		levels[i] = domain.PriceLevel{
			Price:      level.price,
			Size:       level.size,
			OrderCount: level.orders.Len(),
		}
	}
	return levels
}
