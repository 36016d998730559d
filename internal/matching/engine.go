package matching

import (
	"errors"
	"sort"
	"sync"

	"github.com/nathanyu/algo-trading/internal/domain"
	"github.com/nathanyu/algo-trading/internal/orderbook"
)

// ErrUnsupportedOrderType is returned for order types the engine cannot
// route to a book. Stop orders are valid to create but are never submitted
// for matching here.
var ErrUnsupportedOrderType = errors.New("order type not supported by matching engine")

// Engine maintains per-symbol order books and routes incoming orders for
// matching. Books are created lazily and live for the engine's lifetime.
// Each book serializes its own operations, so different symbols run
// matching fully in parallel.
type Engine struct {
	mu    sync.RWMutex
	books map[string]*orderbook.OrderBook // symbol -> order book
}

// NewEngine creates a matching engine with no books.
func NewEngine() *Engine {
	return &Engine{
		books: make(map[string]*orderbook.OrderBook),
	}
}

// Book returns the order book for a symbol, creating it when absent.
func (e *Engine) Book(symbol string) *orderbook.OrderBook {
	e.mu.RLock()
	book, exists := e.books[symbol]
	e.mu.RUnlock()
	if exists {
		return book
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if book, exists = e.books[symbol]; exists {
		return book
	}
	book = orderbook.NewOrderBook(symbol)
	e.books[symbol] = book
	return book
}

// Submit routes an order to its symbol's book by type and returns the
// executions generated by matching.
func (e *Engine) Submit(order *domain.Order) ([]domain.Execution, error) {
	if order == nil {
		return nil, orderbook.ErrNilOrder
	}

	book := e.Book(order.Symbol)
	switch order.Type {
	case domain.OrderTypeLimit:
		return book.SubmitLimit(order)
	case domain.OrderTypeMarket:
		return book.SubmitMarket(order)
	default:
		return nil, ErrUnsupportedOrderType
	}
}

// Cancel removes a resting order from its symbol's book. Returns false
// when the symbol has no book or the order is not resting.
func (e *Engine) Cancel(order *domain.Order) bool {
	if order == nil {
		return false
	}

	e.mu.RLock()
	book, exists := e.books[order.Symbol]
	e.mu.RUnlock()
	if !exists {
		return false
	}
	return book.Cancel(order)
}

// Snapshot returns the aggregated book for a symbol. An unknown symbol
// yields an empty snapshot rather than an error.
func (e *Engine) Snapshot(symbol string, depth int) domain.L2OrderBook {
	e.mu.RLock()
	book, exists := e.books[symbol]
	e.mu.RUnlock()
	if !exists {
		return domain.L2OrderBook{
			Symbol: symbol,
			Bids:   []domain.PriceLevel{},
			Asks:   []domain.PriceLevel{},
		}
	}
	return book.Snapshot(depth)
}

// Quote returns the top-of-book view for a symbol. An unknown symbol
// yields a quote with all presence flags false.
func (e *Engine) Quote(symbol string) domain.Quote {
	e.mu.RLock()
	book, exists := e.books[symbol]
	e.mu.RUnlock()
	if !exists {
		return domain.Quote{Symbol: symbol}
	}
	return book.Quote()
}

// Symbols returns all symbols with a book, sorted.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	symbols := make([]string, 0, len(e.books))
	for symbol := range e.books {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
