package ordermanager

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nathanyu/algo-trading/internal/domain"
)

// quantityEpsilon is the tolerance below which a remaining quantity counts
// as fully filled.
const quantityEpsilon = 1e-9

var (
	ErrInvalidSymbol     = errors.New("symbol must not be empty")
	ErrInvalidSide       = errors.New("invalid order side")
	ErrInvalidOrderType  = errors.New("invalid order type")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrMissingLimitPrice = errors.New("limit price required for this order type")
	ErrMissingStopPrice  = errors.New("stop price required for this order type")
)

// Manager owns the order registry and the lifecycle state machine:
// pending -> partially_filled -> filled, with cancel from the two live
// states and reject from pending only. Terminal states never transition.
//
// Errors report caller mistakes (invalid arguments). Boolean returns are
// probes: false means the target was unknown or already terminal, which is
// an expected outcome under concurrency, not a failure.
type Manager struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order // order ID -> order
}

// NewManager creates an empty order manager.
func NewManager() *Manager {
	return &Manager{
		orders: make(map[string]*domain.Order),
	}
}

// CreateOrder validates the parameters and registers a new pending order.
// Price and stopPrice are optional; zero means not provided. A validation
// failure leaves no trace: no registry entry, no side effects.
func (m *Manager) CreateOrder(symbol string, side domain.Side, quantity float64, typ domain.OrderType, price, stopPrice float64) (*domain.Order, error) {
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	if !side.Valid() {
		return nil, ErrInvalidSide
	}
	if !typ.Valid() {
		return nil, ErrInvalidOrderType
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if typ.RequiresLimitPrice() && price <= 0 {
		return nil, ErrMissingLimitPrice
	}
	if typ.RequiresStopPrice() && stopPrice <= 0 {
		return nil, ErrMissingStopPrice
	}

	now := time.Now()
	order := &domain.Order{
		ID:        uuid.New().String(),
		Symbol:    symbol,
		Side:      side,
		Type:      typ,
		Quantity:  quantity,
		Price:     price,
		StopPrice: stopPrice,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.orders[order.ID] = order
	m.mu.Unlock()

	slog.Debug("order created",
		"order_id", order.ID,
		"symbol", symbol,
		"side", side,
		"type", typ,
		"quantity", quantity,
	)
	return order, nil
}

// CancelOrder moves a live order to cancelled. Returns false when the ID is
// unknown or the order is already terminal.
func (m *Manager) CancelOrder(orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, exists := m.orders[orderID]
	if !exists || order.Status.Terminal() {
		return false
	}

	order.Status = domain.OrderStatusCancelled
	order.UpdatedAt = time.Now()
	return true
}

// RejectOrder moves a pending order to rejected. Rejection only happens at
// validation time, so any other state returns false.
func (m *Manager) RejectOrder(orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, exists := m.orders[orderID]
	if !exists || order.Status != domain.OrderStatusPending {
		return false
	}

	order.Status = domain.OrderStatusRejected
	order.UpdatedAt = time.Now()
	return true
}

// RecordExecution applies a fill to a live order: quantity is clamped to
// the remaining amount, the volume-weighted average fill price advances,
// and the order becomes filled once the full quantity is reached. Returns
// false for unknown or terminal orders and for non-positive or
// over-remaining quantities.
func (m *Manager) RecordExecution(orderID string, quantity, price float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, exists := m.orders[orderID]
	if !exists || order.Status.Terminal() {
		return false
	}
	if quantity <= 0 {
		return false
	}

	remaining := order.RemainingQuantity()
	if quantity > remaining+quantityEpsilon {
		return false
	}
	if quantity > remaining {
		quantity = remaining
	}

	order.AvgFillPrice = (order.AvgFillPrice*order.FilledQuantity + price*quantity) / (order.FilledQuantity + quantity)
	order.FilledQuantity += quantity
	if order.RemainingQuantity() <= quantityEpsilon {
		order.FilledQuantity = order.Quantity
		order.Status = domain.OrderStatusFilled
	} else {
		order.Status = domain.OrderStatusPartiallyFilled
	}
	order.UpdatedAt = time.Now()
	return true
}

// GetOrder returns a snapshot of the order for an ID. Fills keep mutating
// registry orders after retrieval, so callers get a copy rather than a
// reference into the registry.
func (m *Manager) GetOrder(orderID string) (domain.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, exists := m.orders[orderID]
	if !exists {
		return domain.Order{}, false
	}
	return *order, true
}

// OrderFilter narrows a query. Zero-valued fields match everything; set
// fields are ANDed together.
type OrderFilter struct {
	Symbol string
	Status domain.OrderStatus
	Side   domain.Side
}

// QueryOrders returns snapshots of the orders matching the filter, oldest
// first.
func (m *Manager) QueryOrders(filter OrderFilter) []domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []domain.Order
	for _, order := range m.orders {
		if filter.Symbol != "" && order.Symbol != filter.Symbol {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.Side != "" && order.Side != filter.Side {
			continue
		}
		result = append(result, *order)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// ActiveOrders returns snapshots of all orders still able to trade, oldest
// first.
func (m *Manager) ActiveOrders() []domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []domain.Order
	for _, order := range m.orders {
		if order.IsActive() {
			result = append(result, *order)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// OrderCount returns the total number of registered orders.
func (m *Manager) OrderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.orders)
}
