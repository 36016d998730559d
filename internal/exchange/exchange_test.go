package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanyu/algo-trading/internal/domain"
	"github.com/nathanyu/algo-trading/internal/ordermanager"
)

const initialCapital = 100_000.0

func newExchange() *Exchange {
	return New(Config{InitialCapital: initialCapital})
}

func TestPlaceOrder_LimitRests(t *testing.T) {
	ex := newExchange()

	order, execs, err := ex.PlaceOrder("AAPL", domain.SideSell, 10, domain.OrderTypeLimit, 150.0, 0)
	require.NoError(t, err)
	assert.Empty(t, execs)
	assert.Equal(t, domain.OrderStatusPending, order.Status)

	snap := ex.Snapshot("AAPL", 5)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, 150.0, snap.Asks[0].Price)
	assert.Equal(t, 10.0, snap.Asks[0].Size)
}

func TestPlaceOrder_EndToEnd(t *testing.T) {
	ex := newExchange()

	maker, _, err := ex.PlaceOrder("AAPL", domain.SideSell, 10, domain.OrderTypeLimit, 150.0, 0)
	require.NoError(t, err)

	taker, execs, err := ex.PlaceOrder("AAPL", domain.SideBuy, 10, domain.OrderTypeMarket, 0, 0)
	require.NoError(t, err)

	require.Len(t, execs, 1)
	assert.Equal(t, 150.0, execs[0].Price)
	assert.Equal(t, 10.0, execs[0].Quantity)
	assert.Equal(t, maker.ID, execs[0].MakerOrderID)
	assert.Equal(t, uint64(1), execs[0].SequenceID)

	// Both sides of the fill are reflected in the lifecycle state. The
	// maker snapshot predates the cross, so fetch it again.
	assert.Equal(t, domain.OrderStatusFilled, taker.Status)
	assert.Equal(t, 150.0, taker.AvgFillPrice)
	makerNow, ok := ex.GetOrder(maker.ID)
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusFilled, makerNow.Status)

	// The taker bought 10 at the resting price.
	pos, ok := ex.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, 10.0, pos.Quantity)
	assert.Equal(t, 150.0, pos.AvgPrice)
	assert.InDelta(t, initialCapital-1500.0, ex.Portfolio().Cash, 1e-9)

	// The book is empty again.
	snap := ex.Snapshot("AAPL", 5)
	assert.Empty(t, snap.Asks)
	assert.Empty(t, snap.Bids)
}

func TestPlaceOrder_ValidationFailureHasNoSideEffects(t *testing.T) {
	ex := newExchange()

	_, _, err := ex.PlaceOrder("AAPL", domain.SideBuy, -5, domain.OrderTypeLimit, 150.0, 0)
	assert.ErrorIs(t, err, ordermanager.ErrInvalidQuantity)

	assert.Empty(t, ex.ActiveOrders())
	assert.Empty(t, ex.Snapshot("AAPL", 5).Bids)
	assert.Equal(t, initialCapital, ex.Portfolio().Cash)
}

func TestPlaceOrder_StopOrderHeldInManager(t *testing.T) {
	ex := newExchange()

	order, execs, err := ex.PlaceOrder("AAPL", domain.SideSell, 10, domain.OrderTypeStop, 0, 145.0)
	require.NoError(t, err)
	assert.Empty(t, execs)
	assert.Equal(t, domain.OrderStatusPending, order.Status)

	// Stop orders never reach a book.
	assert.Empty(t, ex.Snapshot("AAPL", 5).Asks)

	got, ok := ex.GetOrder(order.ID)
	require.True(t, ok)
	assert.True(t, got.IsActive())
}

func TestPlaceOrder_MarketRemainderCancelled(t *testing.T) {
	ex := newExchange()

	ex.PlaceOrder("AAPL", domain.SideSell, 5, domain.OrderTypeLimit, 150.0, 0)

	order, execs, err := ex.PlaceOrder("AAPL", domain.SideBuy, 10, domain.OrderTypeMarket, 0, 0)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, 5.0, execs[0].Quantity)

	// The unfilled remainder is closed out, not left resting.
	assert.Equal(t, domain.OrderStatusCancelled, order.Status)
	assert.Equal(t, 5.0, order.FilledQuantity)
	assert.Empty(t, ex.Snapshot("AAPL", 5).Bids)
}

func TestExecuteOrder(t *testing.T) {
	ex := newExchange()

	order, err := ex.CreateOrder("AAPL", domain.SideBuy, 100, domain.OrderTypeMarket, 0, 0)
	require.NoError(t, err)

	require.True(t, ex.ExecuteOrder(order.ID, 100, 185.50))

	filled, ok := ex.GetOrder(order.ID)
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusFilled, filled.Status)
	pos, ok := ex.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, 100.0, pos.Quantity)
	assert.Equal(t, 185.50, pos.AvgPrice)
	assert.InDelta(t, initialCapital-18550.0, ex.Portfolio().Cash, 1e-9)

	// Terminal orders accept no further fills.
	assert.False(t, ex.ExecuteOrder(order.ID, 1, 185.50))
}

func TestExecuteOrder_Unknown(t *testing.T) {
	ex := newExchange()
	assert.False(t, ex.ExecuteOrder("missing", 100, 185.50))
}

func TestExecuteOrder_SellSignsTrade(t *testing.T) {
	ex := newExchange()

	buy, _ := ex.CreateOrder("AAPL", domain.SideBuy, 10, domain.OrderTypeMarket, 0, 0)
	require.True(t, ex.ExecuteOrder(buy.ID, 10, 150.0))

	sell, _ := ex.CreateOrder("AAPL", domain.SideSell, 10, domain.OrderTypeMarket, 0, 0)
	require.True(t, ex.ExecuteOrder(sell.ID, 10, 160.0))

	pos, ok := ex.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, 0.0, pos.Quantity)
	assert.Equal(t, 100.0, pos.RealizedPnL)
}

func TestCancelOrder(t *testing.T) {
	ex := newExchange()

	order, _, err := ex.PlaceOrder("AAPL", domain.SideBuy, 10, domain.OrderTypeLimit, 150.0, 0)
	require.NoError(t, err)

	require.True(t, ex.CancelOrder(order.ID))
	cancelled, ok := ex.GetOrder(order.ID)
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Empty(t, ex.Snapshot("AAPL", 5).Bids)

	// Second cancel is a no-op.
	assert.False(t, ex.CancelOrder(order.ID))
	assert.False(t, ex.CancelOrder("missing"))
}

func TestRejectOrder(t *testing.T) {
	ex := newExchange()

	order, _, err := ex.PlaceOrder("AAPL", domain.SideBuy, 10, domain.OrderTypeLimit, 150.0, 0)
	require.NoError(t, err)

	require.True(t, ex.RejectOrder(order.ID))
	rejected, ok := ex.GetOrder(order.ID)
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusRejected, rejected.Status)
	assert.Empty(t, ex.Snapshot("AAPL", 5).Bids)
}

func TestRejectOrder_RefusedAfterFill(t *testing.T) {
	ex := newExchange()

	maker, _, err := ex.PlaceOrder("AAPL", domain.SideSell, 10, domain.OrderTypeLimit, 150.0, 0)
	require.NoError(t, err)
	ex.PlaceOrder("AAPL", domain.SideBuy, 4, domain.OrderTypeLimit, 150.0, 0)

	makerNow, ok := ex.GetOrder(maker.ID)
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusPartiallyFilled, makerNow.Status)
	assert.False(t, ex.RejectOrder(maker.ID))

	// Still resting with the remainder.
	snap := ex.Snapshot("AAPL", 5)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, 6.0, snap.Asks[0].Size)
}

func TestSettlements(t *testing.T) {
	ex := newExchange()

	ex.PlaceOrder("AAPL", domain.SideSell, 5, domain.OrderTypeLimit, 153.0, 0)
	ex.PlaceOrder("AAPL", domain.SideSell, 10, domain.OrderTypeLimit, 155.0, 0)
	ex.PlaceOrder("AAPL", domain.SideBuy, 15, domain.OrderTypeLimit, 156.0, 0)

	first := <-ex.Settlements()
	second := <-ex.Settlements()

	// Settlement order matches match order, cheapest ask first.
	assert.Equal(t, 153.0, first.Execution.Price)
	assert.Equal(t, 5.0, first.Execution.Quantity)
	assert.Equal(t, uint64(1), first.Execution.SequenceID)
	assert.Equal(t, 155.0, second.Execution.Price)
	assert.Equal(t, 10.0, second.Execution.Quantity)
	assert.Equal(t, uint64(2), second.Execution.SequenceID)

	// Opening buys realize nothing.
	assert.Equal(t, 0.0, first.RealizedPnL)
	assert.Equal(t, 0.0, second.RealizedPnL)
}

func TestSettlements_RealizedPnL(t *testing.T) {
	ex := newExchange()

	buy, _ := ex.CreateOrder("AAPL", domain.SideBuy, 10, domain.OrderTypeMarket, 0, 0)
	ex.ExecuteOrder(buy.ID, 10, 150.0)
	<-ex.Settlements()

	sell, _ := ex.CreateOrder("AAPL", domain.SideSell, 10, domain.OrderTypeMarket, 0, 0)
	ex.ExecuteOrder(sell.ID, 10, 160.0)

	s := <-ex.Settlements()
	assert.Equal(t, 100.0, s.RealizedPnL)
}

func TestCommission(t *testing.T) {
	ex := New(Config{InitialCapital: initialCapital, CommissionPerShare: 0.01})

	order, _ := ex.CreateOrder("AAPL", domain.SideBuy, 100, domain.OrderTypeMarket, 0, 0)
	require.True(t, ex.ExecuteOrder(order.ID, 100, 150.0))

	// 100 shares at 150 plus 100 * 0.01 commission.
	assert.InDelta(t, initialCapital-15000.0-1.0, ex.Portfolio().Cash, 1e-9)
}

func TestMarkPrice(t *testing.T) {
	ex := newExchange()

	order, _ := ex.CreateOrder("AAPL", domain.SideBuy, 10, domain.OrderTypeMarket, 0, 0)
	ex.ExecuteOrder(order.ID, 10, 150.0)

	ex.MarkPrice("AAPL", 155.0)

	pos, ok := ex.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, 50.0, pos.UnrealizedPnL)
}

func TestGetOrder_SnapshotIsolatedFromFills(t *testing.T) {
	ex := newExchange()

	maker, _, err := ex.PlaceOrder("AAPL", domain.SideSell, 10, domain.OrderTypeLimit, 150.0, 0)
	require.NoError(t, err)

	snap, ok := ex.GetOrder(maker.ID)
	require.True(t, ok)
	require.Equal(t, domain.OrderStatusPending, snap.Status)

	// A crossing submission fills the resting order. The snapshot read
	// before it keeps the state it was read with; a reader serializing it
	// never sees a half-applied fill.
	ex.PlaceOrder("AAPL", domain.SideBuy, 10, domain.OrderTypeMarket, 0, 0)

	assert.Equal(t, domain.OrderStatusPending, snap.Status)
	assert.Equal(t, 0.0, snap.FilledQuantity)

	current, ok := ex.GetOrder(maker.ID)
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusFilled, current.Status)
	assert.Equal(t, 10.0, current.FilledQuantity)
}

func TestQueryOrders(t *testing.T) {
	ex := newExchange()

	ex.PlaceOrder("AAPL", domain.SideBuy, 10, domain.OrderTypeLimit, 150.0, 0)
	ex.PlaceOrder("MSFT", domain.SideSell, 5, domain.OrderTypeLimit, 400.0, 0)

	got := ex.QueryOrders(ordermanager.OrderFilter{Symbol: "AAPL"})
	require.Len(t, got, 1)
	assert.Equal(t, "AAPL", got[0].Symbol)

	assert.Len(t, ex.ActiveOrders(), 2)
	assert.Equal(t, []string{"AAPL", "MSFT"}, ex.Symbols())
}
