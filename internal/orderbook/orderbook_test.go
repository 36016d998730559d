package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanyu/algo-trading/internal/domain"
)

func newLimitOrder(id string, side domain.Side, price, qty float64) *domain.Order {
	return &domain.Order{
		ID:       id,
		Symbol:   "AAPL",
		Side:     side,
		Type:     domain.OrderTypeLimit,
		Price:    price,
		Quantity: qty,
		Status:   domain.OrderStatusPending,
	}
}

func newMarketOrder(id string, side domain.Side, qty float64) *domain.Order {
	return &domain.Order{
		ID:       id,
		Symbol:   "AAPL",
		Side:     side,
		Type:     domain.OrderTypeMarket,
		Quantity: qty,
		Status:   domain.OrderStatusPending,
	}
}

func TestSubmitLimit_RestsWhenNoMatch(t *testing.T) {
	ob := NewOrderBook("AAPL")

	buy := newLimitOrder("b1", domain.SideBuy, 150.0, 100)
	execs, err := ob.SubmitLimit(buy)

	require.NoError(t, err)
	assert.Empty(t, execs)
	assert.Equal(t, domain.OrderStatusPending, buy.Status)

	bid, ok := ob.BestBid()
	require.True(t, ok)
	assert.Equal(t, 150.0, bid)

	snap := ob.Snapshot(5)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, 100.0, snap.Bids[0].Size)
	assert.Equal(t, 1, snap.Bids[0].OrderCount)
}

func TestSubmitLimit_AggregatesSamePriceLevel(t *testing.T) {
	ob := NewOrderBook("AAPL")

	_, err := ob.SubmitLimit(newLimitOrder("s1", domain.SideSell, 151.0, 500))
	require.NoError(t, err)
	_, err = ob.SubmitLimit(newLimitOrder("s2", domain.SideSell, 151.0, 300))
	require.NoError(t, err)

	snap := ob.Snapshot(5)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, 800.0, snap.Asks[0].Size) // aggregated
	assert.Equal(t, 2, snap.Asks[0].OrderCount)
}

func TestSubmitLimit_SamePriceWithinEpsilon(t *testing.T) {
	ob := NewOrderBook("AAPL")

	_, err := ob.SubmitLimit(newLimitOrder("s1", domain.SideSell, 100.0, 10))
	require.NoError(t, err)
	_, err = ob.SubmitLimit(newLimitOrder("s2", domain.SideSell, 100.0+1e-10, 10))
	require.NoError(t, err)

	// Prices differ by less than the epsilon, so they share one level.
	snap := ob.Snapshot(5)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, 2, snap.Asks[0].OrderCount)
}

func TestBestPriceOrdering(t *testing.T) {
	ob := NewOrderBook("AAPL")

	ob.SubmitLimit(newLimitOrder("b1", domain.SideBuy, 149.90, 100))
	ob.SubmitLimit(newLimitOrder("b2", domain.SideBuy, 150.00, 100))
	ob.SubmitLimit(newLimitOrder("b3", domain.SideBuy, 149.80, 100))

	bid, ok := ob.BestBid()
	require.True(t, ok)
	assert.Equal(t, 150.0, bid) // best bid = highest buy price

	ob.SubmitLimit(newLimitOrder("s1", domain.SideSell, 150.10, 100))
	ob.SubmitLimit(newLimitOrder("s2", domain.SideSell, 150.20, 100))

	ask, ok := ob.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 150.10, ask) // best ask = lowest sell price
}

func TestSubmitLimit_FullFill(t *testing.T) {
	ob := NewOrderBook("AAPL")

	sell := newLimitOrder("s1", domain.SideSell, 150.25, 1000)
	_, err := ob.SubmitLimit(sell)
	require.NoError(t, err)

	buy := newLimitOrder("b1", domain.SideBuy, 150.25, 1000)
	execs, err := ob.SubmitLimit(buy)
	require.NoError(t, err)

	require.Len(t, execs, 1)
	assert.Equal(t, 1000.0, execs[0].Quantity)
	assert.Equal(t, 150.25, execs[0].Price) // executes at maker's price
	assert.Equal(t, "s1", execs[0].MakerOrderID)
	assert.Equal(t, "b1", execs[0].OrderID)
	assert.Equal(t, domain.SideBuy, execs[0].Side)

	assert.Equal(t, domain.OrderStatusFilled, buy.Status)
	assert.Equal(t, domain.OrderStatusFilled, sell.Status)

	_, ok := ob.BestAsk()
	assert.False(t, ok)
}

func TestSubmitLimit_PartialFillRestsRemainder(t *testing.T) {
	ob := NewOrderBook("AAPL")

	sell := newLimitOrder("s1", domain.SideSell, 150.0, 5)
	ob.SubmitLimit(sell)

	buy := newLimitOrder("b1", domain.SideBuy, 150.0, 8)
	execs, err := ob.SubmitLimit(buy)
	require.NoError(t, err)

	require.Len(t, execs, 1)
	assert.Equal(t, 5.0, execs[0].Quantity)
	assert.Equal(t, domain.OrderStatusFilled, sell.Status)
	assert.Equal(t, domain.OrderStatusPartiallyFilled, buy.Status)
	assert.Equal(t, 3.0, buy.RemainingQuantity())

	// Remainder rests on the bid side.
	snap := ob.Snapshot(5)
	assert.Empty(t, snap.Asks)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, 150.0, snap.Bids[0].Price)
	assert.Equal(t, 3.0, snap.Bids[0].Size)
}

func TestSubmitLimit_WalksLevels(t *testing.T) {
	ob := NewOrderBook("AAPL")

	ob.SubmitLimit(newLimitOrder("s1", domain.SideSell, 153.0, 5))
	ob.SubmitLimit(newLimitOrder("s2", domain.SideSell, 155.0, 10))

	buy := newLimitOrder("b1", domain.SideBuy, 156.0, 15)
	execs, err := ob.SubmitLimit(buy)
	require.NoError(t, err)

	require.Len(t, execs, 2)
	assert.Equal(t, 5.0, execs[0].Quantity) // best ask consumed first
	assert.Equal(t, 153.0, execs[0].Price)
	assert.Equal(t, 10.0, execs[1].Quantity)
	assert.Equal(t, 155.0, execs[1].Price)

	assert.Equal(t, domain.OrderStatusFilled, buy.Status)
	assert.InDelta(t, (5*153.0+10*155.0)/15, buy.AvgFillPrice, 1e-9)

	_, ok := ob.BestAsk()
	assert.False(t, ok) // ask side fully consumed
}

func TestSubmitLimit_RespectsLimitPrice(t *testing.T) {
	ob := NewOrderBook("AAPL")

	ob.SubmitLimit(newLimitOrder("s1", domain.SideSell, 153.0, 5))
	ob.SubmitLimit(newLimitOrder("s2", domain.SideSell, 155.0, 10))

	// Limit 154 reaches only the 153 level.
	buy := newLimitOrder("b1", domain.SideBuy, 154.0, 15)
	execs, err := ob.SubmitLimit(buy)
	require.NoError(t, err)

	require.Len(t, execs, 1)
	assert.Equal(t, 153.0, execs[0].Price)
	assert.Equal(t, domain.OrderStatusPartiallyFilled, buy.Status)

	snap := ob.Snapshot(5)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, 154.0, snap.Bids[0].Price)
	assert.Equal(t, 10.0, snap.Bids[0].Size)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, 155.0, snap.Asks[0].Price)
}

func TestSubmitLimit_FIFOWithinLevel(t *testing.T) {
	ob := NewOrderBook("AAPL")

	ob.SubmitLimit(newLimitOrder("s1", domain.SideSell, 150.0, 100))
	ob.SubmitLimit(newLimitOrder("s2", domain.SideSell, 150.0, 100))

	buy := newLimitOrder("b1", domain.SideBuy, 150.0, 100)
	execs, err := ob.SubmitLimit(buy)
	require.NoError(t, err)

	require.Len(t, execs, 1)
	assert.Equal(t, "s1", execs[0].MakerOrderID) // s1 arrived first
}

func TestSubmitMarket_RemainderDiscarded(t *testing.T) {
	ob := NewOrderBook("AAPL")

	ob.SubmitLimit(newLimitOrder("s1", domain.SideSell, 153.0, 5))

	buy := newMarketOrder("b1", domain.SideBuy, 8)
	execs, err := ob.SubmitMarket(buy)
	require.NoError(t, err)

	require.Len(t, execs, 1)
	assert.Equal(t, 5.0, execs[0].Quantity)
	assert.Equal(t, 153.0, execs[0].Price)

	// The unfilled remainder never rests.
	assert.Equal(t, domain.OrderStatusPartiallyFilled, buy.Status)
	assert.Equal(t, 3.0, buy.RemainingQuantity())
	snap := ob.Snapshot(5)
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)
}

func TestSubmitMarket_EmptyBook(t *testing.T) {
	ob := NewOrderBook("AAPL")

	buy := newMarketOrder("b1", domain.SideBuy, 10)
	execs, err := ob.SubmitMarket(buy)

	require.NoError(t, err)
	assert.Empty(t, execs)
	assert.Equal(t, domain.OrderStatusPending, buy.Status)
	assert.Equal(t, 10.0, buy.RemainingQuantity())
}

func TestSubmitMarket_SweepsAllLevels(t *testing.T) {
	ob := NewOrderBook("AAPL")

	ob.SubmitLimit(newLimitOrder("b1", domain.SideBuy, 150.0, 5))
	ob.SubmitLimit(newLimitOrder("b2", domain.SideBuy, 149.0, 5))

	sell := newMarketOrder("s1", domain.SideSell, 10)
	execs, err := ob.SubmitMarket(sell)
	require.NoError(t, err)

	require.Len(t, execs, 2)
	assert.Equal(t, 150.0, execs[0].Price) // highest bid first
	assert.Equal(t, 149.0, execs[1].Price)
	assert.Equal(t, domain.OrderStatusFilled, sell.Status)
}

func TestCancel(t *testing.T) {
	ob := NewOrderBook("AAPL")

	sell := newLimitOrder("s1", domain.SideSell, 150.0, 1000)
	ob.SubmitLimit(sell)

	assert.True(t, ob.Cancel(sell))
	_, ok := ob.BestAsk()
	assert.False(t, ok)

	// Second cancel: no longer resting.
	assert.False(t, ob.Cancel(sell))
}

func TestCancel_NotResting(t *testing.T) {
	ob := NewOrderBook("AAPL")
	assert.False(t, ob.Cancel(newLimitOrder("ghost", domain.SideSell, 150.0, 10)))
	assert.False(t, ob.Cancel(nil))
}

func TestCancel_IgnoresStaleSideAttribute(t *testing.T) {
	ob := NewOrderBook("AAPL")

	sell := newLimitOrder("s1", domain.SideSell, 150.0, 100)
	ob.SubmitLimit(sell)

	// Corrupt the side attribute; cancel must still find the order where
	// it actually rests, by ID.
	sell.Side = domain.SideBuy
	assert.True(t, ob.Cancel(sell))

	snap := ob.Snapshot(5)
	assert.Empty(t, snap.Asks)
	assert.Empty(t, snap.Bids)
}

func TestCancel_MiddleOfLevel(t *testing.T) {
	ob := NewOrderBook("AAPL")

	ob.SubmitLimit(newLimitOrder("s1", domain.SideSell, 150.0, 100))
	mid := newLimitOrder("s2", domain.SideSell, 150.0, 200)
	ob.SubmitLimit(mid)
	ob.SubmitLimit(newLimitOrder("s3", domain.SideSell, 150.0, 300))

	require.True(t, ob.Cancel(mid))

	snap := ob.Snapshot(5)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, 400.0, snap.Asks[0].Size) // 100 + 300
	assert.Equal(t, 2, snap.Asks[0].OrderCount)
}

func TestCancel_DoesNotTouchStatus(t *testing.T) {
	ob := NewOrderBook("AAPL")

	sell := newLimitOrder("s1", domain.SideSell, 150.0, 100)
	ob.SubmitLimit(sell)
	ob.Cancel(sell)

	// Status transitions belong to the lifecycle layer, not the book.
	assert.Equal(t, domain.OrderStatusPending, sell.Status)
}

func TestMidPriceAndSpread(t *testing.T) {
	ob := NewOrderBook("AAPL")

	ob.SubmitLimit(newLimitOrder("b1", domain.SideBuy, 150.0, 100))
	ob.SubmitLimit(newLimitOrder("s1", domain.SideSell, 151.0, 100))

	mid, ok := ob.MidPrice()
	require.True(t, ok)
	assert.Equal(t, 150.5, mid)

	spread, ok := ob.Spread()
	require.True(t, ok)
	assert.Equal(t, 1.0, spread)
}

func TestMidPriceAndSpread_UndefinedOnEmptySide(t *testing.T) {
	ob := NewOrderBook("AAPL")

	_, ok := ob.MidPrice()
	assert.False(t, ok)

	ob.SubmitLimit(newLimitOrder("b1", domain.SideBuy, 150.0, 100))

	_, ok = ob.MidPrice()
	assert.False(t, ok) // ask side still empty
	_, ok = ob.Spread()
	assert.False(t, ok)

	bid, ok := ob.BestBid()
	require.True(t, ok)
	assert.Equal(t, 150.0, bid)
}

func TestLastTradePrice(t *testing.T) {
	ob := NewOrderBook("AAPL")

	_, ok := ob.LastTradePrice()
	assert.False(t, ok)

	ob.SubmitLimit(newLimitOrder("s1", domain.SideSell, 150.0, 10))
	ob.SubmitLimit(newLimitOrder("b1", domain.SideBuy, 150.0, 10))

	last, ok := ob.LastTradePrice()
	require.True(t, ok)
	assert.Equal(t, 150.0, last)
}

func TestQuote(t *testing.T) {
	ob := NewOrderBook("AAPL")

	q := ob.Quote()
	assert.False(t, q.HasBid)
	assert.False(t, q.HasAsk)
	assert.False(t, q.HasLast)

	ob.SubmitLimit(newLimitOrder("b1", domain.SideBuy, 150.0, 100))
	ob.SubmitLimit(newLimitOrder("s1", domain.SideSell, 151.0, 100))

	q = ob.Quote()
	assert.True(t, q.HasBid)
	assert.True(t, q.HasAsk)
	assert.Equal(t, 150.0, q.Bid)
	assert.Equal(t, 151.0, q.Ask)
	assert.Equal(t, 150.5, q.Mid)
	assert.Equal(t, 1.0, q.Spread)
}

func TestSnapshot_Depth(t *testing.T) {
	ob := NewOrderBook("AAPL")

	prices := []float64{149.90, 149.80, 149.70, 149.60, 149.50}
	for i, p := range prices {
		ob.SubmitLimit(newLimitOrder(
			"b"+string(rune('1'+i)),
			domain.SideBuy,
			p,
			100,
		))
	}

	snap := ob.Snapshot(3)
	require.Len(t, snap.Bids, 3)
	assert.Equal(t, 149.90, snap.Bids[0].Price) // descending for bids
	assert.Equal(t, 149.80, snap.Bids[1].Price)
	assert.Equal(t, 149.70, snap.Bids[2].Price)

	// Non-positive depth returns everything.
	snap = ob.Snapshot(0)
	assert.Len(t, snap.Bids, 5)
}

func TestSnapshot_Empty(t *testing.T) {
	ob := NewOrderBook("AAPL")
	snap := ob.Snapshot(5)
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)
}

func TestSnapshot_SizeTracksRemainingQuantity(t *testing.T) {
	ob := NewOrderBook("AAPL")

	sell := newLimitOrder("s1", domain.SideSell, 150.0, 10)
	ob.SubmitLimit(sell)
	ob.SubmitLimit(newLimitOrder("b1", domain.SideBuy, 150.0, 4))

	snap := ob.Snapshot(5)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, sell.RemainingQuantity(), snap.Asks[0].Size)
	assert.Equal(t, 6.0, snap.Asks[0].Size)
}

func TestSubmitLimit_Validation(t *testing.T) {
	ob := NewOrderBook("AAPL")

	_, err := ob.SubmitLimit(newLimitOrder("x1", domain.SideBuy, 0, 10))
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = ob.SubmitLimit(newLimitOrder("x2", domain.SideBuy, -5, 10))
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = ob.SubmitLimit(newLimitOrder("x3", domain.SideBuy, 150.0, 0))
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	wrongSymbol := newLimitOrder("x4", domain.SideBuy, 150.0, 10)
	wrongSymbol.Symbol = "MSFT"
	_, err = ob.SubmitLimit(wrongSymbol)
	assert.ErrorIs(t, err, ErrSymbolMismatch)

	_, err = ob.SubmitLimit(newMarketOrder("x5", domain.SideBuy, 10))
	assert.ErrorIs(t, err, ErrWrongOrderType)

	cancelled := newLimitOrder("x6", domain.SideBuy, 150.0, 10)
	cancelled.Status = domain.OrderStatusCancelled
	_, err = ob.SubmitLimit(cancelled)
	assert.ErrorIs(t, err, ErrOrderInactive)

	_, err = ob.SubmitLimit(nil)
	assert.ErrorIs(t, err, ErrNilOrder)

	// Rejected submissions must leave the book untouched.
	snap := ob.Snapshot(5)
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)
}

func TestSubmitLimit_DuplicateID(t *testing.T) {
	ob := NewOrderBook("AAPL")

	ob.SubmitLimit(newLimitOrder("b1", domain.SideBuy, 150.0, 10))
	_, err := ob.SubmitLimit(newLimitOrder("b1", domain.SideBuy, 149.0, 10))
	assert.ErrorIs(t, err, ErrDuplicateOrder)

	snap := ob.Snapshot(5)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, 150.0, snap.Bids[0].Price)
}

func TestSubmitMarket_Validation(t *testing.T) {
	ob := NewOrderBook("AAPL")

	_, err := ob.SubmitMarket(newLimitOrder("x1", domain.SideBuy, 150.0, 10))
	assert.ErrorIs(t, err, ErrWrongOrderType)

	_, err = ob.SubmitMarket(newMarketOrder("x2", domain.SideBuy, -1))
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}
