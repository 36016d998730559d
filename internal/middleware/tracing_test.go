package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/v1/orders/{order_id}", normalizePath("/v1/orders/8f14e45f-ceea-4671-b172-2a1a2ff7d1b9"))
	assert.Equal(t, "/v1/orders/{order_id}", normalizePath("/v1/orders/:id"))
	assert.Equal(t, "/v1/orders", normalizePath("/v1/orders"))
	assert.Equal(t, "/v1/orderbook/{symbol}", normalizePath("/v1/orderbook/AAPL"))
	assert.Equal(t, "/v1/positions/{symbol}", normalizePath("/v1/positions/msft"))
	assert.Equal(t, "/v1/marketdata/quote/{symbol}", normalizePath("/v1/marketdata/quote/TSLA"))
	assert.Equal(t, "/v1/marketdata/candles/{symbol}", normalizePath("/v1/marketdata/candles/NVDA"))
	assert.Equal(t, "/health", normalizePath("/health"))
}
