package stream

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanyu/algo-trading/internal/domain"
	"github.com/nathanyu/algo-trading/internal/exchange"
)

func TestPublisher_NilSafe(t *testing.T) {
	var p *Publisher

	p.PublishTick(domain.MarketTick{Symbol: "AAPL"})
	p.PublishSettlement(exchange.Settlement{})
	p.PublishCandles([]domain.Candlestick{{Symbol: "AAPL"}})
	p.Close()
}

func TestSubjects(t *testing.T) {
	p := &Publisher{prefix: "md"}

	assert.Equal(t, "md.executions.AAPL", p.executionSubject("aapl"))
	assert.Equal(t, "md.ticks.MSFT", p.tickSubject("MSFT"))
	assert.Equal(t, "md.candles.TSLA", p.candleSubject("tsla"))
}

func TestPublisher_PublishTick(t *testing.T) {
	nc, err := nats.Connect(nats.DefaultURL, nats.NoReconnect())
	if err != nil {
		t.Skip("NATS server not available")
	}
	defer nc.Close()

	sub, err := nc.SubscribeSync("mdtest.ticks.AAPL")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	p, err := Connect(nats.DefaultURL, "mdtest")
	require.NoError(t, err)
	defer p.Close()

	sent := domain.MarketTick{
		Symbol:    "AAPL",
		Price:     185.50,
		Bid:       185.45,
		Ask:       185.55,
		Volume:    120000,
		Timestamp: time.Now().UTC(),
	}
	p.PublishTick(sent)

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)

	var got domain.MarketTick
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, 185.50, got.Price)
}
