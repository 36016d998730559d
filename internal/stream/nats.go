// Package stream fans executions, ticks and candles out to NATS
// subjects for downstream consumers.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nathanyu/algo-trading/internal/domain"
	"github.com/nathanyu/algo-trading/internal/exchange"
	"github.com/nathanyu/algo-trading/internal/telemetry"
)

const defaultSubjectPrefix = "trading"

// Publisher publishes trading events to NATS. A nil Publisher is valid
// and drops everything, so callers can wire streaming unconditionally
// and turn it off through configuration.
type Publisher struct {
	conn   *nats.Conn
	prefix string
}

// Connect dials the NATS server and returns a publisher rooted at the
// given subject prefix.
func Connect(url, prefix string) (*Publisher, error) {
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}

	opts := []nats.Option{
		nats.Name("algo-trading"),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	slog.Info("nats publisher connected", "url", conn.ConnectedUrl(), "prefix", prefix)
	return &Publisher{conn: conn, prefix: prefix}, nil
}

// PublishSettlement publishes one settled execution.
func (p *Publisher) PublishSettlement(s exchange.Settlement) {
	if p == nil {
		return
	}
	p.publish(p.executionSubject(s.Execution.Symbol), "execution", s)
}

// PublishTick publishes one market data tick.
func (p *Publisher) PublishTick(tick domain.MarketTick) {
	if p == nil {
		return
	}
	p.publish(p.tickSubject(tick.Symbol), "tick", tick)
}

// PublishCandles publishes a batch of completed candles, one message
// per candle.
func (p *Publisher) PublishCandles(candles []domain.Candlestick) {
	if p == nil {
		return
	}
	for _, c := range candles {
		p.publish(p.candleSubject(c.Symbol), "candle", c)
	}
}

func (p *Publisher) executionSubject(symbol string) string {
	return fmt.Sprintf("%s.executions.%s", p.prefix, strings.ToUpper(symbol))
}

func (p *Publisher) tickSubject(symbol string) string {
	return fmt.Sprintf("%s.ticks.%s", p.prefix, strings.ToUpper(symbol))
}

func (p *Publisher) candleSubject(symbol string) string {
	return fmt.Sprintf("%s.candles.%s", p.prefix, strings.ToUpper(symbol))
}

func (p *Publisher) publish(subject, kind string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to serialize stream payload", "subject", subject, "error", err)
		return
	}

	if err := p.conn.Publish(subject, data); err != nil {
		slog.Warn("failed to publish stream message", "subject", subject, "error", err)
		return
	}
	telemetry.StreamPublished.WithLabelValues(kind).Inc()
}

// Close drains buffered messages and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Drain()
	p.conn.Close()
}
