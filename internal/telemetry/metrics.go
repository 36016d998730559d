package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "path"},
	)

	// OrdersTotal counts orders by lifecycle action.
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_orders_total",
			Help: "Total number of orders by action and symbol",
		},
		[]string{"action", "symbol"},
	)

	// ExecutionsTotal counts fills by symbol.
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_executions_total",
			Help: "Total number of executions by symbol",
		},
		[]string{"symbol"},
	)

	// ExecutedQuantity accumulates filled quantity by symbol.
	ExecutedQuantity = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_executed_quantity_total",
			Help: "Total executed quantity by symbol",
		},
		[]string{"symbol"},
	)

	// LastTradePrice tracks the most recent execution price per symbol.
	LastTradePrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trading_last_trade_price",
			Help: "Price of the most recent execution",
		},
		[]string{"symbol"},
	)

	// SequenceNumber tracks the current execution sequence number.
	SequenceNumber = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_sequence_number",
			Help: "Current execution sequence number",
		},
	)

	// OrderBookDepth tracks the number of price levels per book side.
	OrderBookDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trading_orderbook_depth",
			Help: "Current order book depth in price levels",
		},
		[]string{"symbol", "side"},
	)

	// PositionQuantity tracks the signed position quantity per symbol.
	PositionQuantity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trading_position_quantity",
			Help: "Signed position quantity per symbol",
		},
		[]string{"symbol"},
	)

	// PortfolioCash tracks the current cash balance.
	PortfolioCash = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_portfolio_cash",
			Help: "Current cash balance",
		},
	)

	// PortfolioTotalPnL tracks total portfolio profit and loss.
	PortfolioTotalPnL = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_portfolio_total_pnl",
			Help: "Total portfolio profit and loss",
		},
	)

	// TicksTotal counts generated market data ticks by symbol.
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketdata_ticks_total",
			Help: "Total number of market data ticks by symbol",
		},
		[]string{"symbol"},
	)

	// CandlesArchived counts candles written to the parquet archive.
	CandlesArchived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketdata_candles_archived_total",
			Help: "Total number of candles archived by symbol",
		},
		[]string{"symbol"},
	)

	// StreamPublished counts messages published to the stream by kind.
	StreamPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_messages_published_total",
			Help: "Total number of stream messages published by kind",
		},
		[]string{"kind"},
	)

	// StrategySignals counts strategy signals by symbol and direction.
	StrategySignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strategy_signals_total",
			Help: "Total number of strategy signals by symbol and direction",
		},
		[]string{"symbol", "direction"},
	)
)
