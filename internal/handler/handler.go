package handler

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/nathanyu/algo-trading/internal/domain"
	"github.com/nathanyu/algo-trading/internal/exchange"
	"github.com/nathanyu/algo-trading/internal/journal"
	"github.com/nathanyu/algo-trading/internal/marketdata"
	"github.com/nathanyu/algo-trading/internal/ordermanager"
	"github.com/nathanyu/algo-trading/internal/strategy"
)

const dateLayout = "2006-01-02"

var symbolPattern = regexp.MustCompile(`^[A-Z]{1,5}$`)

// RegisterValidations installs custom binding rules on gin's validator
// engine. Call once before serving requests.
func RegisterValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("symbol", func(fl validator.FieldLevel) bool {
			return symbolPattern.MatchString(strings.ToUpper(fl.Field().String()))
		})
	}
}

// Handler holds the HTTP handler dependencies. The archive, journal and
// strategy may be nil when the corresponding feature is disabled.
type Handler struct {
	exchange *exchange.Exchange
	feed     *marketdata.Feed
	candles  *marketdata.Aggregator
	archive  *marketdata.Archive
	journal  *journal.Journal
	strategy *strategy.Momentum
}

// NewHandler creates a new Handler.
func NewHandler(ex *exchange.Exchange, feed *marketdata.Feed, candles *marketdata.Aggregator, archive *marketdata.Archive, jnl *journal.Journal, strat *strategy.Momentum) *Handler {
	return &Handler{
		exchange: ex,
		feed:     feed,
		candles:  candles,
		archive:  archive,
		journal:  jnl,
		strategy: strat,
	}
}

// RegisterRoutes sets up the Gin routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	v1 := r.Group("/v1")
	{
		v1.POST("/orders", h.PlaceOrder)
		v1.GET("/orders", h.ListOrders)
		v1.GET("/orders/:id", h.GetOrder)
		v1.DELETE("/orders/:id", h.CancelOrder)
		v1.POST("/orders/:id/executions", h.ExecuteOrder)

		v1.GET("/orderbook/:symbol", h.GetOrderBook)

		v1.GET("/positions", h.ListPositions)
		v1.GET("/positions/:symbol", h.GetPosition)
		v1.GET("/portfolio", h.GetPortfolio)
		v1.GET("/trades", h.GetTrades)
		v1.GET("/trades/journal", h.GetJournaledTrades)

		md := v1.Group("/marketdata")
		{
			md.GET("/symbols", h.GetSymbols)
			md.GET("/quote/:symbol", h.GetQuote)
			md.GET("/candles/:symbol", h.GetCandles)
			md.GET("/history/:symbol", h.GetHistory)
			md.POST("/scenario", h.SetScenario)
		}

		v1.GET("/strategy/signals", h.GetSignals)
	}
}

// Health returns a health check response.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "algo-trading",
	})
}

// PlaceOrderRequest is the request body for placing an order.
type PlaceOrderRequest struct {
	Symbol    string           `json:"symbol" binding:"required,symbol"`
	Side      domain.Side      `json:"side" binding:"required"`
	Type      domain.OrderType `json:"type" binding:"required"`
	Quantity  float64          `json:"quantity" binding:"required,gt=0"`
	Price     float64          `json:"price"`
	StopPrice float64          `json:"stop_price"`
}

// PlaceOrder handles POST /v1/orders.
func (h *Handler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !req.Side.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be 'buy' or 'sell'"})
		return
	}
	if !req.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be 'market', 'limit', 'stop' or 'stop_limit'"})
		return
	}

	symbol := strings.ToUpper(req.Symbol)
	order, executions, err := h.exchange.PlaceOrder(symbol, req.Side, req.Quantity, req.Type, req.Price, req.StopPrice)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if executions == nil {
		executions = []domain.Execution{}
	}

	c.JSON(http.StatusCreated, gin.H{
		"order":      order,
		"executions": executions,
	})
}

// ListOrders handles GET /v1/orders.
func (h *Handler) ListOrders(c *gin.Context) {
	var orders []domain.Order
	if c.Query("active") == "true" {
		orders = h.exchange.ActiveOrders()
	} else {
		orders = h.exchange.QueryOrders(ordermanager.OrderFilter{
			Symbol: strings.ToUpper(c.Query("symbol")),
			Status: domain.OrderStatus(c.Query("status")),
			Side:   domain.Side(c.Query("side")),
		})
	}
	if orders == nil {
		orders = []domain.Order{}
	}

	c.JSON(http.StatusOK, orders)
}

// GetOrder handles GET /v1/orders/:id.
func (h *Handler) GetOrder(c *gin.Context) {
	order, ok := h.exchange.GetOrder(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	c.JSON(http.StatusOK, order)
}

// CancelOrder handles DELETE /v1/orders/:id.
func (h *Handler) CancelOrder(c *gin.Context) {
	orderID := c.Param("id")

	if _, ok := h.exchange.GetOrder(orderID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	if !h.exchange.CancelOrder(orderID) {
		c.JSON(http.StatusConflict, gin.H{"error": "order cannot be cancelled"})
		return
	}

	order, _ := h.exchange.GetOrder(orderID)
	c.JSON(http.StatusOK, order)
}

// ExecuteOrderRequest is the request body for an off-book fill.
type ExecuteOrderRequest struct {
	Quantity float64 `json:"quantity" binding:"required,gt=0"`
	Price    float64 `json:"price" binding:"required,gt=0"`
}

// ExecuteOrder handles POST /v1/orders/:id/executions. It applies a fill
// at a caller-supplied price, outside the matching path.
func (h *Handler) ExecuteOrder(c *gin.Context) {
	orderID := c.Param("id")

	var req ExecuteOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, ok := h.exchange.GetOrder(orderID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	if !h.exchange.ExecuteOrder(orderID, req.Quantity, req.Price) {
		c.JSON(http.StatusConflict, gin.H{"error": "order cannot accept the fill"})
		return
	}

	order, _ := h.exchange.GetOrder(orderID)
	c.JSON(http.StatusOK, order)
}

// GetOrderBook handles GET /v1/orderbook/:symbol.
func (h *Handler) GetOrderBook(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	depthStr := c.DefaultQuery("depth", "10")
	depth, err := strconv.Atoi(depthStr)
	if err != nil || depth <= 0 {
		depth = 10
	}

	snapshot := h.exchange.Snapshot(symbol, depth)
	c.JSON(http.StatusOK, snapshot)
}

// ListPositions handles GET /v1/positions.
func (h *Handler) ListPositions(c *gin.Context) {
	positions := h.exchange.Positions()
	if positions == nil {
		positions = []domain.Position{}
	}

	c.JSON(http.StatusOK, positions)
}

// GetPosition handles GET /v1/positions/:symbol.
func (h *Handler) GetPosition(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	position, ok := h.exchange.Position(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no position for symbol"})
		return
	}

	c.JSON(http.StatusOK, position)
}

// GetPortfolio handles GET /v1/portfolio.
func (h *Handler) GetPortfolio(c *gin.Context) {
	c.JSON(http.StatusOK, h.exchange.Portfolio())
}

// GetTrades handles GET /v1/trades.
func (h *Handler) GetTrades(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "100")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 100
	}

	trades := h.exchange.TradeHistory(limit)
	if trades == nil {
		trades = []domain.TradeRecord{}
	}

	c.JSON(http.StatusOK, trades)
}

// GetJournaledTrades handles GET /v1/trades/journal.
func (h *Handler) GetJournaledTrades(c *gin.Context) {
	if h.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade journal not enabled"})
		return
	}

	limitStr := c.DefaultQuery("limit", "100")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 100
	}

	var trades []domain.TradeRecord
	if symbol := c.Query("symbol"); symbol != "" {
		trades, err = h.journal.TradesBySymbol(c.Request.Context(), symbol, limit)
	} else {
		trades, err = h.journal.RecentTrades(c.Request.Context(), limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if trades == nil {
		trades = []domain.TradeRecord{}
	}

	c.JSON(http.StatusOK, trades)
}

// GetSymbols handles GET /v1/marketdata/symbols.
func (h *Handler) GetSymbols(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"symbols":  h.feed.Symbols(),
		"scenario": h.feed.Scenario(),
	})
}

// GetQuote handles GET /v1/marketdata/quote/:symbol.
func (h *Handler) GetQuote(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	c.JSON(http.StatusOK, h.exchange.Quote(symbol))
}

// GetCandles handles GET /v1/marketdata/candles/:symbol.
func (h *Handler) GetCandles(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	countStr := c.DefaultQuery("count", "100")
	count, err := strconv.Atoi(countStr)
	if err != nil || count <= 0 {
		count = 100
	}

	candles := h.candles.GetCandles(symbol, count)
	if candles == nil {
		candles = []domain.Candlestick{}
	}

	c.JSON(http.StatusOK, candles)
}

// GetHistory handles GET /v1/marketdata/history/:symbol. Candles come
// from the on-disk archive, so the range can predate the current run.
func (h *Handler) GetHistory(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "candle archive not enabled"})
		return
	}

	symbol := strings.ToUpper(c.Param("symbol"))

	end := time.Now().UTC()
	if endStr := c.Query("end"); endStr != "" {
		parsed, err := time.Parse(dateLayout, endStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end date, use YYYY-MM-DD"})
			return
		}
		end = parsed
	}

	start := end.AddDate(0, 0, -7)
	if startStr := c.Query("start"); startStr != "" {
		parsed, err := time.Parse(dateLayout, startStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start date, use YYYY-MM-DD"})
			return
		}
		start = parsed
	}
	if start.After(end) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start date is after end date"})
		return
	}

	candles, err := h.archive.ReadCandles(symbol, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if candles == nil {
		candles = []domain.Candlestick{}
	}

	c.JSON(http.StatusOK, candles)
}

// SetScenarioRequest is the request body for switching the feed scenario.
type SetScenarioRequest struct {
	Scenario string `json:"scenario" binding:"required"`
}

// SetScenario handles POST /v1/marketdata/scenario.
func (h *Handler) SetScenario(c *gin.Context) {
	var req SetScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.feed.SetScenario(marketdata.Scenario(req.Scenario)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown scenario"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"scenario": h.feed.Scenario(),
	})
}

// GetSignals handles GET /v1/strategy/signals.
func (h *Handler) GetSignals(c *gin.Context) {
	if h.strategy == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "strategy not enabled"})
		return
	}

	c.JSON(http.StatusOK, h.strategy.Signals())
}
