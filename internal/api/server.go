package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"PriceSentinel/internal/feed"
	"PriceSentinel/internal/hub"
	"PriceSentinel/internal/model"
	"PriceSentinel/internal/rules"
	"PriceSentinel/internal/store"
)

const defaultAlertLimit = 50

// Server exposes the REST and websocket surface over the running engine.
type Server struct {
	store     *store.Store
	evaluator *rules.Evaluator
	feed      *feed.Client
	window    *feed.Store
	hub       *hub.Hub
	upgrader  websocket.Upgrader
	engine    *gin.Engine
}

// NewServer wires the routes and returns a ready-to-run server.
func NewServer(st *store.Store, ev *rules.Evaluator, fc *feed.Client, win *feed.Store, h *hub.Hub) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		store:     st,
		evaluator: ev,
		feed:      fc,
		window:    win,
		hub:       h,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery())

	api := s.engine.Group("/api")
	{
		api.POST("/rules", s.createRule)
		api.GET("/rules", s.listRules)
		api.GET("/rules/:id", s.getRule)
		api.PUT("/rules/:id", s.updateRule)
		api.DELETE("/rules/:id", s.deleteRule)
		api.POST("/rules/:id/toggle", s.toggleRule)

		api.GET("/alerts", s.listAlerts)

		api.GET("/prices/current", s.currentPrice)
		api.GET("/prices/history", s.priceHistory)
		api.GET("/prices/klines", s.klines)
	}
	s.engine.GET("/ws", s.serveWS)
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ws_clients": s.hub.ClientCount()})
	})

	return s
}

// Run blocks serving HTTP on addr.
func (s *Server) Run(addr string) error {
	log.Printf("[INFO] api: listening on %s", addr)
	return s.engine.Run(addr)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) createRule(c *gin.Context) {
	var r model.Rule
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if r.Symbol == "" {
		r.Symbol = "BTCUSDT"
	}
	r.Symbol = strings.ToUpper(r.Symbol)
	if r.CooldownMinutes == 0 {
		r.CooldownMinutes = 5
	}
	if r.Type == model.RuleRange && r.RangeMode == "" {
		r.RangeMode = model.RangeTouch
	}
	if err := validateRule(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.CreateRule(&r); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.feed.AddSymbol(r.Symbol)
	log.Printf("[INFO] api: rule %q (%s) created", r.Name, r.ID)
	c.JSON(http.StatusCreated, r)
}

func (s *Server) listRules(c *gin.Context) {
	list, err := s.store.ListRules()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if list == nil {
		list = []model.Rule{}
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) getRule(c *gin.Context) {
	r, err := s.store.GetRule(c.Param("id"))
	if err != nil {
		s.ruleError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) updateRule(c *gin.Context) {
	existing, err := s.store.GetRule(c.Param("id"))
	if err != nil {
		s.ruleError(c, err)
		return
	}

	updated := *existing
	if err := c.ShouldBindJSON(&updated); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	updated.ID = existing.ID
	updated.Symbol = strings.ToUpper(updated.Symbol)
	if updated.Status != model.StatusActive && updated.Status != model.StatusPaused {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be active or paused"})
		return
	}
	if err := validateRule(&updated); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.UpdateRule(&updated); err != nil {
		s.ruleError(c, err)
		return
	}
	s.feed.AddSymbol(updated.Symbol)
	c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteRule(c *gin.Context) {
	id := c.Param("id")
	ok, err := s.store.DeleteRule(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	// Drop fired-level / zone state so the arena does not accumulate
	// entries for deleted rules.
	s.evaluator.Forget(id)
	log.Printf("[INFO] api: rule %s deleted", id)
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) toggleRule(c *gin.Context) {
	r, err := s.store.GetRule(c.Param("id"))
	if err != nil {
		s.ruleError(c, err)
		return
	}

	next := model.StatusActive
	if r.Status == model.StatusActive {
		next = model.StatusPaused
	}
	if err := s.store.UpdateStatus(r.ID, next); err != nil {
		s.ruleError(c, err)
		return
	}
	r.Status = next
	log.Printf("[INFO] api: rule %q toggled to %s", r.Name, next)
	c.JSON(http.StatusOK, r)
}

func (s *Server) listAlerts(c *gin.Context) {
	limit := defaultAlertLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	var (
		list []model.AlertRecord
		err  error
	)
	if ruleID := c.Query("rule_id"); ruleID != "" {
		list, err = s.store.ListAlertsByRule(ruleID, limit)
	} else {
		list, err = s.store.ListAlerts(limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if list == nil {
		list = []model.AlertRecord{}
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) currentPrice(c *gin.Context) {
	symbol := c.DefaultQuery("symbol", "BTCUSDT")
	price, ok := s.feed.CurrentPrice(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no price observed for " + strings.ToUpper(symbol)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": strings.ToUpper(symbol), "price": price})
}

func (s *Server) priceHistory(c *gin.Context) {
	symbol := c.DefaultQuery("symbol", "BTCUSDT")
	minutes, err := strconv.Atoi(c.DefaultQuery("minutes", "10"))
	if err != nil || minutes <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "minutes must be a positive integer"})
		return
	}
	points := s.feed.PriceHistory(symbol, minutes)
	if points == nil {
		points = []model.PricePoint{}
	}
	c.JSON(http.StatusOK, gin.H{"symbol": strings.ToUpper(symbol), "points": points})
}

func (s *Server) klines(c *gin.Context) {
	symbol := c.DefaultQuery("symbol", "BTCUSDT")
	count, err := strconv.Atoi(c.DefaultQuery("count", "30"))
	if err != nil || count <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must be a positive integer"})
		return
	}
	candles := s.window.Klines(symbol, count)
	if candles == nil {
		candles = []model.Candle{}
	}
	c.JSON(http.StatusOK, gin.H{"symbol": strings.ToUpper(symbol), "klines": candles})
}

func (s *Server) serveWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WARN] api: websocket upgrade failed: %v", err)
		return
	}
	s.hub.Register(conn)
}

func (s *Server) ruleError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// validateRule checks type-specific parameters at the API boundary, so
// the evaluator only ever sees rules it can run.
func validateRule(r *model.Rule) error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	switch r.Type {
	case model.RuleThresholdAbove, model.RuleThresholdBelow:
		if r.Threshold <= 0 {
			return errors.New("threshold must be greater than 0")
		}
	case model.RuleVolatility:
		if r.VolatilityWindow <= 0 {
			return errors.New("volatility_window must be greater than 0")
		}
		if r.VolatilityPercent <= 0 {
			return errors.New("volatility_percent must be greater than 0")
		}
	case model.RuleFibonacci:
		if r.StartPrice <= 0 || r.EndPrice <= 0 {
			return errors.New("start_price and end_price are required")
		}
		if r.StartPrice == r.EndPrice {
			return errors.New("start_price and end_price must differ")
		}
	case model.RuleRange:
		if r.LowerPrice <= 0 || r.UpperPrice <= r.LowerPrice {
			return errors.New("upper_price must be greater than lower_price, both greater than 0")
		}
		if r.RangeMode != model.RangeTouch && r.RangeMode != model.RangeBreakout {
			return errors.New("range_mode must be touch or breakout")
		}
		if r.ConfirmPercent < 0 {
			return errors.New("confirm_percent must not be negative")
		}
	default:
		return fmt.Errorf("unknown rule type %q", r.Type)
	}
	if r.CooldownMinutes < 0 {
		return errors.New("cooldown_minutes must not be negative")
	}
	return nil
}
