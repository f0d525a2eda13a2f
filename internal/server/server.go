// Package server 把引擎门面按 1:1 映射为 JSON 路由。
// 纯编组层：不做任何交易语义，结果对象原样返回。
package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lucabot/exchange/internal/engine"
	"github.com/lucabot/exchange/venues/types"
)

// Server HTTP 编组层
type Server struct {
	mgr *engine.Manager
}

// New 创建服务
func New(mgr *engine.Manager) *Server {
	return &Server{mgr: mgr}
}

// Router 构建路由
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	venue := api.Group("/venues/:venueID")
	venue.POST("/connect", s.handleConnect)
	venue.POST("/disconnect", s.handleDisconnect)
	venue.GET("/balance", s.handleBalance)
	venue.GET("/positions", s.handlePositions)
	venue.POST("/open", s.handleOpen)
	venue.POST("/close", s.handleClose)
	venue.POST("/stop-loss", s.handleStopLoss)
	venue.POST("/take-profit", s.handleTakeProfit)
	venue.POST("/close-all", s.handleCloseAll)
	venue.GET("/price", s.handlePrice)
	venue.GET("/ohlcv", s.handleOHLCV)
	venue.GET("/funding", s.handleFunding)
	venue.GET("/open-interest", s.handleOpenInterest)

	return r
}

// fail 按错误类型映射 HTTP 状态码
func fail(c *gin.Context, err error) {
	status := http.StatusBadGateway
	var ve *types.ValidationError
	var se *types.StateError
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
	case errors.As(err, &se):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func (s *Server) handleConnect(c *gin.Context) {
	var creds types.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		fail(c, types.NewValidationError("body", err.Error()))
		return
	}
	res, err := s.mgr.Connect(c.Request.Context(), c.Param("venueID"), creds)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleDisconnect(c *gin.Context) {
	if err := s.mgr.Disconnect(c.Param("venueID")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleBalance(c *gin.Context) {
	bal, err := s.mgr.GetBalance(c.Request.Context(), c.Param("venueID"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bal)
}

func (s *Server) handlePositions(c *gin.Context) {
	positions, err := s.mgr.GetPositions(c.Request.Context(), c.Param("venueID"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, positions)
}

// tradeRequest 开平仓请求体
type tradeRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"` // long / short
	Quantity float64 `json:"quantity"`
	Leverage int     `json:"leverage"`
}

func (r *tradeRequest) positionSide() (types.PositionSide, error) {
	switch r.Side {
	case string(types.PositionLong):
		return types.PositionLong, nil
	case string(types.PositionShort):
		return types.PositionShort, nil
	default:
		return "", types.NewValidationError("side", "必须为 long 或 short")
	}
}

func (s *Server) handleOpen(c *gin.Context) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, types.NewValidationError("body", err.Error()))
		return
	}
	side, err := req.positionSide()
	if err != nil {
		fail(c, err)
		return
	}
	venueID := c.Param("venueID")
	var res *types.TradeResult
	if side == types.PositionLong {
		res, err = s.mgr.OpenLong(c.Request.Context(), venueID, req.Symbol, req.Quantity, req.Leverage)
	} else {
		res, err = s.mgr.OpenShort(c.Request.Context(), venueID, req.Symbol, req.Quantity, req.Leverage)
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleClose(c *gin.Context) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, types.NewValidationError("body", err.Error()))
		return
	}
	side, err := req.positionSide()
	if err != nil {
		fail(c, err)
		return
	}
	venueID := c.Param("venueID")
	var res *types.TradeResult
	if side == types.PositionLong {
		res, err = s.mgr.CloseLong(c.Request.Context(), venueID, req.Symbol, req.Quantity)
	} else {
		res, err = s.mgr.CloseShort(c.Request.Context(), venueID, req.Symbol, req.Quantity)
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// conditionalRequest 条件单请求体
type conditionalRequest struct {
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`
	Quantity     float64 `json:"quantity"`
	TriggerPrice float64 `json:"trigger_price"`
}

func (s *Server) handleStopLoss(c *gin.Context)   { s.handleConditional(c, types.OrderTypeStopLoss) }
func (s *Server) handleTakeProfit(c *gin.Context) { s.handleConditional(c, types.OrderTypeTakeProfit) }

func (s *Server) handleConditional(c *gin.Context, orderType types.OrderType) {
	var req conditionalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, types.NewValidationError("body", err.Error()))
		return
	}
	side := types.PositionSide(req.Side)
	if side != types.PositionLong && side != types.PositionShort {
		fail(c, types.NewValidationError("side", "必须为 long 或 short"))
		return
	}
	venueID := c.Param("venueID")
	var (
		res *types.ConditionalResult
		err error
	)
	if orderType == types.OrderTypeStopLoss {
		res, err = s.mgr.SetStopLoss(c.Request.Context(), venueID, req.Symbol, side, req.Quantity, req.TriggerPrice)
	} else {
		res, err = s.mgr.SetTakeProfit(c.Request.Context(), venueID, req.Symbol, side, req.Quantity, req.TriggerPrice)
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleCloseAll(c *gin.Context) {
	results, err := s.mgr.CloseAllPositions(c.Request.Context(), c.Param("venueID"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) handlePrice(c *gin.Context) {
	price, err := s.mgr.GetMarketPrice(c.Request.Context(), c.Param("venueID"), c.Query("symbol"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": c.Query("symbol"), "price": price})
}

func (s *Server) handleOHLCV(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	klines, err := s.mgr.GetOHLCV(c.Request.Context(), c.Param("venueID"),
		c.Query("symbol"), c.DefaultQuery("interval", "1h"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, klines)
}

func (s *Server) handleFunding(c *gin.Context) {
	rate, err := s.mgr.GetFundingRate(c.Request.Context(), c.Param("venueID"), c.Query("symbol"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": c.Query("symbol"), "funding_rate": rate})
}

func (s *Server) handleOpenInterest(c *gin.Context) {
	oi, err := s.mgr.GetOpenInterest(c.Request.Context(), c.Param("venueID"), c.Query("symbol"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": c.Query("symbol"), "open_interest": oi})
}
