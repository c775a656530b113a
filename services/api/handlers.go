package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sp500-backtest/services/marketdata"
)

const arrowStreamType = "application/vnd.apache.arrow.stream"

// NewRouter builds the HTTP surface with recovery and metrics middleware
func (s *Service) NewRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.metrics.Middleware())
	s.SetupRoutes(r)
	return r
}

// SetupRoutes registers the REST API on r
func (s *Service) SetupRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/backtest", s.handleBacktestRequest)
		api.GET("/backtest/:run_id", s.handleGetBacktestResult)
		api.GET("/backtest/:run_id/series.arrow", s.handleGetSeriesArrow)
		api.GET("/assets", s.handleAssets)
		api.GET("/health", s.handleHealthCheck)
		api.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

func (s *Service) handleBacktestRequest(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.Backtest(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		var re *RequestError
		if errors.As(err, &re) {
			status = re.Status
		}
		if status >= http.StatusInternalServerError {
			s.logger.Error("Backtest request failed", zap.Error(err))
		} else {
			s.logger.Info("Backtest request rejected", zap.Int("status", status), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Service) handleGetBacktestResult(c *gin.Context) {
	run, ok := s.store.Get(c.Param("run_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, newResponse(run))
}

func (s *Service) handleGetSeriesArrow(c *gin.Context) {
	run, ok := s.store.Get(c.Param("run_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	data, err := s.pipeline.ConvertToArrow(run.Result)
	if err != nil {
		s.logger.Error("Arrow conversion failed", zap.String("run_id", run.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, arrowStreamType, data)
}

func (s *Service) handleAssets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"assets":  marketdata.Assets,
		"default": s.settings.Asset,
	})
}

func (s *Service) handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"runs":      s.store.Len(),
	})
}
