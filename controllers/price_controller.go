package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mse_backend/config"
	"mse_backend/services/historical"
)

// PriceController serves intraday tick data
type PriceController struct {
	historical *historical.Service
}

func NewPriceController(hist *historical.Service) *PriceController {
	return &PriceController{historical: hist}
}

// GetIntraday handles GET /api/intraday/:symbol
func (pc *PriceController) GetIntraday(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))

	summary, err := pc.historical.ResolveIntraday(symbol)
	if err != nil {
		if errors.Is(err, historical.ErrNoData) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No intraday data for symbol " + symbol,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load intraday data",
		})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetLatestPrice handles GET /api/price/:symbol/latest
func (pc *PriceController) GetLatestPrice(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))

	tick, err := pc.historical.LatestTick(symbol)
	if err != nil {
		if errors.Is(err, historical.ErrNoData) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No price data for symbol " + symbol,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load latest price",
		})
		return
	}

	c.JSON(http.StatusOK, tick)
}

// datetime accepts both RFC3339 and a plain local timestamp.
var datetimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

// GetPriceAt handles GET /api/price/:symbol/at?datetime=2026-08-28T10:30:00Z
func (pc *PriceController) GetPriceAt(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))

	raw := c.Query("datetime")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": "datetime query parameter is required",
		})
		return
	}

	var at time.Time
	var err error
	for _, layout := range datetimeLayouts {
		at, err = time.ParseInLocation(layout, raw, time.Local)
		if err == nil {
			break
		}
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": "Invalid datetime format, use RFC3339 or YYYY-MM-DD HH:MM:SS",
		})
		return
	}

	tick, err := pc.historical.TickAt(symbol, at)
	if err != nil {
		if errors.Is(err, historical.ErrNoData) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No price recorded at or before the requested time",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load price",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"requested_at": raw,
		"tick":         tick,
	})
}

// GetSymbols handles GET /api/symbols
func (pc *PriceController) GetSymbols(c *gin.Context) {
	cfg := config.AppConfig
	priority := make(map[string]bool, len(cfg.PrioritySymbols))
	for _, s := range cfg.PrioritySymbols {
		priority[s] = true
	}

	type symbolInfo struct {
		Symbol   string `json:"symbol"`
		Priority bool   `json:"priority"`
	}
	out := make([]symbolInfo, 0, len(cfg.AllSymbols))
	for _, s := range cfg.AllSymbols {
		out = append(out, symbolInfo{Symbol: s, Priority: priority[s]})
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(out),
		"symbols": out,
	})
}
