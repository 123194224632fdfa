package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mse_backend/models"
	"mse_backend/services/company"
	"mse_backend/services/historical"
	"mse_backend/services/marketdata"
)

// HistoricalController serves historical price series
type HistoricalController struct {
	historical *historical.Service
	companies  *company.Service
}

func NewHistoricalController(hist *historical.Service, companies *company.Service) *HistoricalController {
	return &HistoricalController{historical: hist, companies: companies}
}

// companyInfo resolves the listed company for a symbol, falling back to
// a bare symbol stub for counters not on the seeded board.
func (hc *HistoricalController) companyInfo(symbol string) *models.Company {
	info, err := hc.companies.Get(symbol)
	if err != nil {
		return &models.Company{Symbol: symbol}
	}
	return info
}

// GetHistorical handles GET /api/historical/:symbol?range=1month
func (hc *HistoricalController) GetHistorical(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": "Symbol is required",
		})
		return
	}

	rng, err := marketdata.ParseRange(c.DefaultQuery("range", string(marketdata.Range1Month)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":        "bad_request",
			"message":      err.Error(),
			"valid_ranges": marketdata.ValidRanges(),
		})
		return
	}

	// 1day is served from recorded ticks, not the durable daily table.
	if rng == marketdata.Range1Day {
		hc.serveIntraday(c, symbol)
		return
	}

	var series *marketdata.Series
	if c.Query("refresh") == "true" || c.Query("cache") == "false" {
		series, err = hc.historical.ForceRefresh(c.Request.Context(), symbol, rng)
	} else {
		series, err = hc.historical.Resolve(c.Request.Context(), symbol, rng)
	}
	if err != nil {
		if marketdata.IsKind(err, marketdata.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No data for symbol " + symbol,
			})
			return
		}
		if errors.Is(err, historical.ErrNoData) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No data for symbol " + symbol,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to resolve historical data",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"company":      hc.companyInfo(series.Symbol),
		"time_range":   series.TimeRange,
		"stock_prices": series.Points,
		"retrieved_at": series.RetrievedAt,
		"data_points":  len(series.Points),
		"source":       series.Source,
	})
}

func (hc *HistoricalController) serveIntraday(c *gin.Context, symbol string) {
	summary, err := hc.historical.ResolveIntraday(symbol)
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

// RefreshHistorical handles POST /api/historical/:symbol/refresh, forcing
// a live fetch past both cache tiers.
func (hc *HistoricalController) RefreshHistorical(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))

	rng, err := marketdata.ParseRange(c.DefaultQuery("range", string(marketdata.Range1Month)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":        "bad_request",
			"message":      err.Error(),
			"valid_ranges": marketdata.ValidRanges(),
		})
		return
	}

	series, err := hc.historical.ForceRefresh(c.Request.Context(), symbol, rng)
	if err != nil {
		if marketdata.IsKind(err, marketdata.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No data for symbol " + symbol,
			})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "upstream_unavailable",
			"message": "Failed to refresh from upstream source",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"company":      hc.companyInfo(series.Symbol),
		"time_range":   series.TimeRange,
		"stock_prices": series.Points,
		"retrieved_at": series.RetrievedAt,
		"data_points":  len(series.Points),
		"source":       series.Source,
	})
}
