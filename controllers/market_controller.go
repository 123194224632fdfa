package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mse_backend/config"
	"mse_backend/models"
	"mse_backend/scheduler"
	"mse_backend/services/company"
	"mse_backend/services/historical"
)

// MarketController serves company reference data, the exchange session
// state and the board-wide price views.
type MarketController struct {
	historical *historical.Service
	companies  *company.Service
}

func NewMarketController(hist *historical.Service, companies *company.Service) *MarketController {
	return &MarketController{historical: hist, companies: companies}
}

// GetCompanies handles GET /api/companies
func (mc *MarketController) GetCompanies(c *gin.Context) {
	companies, err := mc.companies.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load companies",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":     len(companies),
		"companies": companies,
	})
}

// GetCompany handles GET /api/companies/:symbol
func (mc *MarketController) GetCompany(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))

	info, err := mc.companies.Get(symbol)
	if errors.Is(err, company.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No company listed under symbol " + symbol,
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load company",
		})
		return
	}
	c.JSON(http.StatusOK, info)
}

// GetMarketStatus handles GET /api/market/status
func (mc *MarketController) GetMarketStatus(c *gin.Context) {
	now := time.Now()
	phase := scheduler.CurrentPhase(now)
	c.JSON(http.StatusOK, gin.H{
		"phase":           phase,
		"is_open":         phase == scheduler.PhaseOpen,
		"market_sessions": historical.MarketSessions,
		"timezone":        "Africa/Blantyre",
		"server_time":     now.Format(time.RFC3339),
	})
}

// GetLatestPrices handles GET /api/prices/latest, returning the most
// recent tick for every configured symbol. Symbols with no recorded
// ticks are omitted.
func (mc *MarketController) GetLatestPrices(c *gin.Context) {
	ticks := make([]*models.StockPrice, 0, len(config.AppConfig.AllSymbols))
	for _, symbol := range config.AppConfig.AllSymbols {
		tick, err := mc.historical.LatestTick(symbol)
		if errors.Is(err, historical.ErrNoData) {
			continue
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to load latest prices",
			})
			return
		}
		ticks = append(ticks, tick)
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(ticks),
		"prices": ticks,
	})
}

// GetPricesByDatetime handles GET /api/prices/by-datetime?datetime=...,
// returning the last tick at or before the requested moment for every
// configured symbol.
func (mc *MarketController) GetPricesByDatetime(c *gin.Context) {
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

	ticks := make([]*models.StockPrice, 0, len(config.AppConfig.AllSymbols))
	for _, symbol := range config.AppConfig.AllSymbols {
		tick, err := mc.historical.TickAt(symbol, at)
		if errors.Is(err, historical.ErrNoData) {
			continue
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to load prices",
			})
			return
		}
		ticks = append(ticks, tick)
	}
	c.JSON(http.StatusOK, gin.H{
		"requested_at": raw,
		"count":        len(ticks),
		"prices":       ticks,
	})
}
