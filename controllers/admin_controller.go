package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"mse_backend/middleware"
	"mse_backend/models"
	"mse_backend/scheduler"
	"mse_backend/services/archive"
	"mse_backend/services/collector"
	"mse_backend/services/historical"
	"mse_backend/services/marketdata"
	"mse_backend/services/pricecache"
	"mse_backend/services/realtime"
)

// AdminController exposes the operator maintenance endpoints
type AdminController struct {
	db          *gorm.DB
	cache       *pricecache.Cache
	historical  *historical.Service
	collector   *collector.Collector
	scheduler   *scheduler.Scheduler
	credentials marketdata.CredentialStore
	archive     *archive.Archive
	hub         *realtime.Hub
}

func NewAdminController(
	db *gorm.DB,
	cache *pricecache.Cache,
	hist *historical.Service,
	col *collector.Collector,
	sched *scheduler.Scheduler,
	creds marketdata.CredentialStore,
	arc *archive.Archive,
	hub *realtime.Hub,
) *AdminController {
	return &AdminController{
		db:          db,
		cache:       cache,
		historical:  hist,
		collector:   col,
		scheduler:   sched,
		credentials: creds,
		archive:     arc,
		hub:         hub,
	}
}

// Login handles POST /api/admin/login
func (ac *AdminController) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": "username and password are required",
		})
		return
	}

	var admin models.AdminUser
	err := ac.db.Where("username = ?", req.Username).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !admin.CheckPassword(req.Password)) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Invalid credentials",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Login failed",
		})
		return
	}

	token, err := middleware.GenerateAdminToken(admin.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to issue token",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"username": admin.Username,
	})
}

// Status handles GET /api/admin/status
func (ac *AdminController) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"collector": ac.collector.Snapshot(),
		"cache":     ac.cache.Stats(),
		"scheduler": ac.scheduler.Status(),
		"realtime": gin.H{
			"clients": ac.hub.ClientCount(),
		},
		"archive": gin.H{
			"enabled":      ac.archive.Enabled(),
			"recent_count": ac.archive.RecentCount(),
		},
	})
}

// ClearCache handles POST /api/admin/cache/clear
func (ac *AdminController) ClearCache(c *gin.Context) {
	n := ac.cache.ClearAll()
	c.JSON(http.StatusOK, gin.H{
		"message": "Cache cleared",
		"evicted": n,
	})
}

// TriggerRefresh handles POST /api/admin/jobs/refresh. With a symbol it
// queues that symbol's jobs; without one it queues the full historical
// sweep.
func (ac *AdminController) TriggerRefresh(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))

	var queued int
	if symbol != "" {
		queued = ac.scheduler.TriggerSymbol(symbol)
		if queued == 0 {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No schedulable jobs for symbol " + symbol,
			})
			return
		}
	} else {
		queued = ac.scheduler.TriggerHistoricalSweep()
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Refresh queued",
		"queued":  queued,
	})
}

// TriggerIntradayJobs handles POST /api/admin/jobs/intraday
func (ac *AdminController) TriggerIntradayJobs(c *gin.Context) {
	queued := ac.scheduler.TriggerIntradaySweep()
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Intraday refresh queued",
		"queued":  queued,
	})
}

// TriggerHistoricalJobs handles POST /api/admin/jobs/historical
func (ac *AdminController) TriggerHistoricalJobs(c *gin.Context) {
	queued := ac.scheduler.TriggerHistoricalSweep()
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Historical sweep queued",
		"queued":  queued,
	})
}

// TriggerWarm handles POST /api/admin/jobs/warm, rebuilding the volatile
// cache from the durable store without touching the upstream.
func (ac *AdminController) TriggerWarm(c *gin.Context) {
	ranges := []marketdata.Range{
		marketdata.Range1Month, marketdata.Range1Year, marketdata.Range5Years,
	}
	warmed := ac.collector.WarmAll(ranges)
	c.JSON(http.StatusOK, gin.H{
		"message": "Cache warmed",
		"warmed":  warmed,
	})
}

// UpdateCredentials handles PUT /api/admin/credentials, replacing the
// upstream session cookie after an operator refreshes it.
func (ac *AdminController) UpdateCredentials(c *gin.Context) {
	var req struct {
		Cookie string `json:"cookie" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": "cookie is required",
		})
		return
	}

	if err := ac.credentials.Set(req.Cookie); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to store credentials",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Credentials updated"})
}

// ClearHistorical handles DELETE /api/admin/historical?symbol=AIRTEL.
// Without a symbol it clears the whole durable store.
func (ac *AdminController) ClearHistorical(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))

	n, err := ac.historical.ClearDurable(symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to clear historical data",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Historical data cleared",
		"deleted": n,
	})
}
