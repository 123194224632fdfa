package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"mse_backend/controllers"
	"mse_backend/middleware"
	"mse_backend/scheduler"
	"mse_backend/services/archive"
	"mse_backend/services/collector"
	"mse_backend/services/company"
	"mse_backend/services/historical"
	"mse_backend/services/marketdata"
	"mse_backend/services/pricecache"
	"mse_backend/services/quota"
	"mse_backend/services/realtime"
)

// Dependencies carries the wired service instances into route setup
type Dependencies struct {
	DB          *gorm.DB
	Cache       *pricecache.Cache
	Historical  *historical.Service
	Collector   *collector.Collector
	Scheduler   *scheduler.Scheduler
	Credentials marketdata.CredentialStore
	Archive     *archive.Archive
	Hub         *realtime.Hub
	Ledger      *quota.Ledger
	Companies   *company.Service
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, deps *Dependencies) {
	historicalController := controllers.NewHistoricalController(deps.Historical, deps.Companies)
	priceController := controllers.NewPriceController(deps.Historical)
	marketController := controllers.NewMarketController(deps.Historical, deps.Companies)
	adminController := controllers.NewAdminController(
		deps.DB, deps.Cache, deps.Historical, deps.Collector,
		deps.Scheduler, deps.Credentials, deps.Archive, deps.Hub,
	)
	accountController := controllers.NewAccountController(deps.DB, deps.Ledger)

	// Data API, authenticated by API key and metered against the
	// caller's monthly quota
	api := router.Group("/api")
	api.Use(middleware.APIKeyAuth(deps.DB, deps.Ledger))
	{
		api.GET("/symbols", priceController.GetSymbols)
		api.GET("/companies", marketController.GetCompanies)
		api.GET("/companies/:symbol", marketController.GetCompany)
		api.GET("/market/status", marketController.GetMarketStatus)

		api.GET("/historical/:symbol", historicalController.GetHistorical)
		api.POST("/historical/:symbol/refresh", historicalController.RefreshHistorical)

		api.GET("/intraday/:symbol", priceController.GetIntraday)
		api.GET("/price/:symbol/latest", priceController.GetLatestPrice)
		api.GET("/price/:symbol/at", priceController.GetPriceAt)
		api.GET("/prices/latest", marketController.GetLatestPrices)
		api.GET("/prices/by-datetime", marketController.GetPricesByDatetime)
	}

	// Live price stream
	router.GET("/ws/prices", middleware.APIKeyAuth(deps.DB, deps.Ledger), func(c *gin.Context) {
		deps.Hub.HandleWebSocket(c.Writer, c.Request)
	})

	// Operator maintenance endpoints
	router.POST("/api/admin/login", middleware.LoginRateLimitMiddleware(), adminController.Login)

	admin := router.Group("/api/admin")
	admin.Use(middleware.AdminJWTMiddleware())
	{
		admin.GET("/status", adminController.Status)
		admin.POST("/cache/clear", adminController.ClearCache)
		admin.POST("/jobs/refresh", adminController.TriggerRefresh)
		admin.POST("/jobs/intraday", adminController.TriggerIntradayJobs)
		admin.POST("/jobs/historical", adminController.TriggerHistoricalJobs)
		admin.POST("/jobs/warm", adminController.TriggerWarm)
		admin.PUT("/credentials", adminController.UpdateCredentials)
		admin.DELETE("/historical", adminController.ClearHistorical)

		admin.POST("/users", accountController.CreateUser)
		admin.GET("/users/:id/usage", accountController.GetUserUsage)
		admin.POST("/users/:id/keys/rotate", accountController.RotateKey)
	}
}
