package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"mse_backend/config"
	"mse_backend/middleware"
	"mse_backend/models"
	"mse_backend/routes"
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

// dbInitialized tracks whether database has been successfully initialized.
// Used by the /ready endpoint so the probe reflects background init state.
var dbInitialized bool
var dbInitMutex sync.RWMutex

func main() {
	log.Println("==============================================")
	log.Println("  MSE Price API - Starting...")
	log.Println("==============================================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	// Health endpoints go up FIRST so the platform sees the service as
	// live while the database warms up in the background.
	setupHealthEndpoints(router)

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Initialize database, services and routes in background
	var jobScheduler *scheduler.Scheduler
	var hub *realtime.Hub
	var cache *pricecache.Cache
	go func() {
		db, err := config.InitDB()
		if err != nil {
			log.Printf("ERROR: Database connection failed: %v", err)
			log.Println("Service will continue in limited mode (health check only)")
			return
		}

		log.Println("Running database migrations...")
		if err := runMigrations(); err != nil {
			log.Printf("ERROR: Migration failed: %v", err)
		} else {
			log.Println("Database migrations completed successfully")
		}

		if err := models.SeedDefaultAdminUser(config.DB); err != nil {
			log.Printf("Warning: Could not seed admin user: %v", err)
		}

		companies := company.NewService(config.DB)
		if err := companies.SeedBoard(); err != nil {
			log.Printf("Warning: Could not seed company board: %v", err)
		}

		middleware.InitLoginRateLimiter()

		// Wire the collection pipeline
		credentials := marketdata.NewFileCredentialStore(cfg.CredentialFile)
		fetcher := marketdata.NewClient(cfg.MSEBaseURL, cfg.FetchTimeout, credentials)
		probe := marketdata.NewHTTPProbe(cfg.MSEBaseURL)

		cache = pricecache.New()
		hist := historical.NewService(db, cache, fetcher)
		col := collector.New(hist, cache, fetcher, probe)

		arc := archive.Connect(cfg.MongoDBURI)
		hist.OnFetched = arc.StoreSeries
		hub = realtime.NewHub()
		col.OnQuote = hub.Publish

		dbInitMutex.Lock()
		dbInitialized = true
		dbInitMutex.Unlock()

		jobScheduler = scheduler.NewScheduler(db, col)
		routes.SetupRoutes(router, &routes.Dependencies{
			DB:          db,
			Cache:       cache,
			Historical:  hist,
			Collector:   col,
			Scheduler:   jobScheduler,
			Credentials: credentials,
			Archive:     arc,
			Hub:         hub,
			Ledger:      quota.NewLedger(db),
			Companies:   companies,
		})

		// Warm the volatile tier from the durable store before the
		// first scheduled refresh lands.
		warmed := col.WarmAll([]marketdata.Range{
			marketdata.Range1Month, marketdata.Range1Year, marketdata.Range5Years,
		})
		log.Printf("Startup cache warm restored %d entries", warmed)

		if cfg.SchedulerEnabled {
			jobScheduler.Start()
		} else {
			log.Println("Scheduler disabled by configuration")
		}

		log.Println("Application fully initialized with database")
	}()

	gracefulShutdown(server, func() {
		if jobScheduler != nil {
			jobScheduler.Stop()
		}
		if hub != nil {
			hub.Shutdown()
		}
		if cache != nil {
			cache.Stop()
		}
	})
}

// runMigrations runs all database migrations
func runMigrations() error {
	db := config.DB

	if err := models.MigrateStockModels(db); err != nil {
		return err
	}
	if err := models.MigrateAccountModels(db); err != nil {
		return err
	}
	if err := models.MigrateAdminModels(db); err != nil {
		return err
	}
	return nil
}

// setupHealthEndpoints sets up liveness, readiness and startup probes
func setupHealthEndpoints(router *gin.Engine) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "MSE Price API",
			"version": "1.0.0",
		})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		dbInitMutex.RLock()
		isDBReady := dbInitialized
		dbInitMutex.RUnlock()

		if !isDBReady {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database not connected",
			})
			return
		}

		sqlDB, err := config.DB.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database connection error",
			})
			return
		}
		if err := sqlDB.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database ping failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})

	router.GET("/startup", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "started",
		})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for health checks to reduce noise
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" || path == "/startup" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown blocks until a termination signal, then stops the
// background workers before draining the HTTP server.
func gracefulShutdown(server *http.Server, stopWorkers func()) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if config.DB != nil {
		sqlDB, err := config.DB.DB()
		if err == nil {
			sqlDB.Close()
			log.Println("Database connection closed")
		}
	}

	log.Println("Server shutdown completed")
}
