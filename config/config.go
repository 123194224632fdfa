package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port        string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	SQLitePath  string
	JWTSecret   string
	MongoDBURI  string
	Environment string

	// Upstream source
	MSEBaseURL     string
	FetchTimeout   time.Duration
	CredentialFile string

	// Refresh scheduler
	SchedulerEnabled  bool
	FetchWorkers      int
	DispatchStagger   time.Duration
	AllSymbols        []string
	PrioritySymbols   []string
	PriorityCadence   time.Duration
	StandardCadence   time.Duration
	OffSessionCadence time.Duration
	HistoricalCadence time.Duration

	// Cache TTLs
	IntradayTTL   time.Duration
	ShortRangeTTL time.Duration
	LongRangeTTL  time.Duration
}

var AppConfig *Config
var DB *gorm.DB

// The full MSE board plus the actively traded counters refreshed on a
// tighter cadence.
var defaultSymbols = []string{
	"AIRTEL", "BHL", "FDHB", "FMBCH", "ICON", "ILLOVO",
	"MPICO", "NBM", "NBS", "NICO", "NITL", "OMU",
	"PCL", "STANDARD", "SUNBIRD", "TNM",
}

var defaultPrioritySymbols = []string{"AIRTEL", "TNM", "NBM", "STANDARD", "NICO", "FDHB"}

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		DBHost:      getEnv("DB_HOST", ""),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", ""),
		DBName:      getEnv("DB_NAME", "mse_db"),
		SQLitePath:  getEnv("SQLITE_PATH", "data/mse.db"),
		JWTSecret:   getEnv("JWT_SECRET", "change-me-in-production"),
		MongoDBURI:  getEnv("MONGODB_URI", ""),
		Environment: getEnv("ENVIRONMENT", "development"),

		MSEBaseURL:     getEnv("MSE_BASE_URL", "https://mse.co.mw"),
		FetchTimeout:   getDuration("FETCH_TIMEOUT", 30*time.Second),
		CredentialFile: getEnv("MSE_CREDENTIAL_FILE", "data/mse_credentials.json"),

		SchedulerEnabled:  getBool("SCHEDULER_ENABLED", true),
		FetchWorkers:      getInt("FETCH_WORKERS", 3),
		DispatchStagger:   getDuration("DISPATCH_STAGGER", 500*time.Millisecond),
		AllSymbols:        getList("MSE_SYMBOLS", defaultSymbols),
		PrioritySymbols:   getList("MSE_PRIORITY_SYMBOLS", defaultPrioritySymbols),
		PriorityCadence:   getDuration("PRIORITY_CADENCE", 15*time.Minute),
		StandardCadence:   getDuration("STANDARD_CADENCE", 30*time.Minute),
		OffSessionCadence: getDuration("OFF_SESSION_CADENCE", time.Hour),
		HistoricalCadence: getDuration("HISTORICAL_CADENCE", 20*time.Hour),

		IntradayTTL:   getDuration("INTRADAY_TTL", 15*time.Minute),
		ShortRangeTTL: getDuration("SHORT_RANGE_TTL", time.Hour),
		LongRangeTTL:  getDuration("LONG_RANGE_TTL", 72*time.Hour),
	}

	AppConfig = config
	return config, nil
}

// InitDB initializes the database connection. Postgres is used when DB_HOST
// is configured, otherwise a local SQLite file keeps development and
// restricted deployments self-contained.
func InitDB() (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Warn
	}
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel)}

	var db *gorm.DB
	var err error

	if AppConfig.DBHost != "" {
		log.Printf("Connecting to database: host=%s port=%s user=%s dbname=%s",
			maskHost(AppConfig.DBHost), AppConfig.DBPort, AppConfig.DBUser, AppConfig.DBName)

		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=require TimeZone=Africa/Blantyre",
			AppConfig.DBHost, AppConfig.DBUser, AppConfig.DBPassword,
			AppConfig.DBName, AppConfig.DBPort,
		)
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	} else {
		log.Printf("DB_HOST not set, using local SQLite store at %s", AppConfig.SQLitePath)
		db, err = gorm.Open(sqlite.Open(AppConfig.SQLitePath), gormCfg)
	}

	if err != nil {
		log.Printf("Database connection error: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Printf("Database connection verified successfully")
	DB = db
	return db, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid value for %s: %q, using default", key, value)
		return defaultValue
	}
	return n
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: invalid value for %s: %q, using default", key, value)
		return defaultValue
	}
	return b
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid value for %s: %q, using default", key, value)
		return defaultValue
	}
	return d
}

func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
