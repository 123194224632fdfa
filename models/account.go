package models

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"gorm.io/gorm"
)

// User represents an API consumer account
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	FullName  string    `json:"full_name"`
	Company   string    `json:"company,omitempty"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subscription ties a user to a plan and its monthly request limit
type Subscription struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Plan      string    `gorm:"default:'free'" json:"plan"` // free, developer, business
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subscription plan constants
const (
	PlanFree      = "free"
	PlanDeveloper = "developer"
	PlanBusiness  = "business"
)

var planLimits = map[string]int64{
	PlanFree:      1000,
	PlanDeveloper: 50000,
	PlanBusiness:  500000,
}

// MonthlyLimit returns the request quota for the subscription's plan.
// Unknown plans get the free tier limit.
func (s *Subscription) MonthlyLimit() int64 {
	if limit, ok := planLimits[s.Plan]; ok {
		return limit
	}
	return planLimits[PlanFree]
}

// ValidPlans returns the known plan names
func ValidPlans() []string {
	return []string{PlanFree, PlanDeveloper, PlanBusiness}
}

// IsValidPlan checks if the plan name is known
func IsValidPlan(plan string) bool {
	_, ok := planLimits[plan]
	return ok
}

// APIKey authenticates API requests
type APIKey struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"index" json:"user_id"`
	User      User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Name      string     `json:"name"`
	Key       string     `gorm:"uniqueIndex;size:64" json:"-"`
	IsActive  bool       `gorm:"default:true" json:"is_active"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

const apiKeyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateAPIKey produces an mse_-prefixed random key
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 40)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(apiKeyAlphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to generate api key: %w", err)
		}
		buf[i] = apiKeyAlphabet[n.Int64()]
	}
	return "mse_" + string(buf), nil
}

// BeforeCreate fills in a generated key when one was not supplied
func (k *APIKey) BeforeCreate(tx *gorm.DB) error {
	if k.Key == "" {
		key, err := GenerateAPIKey()
		if err != nil {
			return err
		}
		k.Key = key
	}
	return nil
}

// KeyPreview returns a truncated form safe for display
func (k *APIKey) KeyPreview() string {
	if len(k.Key) < 16 {
		return "***"
	}
	return k.Key[:8] + "..." + k.Key[len(k.Key)-8:]
}

// UsageQuota tracks monthly request usage. Rollover is implicit: a new
// period gets a new row keyed on (user, year, month).
type UsageQuota struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"uniqueIndex:idx_user_period" json:"user_id"`
	Year       int       `gorm:"uniqueIndex:idx_user_period" json:"year"`
	Month      int       `gorm:"uniqueIndex:idx_user_period" json:"month"`
	UsageCount int64     `gorm:"default:0" json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// APIUsage is a per-request usage log row, written fire-and-forget for
// analytics. It must never block request handling.
type APIUsage struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	APIKeyID       uint      `gorm:"index:idx_usage_key_time" json:"api_key_id"`
	Endpoint       string    `json:"endpoint"`
	Method         string    `json:"method"`
	ResponseStatus int       `json:"response_status"`
	CreatedAt      time.Time `gorm:"index:idx_usage_key_time" json:"created_at"`
}

// MigrateAccountModels runs database migrations for account-related models
func MigrateAccountModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Subscription{},
		&APIKey{},
		&UsageQuota{},
		&APIUsage{},
	)
}
