package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"mse_backend/models"
	"mse_backend/services/quota"
)

// Context keys set by APIKeyAuth for downstream handlers
const (
	ContextUserKey   = "auth_user"
	ContextAPIKeyKey = "auth_api_key"
)

// APIKeyAuth authenticates requests by API key and enforces the caller's
// monthly quota. The key arrives in the X-API-Key header or as a bearer
// token. Every authenticated request consumes one unit of quota
// regardless of response status.
func APIKeyAuth(db *gorm.DB, ledger *quota.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawKey := extractKey(c)
		if rawKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "X-API-Key header is required",
			})
			c.Abort()
			return
		}

		if !validKeyFormat(rawKey) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid API key",
			})
			c.Abort()
			return
		}

		var apiKey models.APIKey
		err := db.Preload("User").Where("key = ?", rawKey).First(&apiKey).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid API key",
			})
			c.Abort()
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to verify API key",
			})
			c.Abort()
			return
		}

		// A disabled key is indistinguishable from an invalid one.
		if !apiKey.IsActive || !apiKey.User.IsActive {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid API key",
			})
			c.Abort()
			return
		}

		var sub models.Subscription
		if err := db.Where("user_id = ?", apiKey.UserID).First(&sub).Error; err != nil {
			// A user without a subscription row gets enrolled on the
			// free plan.
			sub = models.Subscription{UserID: apiKey.UserID, Plan: models.PlanFree, IsActive: true}
			if err := db.Create(&sub).Error; err != nil {
				sub.ID = 0
			}
		}
		if !sub.IsActive && sub.ID != 0 {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Subscription is inactive",
			})
			c.Abort()
			return
		}

		limit := sub.MonthlyLimit()
		decision, err := ledger.CheckAndIncrement(apiKey.UserID, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to check usage quota",
			})
			c.Abort()
			return
		}

		remaining := decision.Limit - decision.Usage
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if !decision.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "quota_exceeded",
				"message": "Monthly request quota exceeded",
				"usage":   decision.Usage,
				"limit":   decision.Limit,
				"plan":    sub.Plan,
			})
			c.Abort()
			return
		}

		c.Set(ContextUserKey, &apiKey.User)
		c.Set(ContextAPIKeyKey, &apiKey)

		c.Next()

		go ledger.RecordUsage(apiKey.ID, c.FullPath(), c.Request.Method, c.Writer.Status())
	}
}

// extractKey pulls the API key from X-API-Key or a bearer Authorization
// header.
func extractKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// validKeyFormat checks the issued key shape: "mse_" plus 40 alphanumeric
// characters.
func validKeyFormat(key string) bool {
	if !strings.HasPrefix(key, "mse_") || len(key) != 44 {
		return false
	}
	for _, r := range key[4:] {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
