package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mse_backend/models"
	"mse_backend/services/quota"
)

var mwDBSeq int

func setupAuthRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mwDBSeq++
	dsn := fmt.Sprintf("file:mw_test_%d?mode=memory&cache=shared", mwDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.MigrateAccountModels(db))

	r := gin.New()
	r.GET("/api/test", APIKeyAuth(db, quota.NewLedger(db)), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r, db
}

func seedSubscriber(t *testing.T, db *gorm.DB, plan string) *models.APIKey {
	t.Helper()
	user := models.User{Email: fmt.Sprintf("user%d@example.com", mwDBSeq), IsActive: true}
	require.NoError(t, db.Create(&user).Error)
	sub := models.Subscription{UserID: user.ID, Plan: plan, IsActive: true}
	require.NoError(t, db.Create(&sub).Error)
	key := models.APIKey{UserID: user.ID, Name: "test", IsActive: true}
	require.NoError(t, db.Create(&key).Error)
	return &key
}

func doRequest(r *gin.Engine, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAPIKeyAuthMissingHeader(t *testing.T) {
	r, _ := setupAuthRouter(t)
	w := doRequest(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIKeyAuthMalformedKey(t *testing.T) {
	r, _ := setupAuthRouter(t)

	for _, key := range []string{"not-a-key", "mse_short", "sk_" + strings.Repeat("a", 41)} {
		w := doRequest(r, key)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "key %q", key)
	}
}

func TestAPIKeyAuthUnknownKey(t *testing.T) {
	r, _ := setupAuthRouter(t)
	w := doRequest(r, "mse_"+strings.Repeat("x", 40))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIKeyAuthDisabledKey(t *testing.T) {
	r, db := setupAuthRouter(t)
	key := seedSubscriber(t, db, models.PlanFree)
	require.NoError(t, db.Model(key).Update("is_active", false).Error)

	// Disabled keys are rejected exactly like unknown ones.
	w := doRequest(r, key.Key)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIKeyAuthInactiveUser(t *testing.T) {
	r, db := setupAuthRouter(t)
	key := seedSubscriber(t, db, models.PlanFree)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", key.UserID).Update("is_active", false).Error)

	w := doRequest(r, key.Key)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIKeyAuthBearerToken(t *testing.T) {
	r, db := setupAuthRouter(t)
	key := seedSubscriber(t, db, models.PlanFree)

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.Header.Set("Authorization", "Bearer "+key.Key)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKeyAuthEnrollsMissingSubscription(t *testing.T) {
	r, db := setupAuthRouter(t)

	user := models.User{Email: "nosub@example.com", IsActive: true}
	require.NoError(t, db.Create(&user).Error)
	key := models.APIKey{UserID: user.ID, Name: "test", IsActive: true}
	require.NoError(t, db.Create(&key).Error)

	w := doRequest(r, key.Key)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1000", w.Header().Get("X-RateLimit-Limit"))

	var sub models.Subscription
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&sub).Error)
	assert.Equal(t, models.PlanFree, sub.Plan)
	assert.True(t, sub.IsActive)
}

func TestAPIKeyAuthAllowsAndCountsUsage(t *testing.T) {
	r, db := setupAuthRouter(t)
	key := seedSubscriber(t, db, models.PlanFree)

	w := doRequest(r, key.Key)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1000", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "999", w.Header().Get("X-RateLimit-Remaining"))

	usage, err := quota.NewLedger(db).CurrentUsage(key.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), usage)
}

func TestAPIKeyAuthQuotaExceeded(t *testing.T) {
	r, db := setupAuthRouter(t)
	key := seedSubscriber(t, db, models.PlanFree)

	now := time.Now()
	require.NoError(t, db.Create(&models.UsageQuota{
		UserID:     key.UserID,
		Year:       now.Year(),
		Month:      int(now.Month()),
		UsageCount: 1000,
	}).Error)

	w := doRequest(r, key.Key)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "quota_exceeded")
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

