package quota

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mse_backend/models"
)

var testDBSeq int

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:quota_test_%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.MigrateAccountModels(db))
	return db
}

func seedUserWithKey(t *testing.T, db *gorm.DB) (*models.User, *models.APIKey) {
	t.Helper()
	user := models.User{Email: "trader@example.com", FullName: "Trader"}
	require.NoError(t, db.Create(&user).Error)
	key := models.APIKey{UserID: user.ID, Name: "default"}
	require.NoError(t, db.Create(&key).Error)
	return &user, &key
}

func TestCheckAndIncrementWithinLimit(t *testing.T) {
	db := openTestDB(t)
	user, _ := seedUserWithKey(t, db)
	ledger := NewLedger(db)

	for i := int64(1); i <= 3; i++ {
		d, err := ledger.CheckAndIncrement(user.ID, 5)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, i, d.Usage)
		assert.Equal(t, int64(5), d.Limit)
	}
}

func TestCheckAndIncrementDeniesAtLimit(t *testing.T) {
	db := openTestDB(t)
	user, _ := seedUserWithKey(t, db)
	ledger := NewLedger(db)

	for i := 0; i < 2; i++ {
		d, err := ledger.CheckAndIncrement(user.ID, 2)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	d, err := ledger.CheckAndIncrement(user.ID, 2)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(2), d.Usage)
}

func TestCheckAndIncrementNeverOvershoots(t *testing.T) {
	db := openTestDB(t)
	user, _ := seedUserWithKey(t, db)
	ledger := NewLedger(db)

	const limit = 10
	var wg sync.WaitGroup
	allowed := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := ledger.CheckAndIncrement(user.ID, limit)
			if err == nil {
				allowed <- d.Allowed
			}
		}()
	}
	wg.Wait()
	close(allowed)

	granted := 0
	for ok := range allowed {
		if ok {
			granted++
		}
	}
	assert.LessOrEqual(t, granted, limit)

	usage, err := ledger.CurrentUsage(user.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, usage, int64(limit))
}

func TestCurrentUsageWithoutRow(t *testing.T) {
	db := openTestDB(t)
	user, _ := seedUserWithKey(t, db)

	usage, err := NewLedger(db).CurrentUsage(user.ID)
	require.NoError(t, err)
	assert.Zero(t, usage)
}

func TestRecordUsage(t *testing.T) {
	db := openTestDB(t)
	_, key := seedUserWithKey(t, db)
	ledger := NewLedger(db)

	ledger.RecordUsage(key.ID, "/api/historical/AIRTEL", "GET", 200)

	var entries []models.APIUsage
	require.NoError(t, db.Where("api_key_id = ?", key.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, "/api/historical/AIRTEL", entries[0].Endpoint)

	var fresh models.APIKey
	require.NoError(t, db.First(&fresh, key.ID).Error)
	require.NotNil(t, fresh.LastUsed)
	assert.WithinDuration(t, time.Now(), *fresh.LastUsed, 5*time.Second)
}
