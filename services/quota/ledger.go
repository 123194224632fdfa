package quota

import (
	"errors"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mse_backend/models"
)

// Decision is the outcome of a quota check for a single request.
type Decision struct {
	Allowed bool
	Usage   int64
	Limit   int64
}

// Ledger tracks per-user monthly API usage against subscription limits.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// CheckAndIncrement consumes one unit of the user's monthly quota if any
// remains. The increment is a conditional UPDATE so concurrent requests
// never push usage past the limit by more than the single row each holds.
func (l *Ledger) CheckAndIncrement(userID uint, limit int64) (Decision, error) {
	now := time.Now()
	year, month := now.Year(), int(now.Month())

	// Lazily create this month's row. ON CONFLICT DO NOTHING keeps the
	// create race between two first requests harmless.
	row := models.UsageQuota{UserID: userID, Year: year, Month: month}
	if err := l.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return Decision{}, err
	}

	res := l.db.Model(&models.UsageQuota{}).
		Where("user_id = ? AND year = ? AND month = ? AND usage_count < ?", userID, year, month, limit).
		Update("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return Decision{}, res.Error
	}

	var current models.UsageQuota
	if err := l.db.Where("user_id = ? AND year = ? AND month = ?", userID, year, month).
		First(&current).Error; err != nil {
		return Decision{}, err
	}

	return Decision{
		Allowed: res.RowsAffected > 0,
		Usage:   current.UsageCount,
		Limit:   limit,
	}, nil
}

// CurrentUsage reports this month's consumption without touching it.
func (l *Ledger) CurrentUsage(userID uint) (int64, error) {
	now := time.Now()
	var row models.UsageQuota
	err := l.db.Where("user_id = ? AND year = ? AND month = ?", userID, now.Year(), int(now.Month())).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.UsageCount, nil
}

// RecordUsage appends a usage-log row and bumps the key's last-used
// timestamp. Called off the request path; failures are logged, not
// surfaced.
func (l *Ledger) RecordUsage(apiKeyID uint, endpoint, method string, status int) {
	entry := models.APIUsage{
		APIKeyID:       apiKeyID,
		Endpoint:       endpoint,
		Method:         method,
		ResponseStatus: status,
		CreatedAt:      time.Now(),
	}
	if err := l.db.Create(&entry).Error; err != nil {
		log.Printf("Failed to record API usage for key %d: %v", apiKeyID, err)
		return
	}
	if err := l.db.Model(&models.APIKey{}).
		Where("id = ?", apiKeyID).
		Update("last_used", time.Now()).Error; err != nil {
		log.Printf("Failed to update last_used for key %d: %v", apiKeyID, err)
	}
}
