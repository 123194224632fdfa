package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Company represents a company listed on the Malawi Stock Exchange
type Company struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Symbol      string `gorm:"uniqueIndex;not null" json:"symbol"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Sector      string `json:"sector,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Website     string `json:"website,omitempty"`

	// Listing details
	ListedDate    *time.Time      `json:"listed_date,omitempty"`
	ListingPrice  decimal.Decimal `gorm:"type:decimal(15,2)" json:"listing_price"`
	SharesInIssue int64           `json:"shares_in_issue"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoricalPrice is the durable tier of the price cache: one row per
// (symbol, date), upserted on conflict.
type HistoricalPrice struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Symbol   string    `gorm:"uniqueIndex:idx_symbol_date;not null" json:"symbol"`
	Date     time.Time `gorm:"uniqueIndex:idx_symbol_date;not null" json:"date"`
	Open     decimal.Decimal `gorm:"type:decimal(15,2)" json:"open"`
	High     decimal.Decimal `gorm:"type:decimal(15,2)" json:"high"`
	Low      decimal.Decimal `gorm:"type:decimal(15,2)" json:"low"`
	Close    decimal.Decimal `gorm:"type:decimal(15,2)" json:"close"`
	Volume   int64           `json:"volume"`
	Turnover decimal.Decimal `gorm:"type:decimal(20,2)" json:"turnover"`

	LastUpdated time.Time `json:"last_updated"`
	CreatedAt   time.Time `json:"created_at"`
}

// StockPrice is a single intraday tick captured by the collector.
type StockPrice struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	Symbol           string          `gorm:"index:idx_tick_symbol_date" json:"symbol"`
	Price            decimal.Decimal `gorm:"type:decimal(15,2)" json:"price"`
	Change           decimal.Decimal `gorm:"type:decimal(15,2)" json:"change"`
	Direction        string          `json:"direction"` // up, down, unchanged
	Date             time.Time       `gorm:"index:idx_tick_symbol_date" json:"date"`
	Time             string          `json:"time"` // HH:MM:SS
	MarketStatus     string          `json:"market_status"`
	MarketUpdateTime string          `json:"market_update_time"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Tick direction constants
const (
	DirectionUp        = "up"
	DirectionDown      = "down"
	DirectionUnchanged = "unchanged"
)

// MigrateStockModels runs database migrations for market-data models
func MigrateStockModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Company{},
		&HistoricalPrice{},
		&StockPrice{},
	)
}
