// Package company manages the reference data for listed counters. The
// board rarely changes; rows are seeded at startup and can be enriched
// by operators later.
package company

import (
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mse_backend/models"
)

// ErrNotFound means no company is listed under the requested symbol.
var ErrNotFound = errors.New("company not found")

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// List returns every listed company, ordered by symbol.
func (s *Service) List() ([]models.Company, error) {
	var companies []models.Company
	if err := s.db.Order("symbol asc").Find(&companies).Error; err != nil {
		return nil, err
	}
	return companies, nil
}

// Get returns the company listed under a symbol.
func (s *Service) Get(symbol string) (*models.Company, error) {
	var company models.Company
	err := s.db.Where("symbol = ?", strings.ToUpper(strings.TrimSpace(symbol))).First(&company).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &company, nil
}

// listedBoard is the Malawi Stock Exchange main board.
var listedBoard = []models.Company{
	{Symbol: "AIRTEL", Name: "Airtel Malawi plc", Sector: "Telecommunications"},
	{Symbol: "BHL", Name: "Blantyre Hotels plc", Sector: "Tourism"},
	{Symbol: "FDHB", Name: "FDH Bank plc", Sector: "Banking"},
	{Symbol: "FMBCH", Name: "FMB Capital Holdings plc", Sector: "Banking"},
	{Symbol: "ICON", Name: "ICON Properties plc", Sector: "Real Estate"},
	{Symbol: "ILLOVO", Name: "Illovo Sugar Malawi plc", Sector: "Agriculture"},
	{Symbol: "MPICO", Name: "MPICO plc", Sector: "Real Estate"},
	{Symbol: "NBM", Name: "National Bank of Malawi plc", Sector: "Banking"},
	{Symbol: "NBS", Name: "NBS Bank plc", Sector: "Banking"},
	{Symbol: "NICO", Name: "NICO Holdings plc", Sector: "Financial Services"},
	{Symbol: "NITL", Name: "National Investment Trust plc", Sector: "Investment"},
	{Symbol: "OMU", Name: "Old Mutual Limited", Sector: "Financial Services"},
	{Symbol: "PCL", Name: "Press Corporation plc", Sector: "Conglomerate"},
	{Symbol: "STANDARD", Name: "Standard Bank Malawi plc", Sector: "Banking"},
	{Symbol: "SUNBIRD", Name: "Sunbird Tourism plc", Sector: "Tourism"},
	{Symbol: "TNM", Name: "Telekom Networks Malawi plc", Sector: "Telecommunications"},
}

// SeedBoard inserts the known board, leaving existing rows untouched so
// operator edits survive restarts.
func (s *Service) SeedBoard() error {
	rows := make([]models.Company, len(listedBoard))
	copy(rows, listedBoard)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoNothing: true,
	}).Create(&rows).Error
}
