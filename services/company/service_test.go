package company

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mse_backend/models"
)

var companyDBSeq int

func newTestService(t *testing.T) *Service {
	t.Helper()
	companyDBSeq++
	dsn := fmt.Sprintf("file:company_test_%d?mode=memory&cache=shared", companyDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Company{}))
	return NewService(db)
}

func TestSeedBoardIsIdempotent(t *testing.T) {
	svc := newTestService(t)

	require.NoError(t, svc.SeedBoard())
	require.NoError(t, svc.SeedBoard())

	companies, err := svc.List()
	require.NoError(t, err)
	assert.Len(t, companies, 16)
	assert.Equal(t, "AIRTEL", companies[0].Symbol)
}

func TestSeedBoardKeepsOperatorEdits(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.SeedBoard())

	require.NoError(t, svc.db.Model(&models.Company{}).
		Where("symbol = ?", "TNM").
		Update("website", "https://www.tnm.co.mw").Error)
	require.NoError(t, svc.SeedBoard())

	tnm, err := svc.Get("TNM")
	require.NoError(t, err)
	assert.Equal(t, "https://www.tnm.co.mw", tnm.Website)
}

func TestGetNormalizesSymbol(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.SeedBoard())

	info, err := svc.Get(" nbm ")
	require.NoError(t, err)
	assert.Equal(t, "National Bank of Malawi plc", info.Name)
}

func TestGetUnknownSymbol(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.SeedBoard())

	_, err := svc.Get("GHOST")
	assert.ErrorIs(t, err, ErrNotFound)
}
