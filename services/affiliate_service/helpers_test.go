package affiliate_service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"nasa-go-affiliate/db"
	"nasa-go-affiliate/model/affiliate_model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 每个测试一个内存库，互不干扰
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	d, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := d.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(d))
	return d
}

func seedAffiliate(t *testing.T, d *gorm.DB, code string, status affiliate_model.AffiliateStatus, rate int64) affiliate_model.Affiliate {
	t.Helper()
	var count int64
	require.NoError(t, d.Model(&affiliate_model.Affiliate{}).Count(&count).Error)
	a := affiliate_model.Affiliate{
		CustomerId:     int(count) + 1000,
		Code:           code,
		Name:           "affiliate " + code,
		Status:         status,
		CommissionRate: decimal.NewFromInt(rate),
		CreateTime:     time.Now(),
		UpdateTime:     time.Now(),
	}
	require.NoError(t, d.Create(&a).Error)
	return a
}

func seedProduct(t *testing.T, d *gorm.DB, price string, stock int) affiliate_model.Product {
	t.Helper()
	p := affiliate_model.Product{
		Name:       "product",
		Price:      decimal.RequireFromString(price),
		Stock:      stock,
		Status:     "1",
		CreateTime: time.Now(),
		UpdateTime: time.Now(),
	}
	require.NoError(t, d.Create(&p).Error)
	return p
}

func seedOrder(t *testing.T, d *gorm.DB, total string, affiliateCode *string, sellerID *int) affiliate_model.Order {
	t.Helper()
	o := affiliate_model.Order{
		No:            "T" + uuid.NewString()[:12],
		CustomerName:  "customer",
		CustomerPhone: "0900000000",
		TotalAmount:   decimal.RequireFromString(total),
		Status:        "pending",
		AffiliateCode: affiliateCode,
		SellerId:      sellerID,
		CreateTime:    time.Now(),
		UpdateTime:    time.Now(),
	}
	require.NoError(t, d.Create(&o).Error)
	return o
}

func reloadAffiliate(t *testing.T, d *gorm.DB, id int) affiliate_model.Affiliate {
	t.Helper()
	var a affiliate_model.Affiliate
	require.NoError(t, d.First(&a, id).Error)
	return a
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got.String())
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
