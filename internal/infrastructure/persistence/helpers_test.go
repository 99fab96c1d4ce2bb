package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/manavault/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newSQLiteDB opens an isolated in-memory database with the full schema.
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

// newMockDB opens a gorm postgres connection backed by sqlmock.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

type fixture struct {
	internal *models.SupplierModel
	ezcards  *models.SupplierModel
	steam    *models.ProductModel
	psn      *models.ProductModel
}

func seedCatalog(t *testing.T, db *gorm.DB) fixture {
	t.Helper()
	now := time.Now()
	f := fixture{
		internal: &models.SupplierModel{
			BaseModel: models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
			Name:      "Warehouse", Slug: "internal", Type: procurement.SupplierTypeInternal, Active: true,
		},
		ezcards: &models.SupplierModel{
			BaseModel: models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
			Name:      "EzCards", Slug: procurement.SupplierSlugEzCards, Type: procurement.SupplierTypeExternal, Active: true,
		},
	}
	f.steam = &models.ProductModel{
		BaseModel:  models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		SupplierID: f.internal.ID, Name: "Steam 10 USD", SKU: "STEAM-10", UnitCost: decimal.RequireFromString("9.50"),
	}
	f.psn = &models.ProductModel{
		BaseModel:  models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		SupplierID: f.ezcards.ID, Name: "PSN 20 USD", SKU: "PSN-20", UnitCost: decimal.RequireFromString("19.25"),
	}
	require.NoError(t, db.Create(f.internal).Error)
	require.NoError(t, db.Create(f.ezcards).Error)
	require.NoError(t, db.Create(f.steam).Error)
	require.NoError(t, db.Create(f.psn).Error)
	return f
}

// seedOrder stores an order with one internal line and one ezcards line backed by a processing sub-order.
func seedOrder(t *testing.T, db *gorm.DB, f fixture, txID string) *procurement.PurchaseOrder {
	t.Helper()
	order, err := procurement.NewPurchaseOrder(procurement.GenerateOrderNumber(time.Now()))
	require.NoError(t, err)
	_, err = order.AddItem(f.internal.ID, f.steam.ToDomain(), 2)
	require.NoError(t, err)
	_, err = order.AddItem(f.ezcards.ID, f.psn.ToDomain(), 3)
	require.NoError(t, err)

	sub, err := procurement.NewProcessingSubOrder(f.ezcards.ID, txID)
	require.NoError(t, err)
	order.AddSubOrder(sub)
	_, err = order.TransitionTo(procurement.OrderStatusProcessing)
	require.NoError(t, err)

	require.NoError(t, NewGormPurchaseOrderRepository(db).Create(context.Background(), order))
	return order
}

func sealed(code string) procurement.SealedCode {
	return procurement.SealedCode{Ciphertext: "enc:" + code, Fingerprint: "fp:" + code}
}
