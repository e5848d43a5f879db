package repository_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nurpe/rto-permits/internal/config"
	"github.com/nurpe/rto-permits/internal/db"
	"github.com/nurpe/rto-permits/internal/model"
	"github.com/nurpe/rto-permits/internal/repository"
	"github.com/nurpe/rto-permits/internal/validity"
)

var errRollback = errors.New("rollback")

// These tests need a disposable PostgreSQL database in TEST_DB_DSN. Each one
// runs inside a transaction that is rolled back.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	database, err := db.New(&config.Config{Environment: "test", DB: config.DBConfig{DSN: dsn}}, zerolog.Nop())
	require.NoError(t, err)
	return database
}

func inRolledBackTx(t *testing.T, fn func(tx *gorm.DB, store *repository.GormStore)) {
	t.Helper()
	database := openTestDB(t)
	err := database.Transaction(func(tx *gorm.DB) error {
		fn(tx, repository.NewStore(tx))
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)
}

func newBill(number string) *model.Bill {
	return &model.Bill{
		ID:           uuid.New(),
		BillNumber:   number,
		CustomerName: "Ramesh Transport",
		BillDate:     model.NewDate(time.Now()),
		Items: []model.BillLineItem{{
			Description: "National Permit Part A",
			Quantity:    1,
			Rate:        decimal.NewFromInt(1000),
			Amount:      decimal.NewFromInt(1000),
		}},
		TotalAmount: decimal.NewFromInt(1000),
		CreatedBy:   uuid.New(),
		CreatedAt:   time.Now().UTC(),
	}
}

func TestNextBillNumber_SeedsFromStoredBills(t *testing.T) {
	inRolledBackTx(t, func(tx *gorm.DB, store *repository.GormStore) {
		ctx := context.Background()
		require.NoError(t, tx.Exec(`DELETE FROM bill_sequence`).Error)
		require.NoError(t, tx.Exec(`DELETE FROM bills`).Error)
		for _, number := range []string{"01", "02", "03"} {
			require.NoError(t, store.Bills().CreateBill(ctx, newBill(number)))
		}

		next, err := store.Bills().NextBillNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, "04", next)

		next, err = store.Bills().NextBillNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, "05", next)
	})
}

func TestNextBillNumber_EmptyLedgerStartsAtOne(t *testing.T) {
	inRolledBackTx(t, func(tx *gorm.DB, store *repository.GormStore) {
		require.NoError(t, tx.Exec(`DELETE FROM bill_sequence`).Error)
		require.NoError(t, tx.Exec(`DELETE FROM bills`).Error)

		next, err := store.Bills().NextBillNumber(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "01", next)
	})
}

func TestAttachPDFPath_OnlyOnce(t *testing.T) {
	inRolledBackTx(t, func(_ *gorm.DB, store *repository.GormStore) {
		ctx := context.Background()
		bill := newBill("01")
		require.NoError(t, store.Bills().CreateBill(ctx, bill))

		require.NoError(t, store.Bills().AttachPDFPath(ctx, bill.ID, "/bills/a.pdf"))
		require.NoError(t, store.Bills().AttachPDFPath(ctx, bill.ID, "/bills/a.pdf"))
		assert.ErrorIs(t, store.Bills().AttachPDFPath(ctx, bill.ID, "/bills/b.pdf"), repository.ErrPDFAlreadyAttached)

		stored, err := store.Bills().GetBill(ctx, bill.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.BillPDFPath)
		assert.Equal(t, "/bills/a.pdf", *stored.BillPDFPath)
		require.Len(t, stored.Items, 1)
		assert.True(t, stored.TotalAmount.Equal(decimal.NewFromInt(1000)))

		err = store.Bills().AttachPDFPath(ctx, uuid.New(), "/bills/c.pdf")
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}

func TestExpirePartA_EndsInForceRow(t *testing.T) {
	inRolledBackTx(t, func(_ *gorm.DB, store *repository.GormStore) {
		ctx := context.Background()
		row := &model.PermitPartA{
			ID:            uuid.New(),
			VehicleNumber: "MH12ZZ" + uuid.NewString()[:6],
			PermitNumber:  "NP-TEST",
			HolderName:    "Ramesh",
			ValidFrom:     model.NewDate(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)),
			ValidTo:       model.NewDate(time.Date(2030, time.December, 31, 0, 0, 0, 0, time.UTC)),
			TotalFee:      decimal.NewFromInt(1000),
			Paid:          decimal.NewFromInt(400),
			Balance:       decimal.NewFromInt(600),
			Status:        validity.StatusActive,
			Images:        []string{},
			CreatedBy:     uuid.New(),
			CreatedAt:     time.Now().UTC(),
			UpdatedAt:     time.Now().UTC(),
		}
		require.NoError(t, store.Permits().CreatePartA(ctx, row))

		found, err := store.Permits().InForcePartA(ctx, row.Key())
		require.NoError(t, err)
		assert.Equal(t, row.ID, found.ID)
		assert.Equal(t, "31-12-2030", found.ValidTo.String())

		n, err := store.Permits().ExpirePartA(ctx, row.Key(), time.Now().UTC())
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = store.Permits().InForcePartA(ctx, row.Key())
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

		expired, err := store.Permits().GetPartA(ctx, row.ID)
		require.NoError(t, err)
		assert.Equal(t, validity.StatusExpired, expired.Status)
	})
}
