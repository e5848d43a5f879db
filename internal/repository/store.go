package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/rto-permits/internal/model"
	"github.com/nurpe/rto-permits/internal/validity"
)

// PermitStore persists Part A and Part B rows. Lookups that find nothing
// return gorm.ErrRecordNotFound.
type PermitStore interface {
	CreatePartA(ctx context.Context, row *model.PermitPartA) error
	CreatePartB(ctx context.Context, row *model.PermitPartB) error
	GetPartA(ctx context.Context, id uuid.UUID) (*model.PermitPartA, error)
	GetPartB(ctx context.Context, id uuid.UUID) (*model.PermitPartB, error)
	InForcePartA(ctx context.Context, key model.PermitKey) (*model.PermitPartA, error)
	InForcePartB(ctx context.Context, key model.PermitKey) (*model.PermitPartB, error)
	InForcePartBByKeys(ctx context.Context, keys []model.PermitKey) ([]model.PermitPartB, error)
	ExpirePartA(ctx context.Context, key model.PermitKey, at time.Time) (int64, error)
	ExpirePartB(ctx context.Context, key model.PermitKey, at time.Time) (int64, error)
	ListPartAByKey(ctx context.Context, key model.PermitKey) ([]model.PermitPartA, error)
	ListPartBByKey(ctx context.Context, key model.PermitKey) ([]model.PermitPartB, error)
	DeletePartAByKey(ctx context.Context, key model.PermitKey) (int64, error)
	DeletePartBByKey(ctx context.Context, key model.PermitKey) (int64, error)
	SearchPartA(ctx context.Context, filter model.PermitFilter) ([]model.PermitPartA, error)
	ListInForcePartA(ctx context.Context) ([]model.PermitPartA, error)
	ListInForcePartB(ctx context.Context) ([]model.PermitPartB, error)
	UpdatePartAStatus(ctx context.Context, ids []uuid.UUID, status validity.Status, at time.Time) (int64, error)
	UpdatePartBStatus(ctx context.Context, ids []uuid.UUID, status validity.Status, at time.Time) (int64, error)
}

// BillLedger numbers and stores bills.
type BillLedger interface {
	NextBillNumber(ctx context.Context) (string, error)
	CreateBill(ctx context.Context, bill *model.Bill) error
	GetBill(ctx context.Context, id uuid.UUID) (*model.Bill, error)
	ListBills(ctx context.Context, ids []uuid.UUID) ([]model.Bill, error)
	AttachPDFPath(ctx context.Context, id uuid.UUID, path string) error
	DeleteBills(ctx context.Context, ids []uuid.UUID) (int64, error)
}

type Store interface {
	Permits() PermitStore
	Bills() BillLedger
	// Transaction runs fn against a store bound to one database transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

type GormStore struct {
	db      *gorm.DB
	permits *PermitRepository
	bills   *BillRepository
}

func NewStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:      db,
		permits: NewPermitRepository(db),
		bills:   NewBillRepository(db),
	}
}

func (s *GormStore) Permits() PermitStore {
	return s.permits
}

func (s *GormStore) Bills() BillLedger {
	return s.bills
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
