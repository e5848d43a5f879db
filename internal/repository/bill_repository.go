package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/rto-permits/internal/model"
)

var ErrPDFAlreadyAttached = errors.New("bill already has a different pdf attached")

type BillRepository struct {
	db *gorm.DB
}

func NewBillRepository(db *gorm.DB) *BillRepository {
	return &BillRepository{db: db}
}

// FormatBillNumber zero-pads to two digits; wider numbers keep their width.
func FormatBillNumber(n int64) string {
	return fmt.Sprintf("%02d", n)
}

// NextBillNumber seeds the counter with the number of stored bills on first
// use and increments it atomically afterwards.
func (r *BillRepository) NextBillNumber(ctx context.Context) (string, error) {
	var next int64
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO bill_sequence (name, last_value)
		VALUES ('bill', (SELECT COUNT(*) FROM bills) + 1)
		ON CONFLICT (name) DO UPDATE
			SET last_value = bill_sequence.last_value + 1
		RETURNING last_value
	`).Scan(&next).Error
	if err != nil {
		return "", err
	}
	return FormatBillNumber(next), nil
}

func (r *BillRepository) CreateBill(ctx context.Context, bill *model.Bill) error {
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO bills (
			id,
			bill_number,
			customer_name,
			bill_date,
			items,
			total_amount,
			bill_pdf_path,
			created_by,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		bill.ID,
		bill.BillNumber,
		bill.CustomerName,
		bill.BillDate,
		bill.Items,
		bill.TotalAmount,
		bill.BillPDFPath,
		bill.CreatedBy,
		bill.CreatedAt,
	).Error
}

func (r *BillRepository) GetBill(ctx context.Context, id uuid.UUID) (*model.Bill, error) {
	var bill model.Bill
	err := r.db.WithContext(ctx).Raw(`
		SELECT id, bill_number, customer_name, bill_date, items, total_amount,
			bill_pdf_path, created_by, created_at
		FROM bills
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&bill).Error
	if err != nil {
		return nil, err
	}
	if bill.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &bill, nil
}

func (r *BillRepository) ListBills(ctx context.Context, ids []uuid.UUID) ([]model.Bill, error) {
	if len(ids) == 0 {
		return []model.Bill{}, nil
	}
	var bills []model.Bill
	err := r.db.WithContext(ctx).Raw(`
		SELECT id, bill_number, customer_name, bill_date, items, total_amount,
			bill_pdf_path, created_by, created_at
		FROM bills
		WHERE id IN ?
		ORDER BY created_at ASC
	`, ids).Scan(&bills).Error
	if err != nil {
		return nil, err
	}
	return bills, nil
}

// AttachPDFPath sets the rendered file path once. Repeating the call with the
// same path is a no-op.
func (r *BillRepository) AttachPDFPath(ctx context.Context, id uuid.UUID, path string) error {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE bills
		SET bill_pdf_path = ?
		WHERE id = ? AND (bill_pdf_path IS NULL OR bill_pdf_path = ?)
	`, path, id, path)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	bill, err := r.GetBill(ctx, id)
	if err != nil {
		return err
	}
	if bill.BillPDFPath != nil && *bill.BillPDFPath == path {
		return nil
	}
	return ErrPDFAlreadyAttached
}

func (r *BillRepository) DeleteBills(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Exec(`DELETE FROM bills WHERE id IN ?`, ids)
	return res.RowsAffected, res.Error
}
