package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/rto-permits/internal/model"
	"github.com/nurpe/rto-permits/internal/validity"
)

const (
	partAColumns = `id, vehicle_number, permit_number, holder_name, father_name, address,
		mobile, email, valid_from, valid_to, total_fee, paid, balance, status, bill_id,
		notes, images, created_by, created_at, updated_at`
	partBColumns = `id, vehicle_number, permit_number, part_b_number, valid_from, valid_to,
		total_fee, paid, balance, status, bill_id, notes, created_by, created_at, updated_at`

	inForce = `status IN ('active', 'expiring_soon')`
)

type PermitRepository struct {
	db *gorm.DB
}

func NewPermitRepository(db *gorm.DB) *PermitRepository {
	return &PermitRepository{db: db}
}

func (r *PermitRepository) CreatePartA(ctx context.Context, row *model.PermitPartA) error {
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO permit_part_a (`+partAColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.ID,
		row.VehicleNumber,
		row.PermitNumber,
		row.HolderName,
		row.FatherName,
		row.Address,
		row.Mobile,
		row.Email,
		row.ValidFrom,
		row.ValidTo,
		row.TotalFee,
		row.Paid,
		row.Balance,
		row.Status,
		row.BillID,
		row.Notes,
		row.Images,
		row.CreatedBy,
		row.CreatedAt,
		row.UpdatedAt,
	).Error
}

func (r *PermitRepository) CreatePartB(ctx context.Context, row *model.PermitPartB) error {
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO permit_part_b (`+partBColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.ID,
		row.VehicleNumber,
		row.PermitNumber,
		row.PartBNumber,
		row.ValidFrom,
		row.ValidTo,
		row.TotalFee,
		row.Paid,
		row.Balance,
		row.Status,
		row.BillID,
		row.Notes,
		row.CreatedBy,
		row.CreatedAt,
		row.UpdatedAt,
	).Error
}

func (r *PermitRepository) GetPartA(ctx context.Context, id uuid.UUID) (*model.PermitPartA, error) {
	var row model.PermitPartA
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+partAColumns+`
		FROM permit_part_a
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &row, nil
}

func (r *PermitRepository) GetPartB(ctx context.Context, id uuid.UUID) (*model.PermitPartB, error) {
	var row model.PermitPartB
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+partBColumns+`
		FROM permit_part_b
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &row, nil
}

func (r *PermitRepository) InForcePartA(ctx context.Context, key model.PermitKey) (*model.PermitPartA, error) {
	var row model.PermitPartA
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+partAColumns+`
		FROM permit_part_a
		WHERE vehicle_number = ? AND permit_number = ? AND `+inForce+`
		ORDER BY created_at DESC
		LIMIT 1
	`, key.VehicleNumber, key.PermitNumber).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &row, nil
}

func (r *PermitRepository) InForcePartB(ctx context.Context, key model.PermitKey) (*model.PermitPartB, error) {
	var row model.PermitPartB
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+partBColumns+`
		FROM permit_part_b
		WHERE vehicle_number = ? AND permit_number = ? AND `+inForce+`
		ORDER BY created_at DESC
		LIMIT 1
	`, key.VehicleNumber, key.PermitNumber).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	return &row, nil
}

func (r *PermitRepository) InForcePartBByKeys(ctx context.Context, keys []model.PermitKey) ([]model.PermitPartB, error) {
	if len(keys) == 0 {
		return []model.PermitPartB{}, nil
	}
	pairs := make([][]interface{}, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, []interface{}{key.VehicleNumber, key.PermitNumber})
	}

	var rows []model.PermitPartB
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+partBColumns+`
		FROM permit_part_b
		WHERE (vehicle_number, permit_number) IN ? AND `+inForce+`
		ORDER BY created_at DESC
	`, pairs).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ExpirePartA flips every in-force Part A row of the chain to expired.
func (r *PermitRepository) ExpirePartA(ctx context.Context, key model.PermitKey, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE permit_part_a
		SET status = 'expired', updated_at = ?
		WHERE vehicle_number = ? AND permit_number = ? AND `+inForce,
		at, key.VehicleNumber, key.PermitNumber)
	return res.RowsAffected, res.Error
}

// ExpirePartB flips every in-force Part B row of the chain to expired.
func (r *PermitRepository) ExpirePartB(ctx context.Context, key model.PermitKey, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE permit_part_b
		SET status = 'expired', updated_at = ?
		WHERE vehicle_number = ? AND permit_number = ? AND `+inForce,
		at, key.VehicleNumber, key.PermitNumber)
	return res.RowsAffected, res.Error
}

func (r *PermitRepository) ListPartAByKey(ctx context.Context, key model.PermitKey) ([]model.PermitPartA, error) {
	var rows []model.PermitPartA
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+partAColumns+`
		FROM permit_part_a
		WHERE vehicle_number = ? AND permit_number = ?
		ORDER BY created_at ASC
	`, key.VehicleNumber, key.PermitNumber).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *PermitRepository) ListPartBByKey(ctx context.Context, key model.PermitKey) ([]model.PermitPartB, error) {
	var rows []model.PermitPartB
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+partBColumns+`
		FROM permit_part_b
		WHERE vehicle_number = ? AND permit_number = ?
		ORDER BY created_at ASC
	`, key.VehicleNumber, key.PermitNumber).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *PermitRepository) DeletePartAByKey(ctx context.Context, key model.PermitKey) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		DELETE FROM permit_part_a WHERE vehicle_number = ? AND permit_number = ?
	`, key.VehicleNumber, key.PermitNumber)
	return res.RowsAffected, res.Error
}

func (r *PermitRepository) DeletePartBByKey(ctx context.Context, key model.PermitKey) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		DELETE FROM permit_part_b WHERE vehicle_number = ? AND permit_number = ?
	`, key.VehicleNumber, key.PermitNumber)
	return res.RowsAffected, res.Error
}

func (r *PermitRepository) SearchPartA(ctx context.Context, filter model.PermitFilter) ([]model.PermitPartA, error) {
	baseQuery := `
		SELECT ` + partAColumns + `
		FROM permit_part_a
	`
	var (
		filters []string
		args    []interface{}
	)
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		filters = append(filters, `(permit_number ILIKE ? OR holder_name ILIKE ? OR vehicle_number ILIKE ? OR mobile ILIKE ?)`)
		args = append(args, pattern, pattern, pattern, pattern)
	}
	if filter.Pending {
		filters = append(filters, "balance > 0")
	}
	if filter.Status != "" {
		filters = append(filters, "status = ?")
		args = append(args, filter.Status)
	}

	if len(filters) > 0 {
		baseQuery += " WHERE " + strings.Join(filters, " AND ")
	}
	baseQuery += " ORDER BY created_at DESC"

	var rows []model.PermitPartA
	if err := r.db.WithContext(ctx).Raw(baseQuery, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *PermitRepository) ListInForcePartA(ctx context.Context) ([]model.PermitPartA, error) {
	var rows []model.PermitPartA
	err := r.db.WithContext(ctx).Raw(`
		SELECT ` + partAColumns + `
		FROM permit_part_a
		WHERE ` + inForce).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *PermitRepository) ListInForcePartB(ctx context.Context) ([]model.PermitPartB, error) {
	var rows []model.PermitPartB
	err := r.db.WithContext(ctx).Raw(`
		SELECT ` + partBColumns + `
		FROM permit_part_b
		WHERE ` + inForce).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *PermitRepository) UpdatePartAStatus(ctx context.Context, ids []uuid.UUID, status validity.Status, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Exec(`
		UPDATE permit_part_a SET status = ?, updated_at = ? WHERE id IN ?
	`, status, at, ids)
	return res.RowsAffected, res.Error
}

func (r *PermitRepository) UpdatePartBStatus(ctx context.Context, ids []uuid.UUID, status validity.Status, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Exec(`
		UPDATE permit_part_b SET status = ?, updated_at = ? WHERE id IN ?
	`, status, at, ids)
	return res.RowsAffected, res.Error
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
