package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/rto-permits/internal/config"
	"github.com/nurpe/rto-permits/internal/model"
	"github.com/nurpe/rto-permits/internal/repository"
	"github.com/nurpe/rto-permits/internal/validity"
)

// RenderQueue schedules bill PDF rendering outside the request.
type RenderQueue interface {
	EnqueueBillPDF(ctx context.Context, billID uuid.UUID) error
}

type ExcelGenerator interface {
	Generate(rows []model.PermitSummary) ([]byte, error)
}

type PermitService struct {
	store           repository.Store
	queue           RenderQueue
	excel           ExcelGenerator
	log             zerolog.Logger
	partBDefaultFee decimal.Decimal
	expiringWindow  time.Duration
	now             func() time.Time
}

func NewPermitService(
	store repository.Store,
	queue RenderQueue,
	excel ExcelGenerator,
	cfg *config.Config,
	log zerolog.Logger,
) *PermitService {
	window := cfg.Permits.ExpiringWindow()
	if window <= 0 {
		window = validity.DefaultExpiringWindow
	}
	return &PermitService{
		store:           store,
		queue:           queue,
		excel:           excel,
		log:             log,
		partBDefaultFee: decimal.NewFromFloat(cfg.Permits.PartBDefaultFee),
		expiringWindow:  window,
		now:             time.Now,
	}
}

type FeeInput struct {
	TotalFee *decimal.Decimal
	Paid     *decimal.Decimal
	Balance  *decimal.Decimal
}

type fees struct {
	total   decimal.Decimal
	paid    decimal.Decimal
	balance decimal.Decimal
}

type CreatePermitInput struct {
	VehicleNumber  string
	PermitNumber   string
	HolderName     string
	FatherName     string
	Address        string
	Mobile         string
	Email          string
	PartAValidFrom string
	PartAValidTo   string
	PartBNumber    string
	PartBValidFrom string
	PartBValidTo   string
	Fees           FeeInput
	Notes          string
	Images         []string
	Principal      model.Principal
}

type CreatePermitResult struct {
	PartA *model.PermitPartA
	PartB *model.PermitPartB
	Bill  *model.Bill
}

// CreatePermit issues a new Part A/Part B pair billed through one combined
// bill referenced from Part A only.
func (s *PermitService) CreatePermit(ctx context.Context, input CreatePermitInput) (*CreatePermitResult, error) {
	if !input.Principal.CanWrite() {
		return nil, ErrPermissionDenied
	}

	vehicleNumber := normalizeVehicleNumber(input.VehicleNumber)
	permitNumber := strings.TrimSpace(input.PermitNumber)
	holderName := strings.TrimSpace(input.HolderName)
	partBNumber := strings.TrimSpace(input.PartBNumber)

	if vehicleNumber == "" {
		return nil, invalidf("vehicle number is required")
	}
	if permitNumber == "" {
		return nil, invalidf("permit number is required")
	}
	if holderName == "" {
		return nil, invalidf("permit holder name is required")
	}
	partAFrom, partATo, err := parseWindow("part A", input.PartAValidFrom, input.PartAValidTo)
	if err != nil {
		return nil, err
	}
	if partBNumber == "" {
		return nil, invalidf("part B number is required")
	}
	partBFrom, partBTo, err := parseWindow("part B", input.PartBValidFrom, input.PartBValidTo)
	if err != nil {
		return nil, err
	}
	fee, err := input.Fees.validate()
	if err != nil {
		return nil, err
	}

	key := model.PermitKey{VehicleNumber: vehicleNumber, PermitNumber: permitNumber}
	now := s.now().UTC()

	result := &CreatePermitResult{}
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if _, err := tx.Permits().InForcePartA(ctx, key); err == nil {
			return ErrPermitExists
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		description := fmt.Sprintf(
			"National Permit Part A (Permit No: %s, Vehicle No: %s) valid %s to %s; Part B (No: %s) valid %s to %s",
			permitNumber, vehicleNumber, partAFrom, partATo, partBNumber, partBFrom, partBTo,
		)
		bill, err := s.issueBill(ctx, tx, holderName, description, fee.total, input.Principal, now)
		if err != nil {
			return err
		}

		partA := &model.PermitPartA{
			ID:            uuid.New(),
			VehicleNumber: vehicleNumber,
			PermitNumber:  permitNumber,
			HolderName:    holderName,
			FatherName:    strings.TrimSpace(input.FatherName),
			Address:       strings.TrimSpace(input.Address),
			Mobile:        strings.TrimSpace(input.Mobile),
			Email:         strings.TrimSpace(input.Email),
			ValidFrom:     partAFrom,
			ValidTo:       partATo,
			TotalFee:      fee.total,
			Paid:          fee.paid,
			Balance:       fee.balance,
			Status:        validity.StatusActive,
			BillID:        &bill.ID,
			Notes:         strings.TrimSpace(input.Notes),
			Images:        cleanImages(input.Images),
			CreatedBy:     input.Principal.UserID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Permits().CreatePartA(ctx, partA); err != nil {
			return err
		}

		partB := s.newPartB(key, partBNumber, partBFrom, partBTo, input.Notes, input.Principal, now)
		if err := tx.Permits().CreatePartB(ctx, partB); err != nil {
			return err
		}

		result.PartA = partA
		result.PartB = partB
		result.Bill = bill
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.enqueueRender(ctx, result.Bill)
	s.log.Info().
		Str("vehicle_number", key.VehicleNumber).
		Str("permit_number", key.PermitNumber).
		Str("bill_number", result.Bill.BillNumber).
		Msg("national permit created")
	return result, nil
}

type RenewPartAInput struct {
	PartAID        uuid.UUID
	ValidFrom      string
	ValidTo        string
	Fees           FeeInput
	PartBNumber    string
	PartBValidFrom string
	PartBValidTo   string
	Notes          string
	Principal      model.Principal
}

type RenewPartAResult struct {
	PartA             *model.PermitPartA
	PartB             *model.PermitPartB
	Bill              *model.Bill
	UsedExistingPartB bool
}

// RenewPartA appends a new Part A row to the chain. When a Part B is still in
// force only Part A is billed; otherwise a new Part B is issued with it under
// one combined bill.
func (s *PermitService) RenewPartA(ctx context.Context, input RenewPartAInput) (*RenewPartAResult, error) {
	if !input.Principal.CanWrite() {
		return nil, ErrPermissionDenied
	}

	validFrom, validTo, err := parseWindow("part A", input.ValidFrom, input.ValidTo)
	if err != nil {
		return nil, err
	}
	fee, err := input.Fees.validate()
	if err != nil {
		return nil, err
	}

	anchor, err := s.loadAnchor(ctx, input.PartAID)
	if err != nil {
		return nil, err
	}
	key := anchor.Key()

	existingB, err := s.store.Permits().InForcePartB(ctx, key)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	useExisting := err == nil

	var (
		partBNumber        string
		partBFrom, partBTo model.Date
	)
	if !useExisting {
		partBNumber = strings.TrimSpace(input.PartBNumber)
		if partBNumber == "" {
			return nil, invalidf("part B number is required because no active part B exists")
		}
		partBFrom, partBTo, err = parseWindow("part B", input.PartBValidFrom, input.PartBValidTo)
		if err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	result := &RenewPartAResult{UsedExistingPartB: useExisting}
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		description := fmt.Sprintf(
			"National Permit Part A renewal (Permit No: %s, Vehicle No: %s) valid %s to %s",
			key.PermitNumber, key.VehicleNumber, validFrom, validTo,
		)
		if !useExisting {
			description += fmt.Sprintf("; Part B (No: %s) valid %s to %s", partBNumber, partBFrom, partBTo)
		}
		bill, err := s.issueBill(ctx, tx, anchor.HolderName, description, fee.total, input.Principal, now)
		if err != nil {
			return err
		}

		if _, err := tx.Permits().ExpirePartA(ctx, key, now); err != nil {
			return err
		}
		partA := &model.PermitPartA{
			ID:            uuid.New(),
			VehicleNumber: key.VehicleNumber,
			PermitNumber:  key.PermitNumber,
			HolderName:    anchor.HolderName,
			FatherName:    anchor.FatherName,
			Address:       anchor.Address,
			Mobile:        anchor.Mobile,
			Email:         anchor.Email,
			ValidFrom:     validFrom,
			ValidTo:       validTo,
			TotalFee:      fee.total,
			Paid:          fee.paid,
			Balance:       fee.balance,
			Status:        validity.StatusActive,
			BillID:        &bill.ID,
			Notes:         strings.TrimSpace(input.Notes),
			Images:        anchor.Images,
			CreatedBy:     input.Principal.UserID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Permits().CreatePartA(ctx, partA); err != nil {
			return err
		}

		result.PartA = partA
		result.Bill = bill
		if useExisting {
			result.PartB = existingB
			return nil
		}

		if _, err := tx.Permits().ExpirePartB(ctx, key, now); err != nil {
			return err
		}
		partB := s.newPartB(key, partBNumber, partBFrom, partBTo, input.Notes, input.Principal, now)
		if err := tx.Permits().CreatePartB(ctx, partB); err != nil {
			return err
		}
		result.PartB = partB
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.enqueueRender(ctx, result.Bill)
	s.log.Info().
		Str("vehicle_number", key.VehicleNumber).
		Str("permit_number", key.PermitNumber).
		Bool("used_existing_part_b", useExisting).
		Msg("national permit part A renewed")
	return result, nil
}

type RenewPartBInput struct {
	PartAID     uuid.UUID
	PartBNumber string
	ValidFrom   string
	ValidTo     string
	TotalFee    *decimal.Decimal
	Paid        *decimal.Decimal
	Balance     *decimal.Decimal
	Notes       string
	Principal   model.Principal
}

type RenewPartBResult struct {
	PartB *model.PermitPartB
	Bill  *model.Bill
}

// RenewPartB always bills Part B on its own. Part A rows are not touched.
func (s *PermitService) RenewPartB(ctx context.Context, input RenewPartBInput) (*RenewPartBResult, error) {
	if !input.Principal.CanWrite() {
		return nil, ErrPermissionDenied
	}

	partBNumber := strings.TrimSpace(input.PartBNumber)
	if partBNumber == "" {
		return nil, invalidf("part B number is required")
	}
	validFrom, validTo, err := parseWindow("part B", input.ValidFrom, input.ValidTo)
	if err != nil {
		return nil, err
	}

	total := s.partBDefaultFee
	if input.TotalFee != nil {
		total = *input.TotalFee
	}
	paid := decimal.Zero
	if input.Paid != nil {
		paid = *input.Paid
	}
	fee, err := newFees(total, paid)
	if err != nil {
		return nil, err
	}
	if input.Balance != nil && input.Balance.IsNegative() {
		return nil, invalidf("balance cannot be negative")
	}

	anchor, err := s.loadAnchor(ctx, input.PartAID)
	if err != nil {
		return nil, err
	}
	key := anchor.Key()

	now := s.now().UTC()
	result := &RenewPartBResult{}
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		description := fmt.Sprintf(
			"National Permit Part B renewal (Part B No: %s, Permit No: %s, Vehicle No: %s) valid %s to %s",
			partBNumber, key.PermitNumber, key.VehicleNumber, validFrom, validTo,
		)
		bill, err := s.issueBill(ctx, tx, anchor.HolderName, description, fee.total, input.Principal, now)
		if err != nil {
			return err
		}

		if _, err := tx.Permits().ExpirePartB(ctx, key, now); err != nil {
			return err
		}
		partB := s.newPartB(key, partBNumber, validFrom, validTo, input.Notes, input.Principal, now)
		partB.TotalFee = &fee.total
		partB.Paid = &fee.paid
		partB.Balance = &fee.balance
		partB.BillID = &bill.ID
		if err := tx.Permits().CreatePartB(ctx, partB); err != nil {
			return err
		}

		result.PartB = partB
		result.Bill = bill
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.enqueueRender(ctx, result.Bill)
	s.log.Info().
		Str("vehicle_number", key.VehicleNumber).
		Str("permit_number", key.PermitNumber).
		Str("part_b_number", partBNumber).
		Msg("national permit part B renewed")
	return result, nil
}

type DeletePermitResult struct {
	PartADeleted int64
	PartBDeleted int64
	BillsDeleted int64
	FilesRemoved int
}

// DeletePermit removes the whole renewal chain of the anchor row, every bill
// the chain references and the rendered bill files.
func (s *PermitService) DeletePermit(ctx context.Context, anchorID uuid.UUID, principal model.Principal) (*DeletePermitResult, error) {
	if !principal.CanWrite() {
		return nil, ErrPermissionDenied
	}

	anchor, err := s.loadAnchor(ctx, anchorID)
	if err != nil {
		return nil, err
	}
	key := anchor.Key()

	partAs, err := s.store.Permits().ListPartAByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	partBs, err := s.store.Permits().ListPartBByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{})
	billIDs := make([]uuid.UUID, 0, len(partAs)+len(partBs))
	collect := func(id *uuid.UUID) {
		if id == nil {
			return
		}
		if _, ok := seen[*id]; ok {
			return
		}
		seen[*id] = struct{}{}
		billIDs = append(billIDs, *id)
	}
	for _, row := range partAs {
		collect(row.BillID)
	}
	for _, row := range partBs {
		collect(row.BillID)
	}

	bills, err := s.store.Bills().ListBills(ctx, billIDs)
	if err != nil {
		return nil, err
	}

	result := &DeletePermitResult{}
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		if result.BillsDeleted, err = tx.Bills().DeleteBills(ctx, billIDs); err != nil {
			return err
		}
		if result.PartADeleted, err = tx.Permits().DeletePartAByKey(ctx, key); err != nil {
			return err
		}
		if result.PartBDeleted, err = tx.Permits().DeletePartBByKey(ctx, key); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, bill := range bills {
		if !bill.HasPDF() {
			continue
		}
		if err := os.Remove(*bill.BillPDFPath); err != nil {
			s.log.Warn().Err(err).Str("path", *bill.BillPDFPath).Msg("failed to remove bill pdf")
			continue
		}
		result.FilesRemoved++
	}

	s.log.Info().
		Str("vehicle_number", key.VehicleNumber).
		Str("permit_number", key.PermitNumber).
		Int64("part_a_deleted", result.PartADeleted).
		Int64("part_b_deleted", result.PartBDeleted).
		Int64("bills_deleted", result.BillsDeleted).
		Msg("national permit deleted")
	return result, nil
}

func (s *PermitService) loadAnchor(ctx context.Context, id uuid.UUID) (*model.PermitPartA, error) {
	if id == uuid.Nil {
		return nil, invalidf("permit id is required")
	}
	anchor, err := s.store.Permits().GetPartA(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPermitNotFound
		}
		return nil, err
	}
	return anchor, nil
}

func (s *PermitService) issueBill(
	ctx context.Context,
	tx repository.Store,
	customer, description string,
	amount decimal.Decimal,
	principal model.Principal,
	now time.Time,
) (*model.Bill, error) {
	number, err := tx.Bills().NextBillNumber(ctx)
	if err != nil {
		return nil, err
	}
	bill := &model.Bill{
		ID:           uuid.New(),
		BillNumber:   number,
		CustomerName: customer,
		BillDate:     model.NewDate(now),
		Items: []model.BillLineItem{{
			Description: description,
			Quantity:    1,
			Rate:        amount,
			Amount:      amount,
		}},
		TotalAmount: amount,
		CreatedBy:   principal.UserID,
		CreatedAt:   now,
	}
	if err := tx.Bills().CreateBill(ctx, bill); err != nil {
		return nil, err
	}
	return bill, nil
}

func (s *PermitService) newPartB(
	key model.PermitKey,
	number string,
	from, to model.Date,
	notes string,
	principal model.Principal,
	now time.Time,
) *model.PermitPartB {
	return &model.PermitPartB{
		ID:            uuid.New(),
		VehicleNumber: key.VehicleNumber,
		PermitNumber:  key.PermitNumber,
		PartBNumber:   number,
		ValidFrom:     from,
		ValidTo:       to,
		Status:        validity.StatusActive,
		Notes:         strings.TrimSpace(notes),
		CreatedBy:     principal.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// enqueueRender never fails the caller: the bill and permit rows are already
// committed and the pdf can be rendered again later.
func (s *PermitService) enqueueRender(ctx context.Context, bill *model.Bill) {
	if s.queue == nil || bill == nil {
		return
	}
	if err := s.queue.EnqueueBillPDF(context.WithoutCancel(ctx), bill.ID); err != nil {
		s.log.Error().Err(err).Str("bill_id", bill.ID.String()).Msg("failed to enqueue bill pdf render")
	}
}

func (f FeeInput) validate() (fees, error) {
	if f.TotalFee == nil || f.Paid == nil || f.Balance == nil {
		return fees{}, invalidf("total fee, paid and balance are required")
	}
	if f.Paid.Round(2).GreaterThan(f.TotalFee.Round(2)) {
		return fees{}, invalidf("paid amount cannot exceed total fee")
	}
	if f.Balance.IsNegative() {
		return fees{}, invalidf("balance cannot be negative")
	}
	return newFees(*f.TotalFee, *f.Paid)
}

// newFees stores balance as total minus paid regardless of what the caller
// sent.
func newFees(total, paid decimal.Decimal) (fees, error) {
	total = total.Round(2)
	paid = paid.Round(2)
	if total.IsNegative() || paid.IsNegative() {
		return fees{}, invalidf("fees cannot be negative")
	}
	if paid.GreaterThan(total) {
		return fees{}, invalidf("paid amount cannot exceed total fee")
	}
	return fees{total: total, paid: paid, balance: total.Sub(paid)}, nil
}

func parseWindow(label, rawFrom, rawTo string) (model.Date, model.Date, error) {
	if strings.TrimSpace(rawFrom) == "" || strings.TrimSpace(rawTo) == "" {
		return model.Date{}, model.Date{}, invalidf("%s valid from and valid to dates are required", label)
	}
	from, err := model.ParseDate(rawFrom)
	if err != nil {
		return model.Date{}, model.Date{}, invalidf("%s valid from: %v", label, err)
	}
	to, err := model.ParseDate(rawTo)
	if err != nil {
		return model.Date{}, model.Date{}, invalidf("%s valid to: %v", label, err)
	}
	if to.Before(from.Time) {
		return model.Date{}, model.Date{}, invalidf("%s valid to cannot be before valid from", label)
	}
	return from, to, nil
}

func normalizeVehicleNumber(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), ""))
}

func cleanImages(images []string) []string {
	result := make([]string, 0, len(images))
	for _, image := range images {
		if image = strings.TrimSpace(image); image != "" {
			result = append(result, image)
		}
	}
	return result
}
