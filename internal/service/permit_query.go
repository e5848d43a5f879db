package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/rto-permits/internal/model"
	"github.com/nurpe/rto-permits/internal/validity"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	statusPending = "pending"
)

type ListPermitsInput struct {
	Search     string
	Status     string
	DateFilter string
	Page       int
	Limit      int
}

type PermitList struct {
	Items      []model.PermitSummary
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

// ListPermits filters Part A rows in the store, applies the validity date
// filter in memory and paginates the filtered result.
func (s *PermitService) ListPermits(ctx context.Context, input ListPermitsInput) (*PermitList, error) {
	rows, err := s.filteredPartA(ctx, input)
	if err != nil {
		return nil, err
	}

	page, limit := normalizePage(input.Page, input.Limit)
	total := len(rows)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	items, err := s.summarize(ctx, rows[start:end])
	if err != nil {
		return nil, err
	}

	totalPages := 0
	if total > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(limit)))
	}
	return &PermitList{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

type ExportResult struct {
	FileName string
	Content  []byte
}

// ExportPermits renders every permit matching the filters into a workbook.
func (s *PermitService) ExportPermits(ctx context.Context, input ListPermitsInput) (*ExportResult, error) {
	rows, err := s.filteredPartA(ctx, input)
	if err != nil {
		return nil, err
	}
	items, err := s.summarize(ctx, rows)
	if err != nil {
		return nil, err
	}

	content, err := s.excel.Generate(items)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		FileName: fmt.Sprintf("national-permits-%s.xlsx", s.now().UTC().Format("20060102")),
		Content:  content,
	}, nil
}

type PermitChain struct {
	Anchor       model.PermitPartA
	CurrentPartA *model.PermitPartA
	CurrentPartB *model.PermitPartB
	PartA        []model.PermitPartA
	PartB        []model.PermitPartB
	Bills        []model.Bill
}

// GetPermit returns the full renewal history of the anchor's chain.
func (s *PermitService) GetPermit(ctx context.Context, anchorID uuid.UUID) (*PermitChain, error) {
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

	chain := &PermitChain{Anchor: *anchor, PartA: partAs, PartB: partBs}
	var billIDs []uuid.UUID
	for i := range partAs {
		if partAs[i].Status.InForce() {
			chain.CurrentPartA = &partAs[i]
		}
		if partAs[i].BillID != nil {
			billIDs = append(billIDs, *partAs[i].BillID)
		}
	}
	for i := range partBs {
		if partBs[i].Status.InForce() {
			chain.CurrentPartB = &partBs[i]
		}
		if partBs[i].BillID != nil {
			billIDs = append(billIDs, *partBs[i].BillID)
		}
	}

	chain.Bills, err = s.store.Bills().ListBills(ctx, billIDs)
	if err != nil {
		return nil, err
	}
	return chain, nil
}

type PermitPart string

const (
	PartA PermitPart = "A"
	PartB PermitPart = "B"
)

type BillDocument struct {
	Bill     model.Bill
	Path     string
	FileName string
}

// BillPDF resolves a permit row to its bill and the rendered file. Each
// missing link has its own error.
func (s *PermitService) BillPDF(ctx context.Context, part PermitPart, rowID uuid.UUID) (*BillDocument, error) {
	var (
		billID *uuid.UUID
		err    error
	)
	switch part {
	case PartA:
		var row *model.PermitPartA
		row, err = s.store.Permits().GetPartA(ctx, rowID)
		if row != nil {
			billID = row.BillID
		}
	case PartB:
		var row *model.PermitPartB
		row, err = s.store.Permits().GetPartB(ctx, rowID)
		if row != nil {
			billID = row.BillID
		}
	default:
		return nil, invalidf("unknown permit part %q", part)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPermitNotFound
		}
		return nil, err
	}
	if billID == nil {
		return nil, ErrBillNotFound
	}

	bill, err := s.store.Bills().GetBill(ctx, *billID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBillNotFound
		}
		return nil, err
	}
	if !bill.HasPDF() {
		return nil, ErrPDFNotGenerated
	}
	if _, err := os.Stat(*bill.BillPDFPath); err != nil {
		s.log.Warn().Err(err).Str("bill_id", bill.ID.String()).Msg("bill pdf path recorded but file is missing")
		return nil, ErrPDFNotGenerated
	}

	return &BillDocument{
		Bill:     *bill,
		Path:     *bill.BillPDFPath,
		FileName: fmt.Sprintf("bill-%s.pdf", bill.BillNumber),
	}, nil
}

func (s *PermitService) filteredPartA(ctx context.Context, input ListPermitsInput) ([]model.PermitPartA, error) {
	filter := model.PermitFilter{Search: strings.TrimSpace(input.Search)}
	switch status := strings.TrimSpace(input.Status); {
	case status == "":
	case strings.EqualFold(status, statusPending):
		filter.Pending = true
	case validity.Status(status).Valid():
		filter.Status = validity.Status(status)
	default:
		return nil, invalidf("unknown status filter %q", status)
	}

	dateFilter, err := validity.ParseDateFilter(input.DateFilter)
	if err != nil {
		return nil, invalidf("%v", err)
	}

	rows, err := s.store.Permits().SearchPartA(ctx, filter)
	if err != nil {
		return nil, err
	}
	if dateFilter == "" {
		return rows, nil
	}

	today := s.now().UTC()
	filtered := make([]model.PermitPartA, 0, len(rows))
	for _, row := range rows {
		if dateFilter.Matches(row.ValidTo.Time, today) {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

func (s *PermitService) summarize(ctx context.Context, rows []model.PermitPartA) ([]model.PermitSummary, error) {
	keys := make([]model.PermitKey, 0, len(rows))
	seen := make(map[model.PermitKey]struct{}, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.Key()]; ok {
			continue
		}
		seen[row.Key()] = struct{}{}
		keys = append(keys, row.Key())
	}

	partBs, err := s.store.Permits().InForcePartBByKeys(ctx, keys)
	if err != nil {
		return nil, err
	}
	current := make(map[model.PermitKey]*model.PermitPartB, len(partBs))
	for i := range partBs {
		if _, ok := current[partBs[i].Key()]; !ok {
			current[partBs[i].Key()] = &partBs[i]
		}
	}

	items := make([]model.PermitSummary, 0, len(rows))
	for _, row := range rows {
		items = append(items, model.PermitSummary{PartA: row, PartB: current[row.Key()]})
	}
	return items, nil
}

func normalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	switch {
	case limit > MaxPageSize:
		limit = MaxPageSize
	case limit <= 0:
		limit = DefaultPageSize
	}
	return page, limit
}
