package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/nurpe/rto-permits/internal/config"
	"github.com/nurpe/rto-permits/internal/model"
	"github.com/nurpe/rto-permits/internal/repository"
)

type PDFGenerator interface {
	Generate(bill model.Bill) ([]byte, error)
}

// BillService renders stored bills to disk. It runs inside the background
// worker, never on the request path.
type BillService struct {
	bills  repository.BillLedger
	pdf    PDFGenerator
	pdfDir string
	log    zerolog.Logger
}

func NewBillService(bills repository.BillLedger, pdf PDFGenerator, cfg *config.Config, log zerolog.Logger) *BillService {
	return &BillService{
		bills:  bills,
		pdf:    pdf,
		pdfDir: cfg.Permits.PDFDir,
		log:    log,
	}
}

// PDFPath is where the rendered file of a bill lives.
func PDFPath(dir string, bill model.Bill) string {
	return filepath.Join(dir, fmt.Sprintf("bill-%s-%s.pdf", bill.BillNumber, bill.ID))
}

// RenderBill writes the bill pdf and records its path. A bill that already has
// its file is left alone.
func (s *BillService) RenderBill(ctx context.Context, billID uuid.UUID) (string, error) {
	bill, err := s.bills.GetBill(ctx, billID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrBillNotFound
		}
		return "", err
	}

	path := PDFPath(s.pdfDir, *bill)
	if bill.HasPDF() {
		if _, err := os.Stat(*bill.BillPDFPath); err == nil {
			return *bill.BillPDFPath, nil
		}
		path = *bill.BillPDFPath
	}

	content, err := s.pdf.Generate(*bill)
	if err != nil {
		return "", fmt.Errorf("render bill %s: %w", bill.BillNumber, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}

	if err := s.bills.AttachPDFPath(ctx, bill.ID, path); err != nil {
		return "", err
	}

	s.log.Info().Str("bill_number", bill.BillNumber).Str("path", path).Msg("bill pdf rendered")
	return path, nil
}
