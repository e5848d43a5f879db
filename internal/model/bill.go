package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type BillLineItem struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// Bill is immutable once stored, except for the one-time PDF path.
type Bill struct {
	ID           uuid.UUID                         `json:"id" gorm:"column:id"`
	BillNumber   string                            `json:"billNumber" gorm:"column:bill_number"`
	CustomerName string                            `json:"customerName" gorm:"column:customer_name"`
	BillDate     Date                              `json:"billDate" gorm:"column:bill_date"`
	Items        datatypes.JSONSlice[BillLineItem] `json:"items" gorm:"column:items"`
	TotalAmount  decimal.Decimal                   `json:"totalAmount" gorm:"column:total_amount"`
	BillPDFPath  *string                           `json:"billPdfPath" gorm:"column:bill_pdf_path"`
	CreatedBy    uuid.UUID                         `json:"createdBy" gorm:"column:created_by"`
	CreatedAt    time.Time                         `json:"createdAt" gorm:"column:created_at"`
}

func (b Bill) HasPDF() bool {
	return b.BillPDFPath != nil && *b.BillPDFPath != ""
}
