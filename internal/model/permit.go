package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/nurpe/rto-permits/internal/validity"
)

// PermitKey identifies a renewal chain.
type PermitKey struct {
	VehicleNumber string
	PermitNumber  string
}

type PermitPartA struct {
	ID            uuid.UUID                   `json:"id" gorm:"column:id"`
	VehicleNumber string                      `json:"vehicleNumber" gorm:"column:vehicle_number"`
	PermitNumber  string                      `json:"permitNumber" gorm:"column:permit_number"`
	HolderName    string                      `json:"holderName" gorm:"column:holder_name"`
	FatherName    string                      `json:"fatherName" gorm:"column:father_name"`
	Address       string                      `json:"address" gorm:"column:address"`
	Mobile        string                      `json:"mobile" gorm:"column:mobile"`
	Email         string                      `json:"email" gorm:"column:email"`
	ValidFrom     Date                        `json:"validFrom" gorm:"column:valid_from"`
	ValidTo       Date                        `json:"validTo" gorm:"column:valid_to"`
	TotalFee      decimal.Decimal             `json:"totalFee" gorm:"column:total_fee"`
	Paid          decimal.Decimal             `json:"paid" gorm:"column:paid"`
	Balance       decimal.Decimal             `json:"balance" gorm:"column:balance"`
	Status        validity.Status             `json:"status" gorm:"column:status"`
	BillID        *uuid.UUID                  `json:"billId" gorm:"column:bill_id"`
	Notes         string                      `json:"notes" gorm:"column:notes"`
	Images        datatypes.JSONSlice[string] `json:"images" gorm:"column:images"`
	CreatedBy     uuid.UUID                   `json:"createdBy" gorm:"column:created_by"`
	CreatedAt     time.Time                   `json:"createdAt" gorm:"column:created_at"`
	UpdatedAt     time.Time                   `json:"updatedAt" gorm:"column:updated_at"`
}

func (p PermitPartA) Key() PermitKey {
	return PermitKey{VehicleNumber: p.VehicleNumber, PermitNumber: p.PermitNumber}
}

// PermitPartB carries a fee triple and bill only when it was renewed on its
// own; a Part B issued alongside Part A is billed through Part A.
type PermitPartB struct {
	ID            uuid.UUID        `json:"id" gorm:"column:id"`
	VehicleNumber string           `json:"vehicleNumber" gorm:"column:vehicle_number"`
	PermitNumber  string           `json:"permitNumber" gorm:"column:permit_number"`
	PartBNumber   string           `json:"partBNumber" gorm:"column:part_b_number"`
	ValidFrom     Date             `json:"validFrom" gorm:"column:valid_from"`
	ValidTo       Date             `json:"validTo" gorm:"column:valid_to"`
	TotalFee      *decimal.Decimal `json:"totalFee" gorm:"column:total_fee"`
	Paid          *decimal.Decimal `json:"paid" gorm:"column:paid"`
	Balance       *decimal.Decimal `json:"balance" gorm:"column:balance"`
	Status        validity.Status  `json:"status" gorm:"column:status"`
	BillID        *uuid.UUID       `json:"billId" gorm:"column:bill_id"`
	Notes         string           `json:"notes" gorm:"column:notes"`
	CreatedBy     uuid.UUID        `json:"createdBy" gorm:"column:created_by"`
	CreatedAt     time.Time        `json:"createdAt" gorm:"column:created_at"`
	UpdatedAt     time.Time        `json:"updatedAt" gorm:"column:updated_at"`
}

func (p PermitPartB) Key() PermitKey {
	return PermitKey{VehicleNumber: p.VehicleNumber, PermitNumber: p.PermitNumber}
}

// PermitFilter narrows the Part A listing at the store level. Date filtering
// and pagination happen after the rows are loaded.
type PermitFilter struct {
	Search  string
	Pending bool
	Status  validity.Status
}

// PermitSummary is one listed permit: a Part A row and the Part B row in
// force for the same chain, if any.
type PermitSummary struct {
	PartA PermitPartA  `json:"partA"`
	PartB *PermitPartB `json:"partB"`
}
