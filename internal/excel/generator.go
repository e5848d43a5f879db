package excel

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/nurpe/rto-permits/internal/model"
)

const sheetName = "National Permits"

var headers = []string{
	"Vehicle No",
	"Permit No",
	"Holder",
	"Father Name",
	"Mobile",
	"Part A Valid From",
	"Part A Valid To",
	"Part A Status",
	"Part B No",
	"Part B Valid From",
	"Part B Valid To",
	"Part B Status",
	"Total Fee",
	"Paid",
	"Balance",
}

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Generate(rows []model.PermitSummary) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := file.SetCellValue(sheetName, cell, header); err != nil {
			return nil, err
		}
	}
	if style, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		lastCell, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = file.SetCellStyle(sheetName, "A1", lastCell, style)
	}

	for i, row := range rows {
		if err := file.SetSheetRow(sheetName, fmt.Sprintf("A%d", i+2), rowValues(row)); err != nil {
			return nil, err
		}
	}

	_ = file.SetColWidth(sheetName, "A", "B", 16)
	_ = file.SetColWidth(sheetName, "C", "D", 28)
	_ = file.SetColWidth(sheetName, "E", "L", 16)
	_ = file.SetColWidth(sheetName, "M", "O", 12)
	_ = file.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func rowValues(row model.PermitSummary) *[]interface{} {
	a := row.PartA
	values := []interface{}{
		a.VehicleNumber,
		a.PermitNumber,
		a.HolderName,
		a.FatherName,
		a.Mobile,
		a.ValidFrom.String(),
		a.ValidTo.String(),
		string(a.Status),
		"", "", "", "",
		money(a.TotalFee),
		money(a.Paid),
		money(a.Balance),
	}
	if b := row.PartB; b != nil {
		values[8] = b.PartBNumber
		values[9] = b.ValidFrom.String()
		values[10] = b.ValidTo.String()
		values[11] = string(b.Status)
	}
	return &values
}

func money(value decimal.Decimal) float64 {
	f, _ := value.Round(2).Float64()
	return f
}
