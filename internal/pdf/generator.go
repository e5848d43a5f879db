package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/nurpe/rto-permits/internal/model"
)

type Generator struct {
	fontName   string
	officeName string
}

func NewGenerator(officeName string) *Generator {
	if strings.TrimSpace(officeName) == "" {
		officeName = "Regional Transport Office"
	}
	return &Generator{fontName: "Helvetica", officeName: officeName}
}

func (g *Generator) Generate(bill model.Bill) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetTitle(fmt.Sprintf("Bill %s", bill.BillNumber), true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont(g.fontName, "B", 16)
	pdf.CellFormat(0, 10, tr(g.officeName), "", 1, "C", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, "National Permit Bill", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(90, 6, fmt.Sprintf("Bill No: %s", bill.BillNumber), "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Date: %s", safeValue(bill.BillDate.String())), "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("Customer: %s", safeValue(bill.CustomerName))), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	headers := []string{"Description", "Qty", "Rate", "Amount"}
	colWidths := []float64{105, 15, 30, 30}
	drawHeader(pdf, g.fontName, headers, colWidths)

	pdf.SetFont(g.fontName, "", 10)
	for _, item := range bill.Items {
		drawItem(pdf, colWidths, []string{
			tr(item.Description),
			fmt.Sprintf("%d", item.Quantity),
			item.Rate.StringFixed(2),
			item.Amount.StringFixed(2),
		})
	}

	pdf.SetFont(g.fontName, "B", 11)
	pdf.CellFormat(colWidths[0]+colWidths[1]+colWidths[2], 8, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(colWidths[3], 8, bill.TotalAmount.StringFixed(2), "1", 1, "R", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont(g.fontName, "", 10)
	pdf.MultiCell(0, 6, fmt.Sprintf("Amount in words: %s", AmountInWords(bill.TotalAmount)), "", "L", false)
	pdf.Ln(14)

	pdf.CellFormat(0, 6, "Authorised Signatory", "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawHeader(pdf *gofpdf.Fpdf, fontName string, cols []string, widths []float64) {
	pdf.SetFont(fontName, "B", 10)
	for i, col := range cols {
		align := "L"
		if i > 0 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 8, col, "1", 0, align, false, 0, "")
	}
	pdf.Ln(-1)
}

// drawItem wraps the description and stretches the numeric cells to the same
// height.
func drawItem(pdf *gofpdf.Fpdf, widths []float64, cols []string) {
	const lineHeight = 6
	x, y := pdf.GetXY()
	lines := pdf.SplitLines([]byte(cols[0]), widths[0]-2)
	rowHeight := float64(len(lines)) * lineHeight
	if rowHeight < 8 {
		rowHeight = 8
	}

	pdf.Rect(x, y, widths[0], rowHeight, "D")
	pdf.MultiCell(widths[0], lineHeight, cols[0], "", "L", false)
	pdf.SetXY(x+widths[0], y)
	for i := 1; i < len(cols); i++ {
		ln := 0
		if i == len(cols)-1 {
			ln = 1
		}
		pdf.CellFormat(widths[i], rowHeight, cols[i], "1", ln, "R", false, 0, "")
	}
}

func safeValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
