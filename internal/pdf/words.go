package pdf

import (
	"strings"

	"github.com/shopspring/decimal"
)

var smallNumbers = []string{
	"", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine",
	"Ten", "Eleven", "Twelve", "Thirteen", "Fourteen", "Fifteen",
	"Sixteen", "Seventeen", "Eighteen", "Nineteen",
}

var tensNames = []string{
	"", "", "Twenty", "Thirty", "Forty", "Fifty", "Sixty", "Seventy", "Eighty", "Ninety",
}

// spellIndian spells n using the lakh/crore grouping printed on Indian bills.
func spellIndian(n int64) string {
	switch {
	case n == 0:
		return ""
	case n < 20:
		return smallNumbers[n]
	case n < 100:
		return strings.TrimSpace(tensNames[n/10] + " " + smallNumbers[n%10])
	case n < 1000:
		return joinWords(smallNumbers[n/100]+" Hundred", spellIndian(n%100))
	case n < 100000:
		return joinWords(spellIndian(n/1000)+" Thousand", spellIndian(n%1000))
	case n < 10000000:
		return joinWords(spellIndian(n/100000)+" Lakh", spellIndian(n%100000))
	default:
		return joinWords(spellIndian(n/10000000)+" Crore", spellIndian(n%10000000))
	}
}

func joinWords(head, tail string) string {
	if tail == "" {
		return head
	}
	return head + " " + tail
}

// AmountInWords renders a rupee amount, e.g. "One Thousand Rupees and Fifty Paise Only".
func AmountInWords(amount decimal.Decimal) string {
	amount = amount.Abs().Round(2)
	rupees := amount.IntPart()
	paise := amount.Sub(decimal.NewFromInt(rupees)).Mul(decimal.NewFromInt(100)).IntPart()

	var parts []string
	if rupees > 0 {
		parts = append(parts, spellIndian(rupees)+" Rupees")
	}
	if paise > 0 {
		parts = append(parts, spellIndian(paise)+" Paise")
	}
	if len(parts) == 0 {
		return "Zero Rupees Only"
	}
	return strings.Join(parts, " and ") + " Only"
}
