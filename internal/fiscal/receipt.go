// internal/fiscal/receipt.go
package fiscal

import (
	"strconv"
	"time"

	"pos-device-service/internal/escpos"
	"pos-device-service/internal/model"
)

const defaultPaperWidth = 42

// FormatFiscalReceiptESCPOS renders a fiscal receipt as an opaque ESC/POS
// byte stream for printers driven directly by the POS.
func FormatFiscalReceiptESCPOS(data *model.FiscalReceiptData, paperWidth int, loc Localization) []byte {
	return formatReceipt(data, paperWidth, loc, time.Now())
}

// PaperColumns converts a paper width to characters per line. 58 and 80
// are read as millimetres; other positive values are taken as characters.
func PaperColumns(paperWidth int) int {
	switch {
	case paperWidth == 58:
		return 32
	case paperWidth == 80:
		return 48
	case paperWidth > 0:
		return paperWidth
	default:
		return defaultPaperWidth
	}
}

func formatReceipt(data *model.FiscalReceiptData, paperWidth int, loc Localization, now time.Time) []byte {
	b := escpos.NewBuilder(PaperColumns(paperWidth), loc.CodePage)
	cmd := escpos.Commands

	b.Init()

	b.Raw(cmd.AlignCenter, cmd.BoldOn, cmd.SizeDoubleBoth)
	b.Line(loc.Title)
	b.Raw(cmd.SizeNormal, cmd.BoldOff, cmd.AlignLeft)
	b.Raw(cmd.LineFeed)

	for _, item := range data.Items {
		name := item.Description
		if item.Quantity > 1 {
			name += " x" + strconv.FormatFloat(item.Quantity, 'f', -1, 64)
		}
		b.Columns(name, FormatPrice(LineTotal(item.Quantity, item.UnitPriceCents)))
		if item.DiscountCents != nil {
			b.Columns("  "+loc.Discount, FormatPrice(-*item.DiscountCents))
		}
	}

	b.Rule("-")

	subtotal := Subtotal(data)
	b.Raw(cmd.BoldOn)
	b.Columns(loc.Subtotal, FormatPrice(subtotal))
	b.Raw(cmd.BoldOff)

	for _, p := range data.Payments {
		b.Columns(loc.PaymentLabel(p.Method), FormatPrice(p.AmountCents))
	}
	if tendered := Tendered(data); tendered > subtotal {
		b.Columns(loc.Change, FormatPrice(tendered-subtotal))
	}

	b.Rule("-")

	if data.OperatorID != nil {
		b.Line(loc.Operator + ": " + *data.OperatorID)
	}
	if data.Comment != nil {
		b.Line(*data.Comment)
	}
	b.Line(now.Format(loc.TimeLayout))

	b.Feed(4)
	b.Cut()

	return b.Bytes()
}
