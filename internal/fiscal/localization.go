// internal/fiscal/localization.go
package fiscal

import (
	"strings"

	"pos-device-service/internal/driver/wire"
)

// Localization holds receipt labels and the printer code page
type Localization struct {
	Name           string
	CodePage       wire.CodePage
	Title          string
	Subtotal       string
	Change         string
	Operator       string
	Discount       string
	PaymentMethods map[string]string
	TimeLayout     string
}

var (
	LocalizationDefault = Localization{
		Name:     "en",
		CodePage: wire.CodePagePC437,
		Title:    "RECEIPT",
		Subtotal: "TOTAL",
		Change:   "CHANGE",
		Operator: "Operator",
		Discount: "Discount",
		PaymentMethods: map[string]string{
			"cash":    "Cash",
			"card":    "Card",
			"voucher": "Voucher",
		},
		TimeLayout: "2006-01-02 15:04",
	}

	LocalizationGreek = Localization{
		Name:     "el",
		CodePage: wire.CodePageGreek,
		Title:    "ΑΠΟΔΕΙΞΗ",
		Subtotal: "ΣΥΝΟΛΟ",
		Change:   "ΡΕΣΤΑ",
		Operator: "Ταμίας",
		Discount: "Έκπτωση",
		PaymentMethods: map[string]string{
			"cash":    "Μετρητά",
			"card":    "Κάρτα",
			"voucher": "Κουπόνι",
		},
		TimeLayout: "02/01/2006 15:04",
	}
)

// LookupLocalization returns a localization by name, defaulting to English
func LookupLocalization(name string) Localization {
	switch strings.ToLower(name) {
	case "el", "gr", "greek":
		return LocalizationGreek
	default:
		return LocalizationDefault
	}
}

// PaymentLabel returns the printed label of a payment method
func (l Localization) PaymentLabel(method string) string {
	if label, ok := l.PaymentMethods[strings.ToLower(method)]; ok {
		return label
	}
	return method
}
