// internal/model/fiscal.go
package model

import "github.com/shopspring/decimal"

// FiscalReceiptData is the structured receipt carried inside a fiscal transaction
type FiscalReceiptData struct {
	Items      []FiscalLineItem `json:"items"`
	Payments   []FiscalPayment  `json:"payments"`
	OperatorID *string          `json:"operator_id,omitempty"`
	Comment    *string          `json:"comment,omitempty"`
}

// FiscalLineItem is one receipt line with its resolved tax code
type FiscalLineItem struct {
	Description    string  `json:"description"`
	Quantity       float64 `json:"quantity"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	TaxCode        string  `json:"tax_code"`
	DiscountCents  *int64  `json:"discount_cents,omitempty"`
}

// FiscalPayment is one tender applied to the receipt
type FiscalPayment struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
}

// TaxRateConfig maps a tax code letter to its percentage rate
type TaxRateConfig struct {
	Code  string  `json:"code" mapstructure:"code"`
	Rate  float64 `json:"rate" mapstructure:"rate"`
	Label string  `json:"label" mapstructure:"label"`
}

// Order is the order JSON the fiscal builder consumes
type Order struct {
	ID    string          `json:"id"`
	Items []OrderItem     `json:"items"`
	Total decimal.Decimal `json:"total"`
}

// OrderItem is a single ordered product
type OrderItem struct {
	Name      string           `json:"name"`
	Quantity  float64          `json:"quantity"`
	UnitPrice decimal.Decimal  `json:"unitPrice"`
	TaxRate   *float64         `json:"taxRate,omitempty"`
	Discount  *decimal.Decimal `json:"discount,omitempty"`
}

// PaymentInput is a tender as recorded by the order system
type PaymentInput struct {
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}
