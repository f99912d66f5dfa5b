// internal/fiscal/builder.go
package fiscal

import (
	"errors"
	"math"

	"pos-device-service/internal/model"
)

var (
	ErrMissingItems = errors.New("fiscal: order has no items array")
	ErrEmptyOrder   = errors.New("fiscal: order items array is empty")
)

// FallbackTaxCode is used when no configured rate matches
const FallbackTaxCode = "A"

// PaymentMethodCash is the method of the synthesized payment
const PaymentMethodCash = "cash"

const taxRateTolerance = 0.01

// BuildFiscalData turns an order and its payments into a fiscal receipt.
// The order is validated before payments or tax rates are looked at.
func BuildFiscalData(order *model.Order, payments []model.PaymentInput, taxRates []model.TaxRateConfig, operatorID string) (*model.FiscalReceiptData, error) {
	if order == nil || order.Items == nil {
		return nil, ErrMissingItems
	}
	if len(order.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	data := &model.FiscalReceiptData{
		Items:    make([]model.FiscalLineItem, 0, len(order.Items)),
		Payments: make([]model.FiscalPayment, 0, len(payments)),
	}

	for _, item := range order.Items {
		line := model.FiscalLineItem{
			Description:    item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: ToCents(item.UnitPrice),
			TaxCode:        ResolveTaxCode(item.TaxRate, taxRates),
		}
		if item.Discount != nil {
			if discount := ToCents(*item.Discount); discount > 0 {
				line.DiscountCents = &discount
			}
		}
		data.Items = append(data.Items, line)
	}

	for _, p := range payments {
		data.Payments = append(data.Payments, model.FiscalPayment{
			Method:      p.Method,
			AmountCents: ToCents(p.Amount),
		})
	}
	if len(data.Payments) == 0 {
		data.Payments = append(data.Payments, model.FiscalPayment{
			Method:      PaymentMethodCash,
			AmountCents: orderTotal(order, data),
		})
	}

	if operatorID != "" {
		data.OperatorID = &operatorID
	}

	return data, nil
}

// ResolveTaxCode maps an item's declared rate to a configured tax code.
// It always returns a code.
func ResolveTaxCode(rate *float64, taxRates []model.TaxRateConfig) string {
	if rate == nil {
		if len(taxRates) > 0 && taxRates[0].Code != "" {
			return taxRates[0].Code
		}
		return FallbackTaxCode
	}

	for _, tr := range taxRates {
		if math.Abs(tr.Rate-*rate) < taxRateTolerance {
			return tr.Code
		}
	}
	return FallbackTaxCode
}

// orderTotal prefers the order's own total and falls back to the line sum
func orderTotal(order *model.Order, data *model.FiscalReceiptData) int64 {
	if total := ToCents(order.Total); total != 0 {
		return total
	}
	return Subtotal(data)
}

// Subtotal sums line totals net of discounts
func Subtotal(data *model.FiscalReceiptData) int64 {
	var total int64
	for _, item := range data.Items {
		total += LineTotal(item.Quantity, item.UnitPriceCents)
		if item.DiscountCents != nil {
			total -= *item.DiscountCents
		}
	}
	return total
}

// Tendered sums all payments
func Tendered(data *model.FiscalReceiptData) int64 {
	var total int64
	for _, p := range data.Payments {
		total += p.AmountCents
	}
	return total
}
