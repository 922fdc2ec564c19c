package core

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Totals holds the computed money figures of a document.
type Totals struct {
	Lines      []decimal.Decimal `json:"lines"` // per line amount, same order as Items
	Subtotal   decimal.Decimal   `json:"subtotal"`
	Discount   decimal.Decimal   `json:"discount"`
	Shipping   decimal.Decimal   `json:"shipping"`
	Tax        decimal.Decimal   `json:"tax"`
	TaxRate    decimal.Decimal   `json:"tax_rate"`
	GrandTotal decimal.Decimal   `json:"grand_total"`
	AmountPaid decimal.Decimal   `json:"amount_paid"`
	BalanceDue decimal.Decimal   `json:"balance_due"`
}

// LineAmount returns the stored amount of a line or quantity * unit price
// when none was stored.
func LineAmount(it LineItem) decimal.Decimal {
	if !it.Amount.IsZero() {
		return it.Amount.Round(2)
	}
	return it.Quantity.Mul(it.UnitPrice).Round(2)
}

// ComputeTotals derives the printable totals of a document.
//
// Stored summary values win when non-zero. Otherwise the subtotal is
// rebuilt from the line items, tax from the tax rate (or per-line rates),
// and the grand total as subtotal - discount + shipping + tax.
func ComputeTotals(d Document) Totals {
	s := d.Summary
	t := Totals{
		Lines:      make([]decimal.Decimal, len(d.Items)),
		Discount:   s.Discount.Round(2),
		Shipping:   s.Shipping.Round(2),
		TaxRate:    s.TaxRate,
		AmountPaid: s.AmountPaid.Round(2),
	}

	itemsSum := decimal.Zero
	lineTax := decimal.Zero
	for i, it := range d.Items {
		amt := LineAmount(it)
		t.Lines[i] = amt
		itemsSum = itemsSum.Add(amt)
		if it.TaxRate.IsPositive() {
			lineTax = lineTax.Add(amt.Mul(it.TaxRate).Div(hundred))
		}
	}

	t.Subtotal = s.Subtotal.Round(2)
	if t.Subtotal.IsZero() {
		t.Subtotal = itemsSum
	}

	t.Tax = s.Tax.Round(2)
	if t.Tax.IsZero() {
		switch {
		case s.TaxRate.IsPositive():
			t.Tax = t.Subtotal.Sub(t.Discount).Mul(s.TaxRate).Div(hundred).Round(2)
		case lineTax.IsPositive():
			t.Tax = lineTax.Round(2)
		}
	}

	t.GrandTotal = s.GrandTotal.Round(2)
	if !t.GrandTotal.IsPositive() {
		t.GrandTotal = t.Subtotal.Sub(t.Discount).Add(t.Shipping).Add(t.Tax).Round(2)
		if t.GrandTotal.IsNegative() {
			t.GrandTotal = decimal.Zero
		}
	}

	t.BalanceDue = t.GrandTotal.Sub(t.AmountPaid)
	if t.BalanceDue.IsNegative() {
		t.BalanceDue = decimal.Zero
	}
	return t
}

// GrandTotal is a shortcut for ComputeTotals(d).GrandTotal.
func (d Document) GrandTotal() decimal.Decimal {
	return ComputeTotals(d).GrandTotal
}

// BalanceDue is a shortcut for ComputeTotals(d).BalanceDue.
func (d Document) BalanceDue() decimal.Decimal {
	return ComputeTotals(d).BalanceDue
}
