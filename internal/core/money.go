// Package core provides money parsing and formatting utilities.
//
// Amounts are carried as shopspring decimals so that invoice arithmetic is
// exact; this file converts between user input, decimals and display text.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts user input to a non-negative decimal.
//
// It accepts dot (12.34) and comma (12,34) decimal separators, and
// thousands separators when both appear (1,234.56 or 1.234,56). Commas
// alone are thousands separators when they split the number into 3-digit
// groups after a 1-3 digit head that does not start with 0 (1,000 or
// 1,234,567). Values are rounded half-up to two places.
//
// Examples:
//
//	ParseAmount("12.34")     -> 12.34
//	ParseAmount("12,34")     -> 12.34
//	ParseAmount("1,000")     -> 1000
//	ParseAmount("1,234,567") -> 1234567
//	ParseAmount("1,234.56")  -> 1234.56
//	ParseAmount("1.234,56")  -> 1234.56
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$€£¥ ")
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return decimal.Zero, ErrInvalidAmount
		}
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		// Whichever separator comes last is the decimal mark.
		if lastDot > lastComma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastComma >= 0:
		switch {
		case thousandsGrouped(s):
			s = strings.ReplaceAll(s, ",", "")
		case strings.Count(s, ",") > 1:
			return decimal.Zero, ErrInvalidAmount
		default:
			s = strings.Replace(s, ",", ".", 1)
		}
	}
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(2), nil
}

// thousandsGrouped reports whether s is digits split by commas into
// 3-digit groups after a 1-3 digit head, e.g. 1,000 or 12,345,678.
// A head of 0 reads as a decimal comma (0,500).
func thousandsGrouped(s string) bool {
	groups := strings.Split(s, ",")
	head := groups[0]
	if len(head) == 0 || len(head) > 3 || head[0] == '0' {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 || strings.Contains(g, ".") {
			return false
		}
	}
	return true
}

// currencySymbols covers the currencies offered in the document form.
var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"CAD": "CA$",
	"AUD": "A$",
	"JPY": "¥",
	"INR": "₹",
	"CHF": "CHF ",
}

// FormatMoney renders an amount with the currency symbol and thousands
// separators, e.g. FormatMoney(1234.5, "USD") -> "$1,234.50".
func FormatMoney(d decimal.Decimal, currency string) string {
	sym, ok := currencySymbols[strings.ToUpper(currency)]
	if !ok {
		sym = strings.ToUpper(currency) + " "
		if strings.TrimSpace(sym) == "" {
			sym = "$"
		}
	}
	places := int32(2)
	if strings.EqualFold(currency, "JPY") {
		places = 0
	}

	neg := d.IsNegative()
	str := d.Abs().StringFixed(places)
	intPart, frac := str, ""
	if i := strings.IndexByte(str, '.'); i >= 0 {
		intPart, frac = str[:i], str[i:]
	}

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := sym + b.String() + frac
	if neg {
		return "-" + out
	}
	return out
}
