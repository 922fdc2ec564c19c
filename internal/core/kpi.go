package core

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	MonthAmount struct {
		Month  string          `json:"month"` // YYYY-MM
		Amount decimal.Decimal `json:"amount"`
	}

	ClientAmount struct {
		Client    string          `json:"client"`
		Amount    decimal.Decimal `json:"amount"`
		Documents int             `json:"documents"`
	}

	// KPIs is the dashboard aggregate computed over a tenant's documents.
	// Amounts are summed without currency conversion.
	KPIs struct {
		Documents       int             `json:"documents"`
		ByKind          map[Kind]int    `json:"by_kind"`
		ByStatus        map[Status]int  `json:"by_status"`
		TotalInvoiced   decimal.Decimal `json:"total_invoiced"`
		Collected       decimal.Decimal `json:"collected"`
		Outstanding     decimal.Decimal `json:"outstanding"`
		OverdueAmount   decimal.Decimal `json:"overdue_amount"`
		OverdueCount    int             `json:"overdue_count"`
		OpenQuotesValue decimal.Decimal `json:"open_quotes_value"`
		OpenQuotes      int             `json:"open_quotes"`
		AcceptanceRate  float64         `json:"acceptance_rate"` // percent of decided estimates/quotes
		AvgDaysToPay    float64         `json:"avg_days_to_pay"`
		RevenueByMonth  []MonthAmount   `json:"revenue_by_month"`
		TopClients      []ClientAmount  `json:"top_clients"`
		GeneratedAt     time.Time       `json:"generated_at"`
	}
)

const topClients = 5

// invoiced reports whether an invoice counts towards billed revenue.
func invoiced(d Document) bool {
	return d.Kind == KindInvoice && d.Status != StatusDraft && d.Status != StatusCancelled
}

// IsOverdue reports whether an open invoice is past due at now, whether or
// not the sweeper already flagged it.
func (d Document) IsOverdue(now time.Time) bool {
	if d.Kind != KindInvoice {
		return false
	}
	if d.Status == StatusOverdue {
		return true
	}
	return d.IsOpen() && !d.DueDate.IsZero() && d.DueDate.Before(startOfDay(now))
}

func startOfDay(t time.Time) time.Time {
	y, m, dd := t.Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, t.Location())
}

// ComputeKPIs aggregates the given documents. Deleted documents are skipped.
func ComputeKPIs(docs []Document, now time.Time) KPIs {
	k := KPIs{
		ByKind:      make(map[Kind]int),
		ByStatus:    make(map[Status]int),
		GeneratedAt: now,
	}

	// trailing 12 months including the current one
	months := make([]MonthAmount, 12)
	monthIdx := make(map[string]int, 12)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -11, 0)
	for i := range months {
		key := first.AddDate(0, i, 0).Format("2006-01")
		months[i] = MonthAmount{Month: key}
		monthIdx[key] = i
	}

	clients := make(map[string]*ClientAmount)
	var accepted, decided int
	var paidDays float64
	var paidCount int

	for _, d := range docs {
		if d.Deleted {
			continue
		}
		k.Documents++
		k.ByKind[d.Kind]++
		k.ByStatus[d.Status]++
		t := ComputeTotals(d)

		switch d.Kind {
		case KindInvoice:
			if !invoiced(d) {
				continue
			}
			k.TotalInvoiced = k.TotalInvoiced.Add(t.GrandTotal)
			k.Collected = k.Collected.Add(decimal.Min(t.AmountPaid, t.GrandTotal))
			if d.IsOpen() {
				k.Outstanding = k.Outstanding.Add(t.BalanceDue)
			}
			if d.IsOverdue(now) {
				k.OverdueAmount = k.OverdueAmount.Add(t.BalanceDue)
				k.OverdueCount++
			}
			if i, ok := monthIdx[d.IssueDate.Format("2006-01")]; ok {
				months[i].Amount = months[i].Amount.Add(t.GrandTotal)
			}
			if d.Status == StatusPaid && !d.PaidAt.IsZero() && !d.IssueDate.IsZero() {
				days := d.PaidAt.Sub(d.IssueDate).Hours() / 24
				if days < 0 {
					days = 0
				}
				paidDays += days
				paidCount++
			}
			name := d.ClientLabel()
			key := strings.ToLower(strings.TrimSpace(name))
			c, ok := clients[key]
			if !ok {
				c = &ClientAmount{Client: name}
				clients[key] = c
			}
			c.Amount = c.Amount.Add(t.GrandTotal)
			c.Documents++

		case KindEstimate, KindQuote:
			switch d.Status {
			case StatusDraft, StatusSent:
				k.OpenQuotes++
				k.OpenQuotesValue = k.OpenQuotesValue.Add(t.GrandTotal)
			case StatusAccepted:
				accepted++
				decided++
			case StatusDeclined, StatusExpired:
				decided++
			}
		}
	}

	if decided > 0 {
		k.AcceptanceRate = roundFloat(float64(accepted) * 100 / float64(decided))
	}
	if paidCount > 0 {
		k.AvgDaysToPay = roundFloat(paidDays / float64(paidCount))
	}
	k.RevenueByMonth = months

	k.TopClients = make([]ClientAmount, 0, len(clients))
	for _, c := range clients {
		k.TopClients = append(k.TopClients, *c)
	}
	sort.Slice(k.TopClients, func(i, j int) bool {
		if c := k.TopClients[i].Amount.Cmp(k.TopClients[j].Amount); c != 0 {
			return c > 0
		}
		return k.TopClients[i].Client < k.TopClients[j].Client
	})
	if len(k.TopClients) > topClients {
		k.TopClients = k.TopClients[:topClients]
	}
	return k
}

func roundFloat(f float64) float64 {
	v, _ := decimal.NewFromFloat(f).Round(1).Float64()
	return v
}
