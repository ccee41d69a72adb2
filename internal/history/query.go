package history

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainhist/chainhist/internal/model"
)

// Criteria is a conjunctive filter over an already-fetched slice. Nil or
// zero fields are ignored; range bounds are inclusive.
type Criteria struct {
	Type      model.Type
	Status    model.Status
	Network   string
	DateFrom  *time.Time
	DateTo    *time.Time
	AmountMin string
	AmountMax string
}

// Search returns the items whose hash, addresses, token symbol, or token
// name contain query, case-insensitively. An empty query matches everything.
func Search(items []model.Transaction, query string) []model.Transaction {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return items
	}
	out := []model.Transaction{}
	for _, tx := range items {
		if strings.Contains(strings.ToLower(tx.Hash), query) ||
			strings.Contains(strings.ToLower(tx.From), query) ||
			strings.Contains(strings.ToLower(tx.To), query) ||
			strings.Contains(strings.ToLower(tx.TokenSymbol), query) ||
			strings.Contains(strings.ToLower(tx.TokenName), query) {
			out = append(out, tx)
		}
	}
	return out
}

// Filter returns the items matching every set criterion.
func Filter(items []model.Transaction, c Criteria) []model.Transaction {
	min, hasMin := parseAmount(c.AmountMin)
	max, hasMax := parseAmount(c.AmountMax)

	out := []model.Transaction{}
	for _, tx := range items {
		if c.Type != "" && tx.Type != c.Type {
			continue
		}
		if c.Status != "" && tx.Status != c.Status {
			continue
		}
		if c.Network != "" && !strings.EqualFold(tx.Network, c.Network) {
			continue
		}
		if c.DateFrom != nil && tx.Timestamp.Before(*c.DateFrom) {
			continue
		}
		if c.DateTo != nil && tx.Timestamp.After(*c.DateTo) {
			continue
		}
		if hasMin || hasMax {
			amount, err := decimal.NewFromString(tx.Amount)
			if err != nil {
				continue
			}
			if hasMin && amount.LessThan(min) {
				continue
			}
			if hasMax && amount.GreaterThan(max) {
				continue
			}
		}
		out = append(out, tx)
	}
	return out
}

func parseAmount(s string) (decimal.Decimal, bool) {
	if strings.TrimSpace(s) == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
