package core

import (
	"fmt"
	"sort"
)

type EntryType string

const (
	EntrySale    EntryType = "SALE"
	EntryPayment EntryType = "PAYMENT"
)

// LedgerEntry is one line of a buyer statement. Sales debit the buyer and
// payments credit it; Balance is the running outstanding after this line.
type LedgerEntry struct {
	Date        Date      `json:"date"`
	Type        EntryType `json:"type"`
	RefID       int64     `json:"ref_id"`
	Seq         int64     `json:"seq"`
	Description string    `json:"description"`
	Debit       Money     `json:"debit"`
	Credit      Money     `json:"credit"`
	Balance     Money     `json:"balance"`
}

// Statement is a buyer's ledger over an optional date range.
type Statement struct {
	Buyer          Buyer         `json:"buyer"`
	Range          DateRange     `json:"-"`
	OpeningBalance Money         `json:"opening_balance"`
	Entries        []LedgerEntry `json:"entries"`
	ClosingBalance Money         `json:"closing_balance"`
}

// Outstanding applies the ledger invariant:
// opening balance + total sales − total payments.
func Outstanding(opening, sales, payments Money) Money {
	return opening.Add(sales).Sub(payments)
}

func SaleEntry(s Sale) LedgerEntry {
	return LedgerEntry{
		Date:        s.Date,
		Type:        EntrySale,
		RefID:       s.ID,
		Seq:         s.Seq,
		Description: fmt.Sprintf("Sale #%d - %s", s.ID, s.PaymentType),
		Debit:       s.Total,
	}
}

func PaymentEntry(p Payment) LedgerEntry {
	return LedgerEntry{
		Date:        p.Date,
		Type:        EntryPayment,
		RefID:       p.ID,
		Seq:         p.Seq,
		Description: "Payment - " + p.PaymentMethod,
		Credit:      p.Amount,
	}
}

// SortEntries orders entries by (date, insertion sequence) ascending.
func SortEntries(entries []LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.Before(b.Date)
		}
		return a.Seq < b.Seq
	})
}

// BuildStatement folds the buyer's sales and payments into a statement.
// Entries dated before the range start are collapsed into the statement's
// opening balance; entries after the range end are dropped. The input slices
// are not modified.
func BuildStatement(buyer Buyer, sales []Sale, payments []Payment, rng DateRange) Statement {
	all := make([]LedgerEntry, 0, len(sales)+len(payments))
	for _, s := range sales {
		all = append(all, SaleEntry(s))
	}
	for _, p := range payments {
		all = append(all, PaymentEntry(p))
	}
	SortEntries(all)

	opening := buyer.OpeningBalance
	entries := make([]LedgerEntry, 0, len(all))
	for _, e := range all {
		if rng.Start != nil && e.Date.Before(*rng.Start) {
			opening = opening.Add(e.Debit).Sub(e.Credit)
			continue
		}
		if rng.End != nil && e.Date.After(*rng.End) {
			continue
		}
		entries = append(entries, e)
	}

	balance := opening
	for i := range entries {
		balance = balance.Add(entries[i].Debit).Sub(entries[i].Credit)
		entries[i].Balance = balance
	}

	return Statement{
		Buyer:          buyer,
		Range:          rng,
		OpeningBalance: opening,
		Entries:        entries,
		ClosingBalance: balance,
	}
}

// RankBuyers sorts by outstanding descending, ties by id ascending, and
// truncates to limit when limit > 0.
func RankBuyers(balances []BuyerBalance, limit int) []BuyerBalance {
	ranked := make([]BuyerBalance, len(balances))
	copy(ranked, balances)
	sort.SliceStable(ranked, func(i, j int) bool {
		if c := ranked[i].Outstanding.Cmp(ranked[j].Outstanding); c != 0 {
			return c > 0
		}
		return ranked[i].ID < ranked[j].ID
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
