package core

import "fmt"

// DashboardSummary aggregates the business for a period plus the current day.
type DashboardSummary struct {
	Range           DateRange `json:"-"`
	TodayPurchases  Money     `json:"today_purchases"`
	TodaySales      Money     `json:"today_sales"`
	TodayExpenses   Money     `json:"today_expenses"`
	TotalPurchases  Money     `json:"total_purchases"`
	TotalSales      Money     `json:"total_sales"`
	TotalExpenses   Money     `json:"total_expenses"`
	TotalProfit     Money     `json:"total_profit"`
	TotalReceivable Money     `json:"total_receivable"`
}

// MonthStat is one calendar month bucket.
type MonthStat struct {
	Label     string `json:"month"`
	Year      int    `json:"year"`
	Month     int    `json:"month_number"`
	Purchases Money  `json:"purchases"`
	Sales     Money  `json:"sales"`
	Expenses  Money  `json:"expenses"`
	Profit    Money  `json:"profit"`
}

// DailyTotal is a per-day sum as returned by the storage layer.
type DailyTotal struct {
	Date  Date
	Total Money
}

type ProductSales struct {
	ProductTypeID int64    `json:"product_type_id"`
	ProductName   string   `json:"product_name"`
	TotalQuantity Quantity `json:"total_quantity"`
	TotalAmount   Money    `json:"total_amount"`
}

type CategoryTotal struct {
	Category ExpenseCategory `json:"category"`
	Total    Money           `json:"total"`
}

type FullReport struct {
	MonthlyStats []MonthStat    `json:"monthly_stats"`
	ProductSales []ProductSales `json:"product_sales"`
	TopBuyers    []BuyerBalance `json:"top_buyers"`
}

// MonthBuckets returns the n calendar months ending with the month of end,
// oldest first, with zero totals.
func MonthBuckets(end Date, n int) []MonthStat {
	if n < 1 {
		return nil
	}
	buckets := make([]MonthStat, n)
	cur := end.MonthStart()
	for i := n - 1; i >= 0; i-- {
		buckets[i] = MonthStat{
			Label: fmt.Sprintf("%s %d", cur.Month().String()[:3], cur.Year()),
			Year:  cur.Year(),
			Month: int(cur.Month()),
		}
		cur = Date{Time: cur.AddDate(0, -1, 0)}
	}
	return buckets
}

// FillMonthBuckets adds daily totals into the matching buckets and computes
// profit. Totals outside the buckets are ignored.
func FillMonthBuckets(buckets []MonthStat, purchases, sales, expenses []DailyTotal) {
	index := make(map[[2]int]int, len(buckets))
	for i, b := range buckets {
		index[[2]int{b.Year, b.Month}] = i
	}
	add := func(rows []DailyTotal, pick func(*MonthStat) *Money) {
		for _, r := range rows {
			i, ok := index[[2]int{r.Date.Year(), int(r.Date.Month())}]
			if !ok {
				continue
			}
			m := pick(&buckets[i])
			*m = m.Add(r.Total)
		}
	}
	add(purchases, func(b *MonthStat) *Money { return &b.Purchases })
	add(sales, func(b *MonthStat) *Money { return &b.Sales })
	add(expenses, func(b *MonthStat) *Money { return &b.Expenses })
	for i := range buckets {
		b := &buckets[i]
		b.Profit = b.Sales.Sub(b.Purchases).Sub(b.Expenses)
	}
}
