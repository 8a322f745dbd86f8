package storage

import (
	"context"
	"fmt"

	"khata/internal/core"
)

// Aggregates read minor-unit integers so sums stay exact on both engines.

func (q *Queries) sumColumn(ctx context.Context, table, column string, rng core.DateRange) (core.Money, error) {
	where, args := dateRangeClause("date", rng)
	var total core.Money
	if err := q.queryRow(ctx, `SELECT SUM(`+column+`) FROM `+table+where, args...).Scan(&total); err != nil {
		return core.Money{}, fmt.Errorf("sum %s: %w", table, err)
	}
	return total, nil
}

func (q *Queries) SumPurchases(ctx context.Context, rng core.DateRange) (core.Money, error) {
	return q.sumColumn(ctx, "purchases", "total_cost_cents", rng)
}

func (q *Queries) SumSales(ctx context.Context, rng core.DateRange) (core.Money, error) {
	return q.sumColumn(ctx, "sales", "total_cents", rng)
}

func (q *Queries) SumExpenses(ctx context.Context, rng core.DateRange) (core.Money, error) {
	return q.sumColumn(ctx, "expenses", "amount_cents", rng)
}

func (q *Queries) dailyTotals(ctx context.Context, table, column string, rng core.DateRange) ([]core.DailyTotal, error) {
	where, args := dateRangeClause("date", rng)
	rows, err := q.query(ctx, `SELECT date, SUM(`+column+`) FROM `+table+where+` GROUP BY date ORDER BY date`, args...)
	if err != nil {
		return nil, fmt.Errorf("daily %s: %w", table, err)
	}
	defer rows.Close()

	totals := []core.DailyTotal{}
	for rows.Next() {
		var dt core.DailyTotal
		if err := rows.Scan(&dt.Date, &dt.Total); err != nil {
			return nil, fmt.Errorf("scan daily %s: %w", table, err)
		}
		totals = append(totals, dt)
	}
	return totals, rows.Err()
}

func (q *Queries) DailyPurchases(ctx context.Context, rng core.DateRange) ([]core.DailyTotal, error) {
	return q.dailyTotals(ctx, "purchases", "total_cost_cents", rng)
}

func (q *Queries) DailySales(ctx context.Context, rng core.DateRange) ([]core.DailyTotal, error) {
	return q.dailyTotals(ctx, "sales", "total_cents", rng)
}

func (q *Queries) DailyExpenses(ctx context.Context, rng core.DateRange) ([]core.DailyTotal, error) {
	return q.dailyTotals(ctx, "expenses", "amount_cents", rng)
}

// ProductSales aggregates sold quantity and amount per product type, highest
// amount first.
func (q *Queries) ProductSales(ctx context.Context, rng core.DateRange) ([]core.ProductSales, error) {
	where, args := dateRangeClause("s.date", rng)
	rows, err := q.query(ctx, `
		SELECT pt.id, pt.name, SUM(si.quantity_milli), SUM(si.total_price_cents)
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		JOIN product_types pt ON pt.id = si.product_type_id`+where+`
		GROUP BY pt.id, pt.name
		ORDER BY SUM(si.total_price_cents) DESC, pt.name`, args...)
	if err != nil {
		return nil, fmt.Errorf("product sales: %w", err)
	}
	defer rows.Close()

	out := []core.ProductSales{}
	for rows.Next() {
		var ps core.ProductSales
		if err := rows.Scan(&ps.ProductTypeID, &ps.ProductName, &ps.TotalQuantity, &ps.TotalAmount); err != nil {
			return nil, fmt.Errorf("scan product sales: %w", err)
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}
