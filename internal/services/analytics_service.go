package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"khata/internal/core"
	"khata/internal/storage"
)

const (
	DefaultMonths   = 12
	MaxMonths       = 24
	DefaultTopLimit = 10
	MaxTopLimit     = 100

	analyticsTimeout = 30 * time.Second
)

// AnalyticsService computes read-only aggregates. Identical requests that
// overlap in time share one computation; nothing is cached afterwards.
type AnalyticsService struct {
	repo  *storage.Repository
	group singleflight.Group
}

func NewAnalyticsService(repo *storage.Repository) *AnalyticsService {
	return &AnalyticsService{repo: repo}
}

// coalesce runs fn once for overlapping callers with the same key. The shared
// work is detached from any single caller's cancellation and bounded by
// analyticsTimeout; each caller still stops waiting when its own ctx ends.
func coalesce[T any](ctx context.Context, g *singleflight.Group, key string, fn func(context.Context) (T, error)) (T, error) {
	ch := g.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), analyticsTimeout)
		defer cancel()
		return fn(shared)
	})
	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func rangeKey(rng core.DateRange) string {
	start, end := "", ""
	if rng.Start != nil {
		start = rng.Start.String()
	}
	if rng.End != nil {
		end = rng.End.String()
	}
	return start + ".." + end
}

// Dashboard totals purchases, sales and expenses over rng plus today, and the
// receivable across all buyers as of the end of rng.
func (s *AnalyticsService) Dashboard(ctx context.Context, rng core.DateRange) (core.DashboardSummary, error) {
	if err := rng.Validate(); err != nil {
		return core.DashboardSummary{}, err
	}
	return coalesce(ctx, &s.group, "dashboard:"+rangeKey(rng), func(ctx context.Context) (core.DashboardSummary, error) {
		sum := core.DashboardSummary{Range: rng}
		err := s.repo.InTx(ctx, func(q *storage.Queries) error {
			var err error
			if sum.TotalPurchases, err = q.SumPurchases(ctx, rng); err != nil {
				return err
			}
			if sum.TotalSales, err = q.SumSales(ctx, rng); err != nil {
				return err
			}
			if sum.TotalExpenses, err = q.SumExpenses(ctx, rng); err != nil {
				return err
			}

			day := todayRange()
			if sum.TodayPurchases, err = q.SumPurchases(ctx, day); err != nil {
				return err
			}
			if sum.TodaySales, err = q.SumSales(ctx, day); err != nil {
				return err
			}
			if sum.TodayExpenses, err = q.SumExpenses(ctx, day); err != nil {
				return err
			}

			balances, err := q.BuyerBalances(ctx, rng.End)
			if err != nil {
				return err
			}
			for _, b := range balances {
				sum.TotalReceivable = sum.TotalReceivable.Add(b.Outstanding)
			}
			return nil
		})
		sum.TotalProfit = sum.TotalSales.Sub(sum.TotalPurchases).Sub(sum.TotalExpenses)
		return sum, err
	})
}

// MonthlyStats returns months calendar buckets ending with the current
// month, oldest first. Zero means the default.
func (s *AnalyticsService) MonthlyStats(ctx context.Context, months int) ([]core.MonthStat, error) {
	if months == 0 {
		months = DefaultMonths
	}
	if months < 1 || months > MaxMonths {
		return nil, core.Invalid("months", "must be between 1 and %d", MaxMonths)
	}
	return coalesce(ctx, &s.group, fmt.Sprintf("monthly:%d", months), func(ctx context.Context) ([]core.MonthStat, error) {
		buckets := core.MonthBuckets(today(), months)
		first := core.NewDate(buckets[0].Year, monthOf(buckets[0]), 1)
		rng := core.DateRange{Start: &first}

		err := s.repo.InTx(ctx, func(q *storage.Queries) error {
			purchases, err := q.DailyPurchases(ctx, rng)
			if err != nil {
				return err
			}
			sales, err := q.DailySales(ctx, rng)
			if err != nil {
				return err
			}
			expenses, err := q.DailyExpenses(ctx, rng)
			if err != nil {
				return err
			}
			core.FillMonthBuckets(buckets, purchases, sales, expenses)
			return nil
		})
		return buckets, err
	})
}

func (s *AnalyticsService) ProductSales(ctx context.Context, rng core.DateRange) ([]core.ProductSales, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	return coalesce(ctx, &s.group, "products:"+rangeKey(rng), func(ctx context.Context) ([]core.ProductSales, error) {
		var out []core.ProductSales
		err := s.repo.InTx(ctx, func(q *storage.Queries) error {
			var err error
			out, err = q.ProductSales(ctx, rng)
			return err
		})
		return out, err
	})
}

// TopBuyers ranks buyers by outstanding balance, highest first, ties by id.
// Zero means the default limit.
func (s *AnalyticsService) TopBuyers(ctx context.Context, limit int) ([]core.BuyerBalance, error) {
	if limit == 0 {
		limit = DefaultTopLimit
	}
	if limit < 1 || limit > MaxTopLimit {
		return nil, core.Invalid("limit", "must be between 1 and %d", MaxTopLimit)
	}
	return coalesce(ctx, &s.group, fmt.Sprintf("top:%d", limit), func(ctx context.Context) ([]core.BuyerBalance, error) {
		var balances []core.BuyerBalance
		err := s.repo.InTx(ctx, func(q *storage.Queries) error {
			var err error
			balances, err = q.BuyerBalances(ctx, nil)
			return err
		})
		if err != nil {
			return nil, err
		}
		return core.RankBuyers(balances, limit), nil
	})
}

func (s *AnalyticsService) FullReport(ctx context.Context, months int) (core.FullReport, error) {
	monthly, err := s.MonthlyStats(ctx, months)
	if err != nil {
		return core.FullReport{}, err
	}
	products, err := s.ProductSales(ctx, core.DateRange{})
	if err != nil {
		return core.FullReport{}, err
	}
	top, err := s.TopBuyers(ctx, DefaultTopLimit)
	if err != nil {
		return core.FullReport{}, err
	}
	return core.FullReport{MonthlyStats: monthly, ProductSales: products, TopBuyers: top}, nil
}

func monthOf(m core.MonthStat) time.Month { return time.Month(m.Month) }
