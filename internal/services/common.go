package services

import (
	"context"

	"khata/internal/core"
	"khata/internal/storage"
)

// today is swapped in tests.
var today = core.Today

func todayRange() core.DateRange {
	d := today()
	return core.DateRange{Start: &d, End: &d}
}

func sumToday(ctx context.Context, repo *storage.Repository, sum func(*storage.Queries, context.Context, core.DateRange) (core.Money, error)) (core.Money, error) {
	var total core.Money
	err := repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		total, err = sum(q, ctx, todayRange())
		return err
	})
	return total, err
}
