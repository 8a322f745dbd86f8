package services

import (
	"context"
	"log/slog"

	"khata/internal/core"
	"khata/internal/storage"
)

// ExpenseService manages operating expenses. Transport expenses created by a
// purchase are read-only here.
type ExpenseService struct {
	storage *storage.Repository
}

func NewExpenseService(storage *storage.Repository) *ExpenseService {
	return &ExpenseService{storage: storage}
}

func (s *ExpenseService) Create(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	if err := validateInput(&in); err != nil {
		return core.Expense{}, err
	}
	var e core.Expense
	err := s.storage.InTx(ctx, func(q *storage.Queries) error {
		var err error
		e, err = q.CreateExpense(ctx, in)
		return err
	})
	if err != nil {
		return core.Expense{}, err
	}
	slog.InfoContext(ctx, "Expense recorded",
		"id", e.ID,
		"category", e.Category,
		"amount", e.Amount.String())
	return e, nil
}

func (s *ExpenseService) Get(ctx context.Context, id int64) (core.Expense, error) {
	var e core.Expense
	err := s.storage.InTx(ctx, func(q *storage.Queries) error {
		var err error
		e, err = q.GetExpense(ctx, id)
		return err
	})
	return e, err
}

func (s *ExpenseService) List(ctx context.Context, f core.ExpenseFilter) ([]core.Expense, error) {
	if err := f.Range.Validate(); err != nil {
		return nil, err
	}
	if f.Category != "" && !f.Category.Valid() {
		return nil, core.Invalid("category", "unknown category %q", f.Category)
	}
	var expenses []core.Expense
	err := s.storage.InTx(ctx, func(q *storage.Queries) error {
		var err error
		expenses, err = q.ListExpenses(ctx, f)
		return err
	})
	return expenses, err
}

func (s *ExpenseService) Update(ctx context.Context, id int64, in core.ExpenseInput) (core.Expense, error) {
	if err := validateInput(&in); err != nil {
		return core.Expense{}, err
	}
	var e core.Expense
	err := s.storage.InTx(ctx, func(q *storage.Queries) error {
		var err error
		e, err = q.UpdateExpense(ctx, id, in)
		return err
	})
	return e, err
}

// Delete removes a standalone expense. Expenses owned by a purchase fail
// with a conflict.
func (s *ExpenseService) Delete(ctx context.Context, id int64) error {
	err := s.storage.InTx(ctx, func(q *storage.Queries) error {
		return q.DeleteExpense(ctx, id)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Expense deleted", "id", id)
	return nil
}

func (s *ExpenseService) TodayTotal(ctx context.Context) (core.Money, error) {
	return sumToday(ctx, s.storage, (*storage.Queries).SumExpenses)
}

func (s *ExpenseService) ByCategory(ctx context.Context, rng core.DateRange) ([]core.CategoryTotal, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	var totals []core.CategoryTotal
	err := s.storage.InTx(ctx, func(q *storage.Queries) error {
		var err error
		totals, err = q.ExpensesByCategory(ctx, rng)
		return err
	})
	return totals, err
}
