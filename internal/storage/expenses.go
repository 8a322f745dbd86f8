package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"khata/internal/core"
)

const expenseColumns = `id, date, category, amount_cents, description, purchase_id, created_at, updated_at`

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e                core.Expense
		purchaseID       sql.NullInt64
		created, updated dbTime
	)
	if err := row.Scan(&e.ID, &e.Date, &e.Category, &e.Amount, &e.Description, &purchaseID, &created, &updated); err != nil {
		return core.Expense{}, err
	}
	e.PurchaseID = nullableID(purchaseID)
	e.CreatedAt = created.Time
	e.UpdatedAt = updated.ptr()
	return e, nil
}

func (q *Queries) CreateExpense(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	id, err := q.insert(ctx, `
		INSERT INTO expenses (date, category, amount_cents, description, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		in.Date, string(in.Category), in.Amount, in.Description, now())
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	return q.GetExpense(ctx, id)
}

func (q *Queries) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	e, err := scanExpense(q.queryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.NotFound("expense", id)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return e, nil
}

// ListExpenses returns expenses newest first.
func (q *Queries) ListExpenses(ctx context.Context, f core.ExpenseFilter) ([]core.Expense, error) {
	page := f.Page.Normalize()
	where, args := dateRangeClause("date", f.Range)
	if f.Category != "" {
		where = appendCond(where, "category = ?")
		args = append(args, string(f.Category))
	}
	args = append(args, page.Limit, page.Offset())

	rows, err := q.query(ctx, `SELECT `+expenseColumns+` FROM expenses`+where+
		` ORDER BY date DESC, id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	expenses := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// UpdateExpense rewrites a standalone expense. Transport expenses owned by a
// purchase change only through the purchase.
func (q *Queries) UpdateExpense(ctx context.Context, id int64, in core.ExpenseInput) (core.Expense, error) {
	current, err := q.GetExpense(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	if current.PurchaseID != nil {
		return core.Expense{}, core.Conflict("expense", id, fmt.Sprintf("managed by purchase %d", *current.PurchaseID))
	}
	if _, err := q.exec(ctx, `
		UPDATE expenses
		SET date = ?, category = ?, amount_cents = ?, description = ?, updated_at = ?
		WHERE id = ?`,
		in.Date, string(in.Category), in.Amount, in.Description, now(), id); err != nil {
		return core.Expense{}, fmt.Errorf("update expense %d: %w", id, err)
	}
	return q.GetExpense(ctx, id)
}

func (q *Queries) DeleteExpense(ctx context.Context, id int64) error {
	current, err := q.GetExpense(ctx, id)
	if err != nil {
		return err
	}
	if current.PurchaseID != nil {
		return core.Conflict("expense", id, fmt.Sprintf("managed by purchase %d", *current.PurchaseID))
	}
	if _, err := q.exec(ctx, `DELETE FROM expenses WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	return nil
}

// ExpensesByCategory totals expenses per category within rng, largest first.
func (q *Queries) ExpensesByCategory(ctx context.Context, rng core.DateRange) ([]core.CategoryTotal, error) {
	where, args := dateRangeClause("date", rng)
	rows, err := q.query(ctx, `
		SELECT category, SUM(amount_cents)
		FROM expenses`+where+`
		GROUP BY category
		ORDER BY SUM(amount_cents) DESC, category`, args...)
	if err != nil {
		return nil, fmt.Errorf("expenses by category: %w", err)
	}
	defer rows.Close()

	totals := []core.CategoryTotal{}
	for rows.Next() {
		var ct core.CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Total); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		totals = append(totals, ct)
	}
	return totals, rows.Err()
}
