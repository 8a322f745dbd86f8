package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"khata/internal/core"
)

const buyerColumns = `id, name, phone, address, notes, opening_balance_cents, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBuyer(row rowScanner) (core.Buyer, error) {
	var (
		b                core.Buyer
		created, updated dbTime
	)
	if err := row.Scan(&b.ID, &b.Name, &b.Phone, &b.Address, &b.Notes, &b.OpeningBalance, &created, &updated); err != nil {
		return core.Buyer{}, err
	}
	b.CreatedAt = created.Time
	b.UpdatedAt = updated.ptr()
	return b, nil
}

func (q *Queries) CreateBuyer(ctx context.Context, in core.BuyerInput) (core.Buyer, error) {
	id, err := q.insert(ctx, `
		INSERT INTO buyers (name, phone, address, notes, opening_balance_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		in.Name, in.Phone, in.Address, in.Notes, in.OpeningBalance, now())
	if err != nil {
		return core.Buyer{}, fmt.Errorf("insert buyer: %w", err)
	}
	return q.GetBuyer(ctx, id)
}

func (q *Queries) GetBuyer(ctx context.Context, id int64) (core.Buyer, error) {
	b, err := scanBuyer(q.queryRow(ctx, `SELECT `+buyerColumns+` FROM buyers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Buyer{}, core.NotFound("buyer", id)
	}
	if err != nil {
		return core.Buyer{}, fmt.Errorf("get buyer %d: %w", id, err)
	}
	return b, nil
}

func (q *Queries) BuyerExists(ctx context.Context, id int64) (bool, error) {
	n, err := q.count(ctx, `SELECT COUNT(*) FROM buyers WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("check buyer %d: %w", id, err)
	}
	return n > 0, nil
}

// ListBuyers returns buyers ordered by name, optionally filtered by a
// case-insensitive match on name or phone.
func (q *Queries) ListBuyers(ctx context.Context, f core.BuyerFilter) ([]core.Buyer, error) {
	page := f.Page.Normalize()
	query := `SELECT ` + buyerColumns + ` FROM buyers`
	var args []any
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + strings.ToLower(s) + "%"
		query += ` WHERE LOWER(name) LIKE ? OR LOWER(phone) LIKE ?`
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY name, id LIMIT ? OFFSET ?`
	args = append(args, page.Limit, page.Offset())

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list buyers: %w", err)
	}
	defer rows.Close()

	buyers := []core.Buyer{}
	for rows.Next() {
		b, err := scanBuyer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan buyer: %w", err)
		}
		buyers = append(buyers, b)
	}
	return buyers, rows.Err()
}

func (q *Queries) UpdateBuyer(ctx context.Context, id int64, in core.BuyerInput) (core.Buyer, error) {
	ok, err := q.execOne(ctx, `
		UPDATE buyers
		SET name = ?, phone = ?, address = ?, notes = ?, opening_balance_cents = ?, updated_at = ?
		WHERE id = ?`,
		in.Name, in.Phone, in.Address, in.Notes, in.OpeningBalance, now(), id)
	if err != nil {
		return core.Buyer{}, fmt.Errorf("update buyer %d: %w", id, err)
	}
	if !ok {
		return core.Buyer{}, core.NotFound("buyer", id)
	}
	return q.GetBuyer(ctx, id)
}

// DeleteBuyer removes a buyer with no ledger history.
func (q *Queries) DeleteBuyer(ctx context.Context, id int64) error {
	if _, err := q.GetBuyer(ctx, id); err != nil {
		return err
	}

	sales, err := q.count(ctx, `SELECT COUNT(*) FROM sales WHERE buyer_id = ?`, id)
	if err != nil {
		return fmt.Errorf("count buyer sales: %w", err)
	}
	payments, err := q.count(ctx, `SELECT COUNT(*) FROM payments WHERE buyer_id = ?`, id)
	if err != nil {
		return fmt.Errorf("count buyer payments: %w", err)
	}
	if sales > 0 || payments > 0 {
		return core.Conflict("buyer", id, fmt.Sprintf("has %d sales and %d payments", sales, payments))
	}

	if _, err := q.exec(ctx, `DELETE FROM buyers WHERE id = ?`, id); err != nil {
		if isForeignKeyViolation(err) {
			return core.Conflict("buyer", id, "referenced by ledger entries")
		}
		return fmt.Errorf("delete buyer %d: %w", id, err)
	}
	return nil
}

// BuyerTotals returns the opening balance and the sums of sales and payments
// for one buyer, straight from the source rows.
func (q *Queries) BuyerTotals(ctx context.Context, id int64) (opening, sales, payments core.Money, err error) {
	err = q.queryRow(ctx, `
		SELECT b.opening_balance_cents,
		       (SELECT SUM(s.total_cents) FROM sales s WHERE s.buyer_id = b.id),
		       (SELECT SUM(p.amount_cents) FROM payments p WHERE p.buyer_id = b.id)
		FROM buyers b
		WHERE b.id = ?`, id).Scan(&opening, &sales, &payments)
	if errors.Is(err, sql.ErrNoRows) {
		return opening, sales, payments, core.NotFound("buyer", id)
	}
	if err != nil {
		return opening, sales, payments, fmt.Errorf("buyer totals %d: %w", id, err)
	}
	return opening, sales, payments, nil
}

// BuyerBalances computes every buyer's outstanding amount, counting only ledger
// movements dated on or before asOf when it is set.
func (q *Queries) BuyerBalances(ctx context.Context, asOf *core.Date) ([]core.BuyerBalance, error) {
	salesCond, paymentsCond := "", ""
	var args []any
	if asOf != nil {
		salesCond = ` AND s.date <= ?`
		paymentsCond = ` AND p.date <= ?`
		args = append(args, *asOf, *asOf)
	}
	rows, err := q.query(ctx, `
		SELECT b.id, b.name, b.phone, b.opening_balance_cents,
		       (SELECT SUM(s.total_cents) FROM sales s WHERE s.buyer_id = b.id`+salesCond+`),
		       (SELECT SUM(p.amount_cents) FROM payments p WHERE p.buyer_id = b.id`+paymentsCond+`)
		FROM buyers b
		ORDER BY b.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("buyer balances: %w", err)
	}
	defer rows.Close()

	balances := []core.BuyerBalance{}
	for rows.Next() {
		var (
			bb                       core.BuyerBalance
			opening, sales, payments core.Money
		)
		if err := rows.Scan(&bb.ID, &bb.Name, &bb.Phone, &opening, &sales, &payments); err != nil {
			return nil, fmt.Errorf("scan buyer balance: %w", err)
		}
		bb.Outstanding = core.Outstanding(opening, sales, payments)
		balances = append(balances, bb)
	}
	return balances, rows.Err()
}
