package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"khata/internal/core"
)

const paymentColumns = `id, date, buyer_id, amount_cents, payment_method, notes, sale_id, entry_seq, created_at`

func scanPayment(row rowScanner) (core.Payment, error) {
	var (
		p       core.Payment
		saleID  sql.NullInt64
		created dbTime
	)
	if err := row.Scan(&p.ID, &p.Date, &p.BuyerID, &p.Amount, &p.PaymentMethod, &p.Notes, &saleID, &p.Seq, &created); err != nil {
		return core.Payment{}, err
	}
	p.SaleID = nullableID(saleID)
	p.CreatedAt = created.Time
	return p, nil
}

func (q *Queries) CreatePayment(ctx context.Context, buyerID int64, in core.PaymentInput, saleID *int64, seq int64) (core.Payment, error) {
	id, err := q.insert(ctx, `
		INSERT INTO payments (date, buyer_id, amount_cents, payment_method, notes, sale_id, entry_seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		in.Date, buyerID, in.Amount, in.PaymentMethod, in.Notes, nullID(saleID), seq, now())
	if err != nil {
		return core.Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	return q.GetPayment(ctx, id)
}

func (q *Queries) GetPayment(ctx context.Context, id int64) (core.Payment, error) {
	p, err := scanPayment(q.queryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Payment{}, core.NotFound("payment", id)
	}
	if err != nil {
		return core.Payment{}, fmt.Errorf("get payment %d: %w", id, err)
	}
	return p, nil
}

// BuyerPayments returns a buyer's payments in ledger order.
func (q *Queries) BuyerPayments(ctx context.Context, buyerID int64) ([]core.Payment, error) {
	rows, err := q.query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE buyer_id = ? ORDER BY date, entry_seq`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("buyer payments: %w", err)
	}
	defer rows.Close()

	payments := []core.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ReassignSalePayments moves payments recorded with a sale to the sale's new buyer.
func (q *Queries) ReassignSalePayments(ctx context.Context, saleID, buyerID int64) error {
	if _, err := q.exec(ctx, `UPDATE payments SET buyer_id = ? WHERE sale_id = ?`, buyerID, saleID); err != nil {
		return fmt.Errorf("reassign sale payments: %w", err)
	}
	return nil
}

func (q *Queries) DeletePayment(ctx context.Context, id int64) error {
	ok, err := q.execOne(ctx, `DELETE FROM payments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete payment %d: %w", id, err)
	}
	if !ok {
		return core.NotFound("payment", id)
	}
	return nil
}
