package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"khata/internal/core"
)

const saleColumns = `id, date, buyer_id, payment_type, payment_received_now_cents, total_cents, notes, entry_seq, created_at, updated_at`

func scanSale(row rowScanner) (core.Sale, error) {
	var (
		s                core.Sale
		created, updated dbTime
	)
	if err := row.Scan(&s.ID, &s.Date, &s.BuyerID, &s.PaymentType, &s.PaymentReceivedNow,
		&s.Total, &s.Notes, &s.Seq, &created, &updated); err != nil {
		return core.Sale{}, err
	}
	s.CreatedAt = created.Time
	s.UpdatedAt = updated.ptr()
	return s, nil
}

// CreateSale inserts the sale header and its lines. The caller supplies the
// validated input and the ledger sequence number.
func (q *Queries) CreateSale(ctx context.Context, in core.SaleInput, seq int64) (core.Sale, error) {
	id, err := q.insert(ctx, `
		INSERT INTO sales (date, buyer_id, payment_type, payment_received_now_cents, total_cents, notes, entry_seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		in.Date, in.BuyerID, string(in.PaymentType), in.PaymentReceivedNow, in.Total(), in.Notes, seq, now())
	if err != nil {
		return core.Sale{}, fmt.Errorf("insert sale: %w", err)
	}
	if err := q.insertSaleItems(ctx, id, in.Items); err != nil {
		return core.Sale{}, err
	}
	return q.GetSale(ctx, id)
}

func (q *Queries) insertSaleItems(ctx context.Context, saleID int64, items []core.SaleItemInput) error {
	for i, item := range items {
		_, err := q.exec(ctx, `
			INSERT INTO sale_items (sale_id, product_type_id, quantity_milli, unit, price_per_unit_cents, total_price_cents)
			VALUES (?, ?, ?, ?, ?, ?)`,
			saleID, item.ProductTypeID, item.Quantity, item.Unit, item.PricePerUnit, item.Quantity.Times(item.PricePerUnit))
		if err != nil {
			return fmt.Errorf("insert sale item %d: %w", i, err)
		}
	}
	return nil
}

func (q *Queries) GetSale(ctx context.Context, id int64) (core.Sale, error) {
	s, err := scanSale(q.queryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Sale{}, core.NotFound("sale", id)
	}
	if err != nil {
		return core.Sale{}, fmt.Errorf("get sale %d: %w", id, err)
	}
	items, err := q.saleItems(ctx, []int64{id})
	if err != nil {
		return core.Sale{}, err
	}
	s.Items = items[id]
	if s.Items == nil {
		s.Items = []core.SaleItem{}
	}
	return s, nil
}

// ListSales returns sales newest first with their items.
func (q *Queries) ListSales(ctx context.Context, f core.SaleFilter) ([]core.Sale, error) {
	page := f.Page.Normalize()
	where, args := dateRangeClause("date", f.Range)
	if f.BuyerID > 0 {
		where = appendCond(where, "buyer_id = ?")
		args = append(args, f.BuyerID)
	}
	if f.PaymentType != "" {
		where = appendCond(where, "payment_type = ?")
		args = append(args, string(f.PaymentType))
	}
	args = append(args, page.Limit, page.Offset())

	sales, err := q.selectSales(ctx, `SELECT `+saleColumns+` FROM sales`+where+
		` ORDER BY date DESC, entry_seq DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return sales, nil
}

// BuyerSales returns all sales of one buyer in ledger order, without items.
func (q *Queries) BuyerSales(ctx context.Context, buyerID int64) ([]core.Sale, error) {
	rows, err := q.query(ctx, `SELECT `+saleColumns+` FROM sales WHERE buyer_id = ? ORDER BY date, entry_seq`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("buyer sales: %w", err)
	}
	defer rows.Close()

	sales := []core.Sale{}
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

func (q *Queries) selectSales(ctx context.Context, query string, args ...any) ([]core.Sale, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	sales := []core.Sale{}
	ids := []int64{}
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	items, err := q.saleItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
		if sales[i].Items == nil {
			sales[i].Items = []core.SaleItem{}
		}
	}
	return sales, nil
}

func (q *Queries) saleItems(ctx context.Context, saleIDs []int64) (map[int64][]core.SaleItem, error) {
	out := make(map[int64][]core.SaleItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return out, nil
	}
	placeholders, args := inClause(saleIDs)
	rows, err := q.query(ctx, `
		SELECT id, sale_id, product_type_id, quantity_milli, unit, price_per_unit_cents, total_price_cents
		FROM sale_items
		WHERE sale_id IN (`+placeholders+`)
		ORDER BY sale_id, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list sale items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it core.SaleItem
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ProductTypeID, &it.Quantity, &it.Unit, &it.PricePerUnit, &it.TotalPrice); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		out[it.SaleID] = append(out[it.SaleID], it)
	}
	return out, rows.Err()
}

// UpdateSale rewrites the sale header. When items is non-nil the lines
// are replaced and the total recomputed.
func (q *Queries) UpdateSale(ctx context.Context, s core.Sale, items []core.SaleItemInput) (core.Sale, error) {
	total := s.Total
	if items != nil {
		if _, err := q.exec(ctx, `DELETE FROM sale_items WHERE sale_id = ?`, s.ID); err != nil {
			return core.Sale{}, fmt.Errorf("clear sale items: %w", err)
		}
		if err := q.insertSaleItems(ctx, s.ID, items); err != nil {
			return core.Sale{}, err
		}
		total = core.SaleInput{Items: items}.Total()
	}

	ok, err := q.execOne(ctx, `
		UPDATE sales
		SET date = ?, buyer_id = ?, payment_type = ?, payment_received_now_cents = ?, total_cents = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		s.Date, s.BuyerID, string(s.PaymentType), s.PaymentReceivedNow, total, s.Notes, now(), s.ID)
	if err != nil {
		return core.Sale{}, fmt.Errorf("update sale %d: %w", s.ID, err)
	}
	if !ok {
		return core.Sale{}, core.NotFound("sale", s.ID)
	}
	return q.GetSale(ctx, s.ID)
}

// DeleteSale removes a sale and its owned lines. A sale still referenced by a
// payment cannot be removed.
func (q *Queries) DeleteSale(ctx context.Context, id int64) error {
	if _, err := q.GetSale(ctx, id); err != nil {
		return err
	}
	linked, err := q.count(ctx, `SELECT COUNT(*) FROM payments WHERE sale_id = ?`, id)
	if err != nil {
		return fmt.Errorf("count sale payments: %w", err)
	}
	if linked > 0 {
		return core.Conflict("sale", id, fmt.Sprintf("referenced by %d payments", linked))
	}
	if _, err := q.exec(ctx, `DELETE FROM sale_items WHERE sale_id = ?`, id); err != nil {
		return fmt.Errorf("delete sale items: %w", err)
	}
	if _, err := q.exec(ctx, `DELETE FROM sales WHERE id = ?`, id); err != nil {
		if isForeignKeyViolation(err) {
			return core.Conflict("sale", id, "referenced elsewhere")
		}
		return fmt.Errorf("delete sale %d: %w", id, err)
	}
	return nil
}
