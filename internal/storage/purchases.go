package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"khata/internal/core"
)

const purchaseColumns = `id, date, seller_name, seller_phone, pickup_location, scrap_type, transport_service,
	transport_cost_cents, quantity_milli, unit, price_per_unit_cents, total_cost_cents, notes, created_at, updated_at`

func scanPurchase(row rowScanner) (core.Purchase, error) {
	var (
		p                core.Purchase
		created, updated dbTime
	)
	if err := row.Scan(&p.ID, &p.Date, &p.SellerName, &p.SellerPhone, &p.PickupLocation, &p.ScrapType,
		&p.TransportService, &p.TransportCost, &p.Quantity, &p.Unit, &p.PricePerUnit, &p.TotalCost,
		&p.Notes, &created, &updated); err != nil {
		return core.Purchase{}, err
	}
	p.CreatedAt = created.Time
	p.UpdatedAt = updated.ptr()
	return p, nil
}

func (q *Queries) CreatePurchase(ctx context.Context, in core.PurchaseInput) (core.Purchase, error) {
	id, err := q.insert(ctx, `
		INSERT INTO purchases (date, seller_name, seller_phone, pickup_location, scrap_type, transport_service,
			transport_cost_cents, quantity_milli, unit, price_per_unit_cents, total_cost_cents, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		in.Date, in.SellerName, in.SellerPhone, in.PickupLocation, in.ScrapType, in.TransportService,
		in.TransportCost, in.Quantity, in.Unit, in.PricePerUnit, in.TotalCost(), in.Notes, now())
	if err != nil {
		return core.Purchase{}, fmt.Errorf("insert purchase: %w", err)
	}
	return q.GetPurchase(ctx, id)
}

func (q *Queries) GetPurchase(ctx context.Context, id int64) (core.Purchase, error) {
	p, err := scanPurchase(q.queryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Purchase{}, core.NotFound("purchase", id)
	}
	if err != nil {
		return core.Purchase{}, fmt.Errorf("get purchase %d: %w", id, err)
	}
	return p, nil
}

// ListPurchases returns purchases newest first.
func (q *Queries) ListPurchases(ctx context.Context, f core.PurchaseFilter) ([]core.Purchase, error) {
	page := f.Page.Normalize()
	where, args := dateRangeClause("date", f.Range)
	args = append(args, page.Limit, page.Offset())

	rows, err := q.query(ctx, `SELECT `+purchaseColumns+` FROM purchases`+where+
		` ORDER BY date DESC, id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	purchases := []core.Purchase{}
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

func (q *Queries) UpdatePurchase(ctx context.Context, id int64, in core.PurchaseInput) (core.Purchase, error) {
	ok, err := q.execOne(ctx, `
		UPDATE purchases
		SET date = ?, seller_name = ?, seller_phone = ?, pickup_location = ?, scrap_type = ?, transport_service = ?,
			transport_cost_cents = ?, quantity_milli = ?, unit = ?, price_per_unit_cents = ?, total_cost_cents = ?,
			notes = ?, updated_at = ?
		WHERE id = ?`,
		in.Date, in.SellerName, in.SellerPhone, in.PickupLocation, in.ScrapType, in.TransportService,
		in.TransportCost, in.Quantity, in.Unit, in.PricePerUnit, in.TotalCost(), in.Notes, now(), id)
	if err != nil {
		return core.Purchase{}, fmt.Errorf("update purchase %d: %w", id, err)
	}
	if !ok {
		return core.Purchase{}, core.NotFound("purchase", id)
	}
	return q.GetPurchase(ctx, id)
}

// DeletePurchase removes a purchase along with its transport expense.
func (q *Queries) DeletePurchase(ctx context.Context, id int64) error {
	if _, err := q.GetPurchase(ctx, id); err != nil {
		return err
	}
	if _, err := q.exec(ctx, `DELETE FROM expenses WHERE purchase_id = ?`, id); err != nil {
		return fmt.Errorf("delete transport expense: %w", err)
	}
	if _, err := q.exec(ctx, `DELETE FROM purchases WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete purchase %d: %w", id, err)
	}
	return nil
}

// SyncTransportExpense keeps the Transport expense linked to p in step with
// its transport cost: created or updated when positive, removed when zero.
func (q *Queries) SyncTransportExpense(ctx context.Context, p core.Purchase) error {
	if !p.TransportCost.IsPositive() {
		if _, err := q.exec(ctx, `DELETE FROM expenses WHERE purchase_id = ?`, p.ID); err != nil {
			return fmt.Errorf("remove transport expense: %w", err)
		}
		return nil
	}

	description := fmt.Sprintf("Transport for purchase #%d - %s", p.ID, p.SellerName)
	if p.TransportService != "" {
		description += " (" + p.TransportService + ")"
	}

	ok, err := q.execOne(ctx, `
		UPDATE expenses
		SET date = ?, amount_cents = ?, description = ?, updated_at = ?
		WHERE purchase_id = ?`,
		p.Date, p.TransportCost, description, now(), p.ID)
	if err != nil {
		return fmt.Errorf("update transport expense: %w", err)
	}
	if ok {
		return nil
	}
	if _, err := q.insert(ctx, `
		INSERT INTO expenses (date, category, amount_cents, description, purchase_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		p.Date, string(core.ExpenseTransport), p.TransportCost, description, p.ID, now()); err != nil {
		return fmt.Errorf("insert transport expense: %w", err)
	}
	return nil
}
