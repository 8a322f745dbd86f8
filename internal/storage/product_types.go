package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"khata/internal/core"
)

func scanProductType(row rowScanner) (core.ProductType, error) {
	var (
		pt      core.ProductType
		created dbTime
	)
	if err := row.Scan(&pt.ID, &pt.Name, &pt.Description, &created); err != nil {
		return core.ProductType{}, err
	}
	pt.CreatedAt = created.Time
	return pt, nil
}

func (q *Queries) CreateProductType(ctx context.Context, in core.ProductTypeInput) (core.ProductType, error) {
	if err := q.ensureProductTypeNameFree(ctx, in.Name, 0); err != nil {
		return core.ProductType{}, err
	}
	id, err := q.insert(ctx, `
		INSERT INTO product_types (name, description, created_at)
		VALUES (?, ?, ?)
		RETURNING id`, in.Name, in.Description, now())
	if err != nil {
		if isUniqueViolation(err) {
			return core.ProductType{}, core.Conflict("product type", 0, fmt.Sprintf("name %q already exists", in.Name))
		}
		return core.ProductType{}, fmt.Errorf("insert product type: %w", err)
	}
	return q.GetProductType(ctx, id)
}

func (q *Queries) GetProductType(ctx context.Context, id int64) (core.ProductType, error) {
	pt, err := scanProductType(q.queryRow(ctx,
		`SELECT id, name, description, created_at FROM product_types WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.ProductType{}, core.NotFound("product type", id)
	}
	if err != nil {
		return core.ProductType{}, fmt.Errorf("get product type %d: %w", id, err)
	}
	return pt, nil
}

func (q *Queries) ListProductTypes(ctx context.Context) ([]core.ProductType, error) {
	rows, err := q.query(ctx, `SELECT id, name, description, created_at FROM product_types ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list product types: %w", err)
	}
	defer rows.Close()

	types := []core.ProductType{}
	for rows.Next() {
		pt, err := scanProductType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product type: %w", err)
		}
		types = append(types, pt)
	}
	return types, rows.Err()
}

// MissingProductTypes returns the ids with no product type row.
func (q *Queries) MissingProductTypes(ctx context.Context, ids []int64) ([]int64, error) {
	var missing []int64
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		n, err := q.count(ctx, `SELECT COUNT(*) FROM product_types WHERE id = ?`, id)
		if err != nil {
			return nil, fmt.Errorf("check product type %d: %w", id, err)
		}
		if n == 0 {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (q *Queries) UpdateProductType(ctx context.Context, id int64, in core.ProductTypeInput) (core.ProductType, error) {
	if _, err := q.GetProductType(ctx, id); err != nil {
		return core.ProductType{}, err
	}
	if err := q.ensureProductTypeNameFree(ctx, in.Name, id); err != nil {
		return core.ProductType{}, err
	}
	if _, err := q.exec(ctx, `UPDATE product_types SET name = ?, description = ? WHERE id = ?`,
		in.Name, in.Description, id); err != nil {
		if isUniqueViolation(err) {
			return core.ProductType{}, core.Conflict("product type", id, fmt.Sprintf("name %q already exists", in.Name))
		}
		return core.ProductType{}, fmt.Errorf("update product type %d: %w", id, err)
	}
	return q.GetProductType(ctx, id)
}

// DeleteProductType removes a product type never used by a sale item.
func (q *Queries) DeleteProductType(ctx context.Context, id int64) error {
	if _, err := q.GetProductType(ctx, id); err != nil {
		return err
	}
	used, err := q.count(ctx, `SELECT COUNT(*) FROM sale_items WHERE product_type_id = ?`, id)
	if err != nil {
		return fmt.Errorf("count product type usage: %w", err)
	}
	if used > 0 {
		return core.Conflict("product type", id, fmt.Sprintf("used by %d sale items", used))
	}
	if _, err := q.exec(ctx, `DELETE FROM product_types WHERE id = ?`, id); err != nil {
		if isForeignKeyViolation(err) {
			return core.Conflict("product type", id, "referenced by sale items")
		}
		return fmt.Errorf("delete product type %d: %w", id, err)
	}
	return nil
}

func (q *Queries) ensureProductTypeNameFree(ctx context.Context, name string, exceptID int64) error {
	n, err := q.count(ctx, `SELECT COUNT(*) FROM product_types WHERE LOWER(name) = LOWER(?) AND id <> ?`, name, exceptID)
	if err != nil {
		return fmt.Errorf("check product type name: %w", err)
	}
	if n > 0 {
		return core.Conflict("product type", exceptID, fmt.Sprintf("name %q already exists", name))
	}
	return nil
}
