package services

import (
	"context"
	"log/slog"

	"khata/internal/core"
	"khata/internal/storage"
)

// PurchaseService records stock bought from sellers. A purchase with a
// transport cost owns one Transport expense that follows every change.
type PurchaseService struct {
	repo *storage.Repository
}

func NewPurchaseService(repo *storage.Repository) *PurchaseService {
	return &PurchaseService{repo: repo}
}

func (s *PurchaseService) Create(ctx context.Context, in core.PurchaseInput) (core.Purchase, error) {
	if err := validateInput(&in); err != nil {
		return core.Purchase{}, err
	}
	var p core.Purchase
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		if p, err = q.CreatePurchase(ctx, in); err != nil {
			return err
		}
		return q.SyncTransportExpense(ctx, p)
	})
	if err != nil {
		return core.Purchase{}, err
	}
	slog.InfoContext(ctx, "Purchase recorded",
		"purchase_id", p.ID,
		"seller", p.SellerName,
		"total", p.TotalCost.String())
	return p, nil
}

func (s *PurchaseService) Get(ctx context.Context, id int64) (core.Purchase, error) {
	var p core.Purchase
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		p, err = q.GetPurchase(ctx, id)
		return err
	})
	return p, err
}

func (s *PurchaseService) List(ctx context.Context, f core.PurchaseFilter) ([]core.Purchase, error) {
	if err := f.Range.Validate(); err != nil {
		return nil, err
	}
	var purchases []core.Purchase
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		purchases, err = q.ListPurchases(ctx, f)
		return err
	})
	return purchases, err
}

func (s *PurchaseService) Update(ctx context.Context, id int64, in core.PurchaseInput) (core.Purchase, error) {
	if err := validateInput(&in); err != nil {
		return core.Purchase{}, err
	}
	var p core.Purchase
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		if p, err = q.UpdatePurchase(ctx, id, in); err != nil {
			return err
		}
		return q.SyncTransportExpense(ctx, p)
	})
	return p, err
}

func (s *PurchaseService) Delete(ctx context.Context, id int64) error {
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		return q.DeletePurchase(ctx, id)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Purchase deleted", "purchase_id", id)
	return nil
}

func (s *PurchaseService) TodayTotal(ctx context.Context) (core.Money, error) {
	return sumToday(ctx, s.repo, (*storage.Queries).SumPurchases)
}
