package services

import (
	"context"
	"log/slog"

	"khata/internal/core"
	"khata/internal/storage"
)

type BuyerService struct {
	repo *storage.Repository
}

func NewBuyerService(repo *storage.Repository) *BuyerService {
	return &BuyerService{repo: repo}
}

func (s *BuyerService) Create(ctx context.Context, in core.BuyerInput) (core.Buyer, error) {
	if err := validateInput(&in); err != nil {
		return core.Buyer{}, err
	}
	var b core.Buyer
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		b, err = q.CreateBuyer(ctx, in)
		return err
	})
	if err != nil {
		return core.Buyer{}, err
	}
	slog.InfoContext(ctx, "Buyer created", "buyer_id", b.ID, "name", b.Name)
	return b, nil
}

func (s *BuyerService) Get(ctx context.Context, id int64) (core.Buyer, error) {
	var b core.Buyer
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		b, err = q.GetBuyer(ctx, id)
		return err
	})
	return b, err
}

func (s *BuyerService) List(ctx context.Context, f core.BuyerFilter) ([]core.Buyer, error) {
	var buyers []core.Buyer
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		buyers, err = q.ListBuyers(ctx, f)
		return err
	})
	return buyers, err
}

// ListWithOutstanding returns every buyer with its current balance.
func (s *BuyerService) ListWithOutstanding(ctx context.Context) ([]core.BuyerBalance, error) {
	var balances []core.BuyerBalance
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		balances, err = q.BuyerBalances(ctx, nil)
		return err
	})
	return balances, err
}

func (s *BuyerService) Update(ctx context.Context, id int64, in core.BuyerInput) (core.Buyer, error) {
	if err := validateInput(&in); err != nil {
		return core.Buyer{}, err
	}
	var b core.Buyer
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		b, err = q.UpdateBuyer(ctx, id, in)
		return err
	})
	return b, err
}

// Delete refuses buyers that have any sale or payment.
func (s *BuyerService) Delete(ctx context.Context, id int64) error {
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		return q.DeleteBuyer(ctx, id)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Buyer deleted", "buyer_id", id)
	return nil
}
