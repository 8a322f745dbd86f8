package services

import (
	"context"
	"log/slog"

	"khata/internal/core"
	"khata/internal/events"
	"khata/internal/metrics"
	"khata/internal/storage"
)

// SaleService covers reads and edits of sales. New sales go through the
// ledger so their linked payments and events stay in one place.
type SaleService struct {
	repo   *storage.Repository
	ledger *LedgerService
	notify notifier
}

func NewSaleService(repo *storage.Repository, ledger *LedgerService, publisher events.Publisher, m *metrics.Metrics) *SaleService {
	return &SaleService{repo: repo, ledger: ledger, notify: newNotifier(publisher, m)}
}

func (s *SaleService) Create(ctx context.Context, in core.SaleInput) (core.Sale, error) {
	return s.ledger.RecordSale(ctx, in)
}

func (s *SaleService) Get(ctx context.Context, id int64) (core.Sale, error) {
	var sale core.Sale
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		sale, err = q.GetSale(ctx, id)
		return err
	})
	return sale, err
}

func (s *SaleService) List(ctx context.Context, f core.SaleFilter) ([]core.Sale, error) {
	if err := f.Range.Validate(); err != nil {
		return nil, err
	}
	if f.PaymentType != "" && !f.PaymentType.Valid() {
		return nil, core.Invalid("payment_type", "must be one of Paid, Partial, Credit")
	}
	var sales []core.Sale
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		sales, err = q.ListSales(ctx, f)
		return err
	})
	return sales, err
}

// Update applies the non-nil fields of upd. Replacing items recomputes the
// total; moving the sale to another buyer moves its linked payments too.
func (s *SaleService) Update(ctx context.Context, id int64, upd core.SaleUpdate) (core.Sale, error) {
	if err := checkTags(upd); err != nil {
		return core.Sale{}, err
	}

	var (
		sale            core.Sale
		prevBuyer       int64
		outstanding     core.Money
		prevOutstanding core.Money
	)
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		current, err := q.GetSale(ctx, id)
		if err != nil {
			return err
		}
		prevBuyer = current.BuyerID

		if upd.Date != nil {
			current.Date = *upd.Date
		}
		if upd.PaymentType != nil {
			if !upd.PaymentType.Valid() {
				return core.Invalid("payment_type", "must be one of Paid, Partial, Credit")
			}
			current.PaymentType = *upd.PaymentType
		}
		if upd.PaymentReceivedNow != nil {
			if upd.PaymentReceivedNow.IsNegative() {
				return core.Invalid("payment_received_now", "must not be negative")
			}
			if !upd.PaymentReceivedNow.InRange() {
				return core.Invalid("payment_received_now", "is out of range")
			}
			current.PaymentReceivedNow = *upd.PaymentReceivedNow
		}
		if upd.Notes != nil {
			current.Notes = *upd.Notes
		}
		if upd.BuyerID != nil && *upd.BuyerID != current.BuyerID {
			if _, err := q.GetBuyer(ctx, *upd.BuyerID); err != nil {
				return err
			}
			current.BuyerID = *upd.BuyerID
			if err := q.ReassignSalePayments(ctx, id, current.BuyerID); err != nil {
				return err
			}
		}

		var items []core.SaleItemInput
		if upd.Items != nil {
			check := core.SaleInput{
				Date:        current.Date,
				BuyerID:     current.BuyerID,
				PaymentType: current.PaymentType,
				Items:       upd.Items,
			}
			if err := check.Validate(); err != nil {
				return err
			}
			if err := checkProductTypes(ctx, q, check.Items); err != nil {
				return err
			}
			items = check.Items
		}

		if sale, err = q.UpdateSale(ctx, current, items); err != nil {
			return err
		}
		if prevBuyer != sale.BuyerID {
			if prevOutstanding, err = outstandingOf(ctx, q, prevBuyer); err != nil {
				return err
			}
		}
		outstanding, err = outstandingOf(ctx, q, sale.BuyerID)
		return err
	})
	if err != nil {
		return core.Sale{}, err
	}

	slog.InfoContext(ctx, "Sale updated", "sale_id", id, "buyer_id", sale.BuyerID, "total", sale.Total.String())
	evs := []events.LedgerEvent{events.NewLedgerEvent(events.SaleUpdated, sale.BuyerID, sale.ID, sale.Total, outstanding)}
	if prevBuyer != sale.BuyerID {
		evs = append(evs, events.NewLedgerEvent(events.SaleDeleted, prevBuyer, sale.ID, sale.Total, prevOutstanding))
	}
	s.notify.publish(ctx, evs...)
	return sale, nil
}

// Delete removes a sale and its items. Sales with a linked payment are
// refused until that payment is deleted.
func (s *SaleService) Delete(ctx context.Context, id int64) error {
	var (
		sale        core.Sale
		outstanding core.Money
	)
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		if sale, err = q.GetSale(ctx, id); err != nil {
			return err
		}
		if err := q.DeleteSale(ctx, id); err != nil {
			return err
		}
		outstanding, err = outstandingOf(ctx, q, sale.BuyerID)
		return err
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Sale deleted", "sale_id", id, "buyer_id", sale.BuyerID)
	s.notify.publish(ctx, events.NewLedgerEvent(events.SaleDeleted, sale.BuyerID, id, sale.Total, outstanding))
	return nil
}

// TodayTotal sums the sales dated today.
func (s *SaleService) TodayTotal(ctx context.Context) (core.Money, error) {
	return sumToday(ctx, s.repo, (*storage.Queries).SumSales)
}
