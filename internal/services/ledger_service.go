package services

import (
	"context"
	"fmt"
	"log/slog"

	"khata/internal/core"
	"khata/internal/events"
	"khata/internal/metrics"
	"khata/internal/storage"
)

// PaymentReceipt is a recorded payment with the buyer's balance after it.
type PaymentReceipt struct {
	core.Payment
	Outstanding core.Money `json:"outstanding_balance"`
}

// LedgerService owns the buyer ledger: statements, outstanding balances and
// the writes that move them. Balances are always recomputed from rows.
type LedgerService struct {
	repo   *storage.Repository
	notify notifier
}

func NewLedgerService(repo *storage.Repository, publisher events.Publisher, m *metrics.Metrics) *LedgerService {
	return &LedgerService{repo: repo, notify: newNotifier(publisher, m)}
}

// GetLedger returns the buyer's statement, optionally limited to rng.
func (s *LedgerService) GetLedger(ctx context.Context, buyerID int64, rng core.DateRange) (core.Statement, error) {
	if err := rng.Validate(); err != nil {
		return core.Statement{}, err
	}
	var stmt core.Statement
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		buyer, err := q.GetBuyer(ctx, buyerID)
		if err != nil {
			return err
		}
		sales, err := q.BuyerSales(ctx, buyerID)
		if err != nil {
			return err
		}
		payments, err := q.BuyerPayments(ctx, buyerID)
		if err != nil {
			return err
		}
		stmt = core.BuildStatement(buyer, sales, payments, rng)
		return nil
	})
	return stmt, err
}

func (s *LedgerService) GetOutstanding(ctx context.Context, buyerID int64) (core.Money, error) {
	var outstanding core.Money
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		outstanding, err = outstandingOf(ctx, q, buyerID)
		return err
	})
	return outstanding, err
}

func outstandingOf(ctx context.Context, q *storage.Queries, buyerID int64) (core.Money, error) {
	opening, sales, payments, err := q.BuyerTotals(ctx, buyerID)
	if err != nil {
		return core.Money{}, err
	}
	return core.Outstanding(opening, sales, payments), nil
}

// RecordPayment appends a payment. Paying more than is owed is allowed and
// leaves a credit balance.
func (s *LedgerService) RecordPayment(ctx context.Context, buyerID int64, in core.PaymentInput) (PaymentReceipt, error) {
	if err := validateInput(&in); err != nil {
		return PaymentReceipt{}, err
	}

	var receipt PaymentReceipt
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetBuyer(ctx, buyerID); err != nil {
			return err
		}
		seq, err := q.NextLedgerSeq(ctx)
		if err != nil {
			return err
		}
		p, err := q.CreatePayment(ctx, buyerID, in, nil, seq)
		if err != nil {
			return err
		}
		outstanding, err := outstandingOf(ctx, q, buyerID)
		if err != nil {
			return err
		}
		receipt = PaymentReceipt{Payment: p, Outstanding: outstanding}
		return nil
	})
	if err != nil {
		return PaymentReceipt{}, err
	}

	slog.InfoContext(ctx, "Payment recorded",
		"buyer_id", buyerID,
		"payment_id", receipt.ID,
		"amount", receipt.Amount.String(),
		"outstanding", receipt.Outstanding.String())
	s.notify.entry(string(core.EntryPayment))
	s.notify.publish(ctx, events.NewLedgerEvent(events.PaymentRecorded, buyerID, receipt.ID, receipt.Amount, receipt.Outstanding))
	return receipt, nil
}

// RecordSale creates a sale with its items. A positive payment_received_now
// is recorded as a linked payment in the same transaction.
func (s *LedgerService) RecordSale(ctx context.Context, in core.SaleInput) (core.Sale, error) {
	if err := validateInput(&in); err != nil {
		return core.Sale{}, err
	}

	var (
		sale        core.Sale
		payment     *core.Payment
		outstanding core.Money
	)
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetBuyer(ctx, in.BuyerID); err != nil {
			return err
		}
		if err := checkProductTypes(ctx, q, in.Items); err != nil {
			return err
		}

		seq, err := q.NextLedgerSeq(ctx)
		if err != nil {
			return err
		}
		if sale, err = q.CreateSale(ctx, in, seq); err != nil {
			return err
		}

		if in.PaymentReceivedNow.IsPositive() {
			paySeq, err := q.NextLedgerSeq(ctx)
			if err != nil {
				return err
			}
			p, err := q.CreatePayment(ctx, in.BuyerID, core.PaymentInput{
				Date:          in.Date,
				Amount:        in.PaymentReceivedNow,
				PaymentMethod: core.DefaultPaymentMethod,
				Notes:         fmt.Sprintf("Received with sale #%d", sale.ID),
			}, &sale.ID, paySeq)
			if err != nil {
				return err
			}
			payment = &p
		}

		outstanding, err = outstandingOf(ctx, q, in.BuyerID)
		return err
	})
	if err != nil {
		return core.Sale{}, err
	}

	slog.InfoContext(ctx, "Sale recorded",
		"buyer_id", sale.BuyerID,
		"sale_id", sale.ID,
		"items", len(sale.Items),
		"total", sale.Total.String())
	s.notify.entry(string(core.EntrySale))
	evs := []events.LedgerEvent{events.NewLedgerEvent(events.SaleRecorded, sale.BuyerID, sale.ID, sale.Total, outstanding)}
	if payment != nil {
		s.notify.entry(string(core.EntryPayment))
		evs = append(evs, events.NewLedgerEvent(events.PaymentRecorded, sale.BuyerID, payment.ID, payment.Amount, outstanding))
	}
	s.notify.publish(ctx, evs...)
	return sale, nil
}

func (s *LedgerService) ListPayments(ctx context.Context, buyerID int64) ([]core.Payment, error) {
	var payments []core.Payment
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetBuyer(ctx, buyerID); err != nil {
			return err
		}
		var err error
		payments, err = q.BuyerPayments(ctx, buyerID)
		return err
	})
	return payments, err
}

// DeletePayment removes one of the buyer's payments.
func (s *LedgerService) DeletePayment(ctx context.Context, buyerID, paymentID int64) error {
	var (
		payment     core.Payment
		outstanding core.Money
	)
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		var err error
		if payment, err = q.GetPayment(ctx, paymentID); err != nil {
			return err
		}
		if payment.BuyerID != buyerID {
			return core.NotFound("payment", paymentID)
		}
		if err := q.DeletePayment(ctx, paymentID); err != nil {
			return err
		}
		outstanding, err = outstandingOf(ctx, q, buyerID)
		return err
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Payment deleted", "buyer_id", buyerID, "payment_id", paymentID)
	s.notify.publish(ctx, events.NewLedgerEvent(events.PaymentDeleted, buyerID, paymentID, payment.Amount, outstanding))
	return nil
}

// checkProductTypes rejects items naming product types that do not exist.
func checkProductTypes(ctx context.Context, q *storage.Queries, items []core.SaleItemInput) error {
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ProductTypeID
	}
	missing, err := q.MissingProductTypes(ctx, ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		for i, item := range items {
			if item.ProductTypeID == missing[0] {
				return core.Invalid(fmt.Sprintf("sale_items[%d].product_type_id", i), "unknown product type %d", missing[0])
			}
		}
	}
	return nil
}
