package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/singleflight"

	"khata/internal/auth"
	"khata/internal/core"
	"khata/internal/events"
	"khata/internal/storage"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.LedgerEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	ctx       context.Context
	repo      *storage.Repository
	publisher *recordingPublisher
	ledger    *LedgerService
	sales     *SaleService
	buyers    *BuyerService
	types     *ProductTypeService
	purchases *PurchaseService
	expenses  *ExpenseService
	analytics *AnalyticsService
	productID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(ctx, filepath.Join(t.TempDir(), "khata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	pub := &recordingPublisher{}
	ledger := NewLedgerService(repo, pub, nil)
	f := &fixture{
		ctx:       ctx,
		repo:      repo,
		publisher: pub,
		ledger:    ledger,
		sales:     NewSaleService(repo, ledger, pub, nil),
		buyers:    NewBuyerService(repo),
		types:     NewProductTypeService(repo),
		purchases: NewPurchaseService(repo),
		expenses:  NewExpenseService(repo),
		analytics: NewAnalyticsService(repo),
	}
	pts, err := f.types.List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, pts)
	f.productID = pts[0].ID
	return f
}

func (f *fixture) buyer(t *testing.T, name, opening string) core.Buyer {
	t.Helper()
	b, err := f.buyers.Create(f.ctx, core.BuyerInput{Name: name, OpeningBalance: core.MustMoney(opening)})
	require.NoError(t, err)
	return b
}

func (f *fixture) sale(t *testing.T, buyerID int64, day, qty, price string) core.Sale {
	t.Helper()
	s, err := f.ledger.RecordSale(f.ctx, core.SaleInput{
		Date:    mustDate(t, day),
		BuyerID: buyerID,
		Items: []core.SaleItemInput{
			{ProductTypeID: f.productID, Quantity: core.MustQuantity(qty), PricePerUnit: core.MustMoney(price)},
		},
	})
	require.NoError(t, err)
	return s
}

func (f *fixture) pay(t *testing.T, buyerID int64, day, amount string) PaymentReceipt {
	t.Helper()
	r, err := f.ledger.RecordPayment(f.ctx, buyerID, core.PaymentInput{Date: mustDate(t, day), Amount: core.MustMoney(amount)})
	require.NoError(t, err)
	return r
}

func mustDate(t *testing.T, s string) core.Date {
	t.Helper()
	d, err := core.ParseDate(s)
	require.NoError(t, err)
	return d
}

func fixToday(t *testing.T, d core.Date) {
	t.Helper()
	prev := today
	today = func() core.Date { return d }
	t.Cleanup(func() { today = prev })
}

func TestOutstandingInvariant(t *testing.T) {
	f := newFixture(t)
	b := f.buyer(t, "Ramesh", "100")

	f.sale(t, b.ID, "2025-01-03", "2", "13")
	receipt := f.pay(t, b.ID, "2025-01-03", "26")
	assert.Equal(t, "100.00", receipt.Outstanding.String())
	f.sale(t, b.ID, "2025-01-05", "1", "50")
	receipt = f.pay(t, b.ID, "2025-01-06", "200")
	assert.Equal(t, "-50.00", receipt.Outstanding.String(), "overpayment leaves a credit")

	got, err := f.ledger.GetOutstanding(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "-50.00", got.String())

	again, err := f.ledger.GetOutstanding(f.ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Equal(again), "outstanding must be idempotent")

	stmt, err := f.ledger.GetLedger(f.ctx, b.ID, core.DateRange{})
	require.NoError(t, err)
	require.Len(t, stmt.Entries, 4)
	wantBalances := []string{"126.00", "100.00", "150.00", "-50.00"}
	for i, e := range stmt.Entries {
		assert.Equal(t, wantBalances[i], e.Balance.String(), "entry %d", i)
	}
	assert.True(t, stmt.ClosingBalance.Equal(got))
}

func TestLedgerRange(t *testing.T) {
	f := newFixture(t)
	b := f.buyer(t, "Ramesh", "10")
	f.sale(t, b.ID, "2025-01-03", "1", "20")
	f.pay(t, b.ID, "2025-01-10", "5")
	f.sale(t, b.ID, "2025-02-01", "1", "30")

	start, end := mustDate(t, "2025-01-05"), mustDate(t, "2025-01-31")
	stmt, err := f.ledger.GetLedger(f.ctx, b.ID, core.DateRange{Start: &start, End: &end})
	require.NoError(t, err)
	assert.Equal(t, "30.00", stmt.OpeningBalance.String())
	require.Len(t, stmt.Entries, 1)
	assert.Equal(t, "25.00", stmt.ClosingBalance.String())

	_, err = f.ledger.GetLedger(f.ctx, b.ID, core.DateRange{Start: &end, End: &start})
	assert.True(t, core.IsValidation(err))

	_, err = f.ledger.GetLedger(f.ctx, 9999, core.DateRange{})
	assert.True(t, core.IsNotFound(err))
}

func TestRecordPaymentValidation(t *testing.T) {
	f := newFixture(t)
	b := f.buyer(t, "Ramesh", "0")

	for _, amount := range []string{"0", "-5", "184467440737095517.16", "1000000000000"} {
		t.Run(amount, func(t *testing.T) {
			_, err := f.ledger.RecordPayment(f.ctx, b.ID, core.PaymentInput{Amount: core.MustMoney(amount)})
			assert.True(t, core.IsValidation(err), "got %v", err)
		})
	}
	out, err := f.ledger.GetOutstanding(f.ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, out.IsZero(), "rejected payments must not reach the ledger, outstanding %s", out)

	_, err = f.ledger.RecordPayment(f.ctx, 9999, core.PaymentInput{Amount: core.MustMoney("5")})
	assert.True(t, core.IsNotFound(err))

	r, err := f.ledger.RecordPayment(f.ctx, b.ID, core.PaymentInput{Amount: core.MustMoney("5")})
	require.NoError(t, err)
	assert.Equal(t, core.DefaultPaymentMethod, r.PaymentMethod)
	assert.False(t, r.Date.IsZero(), "date defaults to today")
}

func TestRecordSaleValidation(t *testing.T) {
	f := newFixture(t)
	b := f.buyer(t, "Ramesh", "0")
	item := core.SaleItemInput{ProductTypeID: f.productID, Quantity: core.MustQuantity("1"), PricePerUnit: core.MustMoney("1")}

	tests := []struct {
		name  string
		in    core.SaleInput
		check func(error) bool
	}{
		{"no items", core.SaleInput{BuyerID: b.ID}, core.IsValidation},
		{"unknown product type", core.SaleInput{BuyerID: b.ID, Items: []core.SaleItemInput{
			item, {ProductTypeID: 9999, Quantity: core.MustQuantity("1"), PricePerUnit: core.MustMoney("1")},
		}}, core.IsValidation},
		{"line total out of range", core.SaleInput{BuyerID: b.ID, Items: []core.SaleItemInput{
			{ProductTypeID: f.productID, Quantity: core.MustQuantity("999999999"), PricePerUnit: core.MustMoney("999999999")},
		}}, core.IsValidation},
		{"zero quantity", core.SaleInput{BuyerID: b.ID, Items: []core.SaleItemInput{
			{ProductTypeID: f.productID, Quantity: core.MustQuantity("0"), PricePerUnit: core.MustMoney("1")},
		}}, core.IsValidation},
		{"negative price", core.SaleInput{BuyerID: b.ID, Items: []core.SaleItemInput{
			{ProductTypeID: f.productID, Quantity: core.MustQuantity("1"), PricePerUnit: core.MustMoney("-1")},
		}}, core.IsValidation},
		{"unknown buyer", core.SaleInput{BuyerID: 9999, Items: []core.SaleItemInput{item}}, core.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.RecordSale(f.ctx, tt.in)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}

	var verr *core.ValidationError
	_, err := f.ledger.RecordSale(f.ctx, tests[1].in)
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "sale_items[1].product_type_id", verr.Field)
}

func TestRecordSaleWithPaymentReceived(t *testing.T) {
	f := newFixture(t)
	b := f.buyer(t, "Ramesh", "0")

	sale, err := f.ledger.RecordSale(f.ctx, core.SaleInput{
		BuyerID:            b.ID,
		PaymentType:        core.PaymentPartial,
		PaymentReceivedNow: core.MustMoney("10"),
		Items: []core.SaleItemInput{
			{ProductTypeID: f.productID, Quantity: core.MustQuantity("2"), PricePerUnit: core.MustMoney("10.50")},
			{ProductTypeID: f.productID, Quantity: core.MustQuantity("1"), PricePerUnit: core.MustMoney("5.00")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "26.00", sale.Total.String())

	payments, err := f.ledger.ListPayments(f.ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.NotNil(t, payments[0].SaleID)
	assert.Equal(t, sale.ID, *payments[0].SaleID)

	outstanding, err := f.ledger.GetOutstanding(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "16.00", outstanding.String())
	assert.Equal(t, []events.Type{events.SaleRecorded, events.PaymentRecorded}, f.publisher.types())

	err = f.sales.Delete(f.ctx, sale.ID)
	assert.True(t, core.IsConflict(err), "sale with linked payment must not be deleted, got %v", err)

	require.NoError(t, f.ledger.DeletePayment(f.ctx, b.ID, payments[0].ID))
	require.NoError(t, f.sales.Delete(f.ctx, sale.ID))

	outstanding, err = f.ledger.GetOutstanding(f.ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, outstanding.IsZero())
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	b := f.buyer(t, "Ramesh", "0")

	_, err := f.ledger.RecordPayment(f.ctx, b.ID, core.PaymentInput{Amount: core.MustMoney("5")})
	require.NoError(t, err)

	outstanding, err := f.ledger.GetOutstanding(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "-5.00", outstanding.String())
}

func TestDeletePaymentOfAnotherBuyer(t *testing.T) {
	f := newFixture(t)
	a := f.buyer(t, "A", "0")
	b := f.buyer(t, "B", "0")
	r := f.pay(t, a.ID, "2025-01-01", "5")

	err := f.ledger.DeletePayment(f.ctx, b.ID, r.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestUpdateSale(t *testing.T) {
	f := newFixture(t)
	a := f.buyer(t, "A", "0")
	b := f.buyer(t, "B", "0")
	sale := f.sale(t, a.ID, "2025-01-03", "1", "10")

	notes := "rechecked weight"
	updated, err := f.sales.Update(f.ctx, sale.ID, core.SaleUpdate{
		Notes: &notes,
		Items: []core.SaleItemInput{
			{ProductTypeID: f.productID, Quantity: core.MustQuantity("2.5"), PricePerUnit: core.MustMoney("10")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "25.00", updated.Total.String())
	assert.Equal(t, notes, updated.Notes)
	require.Len(t, updated.Items, 1)

	updated, err = f.sales.Update(f.ctx, sale.ID, core.SaleUpdate{BuyerID: &b.ID})
	require.NoError(t, err)
	assert.Equal(t, b.ID, updated.BuyerID)

	aOut, err := f.ledger.GetOutstanding(f.ctx, a.ID)
	require.NoError(t, err)
	bOut, err := f.ledger.GetOutstanding(f.ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, aOut.IsZero())
	assert.Equal(t, "25.00", bOut.String())

	_, err = f.sales.Update(f.ctx, sale.ID, core.SaleUpdate{Items: []core.SaleItemInput{}})
	assert.True(t, core.IsValidation(err))

	missing := int64(9999)
	_, err = f.sales.Update(f.ctx, sale.ID, core.SaleUpdate{BuyerID: &missing})
	assert.True(t, core.IsNotFound(err))

	_, err = f.sales.Update(f.ctx, 9999, core.SaleUpdate{Notes: &notes})
	assert.True(t, core.IsNotFound(err))
}

func TestListSalesFilters(t *testing.T) {
	f := newFixture(t)
	a := f.buyer(t, "A", "0")
	b := f.buyer(t, "B", "0")
	f.sale(t, a.ID, "2025-01-03", "1", "10")
	f.sale(t, a.ID, "2025-01-04", "1", "10")
	f.sale(t, b.ID, "2025-01-05", "1", "10")

	all, err := f.sales.List(f.ctx, core.SaleFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2025-01-05", all[0].Date.String(), "newest first")

	byBuyer, err := f.sales.List(f.ctx, core.SaleFilter{BuyerID: a.ID})
	require.NoError(t, err)
	assert.Len(t, byBuyer, 2)

	paged, err := f.sales.List(f.ctx, core.SaleFilter{Page: core.Page{Number: 2, Limit: 2}})
	require.NoError(t, err)
	assert.Len(t, paged, 1)

	_, err = f.sales.List(f.ctx, core.SaleFilter{PaymentType: "Barter"})
	assert.True(t, core.IsValidation(err))
}

func TestBuyerDelete(t *testing.T) {
	f := newFixture(t)
	busy := f.buyer(t, "Busy", "0")
	f.pay(t, busy.ID, "2025-01-01", "1")
	assert.True(t, core.IsConflict(f.buyers.Delete(f.ctx, busy.ID)))

	idle := f.buyer(t, "Idle", "0")
	require.NoError(t, f.buyers.Delete(f.ctx, idle.ID))
	_, err := f.buyers.Get(f.ctx, idle.ID)
	assert.True(t, core.IsNotFound(err))

	_, err = f.buyers.Create(f.ctx, core.BuyerInput{Name: "   "})
	assert.True(t, core.IsValidation(err))
}

func TestTopBuyers(t *testing.T) {
	f := newFixture(t)
	b1 := f.buyer(t, "B1", "10")
	b2 := f.buyer(t, "B2", "50")
	b3 := f.buyer(t, "B3", "50")
	b4 := f.buyer(t, "B4", "20")
	f.pay(t, b1.ID, "2025-01-01", "5")

	top, err := f.analytics.TopBuyers(f.ctx, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []int64{b2.ID, b3.ID, b4.ID}, []int64{top[0].ID, top[1].ID, top[2].ID})

	all, err := f.analytics.TopBuyers(f.ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "5.00", all[3].Outstanding.String())

	_, err = f.analytics.TopBuyers(f.ctx, 101)
	assert.True(t, core.IsValidation(err))
}

func TestMonthlyStats(t *testing.T) {
	f := newFixture(t)
	fixToday(t, core.NewDate(2025, 3, 15))
	b := f.buyer(t, "Ramesh", "0")

	f.sale(t, b.ID, "2025-01-10", "1", "100")
	f.sale(t, b.ID, "2024-12-31", "1", "999")
	_, err := f.expenses.Create(f.ctx, core.ExpenseInput{Date: mustDate(t, "2025-03-01"), Category: core.ExpenseRent, Amount: core.MustMoney("30")})
	require.NoError(t, err)

	stats, err := f.analytics.MonthlyStats(f.ctx, 3)
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.Equal(t, []string{"Jan 2025", "Feb 2025", "Mar 2025"}, []string{stats[0].Label, stats[1].Label, stats[2].Label})
	assert.Equal(t, "100.00", stats[0].Sales.String())
	assert.Equal(t, "100.00", stats[0].Profit.String())
	assert.True(t, stats[1].Sales.IsZero())
	assert.Equal(t, "-30.00", stats[2].Profit.String())

	_, err = f.analytics.MonthlyStats(f.ctx, 25)
	assert.True(t, core.IsValidation(err))
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	fixToday(t, core.NewDate(2025, 3, 15))
	b := f.buyer(t, "Ramesh", "40")

	f.sale(t, b.ID, "2025-03-15", "1", "100")
	f.sale(t, b.ID, "2025-01-02", "1", "60")
	f.pay(t, b.ID, "2025-03-15", "30")
	_, err := f.purchases.Create(f.ctx, core.PurchaseInput{
		Date: mustDate(t, "2025-03-15"), SellerName: "Seller", Quantity: core.MustQuantity("10"),
		PricePerUnit: core.MustMoney("5"), TransportCost: core.MustMoney("20"),
	})
	require.NoError(t, err)

	sum, err := f.analytics.Dashboard(f.ctx, core.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, "160.00", sum.TotalSales.String())
	assert.Equal(t, "70.00", sum.TotalPurchases.String())
	assert.Equal(t, "20.00", sum.TotalExpenses.String(), "transport cost becomes an expense")
	assert.Equal(t, "70.00", sum.TotalProfit.String())
	assert.Equal(t, "170.00", sum.TotalReceivable.String())
	assert.Equal(t, "100.00", sum.TodaySales.String())
	assert.Equal(t, "70.00", sum.TodayPurchases.String())

	end := mustDate(t, "2025-01-31")
	sum, err = f.analytics.Dashboard(f.ctx, core.DateRange{End: &end})
	require.NoError(t, err)
	assert.Equal(t, "60.00", sum.TotalSales.String())
	assert.Equal(t, "100.00", sum.TotalReceivable.String())

	todaySales, err := f.sales.TodayTotal(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, "100.00", todaySales.String())
}

func TestFullReport(t *testing.T) {
	f := newFixture(t)
	fixToday(t, core.NewDate(2025, 3, 15))
	b := f.buyer(t, "Ramesh", "0")
	f.sale(t, b.ID, "2025-03-01", "3", "10")

	report, err := f.analytics.FullReport(f.ctx, 0)
	require.NoError(t, err)
	assert.Len(t, report.MonthlyStats, DefaultMonths)
	require.Len(t, report.ProductSales, 1)
	assert.Equal(t, "30.00", report.ProductSales[0].TotalAmount.String())
	require.Len(t, report.TopBuyers, 1)
	assert.Equal(t, b.ID, report.TopBuyers[0].ID)
}

func TestPurchaseTransportExpense(t *testing.T) {
	f := newFixture(t)
	p, err := f.purchases.Create(f.ctx, core.PurchaseInput{
		SellerName: "Seller", Quantity: core.MustQuantity("120.5"),
		PricePerUnit: core.MustMoney("12.40"), TransportCost: core.MustMoney("350"),
	})
	require.NoError(t, err)
	assert.Equal(t, "1844.20", p.TotalCost.String())

	linked, err := f.expenses.List(f.ctx, core.ExpenseFilter{Category: core.ExpenseTransport})
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, "350.00", linked[0].Amount.String())

	assert.True(t, core.IsConflict(f.expenses.Delete(f.ctx, linked[0].ID)))
	_, err = f.expenses.Update(f.ctx, linked[0].ID, core.ExpenseInput{Category: core.ExpenseOther, Amount: core.MustMoney("1")})
	assert.True(t, core.IsConflict(err))

	in := core.PurchaseInput{SellerName: "Seller", Quantity: core.MustQuantity("1"), PricePerUnit: core.MustMoney("1")}
	_, err = f.purchases.Update(f.ctx, p.ID, in)
	require.NoError(t, err)
	linked, err = f.expenses.List(f.ctx, core.ExpenseFilter{Category: core.ExpenseTransport})
	require.NoError(t, err)
	assert.Empty(t, linked)

	_, err = f.purchases.Create(f.ctx, core.PurchaseInput{SellerName: "", Quantity: core.MustQuantity("1"), PricePerUnit: core.MustMoney("1")})
	assert.True(t, core.IsValidation(err))
}

func TestExpenses(t *testing.T) {
	f := newFixture(t)
	day := core.NewDate(2025, 3, 15)
	fixToday(t, day)

	_, err := f.expenses.Create(f.ctx, core.ExpenseInput{Category: "Snacks", Amount: core.MustMoney("5")})
	assert.True(t, core.IsValidation(err))

	rent, err := f.expenses.Create(f.ctx, core.ExpenseInput{Date: day, Category: core.ExpenseRent, Amount: core.MustMoney("500")})
	require.NoError(t, err)
	_, err = f.expenses.Create(f.ctx, core.ExpenseInput{Date: day, Category: core.ExpenseWater, Amount: core.MustMoney("40")})
	require.NoError(t, err)
	_, err = f.expenses.Create(f.ctx, core.ExpenseInput{Date: day, Category: core.ExpenseWater, Amount: core.MustMoney("60")})
	require.NoError(t, err)

	noDate, err := f.expenses.Create(f.ctx, core.ExpenseInput{Category: core.ExpenseTax, Amount: core.MustMoney("1")})
	require.NoError(t, err)
	assert.False(t, noDate.Date.IsZero(), "date defaults to today")
	require.NoError(t, f.expenses.Delete(f.ctx, noDate.ID))

	totals, err := f.expenses.ByCategory(f.ctx, core.DateRange{})
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, core.ExpenseRent, totals[0].Category)
	assert.Equal(t, "100.00", totals[1].Total.String())

	todayTotal, err := f.expenses.TodayTotal(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, "600.00", todayTotal.String())

	require.NoError(t, f.expenses.Delete(f.ctx, rent.ID))
	_, err = f.expenses.Get(f.ctx, rent.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestProductTypes(t *testing.T) {
	f := newFixture(t)

	_, err := f.types.Create(f.ctx, core.ProductTypeInput{Name: "LAFA"})
	assert.True(t, core.IsConflict(err))

	pt, err := f.types.Create(f.ctx, core.ProductTypeInput{Name: "Brass"})
	require.NoError(t, err)

	renamed, err := f.types.Update(f.ctx, pt.ID, core.ProductTypeInput{Name: "Brass Scrap"})
	require.NoError(t, err)
	assert.Equal(t, "Brass Scrap", renamed.Name)

	_, err = f.types.Update(f.ctx, pt.ID, core.ProductTypeInput{Name: "ply"})
	assert.True(t, core.IsConflict(err))

	listed, err := f.types.List(f.ctx)
	require.NoError(t, err)
	assert.Contains(t, names(listed), "Brass Scrap")

	other, err := f.types.Create(f.ctx, core.ProductTypeInput{Name: "Copper"})
	require.NoError(t, err)
	listed, err = f.types.List(f.ctx)
	require.NoError(t, err)
	assert.Contains(t, names(listed), "Copper", "create must invalidate the cached catalogue")

	require.NoError(t, f.types.Delete(f.ctx, other.ID))
	listed, err = f.types.List(f.ctx)
	require.NoError(t, err)
	assert.NotContains(t, names(listed), "Copper")

	b := f.buyer(t, "Ramesh", "0")
	f.productID = pt.ID
	f.sale(t, b.ID, "2025-01-01", "1", "1")
	assert.True(t, core.IsConflict(f.types.Delete(f.ctx, pt.ID)))
}

func TestProductTypeListOverlappingWrite(t *testing.T) {
	f := newFixture(t)

	gen := f.types.generation()
	stale, err := f.types.List(f.ctx)
	require.NoError(t, err)

	_, err = f.types.Create(f.ctx, core.ProductTypeInput{Name: "Aluminium"})
	require.NoError(t, err)

	// A read that started before the write must not repopulate the cache.
	f.types.remember(gen, stale)
	listed, err := f.types.List(f.ctx)
	require.NoError(t, err)
	assert.Contains(t, names(listed), "Aluminium")
}

func names(types []core.ProductType) []string {
	out := make([]string, len(types))
	for i, pt := range types {
		out[i] = pt.Name
	}
	return out
}

func TestAuthService(t *testing.T) {
	f := newFixture(t)
	svc := NewAuthService(f.repo, auth.NewTokens("test-secret", time.Hour))

	require.NoError(t, svc.EnsureAdmin(f.ctx, "admin@example.com", "admin123"))
	require.NoError(t, svc.EnsureAdmin(f.ctx, "admin@example.com", "other"), "existing admin is left alone")

	_, err := svc.Login(f.ctx, "admin@example.com", "wrong")
	assert.True(t, errors.Is(err, core.ErrUnauthorized))
	_, err = svc.Login(f.ctx, "nobody@example.com", "admin123")
	assert.True(t, errors.Is(err, core.ErrUnauthorized))

	token, err := svc.Login(f.ctx, "Admin@Example.com", "admin123")
	require.NoError(t, err)

	user, err := svc.Authenticate(f.ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", user.Email)
	assert.True(t, user.IsAdmin)

	assert.True(t, core.IsValidation(svc.ChangePassword(f.ctx, user, "nope", "newsecret")))
	assert.True(t, core.IsValidation(svc.ChangePassword(f.ctx, user, "admin123", "123")))
	require.NoError(t, svc.ChangePassword(f.ctx, user, "admin123", "newsecret"))

	_, err = svc.Login(f.ctx, "admin@example.com", "admin123")
	assert.True(t, errors.Is(err, core.ErrUnauthorized))
	_, err = svc.Login(f.ctx, "admin@example.com", "newsecret")
	require.NoError(t, err)

	_, err = svc.Authenticate(f.ctx, "garbage")
	assert.True(t, errors.Is(err, core.ErrUnauthorized))
}

func TestCoalesceSurvivesLeaderCancel(t *testing.T) {
	var g singleflight.Group
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	work := func(ctx context.Context) (string, error) {
		calls.Add(1)
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "report", nil
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := coalesce(leaderCtx, &g, "dashboard", work)
		leaderErr <- err
	}()
	<-started

	followerDone := make(chan struct{})
	var got string
	var followerErr error
	go func() {
		defer close(followerDone)
		got, followerErr = coalesce(context.Background(), &g, "dashboard", work)
	}()

	cancelLeader()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	// Give the follower time to join the in-flight call before releasing it.
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-followerDone

	require.NoError(t, followerErr)
	assert.Equal(t, "report", got)
	assert.Equal(t, int32(1), calls.Load())
}
