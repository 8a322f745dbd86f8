package services

import (
	"khata/internal/auth"
	"khata/internal/events"
	"khata/internal/metrics"
	"khata/internal/storage"
)

// Services bundles every service over one repository, publisher and metrics
// set. The server and the seed command both build theirs with New.
type Services struct {
	Auth         *AuthService
	Buyers       *BuyerService
	Ledger       *LedgerService
	ProductTypes *ProductTypeService
	Sales        *SaleService
	Purchases    *PurchaseService
	Expenses     *ExpenseService
	Analytics    *AnalyticsService
}

func New(repo *storage.Repository, publisher events.Publisher, m *metrics.Metrics, tokens *auth.Tokens) *Services {
	if publisher == nil {
		publisher = events.Noop{}
	}
	ledger := NewLedgerService(repo, publisher, m)
	return &Services{
		Auth:         NewAuthService(repo, tokens),
		Buyers:       NewBuyerService(repo),
		Ledger:       ledger,
		ProductTypes: NewProductTypeService(repo),
		Sales:        NewSaleService(repo, ledger, publisher, m),
		Purchases:    NewPurchaseService(repo),
		Expenses:     NewExpenseService(repo),
		Analytics:    NewAnalyticsService(repo),
	}
}
