// Command khata-seed fills the database with a year of demo activity so the
// analytics endpoints have something to show.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"khata/internal/auth"
	"khata/internal/cli"
	"khata/internal/core"
	"khata/internal/log"
	"khata/internal/services"
)

func main() {
	months := flag.Int("months", 12, "number of past months to seed")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	flag.Parse()

	envErr := cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), log.ComponentSeed)
	if envErr != nil {
		logger.Warn("Ignoring unreadable .env file", log.FieldError, envErr.Error())
	}
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.GracefulShutdown(logger)
	defer stop()

	repo, err := cli.OpenStorage(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to open storage", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer repo.Close()

	svc := services.New(repo, nil, nil, auth.NewTokens(cfg.SecretKey, cfg.AccessTokenExpiry))
	s := seeder{svc: svc, rnd: rand.New(rand.NewPCG(*seed, *seed>>1)), logger: logger}
	if err := s.run(ctx, *months); err != nil {
		logger.Error("Seeding failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Seeded analytics data", "months", *months, "seed", *seed)
}

type seeder struct {
	svc    *services.Services
	rnd    *rand.Rand
	logger *log.Logger
}

func (s seeder) run(ctx context.Context, months int) error {
	productID, err := s.productType(ctx)
	if err != nil {
		return err
	}
	buyerID, err := s.buyer(ctx)
	if err != nil {
		return err
	}

	today := core.Today()
	categories := core.ExpenseCategories()
	for i := 0; i < months; i++ {
		day := core.Date{Time: today.AddDate(0, 0, -30*i)}

		if _, err := s.svc.Purchases.Create(ctx, core.PurchaseInput{
			Date:         day,
			SellerName:   fmt.Sprintf("Seller %d", i),
			ScrapType:    "Wood",
			Quantity:     core.QuantityFromMilli(s.between(100_000, 1_000_000)),
			PricePerUnit: core.MoneyFromCents(s.between(1_000, 5_000)),
			Notes:        "Seeded purchase",
		}); err != nil {
			return fmt.Errorf("seed purchase for month %d: %w", i, err)
		}

		item := core.SaleItemInput{
			ProductTypeID: productID,
			Quantity:      core.QuantityFromMilli(s.between(50_000, 500_000)),
			PricePerUnit:  core.MoneyFromCents(s.between(2_000, 10_000)),
		}
		in := core.SaleInput{
			Date:        day,
			BuyerID:     buyerID,
			PaymentType: core.PaymentPaid,
			Notes:       "Seeded sale",
			Items:       []core.SaleItemInput{item},
		}
		in.PaymentReceivedNow = in.Total()
		if _, err := s.svc.Sales.Create(ctx, in); err != nil {
			return fmt.Errorf("seed sale for month %d: %w", i, err)
		}

		if _, err := s.svc.Expenses.Create(ctx, core.ExpenseInput{
			Date:        day,
			Category:    categories[s.rnd.IntN(len(categories))],
			Amount:      core.MoneyFromCents(s.between(10_000, 100_000)),
			Description: fmt.Sprintf("Monthly expense %d", i),
		}); err != nil {
			return fmt.Errorf("seed expense for month %d: %w", i, err)
		}
		s.logger.Debug("Seeded month", "offset", i, "date", day.String())
	}
	return nil
}

// productType returns the first product type, creating one when none exist.
func (s seeder) productType(ctx context.Context) (int64, error) {
	types, err := s.svc.ProductTypes.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(types) > 0 {
		return types[0].ID, nil
	}
	pt, err := s.svc.ProductTypes.Create(ctx, core.ProductTypeInput{Name: "Generic Wood", Description: "Default"})
	return pt.ID, err
}

// buyer returns the first buyer, creating a demo client when none exist.
func (s seeder) buyer(ctx context.Context) (int64, error) {
	buyers, err := s.svc.Buyers.List(ctx, core.BuyerFilter{Page: core.Page{Number: 1, Limit: 1}})
	if err != nil {
		return 0, err
	}
	if len(buyers) > 0 {
		return buyers[0].ID, nil
	}
	b, err := s.svc.Buyers.Create(ctx, core.BuyerInput{Name: "Demo Client", Phone: "1234567890", Address: "123 Main St"})
	return b.ID, err
}

func (s seeder) between(lo, hi int64) int64 {
	return lo + s.rnd.Int64N(hi-lo)
}
