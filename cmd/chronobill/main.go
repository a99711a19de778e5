package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/chronobill/chronobill/internal/config"
	"github.com/chronobill/chronobill/internal/domain/catalog"
	"github.com/chronobill/chronobill/internal/logger"
	"github.com/chronobill/chronobill/internal/postgres"
	"github.com/chronobill/chronobill/internal/repository"
	"github.com/chronobill/chronobill/internal/service"
	"github.com/chronobill/chronobill/internal/testutil"
	"github.com/chronobill/chronobill/internal/types"
)

// chronobill runs a deterministic invoice dry run against an in-memory event
// store and the built-in demo catalog, exercising the full pipeline (timeline
// rebuild, billing event derivation, proration, item assembly) without a
// database. With -postgres it runs against the configured database instead.
func main() {
	var (
		startFlag  = flag.String("start", "2011-01-01", "subscription start date (YYYY-MM-DD)")
		targetFlag = flag.String("target", "2011-03-15", "invoice target date (YYYY-MM-DD)")
		cancelFlag = flag.String("cancel", "", "optional cancel date (YYYY-MM-DD)")
		planFlag   = flag.String("plan", "gold-monthly", "plan name from the demo catalog")
		bcdFlag    = flag.Int("bcd", 1, "billing cycle day (1..31)")
		pgFlag     = flag.Bool("postgres", false, "run against the configured postgres instead of in-memory stores")
	)
	flag.Parse()

	start, err := time.Parse(time.DateOnly, *startFlag)
	if err != nil {
		log.Fatalf("invalid -start: %v", err)
	}
	target, err := time.Parse(time.DateOnly, *targetFlag)
	if err != nil {
		log.Fatalf("invalid -target: %v", err)
	}

	cfg := config.GetDefaultConfig()
	lg, err := logger.NewLogger()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}

	catalogTTL := time.Duration(cfg.Billing.CatalogCacheTTLSeconds) * time.Second
	params := service.ServiceParams{
		Logger:    lg,
		Config:    cfg,
		Clock:     types.FixedClock{Instant: target},
		DB:        service.NoopTxRunner{},
		Catalog:   catalog.NewCachedCatalog(testutil.DefaultTestCatalog(), catalogTTL),
		EventRepo: testutil.NewInMemorySubscriptionEventStore(),
		SubRepo:   testutil.NewInMemorySubscriptionStore(),
	}
	if *pgFlag {
		cfg, err = config.NewConfig()
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		db, err := postgres.NewDB(cfg, lg)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer db.Close()
		params.Config = cfg
		params.DB = db
		params.EventRepo = repository.NewSubscriptionEventRepository(db, lg)
		params.SubRepo = repository.NewSubscriptionRepository(db, lg)
	}
	subSvc := service.NewSubscriptionService(params)
	invSvc := service.NewInvoiceService(params)

	ctx := testutil.SetupContext()
	bundle, err := subSvc.CreateBundle(ctx, service.CreateBundleParams{
		ExternalKey: "demo-bundle",
		AccountID:   "demo-account",
		StartDate:   start,
	})
	if err != nil {
		log.Fatalf("failed to create bundle: %v", err)
	}

	sub, err := subSvc.CreateSubscription(ctx, service.CreateSubscriptionParams{
		BundleID:      bundle.ID,
		StartDate:     start,
		BillCycleDay:  *bcdFlag,
		PlanName:      *planFlag,
		PhaseName:     *planFlag + "-evergreen",
		PriceListName: "DEFAULT",
	})
	if err != nil {
		log.Fatalf("failed to create subscription: %v", err)
	}

	if *cancelFlag != "" {
		cancel, err := time.Parse(time.DateOnly, *cancelFlag)
		if err != nil {
			log.Fatalf("invalid -cancel: %v", err)
		}
		if err := subSvc.Cancel(ctx, sub.ID, cancel); err != nil {
			log.Fatalf("failed to cancel: %v", err)
		}
	}

	result, err := invSvc.GenerateItems(ctx, sub.ID, target)
	if err != nil {
		log.Fatalf("invoice run failed: %v", err)
	}

	fmt.Printf("subscription %s, plan %s, target %s\n", sub.ID, *planFlag, target.Format(time.DateOnly))
	if result.InvoiceNumber != "" {
		fmt.Printf("invoice %s\n", result.InvoiceNumber)
	}
	for _, item := range result.Items {
		end := "-"
		if item.EndDate != nil {
			end = item.EndDate.Format(time.DateOnly)
		}
		fmt.Printf("  %-9s %s .. %-10s cycles=%-12s amount=%s %s\n",
			item.Type, item.StartDate.Format(time.DateOnly), end,
			item.NumberOfCycles.String(), item.Amount.StringFixed(2), item.Currency)
	}
	if result.ChargedThroughDate != nil {
		fmt.Printf("charged through %s\n", result.ChargedThroughDate.Format(time.DateOnly))
	} else {
		fmt.Println("nothing to bill")
	}
}
