// Package main runs the crowdsale engine as a single process:
// - REST API (fiber): sale state, purchases, whitelist, admin
// - Ops endpoint: health, Prometheus metrics, WebSocket event stream
// - Aggregation (scheduled): purchase buckets published to ClickHouse
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"github.com/joho/godotenv"

	"crowdsale-engine/internal/analytics"
	"crowdsale-engine/internal/api"
	"crowdsale-engine/internal/domain"
	"crowdsale-engine/internal/events"
	"crowdsale-engine/internal/gateway"
	"crowdsale-engine/internal/ledger"
	"crowdsale-engine/internal/observability"
	"crowdsale-engine/internal/sale"
	"crowdsale-engine/internal/settlement"
	"crowdsale-engine/internal/storage"
	chstore "crowdsale-engine/internal/storage/clickhouse"
	"crowdsale-engine/internal/storage/memory"
	"crowdsale-engine/internal/storage/migrations"
	pgstore "crowdsale-engine/internal/storage/postgres"
	"crowdsale-engine/internal/stream"
	"crowdsale-engine/internal/whitelist"
)

// Server holds all components of the engine process.
type Server struct {
	listenAddr        string
	opsAddr           string
	aggregateInterval time.Duration
	bucketWidth       time.Duration

	app        appListener
	hub        *stream.Hub
	aggregator *analytics.Aggregator
	logger     *log.Logger

	lastPublished int64 // unix ms, exclusive end of the last published window
}

// appListener is the slice of fiber.App the server drives.
type appListener interface {
	Listen(addr string) error
	ShutdownWithTimeout(d time.Duration) error
}

// saleStores holds the storage implementations behind the engine.
type saleStores struct {
	purchaseStore   storage.PurchaseStore
	saleEventStore  storage.SaleEventStore
	timeseriesStore storage.SaleTimeseriesStore
}

func main() {
	// Load .env file if present; system env vars win.
	_ = godotenv.Load()

	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "REST API listen address")
	opsAddr := flag.String("ops-addr", envOr("OPS_ADDR", ":9090"), "Health/metrics/WebSocket listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")

	ownerStr := flag.String("owner", os.Getenv("OWNER_ADDRESS"), "Owner address (base58)")
	saleStr := flag.String("sale-address", os.Getenv("SALE_ADDRESS"), "Sale holding address (base58)")
	supplyStr := flag.String("supply", envOr("TOTAL_SUPPLY", "1000000000000000000000000"), "Total asset supply, scaled decimal")
	priceStr := flag.String("price", envOr("SALE_PRICE", "1000000000000000000"), "Currency per asset unit, scaled decimal")
	minStr := flag.String("min-purchase", envOr("MIN_PURCHASE", "100000000000000000000"), "Minimum purchase, scaled decimal")
	maxStr := flag.String("max-purchase", envOr("MAX_PURCHASE", "10000000000000000000000"), "Maximum purchase, scaled decimal")
	maxTokensStr := flag.String("max-tokens", envOr("MAX_TOKENS", "1000000000000000000000000"), "Sale allocation cap, scaled decimal")
	startTime := flag.Int64("start-time", 0, "Sale window start, unix seconds (0 = now)")
	endTime := flag.Int64("end-time", 0, "Sale window end, unix seconds (0 = start + 7 days)")
	fundSale := flag.Bool("fund-sale", true, "Transfer the sale allocation from the owner on startup")

	aggregateInterval := flag.Duration("aggregate-interval", 1*time.Minute, "Timeseries publish interval")
	bucketWidth := flag.Duration("bucket-width", 1*time.Minute, "Timeseries bucket width")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if *ownerStr == "" {
		logger.Fatal("--owner is required")
	}
	if *saleStr == "" {
		logger.Fatal("--sale-address is required")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	owner, err := domain.ParseAddress(*ownerStr)
	if err != nil {
		logger.Fatalf("Invalid owner address: %v", err)
	}
	saleAddr, err := domain.ParseAddress(*saleStr)
	if err != nil {
		logger.Fatalf("Invalid sale address: %v", err)
	}

	supply := mustAmount(logger, "supply", *supplyStr)
	cfg := domain.SaleConfig{
		Owner:       owner,
		Price:       mustAmount(logger, "price", *priceStr),
		MinPurchase: mustAmount(logger, "min-purchase", *minStr),
		MaxPurchase: mustAmount(logger, "max-purchase", *maxStr),
		StartTime:   *startTime,
		EndTime:     *endTime,
		MaxTokens:   mustAmount(logger, "max-tokens", *maxTokensStr),
	}
	if cfg.StartTime == 0 {
		cfg.StartTime = time.Now().Unix()
	}
	if cfg.EndTime == 0 {
		cfg.EndTime = cfg.StartTime + 7*24*60*60
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Continue event numbering after whatever the journal already holds.
	// Live balances start fresh each boot; the ledger journals its mint
	// on startup, so replay sees where each process lifetime begins.
	lastSeq, err := stores.saleEventStore.MaxSequence(ctx)
	if err != nil {
		logger.Fatalf("Failed to read journal sequence: %v", err)
	}
	if lastSeq > 0 {
		logger.Printf("Journal holds %d events; continuing from sequence %d", lastSeq, lastSeq+1)
	}

	metrics := observability.DefaultMetrics
	hub := stream.NewHub(nil, log.New(os.Stdout, "[stream] ", log.LstdFlags|log.Lshortfile), metrics)
	fanout := events.NewFanout(
		events.NewJournal(stores.saleEventStore, logger),
		hub,
		observability.NewEventSink(metrics),
	).WithStartSequence(lastSeq)

	l, err := ledger.New(owner, supply, fanout)
	if err != nil {
		logger.Fatalf("Failed to create ledger: %v", err)
	}
	gw, err := gateway.New(owner)
	if err != nil {
		logger.Fatalf("Failed to create gateway: %v", err)
	}
	registry := whitelist.NewRegistry(fanout)

	engine, err := sale.NewEngine(sale.Params{
		Config:   cfg,
		SaleAddr: saleAddr,
		Ledger:   l,
		Registry: registry,
		Gateway:  gw,
		Sink:     fanout,
		Recorder: sale.NewStoreRecorder(stores.purchaseStore, logger),
	})
	if err != nil {
		logger.Fatalf("Failed to create sale engine: %v", err)
	}

	if *fundSale {
		if err := l.Transfer(ctx, owner, saleAddr, cfg.MaxTokens); err != nil {
			logger.Fatalf("Failed to fund sale address: %v", err)
		}
		logger.Printf("Funded sale address %s with %s units", saleAddr, cfg.MaxTokens.Dec())
	}

	controller := settlement.NewController(gw, l, engine, fanout)

	apiServer := api.NewServer(api.Params{
		Engine:     engine,
		Controller: controller,
		Ledger:     l,
		Registry:   registry,
		Gateway:    gw,
		Purchases:  stores.purchaseStore,
		Journal:    stores.saleEventStore,
		Timeseries: stores.timeseriesStore,
		Logger:     logger,
	})

	server := &Server{
		listenAddr:        *listenAddr,
		opsAddr:           *opsAddr,
		aggregateInterval: *aggregateInterval,
		bucketWidth:       *bucketWidth,
		app:               apiServer.Router(),
		hub:               hub,
		aggregator:        analytics.NewAggregator(stores.purchaseStore, stores.timeseriesStore),
		logger:            logger,
		lastPublished:     time.Now().Truncate(*bucketWidth).UnixMilli(),
	}

	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = server.Run(ctx)
	done <- err

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Server error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// Run starts the API listener, the ops listener, and the aggregation
// scheduler, then blocks until ctx is cancelled or a listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Printf("Starting API on %s, ops on %s", s.listenAddr, s.opsAddr)

	errCh := make(chan error, 2)

	go func() {
		if err := s.app.Listen(s.listenAddr); err != nil {
			errCh <- fmt.Errorf("api listener: %w", err)
		}
	}()

	opsServer := &http.Server{Addr: s.opsAddr, Handler: s.opsMux()}
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("ops listener: %w", err)
		}
	}()

	go s.runAggregationScheduler(ctx)

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if sErr := s.app.ShutdownWithTimeout(10 * time.Second); sErr != nil {
		s.logger.Printf("API shutdown error: %v", sErr)
	}
	if sErr := opsServer.Shutdown(shutdownCtx); sErr != nil {
		s.logger.Printf("Ops shutdown error: %v", sErr)
	}
	s.hub.Close()

	return err
}

// opsMux serves the non-API surface: health, metrics, event stream.
func (s *Server) opsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.Handle("/ws", s.hub)
	return mux
}

// runAggregationScheduler publishes completed purchase buckets on a
// fixed interval.
func (s *Server) runAggregationScheduler(ctx context.Context) {
	s.logger.Printf("Starting aggregation scheduler (interval: %v, bucket: %v)", s.aggregateInterval, s.bucketWidth)

	ticker := time.NewTicker(s.aggregateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishBuckets(ctx)
		}
	}
}

// publishBuckets aggregates the window since the last publish, stopping
// at the last completed bucket boundary so open buckets never land.
func (s *Server) publishBuckets(ctx context.Context) {
	end := time.Now().Truncate(s.bucketWidth).UnixMilli()
	if end <= s.lastPublished {
		return
	}

	n, err := s.aggregator.Publish(ctx, s.lastPublished, end-1, s.bucketWidth.Milliseconds())
	if err != nil {
		s.logger.Printf("Timeseries publish error: %v", err)
		return
	}
	if n > 0 {
		s.logger.Printf("Published %d timeseries buckets up to %d", n, end)
	}
	s.lastPublished = end
}

// createStores creates the purchase, journal, and timeseries stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*saleStores, func(), error) {
	if useMemory {
		stores := &saleStores{
			purchaseStore:   memory.NewPurchaseStore(),
			saleEventStore:  memory.NewSaleEventStore(),
			timeseriesStore: memory.NewSaleTimeseriesStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
	}

	stores := &saleStores{
		purchaseStore:   pgstore.NewPurchaseStore(pool),
		saleEventStore:  pgstore.NewSaleEventStore(pool),
		timeseriesStore: chstore.NewSaleTimeseriesStore(chConn),
	}
	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}

// envOr returns the env var value or def when unset.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// mustAmount parses a scaled decimal flag value or exits.
func mustAmount(logger *log.Logger, name, raw string) *uint256.Int {
	v, err := domain.ParseAmount(raw)
	if err != nil {
		logger.Fatalf("Invalid --%s value %q: %v", name, raw, err)
	}
	return v
}
