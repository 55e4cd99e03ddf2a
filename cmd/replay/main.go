// Package main rebuilds sale state from the persisted event journal and
// prints what the journal implies: balances, sold and held totals, and
// whitelist statuses. Run it against the same PostgreSQL the server
// writes to audit the journal offline.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"sort"

	"github.com/joho/godotenv"

	"crowdsale-engine/internal/domain"
	"crowdsale-engine/internal/replay"
	pgstore "crowdsale-engine/internal/storage/postgres"
)

// rebuildOutput is the JSON shape of a replay run.
type rebuildOutput struct {
	LastSequence uint64            `json:"last_sequence"`
	TokensSold   string            `json:"tokens_sold"`
	CurrencyHeld string            `json:"currency_held"`
	Finalized    bool              `json:"finalized"`
	Balances     map[string]string `json:"balances"`
	Whitelist    map[string]string `json:"whitelist"`
}

func main() {
	_ = godotenv.Load()

	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	supplyStr := flag.String("supply", envOr("TOTAL_SUPPLY", "1000000000000000000000000"), "Total asset supply, scaled decimal")
	upto := flag.Uint64("upto", 0, "Replay only sequences <= this value (0 = all)")
	jsonOut := flag.Bool("json", false, "Emit the rebuilt state as JSON")

	flag.Parse()

	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags|log.Lshortfile)

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}

	supply, err := domain.ParseAmount(*supplyStr)
	if err != nil {
		logger.Fatalf("Invalid supply: %v", err)
	}

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	rebuilder := replay.NewRebuilder(pgstore.NewSaleEventStore(pool))

	var state *replay.State
	if *upto > 0 {
		state, err = rebuilder.RebuildRange(ctx, replay.NewState(), *upto)
	} else {
		state, err = rebuilder.Rebuild(ctx)
	}
	if err != nil {
		logger.Fatalf("Replay failed: %v", err)
	}

	if total := state.TotalBalance(); !total.Eq(supply) {
		logger.Printf("WARNING: rebuilt balances sum to %s, supply is %s", total.Dec(), supply.Dec())
	}

	out := buildOutput(state)
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			logger.Fatalf("Encode output: %v", err)
		}
		return
	}
	printText(out)
}

func buildOutput(state *replay.State) *rebuildOutput {
	out := &rebuildOutput{
		LastSequence: state.LastSequence,
		TokensSold:   state.TokensSold.Dec(),
		CurrencyHeld: state.CurrencyHeld.Dec(),
		Finalized:    state.Finalized,
		Balances:     make(map[string]string, len(state.Balances)),
		Whitelist:    make(map[string]string, len(state.Whitelist)),
	}
	for addr, bal := range state.Balances {
		out.Balances[addr.String()] = bal.Dec()
	}
	for addr, status := range state.Whitelist {
		out.Whitelist[addr.String()] = string(status)
	}
	return out
}

func printText(out *rebuildOutput) {
	log.SetFlags(0)
	log.SetOutput(os.Stdout)

	log.Printf("last sequence: %d", out.LastSequence)
	log.Printf("tokens sold:   %s", out.TokensSold)
	log.Printf("currency held: %s", out.CurrencyHeld)
	log.Printf("finalized:     %t", out.Finalized)

	log.Printf("balances (%d):", len(out.Balances))
	for _, addr := range sortedKeys(out.Balances) {
		log.Printf("  %s  %s", addr, out.Balances[addr])
	}
	log.Printf("whitelist (%d):", len(out.Whitelist))
	for _, addr := range sortedKeys(out.Whitelist) {
		log.Printf("  %s  %s", addr, out.Whitelist[addr])
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
