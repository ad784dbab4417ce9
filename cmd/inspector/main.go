package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/GoPolymarket/fundgate/internal/config"
	"github.com/GoPolymarket/fundgate/internal/ledger"
	"github.com/GoPolymarket/fundgate/internal/repository"
)

func main() {
	showLedger := flag.Bool("ledger", false, "summarise the configured SQL ledger")
	flag.Parse()

	fmt.Println("--- Operations ---")
	for _, op := range ledger.Operations() {
		fmt.Printf("Op: %s(%s)\n", op.Name, strings.Join(op.Args, ", "))
	}

	if !*showLedger {
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	db, err := repository.NewGormDB(cfg)
	if err != nil {
		log.Fatalf("Failed to open ledger database: %v", err)
	}
	ctx := context.Background()
	store, err := repository.NewSQLLedgerStore(ctx, db)
	if err != nil {
		log.Fatalf("Failed to load ledger: %v", err)
	}

	fmt.Println("\n--- Ledger ---")
	err = store.View(ctx, func(st *ledger.State) error {
		records, err := st.Records()
		if err != nil {
			return err
		}
		counts := make(map[string]int)
		for id := range records {
			counts[id.Kind]++
		}
		for _, kind := range ledger.RecordKinds() {
			fmt.Printf("Kind: %s (%d)\n", kind, counts[kind])
		}
		for _, f := range st.Funds {
			fmt.Printf("Fund: %s manager=%s shares=%d vault=%d\n", f.Key, f.Manager, f.TotalShares, st.Balance(f.Vault))
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to read ledger: %v", err)
	}
}
