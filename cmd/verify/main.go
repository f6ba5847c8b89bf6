package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"lsd-vault-node/internal/config"
	"lsd-vault-node/internal/state"
	"lsd-vault-node/internal/state/sqlite"
)

const defaultVerifyEnvFile = ".env"

// verify opens the node's sqlite store offline and prints the last persisted
// snapshot, so operators can inspect positions and reserves without a running
// node.
func main() {
	configPath := flag.String("config", "", "optional config path for the sqlite location")
	dbPath := flag.String("db", "", "sqlite path (overrides config)")
	flag.Parse()

	if err := config.LoadEnv(defaultVerifyEnvFile); err != nil {
		fatal(err)
	}

	statePath := *dbPath
	if statePath == "" && *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fatal(err)
		}
		statePath = cfg.State.SQLitePath
	}
	if statePath == "" {
		statePath = "data/lsd-vault-node.db"
	}
	if _, err := os.Stat(statePath); err != nil {
		fatal(fmt.Errorf("state db %s: %w", statePath, err))
	}

	store, err := sqlite.New(statePath)
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	snap, ok, err := state.LoadNodeSnapshot(context.Background(), store)
	if err != nil {
		fatal(err)
	}
	if !ok {
		fatal(errors.New("no snapshot recorded yet"))
	}

	fmt.Printf("snapshot written: %s\n", time.UnixMilli(snap.UpdatedAtMS).UTC().Format(time.RFC3339))
	fmt.Printf("share supply: %s\n", snap.Vault.TotalSupply)
	fmt.Printf("positions: %d\n", len(snap.Vault.Positions))
	for _, pos := range snap.Vault.Positions {
		locked := "unlocked"
		if until := time.Unix(pos.LockedUntil, 0); until.After(time.Now()) {
			locked = "locked until " + until.UTC().Format(time.RFC3339)
		}
		fmt.Printf("  %s shares=%s %s\n", pos.Holder, pos.Shares, locked)
	}
	fmt.Printf("strategy reserves: %d\n", len(snap.Strategy.Reserves))
	for _, res := range snap.Strategy.Reserves {
		fmt.Printf("  %s reserve=%s\n", res.Asset, res.Reserve)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
