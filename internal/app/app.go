package app

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"lsd-vault-node/internal/alerts"
	"lsd-vault-node/internal/assets"
	"lsd-vault-node/internal/bank"
	"lsd-vault-node/internal/config"
	"lsd-vault-node/internal/history"
	"lsd-vault-node/internal/metrics"
	"lsd-vault-node/internal/ops"
	"lsd-vault-node/internal/rates"
	"lsd-vault-node/internal/registry"
	"lsd-vault-node/internal/state"
	"lsd-vault-node/internal/state/sqlite"
	"lsd-vault-node/internal/strategy"
	"lsd-vault-node/internal/swap"
	"lsd-vault-node/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// DefaultSwapperID names the oracle-priced venue bound as the default route
// for every configured pair.
const DefaultSwapperID = "oracle"

type App struct {
	cfg   *config.Config
	log   *zap.Logger
	store state.Store

	oracle     *rates.Oracle
	ratesREST  *rates.Client
	ratesWS    *rates.Stream
	registry   *registry.Accruing
	bank       *bank.Book
	strategy   *strategy.Strategy
	vault      *vault.Vault
	backstop   *vault.Backstop
	submitter  *ops.Submitter
	prometheus *metrics.Prometheus
	metrics    *metrics.Metrics
	history    *history.Writer
	alerts     *alerts.Telegram

	owner      common.Address
	settlement common.Address
	receipt    common.Address
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	oracle := rates.NewOracle(log)
	var ratesREST *rates.Client
	if cfg.Rates.BaseURL != "" {
		ratesREST = rates.NewClient(cfg.Rates.BaseURL, cfg.Rates.Timeout, log)
	}
	var ratesWS *rates.Stream
	if cfg.Rates.WSURL != "" {
		ratesWS = rates.NewStream(cfg.Rates.WSURL, cfg.Rates.ReconnectDelay, 30*time.Second, log)
	}

	settlement, err := assets.Parse(cfg.Strategy.SettlementAsset)
	if err != nil {
		return nil, fmt.Errorf("settlement asset: %w", err)
	}
	receipt, err := assets.Parse(cfg.Strategy.ReceiptAsset)
	if err != nil {
		return nil, fmt.Errorf("receipt asset: %w", err)
	}
	owner, err := assets.Parse(cfg.Strategy.Owner)
	if err != nil {
		return nil, fmt.Errorf("strategy owner: %w", err)
	}

	reg := registry.NewAccruing(oracle, receipt, log)
	book := bank.NewBook(log)
	strat, err := buildStrategy(cfg, oracle, reg, book, log, settlement, receipt)
	if err != nil {
		return nil, err
	}

	vaultAddr, err := assets.Parse(cfg.Vault.Address)
	if err != nil {
		return nil, fmt.Errorf("vault address: %w", err)
	}
	vaultOwner, err := assets.Parse(cfg.Vault.Owner)
	if err != nil {
		return nil, fmt.Errorf("vault owner: %w", err)
	}
	minShares, err := config.ParseAmount(cfg.Vault.MinShares)
	if err != nil {
		return nil, fmt.Errorf("vault min shares: %w", err)
	}
	v, err := vault.New(vault.Config{
		Address:   vaultAddr,
		Owner:     vaultOwner,
		MinLockUp: cfg.Vault.MinLockUp,
		MinShares: minShares,
	}, strat, log)
	if err != nil {
		return nil, err
	}

	var backstop *vault.Backstop
	if cfg.Backstop.Enabled {
		backstopAddr, err := assets.Parse(cfg.Backstop.Address)
		if err != nil {
			return nil, fmt.Errorf("backstop address: %w", err)
		}
		backstopAsset, err := assets.Parse(cfg.Backstop.Asset)
		if err != nil {
			return nil, fmt.Errorf("backstop asset: %w", err)
		}
		backstop, err = vault.NewBackstop(backstopAddr, backstopAsset, book, cfg.Backstop.MinLockUp, log)
		if err != nil {
			return nil, err
		}
	}

	historyWriter, err := history.New(cfg.History, log)
	if err != nil {
		return nil, err
	}

	prom := metrics.NewPrometheus()
	return &App{
		cfg:        cfg,
		log:        log,
		store:      store,
		oracle:     oracle,
		ratesREST:  ratesREST,
		ratesWS:    ratesWS,
		registry:   reg,
		bank:       book,
		strategy:   strat,
		vault:      v,
		backstop:   backstop,
		submitter:  ops.New(store, log),
		prometheus: prom,
		metrics:    prom.Metrics,
		history:    historyWriter,
		alerts:     alerts.NewTelegram(cfg.Telegram, log),
		owner:      owner,
		settlement: settlement,
		receipt:    receipt,
	}, nil
}

// buildStrategy assembles the engine out of the config: underlyings with
// their limits, plus an oracle-priced venue bound as the default route from
// every underlying into the settlement asset and the native coin.
func buildStrategy(cfg *config.Config, oracle *rates.Oracle, reg registry.Registry, book *bank.Book, log *zap.Logger, settlement, receipt common.Address) (*strategy.Strategy, error) {
	addr, err := assets.Parse(cfg.Strategy.Address)
	if err != nil {
		return nil, fmt.Errorf("strategy address: %w", err)
	}
	owner, err := assets.Parse(cfg.Strategy.Owner)
	if err != nil {
		return nil, fmt.Errorf("strategy owner: %w", err)
	}
	manager := owner
	if cfg.Strategy.Manager != "" {
		manager, err = assets.Parse(cfg.Strategy.Manager)
		if err != nil {
			return nil, fmt.Errorf("strategy manager: %w", err)
		}
	}
	vaultAddr, err := assets.Parse(cfg.Vault.Address)
	if err != nil {
		return nil, fmt.Errorf("vault address: %w", err)
	}
	dustFloor, err := config.ParseAmount(cfg.Strategy.DustFloor)
	if err != nil {
		return nil, fmt.Errorf("dust floor: %w", err)
	}

	strat, err := strategy.New(strategy.Config{
		Address:    addr,
		Owner:      owner,
		Manager:    manager,
		Vault:      vaultAddr,
		Settlement: settlement,
		Receipt:    receipt,
		DustFloor:  dustFloor,
	}, oracle, reg, book, log)
	if err != nil {
		return nil, err
	}

	venue := swap.NewOracleVenue(oracle, cfg.Strategy.SwapSlippageBps)
	for _, u := range cfg.Strategy.Underlyings {
		asset, err := assets.Parse(u.Asset)
		if err != nil {
			return nil, fmt.Errorf("underlying %q: %w", u.Asset, err)
		}
		minDeposit, err := config.ParseAmount(u.MinDeposit)
		if err != nil {
			return nil, fmt.Errorf("underlying %q min deposit: %w", u.Asset, err)
		}
		ceiling, err := config.ParseAmount(u.DepositCeiling)
		if err != nil {
			return nil, fmt.Errorf("underlying %q ceiling: %w", u.Asset, err)
		}
		if err := strat.AddUnderlying(owner, asset, strategy.UnderlyingConfig{
			MinDeposit:     minDeposit,
			DepositCeiling: ceiling,
		}); err != nil {
			return nil, err
		}
		for _, out := range []common.Address{settlement, assets.Native} {
			if asset == out {
				continue
			}
			if err := strat.AddSwapper(owner, DefaultSwapperID, venue, asset, out); err != nil {
				return nil, err
			}
			if err := strat.SetDefaultSwapper(owner, DefaultSwapperID, asset, out); err != nil {
				return nil, err
			}
		}
	}
	return strat, nil
}

// Run restores persisted state, primes the rate oracle, and serves until the
// context is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.history.Close()

	if err := a.restoreState(ctx); err != nil {
		return err
	}

	if a.ratesREST != nil {
		if err := a.ratesREST.Snapshot(ctx, a.oracle); err != nil {
			a.log.Warn("rate snapshot failed", zap.Error(err))
		}
	}
	if a.ratesWS != nil {
		go a.ratesWS.Run(ctx, a.oracle)
	}
	a.history.Start(ctx)

	server := &http.Server{Addr: a.cfg.API.ListenAddr, Handler: a.Handler()}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("api listening", zap.String("addr", a.cfg.API.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	ticker := time.NewTicker(a.cfg.State.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
			a.checkpoint(shutdownCtx)
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-ticker.C:
			a.checkpoint(ctx)
		}
	}
}

// restoreState rehydrates strategy reserves, vault shares, and outstanding
// registry receipts from the last persisted snapshot, if one exists.
func (a *App) restoreState(ctx context.Context) error {
	snap, ok, err := state.LoadNodeSnapshot(ctx, a.store)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return nil
	}
	if err := a.strategy.Restore(snap.Strategy); err != nil {
		return fmt.Errorf("restore strategy: %w", err)
	}
	if err := a.vault.Restore(snap.Vault); err != nil {
		return fmt.Errorf("restore vault: %w", err)
	}
	if err := a.registry.Restore(snap.Registry); err != nil {
		return fmt.Errorf("restore registry: %w", err)
	}
	a.log.Info("state restored",
		zap.String("total_supply", a.vault.TotalSupply().String()),
		zap.Int64("snapshot_ms", snap.UpdatedAtMS),
	)
	return nil
}

// checkpoint refreshes pool gauges and persists the node snapshot. Reads go
// through the submitter so they never interleave with a mutating operation.
func (a *App) checkpoint(ctx context.Context) {
	_, err := a.submitter.Submit(ctx, "", func(ctx context.Context) ([]byte, error) {
		total, err := a.strategy.TotalAssets()
		if err != nil {
			a.log.Warn("valuation failed", zap.Error(err))
			total = nil
		}
		supply := a.vault.TotalSupply()
		if total != nil {
			totalF, _ := new(big.Float).SetInt(total).Float64()
			a.metrics.TotalAssets.Set(totalF)
			supplyF, _ := new(big.Float).SetInt(supply).Float64()
			a.metrics.ShareSupply.Set(supplyF)
			a.history.EnqueueValuation(history.Valuation{
				TotalAssets: total.String(),
				ShareSupply: supply.String(),
			})
		}
		snap := state.NodeSnapshot{
			Vault:    a.vault.Export(),
			Strategy: a.strategy.Export(),
			Registry: a.registry.Export(),
		}
		if err := state.SaveNodeSnapshot(ctx, a.store, snap); err != nil {
			alerts.NotifySnapshotFailure(ctx, a.alerts, a.log, err)
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		a.log.Warn("checkpoint failed", zap.Error(err))
	}
}
