// Package history persists an append-only event log of vault activity to
// postgres. Writes are asynchronous and lossy under backpressure: the log is
// operator telemetry, never an input to the accounting engines.
package history

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"lsd-vault-node/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// Event is one completed (or rejected) vault operation. Amounts are decimal
// strings in base units and stored as NUMERIC so no precision is lost.
type Event struct {
	Time      time.Time
	Kind      string
	Holder    string
	Asset     string
	Amount    string
	Shares    string
	Outcome   string
	Detail    string
	ClientOID string
}

// Valuation is one periodic capture of pool-level figures.
type Valuation struct {
	Time        time.Time
	TotalAssets string
	ShareSupply string
}

type Writer struct {
	db         *sql.DB
	log        *zap.Logger
	events     chan Event
	valuations chan Valuation
	started    atomic.Bool
	dropEvent  atomic.Uint64
	dropVal    atomic.Uint64
}

// New opens the postgres event log. A nil *Writer is returned when no DSN is
// configured; all methods tolerate the nil receiver.
func New(cfg config.HistoryConfig, log *zap.Logger) (*Writer, error) {
	dsn := strings.TrimSpace(cfg.PostgresDSN)
	if dsn == "" {
		return nil, nil
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:         db,
		log:        log,
		events:     make(chan Event, queueSize),
		valuations: make(chan Valuation, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueEvent(event Event) {
	if w == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	select {
	case w.events <- event:
		return
	default:
		if w.dropEvent.Add(1) == 1 && w.log != nil {
			w.log.Warn("history event queue full")
		}
	}
}

func (w *Writer) EnqueueValuation(valuation Valuation) {
	if w == nil {
		return
	}
	if valuation.Time.IsZero() {
		valuation.Time = time.Now()
	}
	select {
	case w.valuations <- valuation:
		return
	default:
		if w.dropVal.Add(1) == 1 && w.log != nil {
			w.log.Warn("history valuation queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-w.events:
			w.writeEvent(ctx, event)
		case valuation := <-w.valuations:
			w.writeValuation(ctx, valuation)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("history db not initialized")
	}
	if err := w.exec(ctx, `CREATE TABLE IF NOT EXISTS vault_events (
		ts TIMESTAMPTZ NOT NULL,
		kind TEXT NOT NULL,
		holder TEXT NOT NULL DEFAULT '',
		asset TEXT NOT NULL DEFAULT '',
		amount NUMERIC NOT NULL DEFAULT 0,
		shares NUMERIC NOT NULL DEFAULT 0,
		outcome TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		client_oid TEXT NOT NULL DEFAULT ''
	)`); err != nil {
		return err
	}
	if err := w.exec(ctx, `CREATE TABLE IF NOT EXISTS vault_valuations (
		ts TIMESTAMPTZ NOT NULL,
		total_assets NUMERIC NOT NULL,
		share_supply NUMERIC NOT NULL,
		PRIMARY KEY (ts)
	)`); err != nil {
		return err
	}
	if err := w.exec(ctx, `CREATE INDEX IF NOT EXISTS vault_events_ts_idx ON vault_events (ts)`); err != nil {
		return err
	}
	return nil
}

func (w *Writer) writeEvent(ctx context.Context, event Event) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if _, err := w.db.ExecContext(ctx, `INSERT INTO vault_events (
		ts, kind, holder, asset, amount, shares, outcome, detail, client_oid
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		event.Time,
		event.Kind,
		event.Holder,
		event.Asset,
		numeric(event.Amount),
		numeric(event.Shares),
		event.Outcome,
		event.Detail,
		event.ClientOID,
	); err != nil && w.log != nil {
		w.log.Warn("history event insert failed", zap.Error(err))
	}
}

func (w *Writer) writeValuation(ctx context.Context, valuation Valuation) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if _, err := w.db.ExecContext(ctx, `INSERT INTO vault_valuations (ts, total_assets, share_supply)
		VALUES ($1,$2,$3)
		ON CONFLICT (ts) DO UPDATE SET
			total_assets = EXCLUDED.total_assets,
			share_supply = EXCLUDED.share_supply`,
		valuation.Time,
		numeric(valuation.TotalAssets),
		numeric(valuation.ShareSupply),
	); err != nil && w.log != nil {
		w.log.Warn("history valuation upsert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func numeric(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "0"
	}
	return raw
}
