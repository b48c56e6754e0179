// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/shihon/custody"
	"github.com/blinklabs-io/shihon/database"
	"github.com/blinklabs-io/shihon/database/types"
	"github.com/blinklabs-io/shihon/event"
	"github.com/blinklabs-io/shihon/ledger/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	clockStateKey = "clock"
	tracerName    = "github.com/blinklabs-io/shihon/ledger"
)

type LedgerStateConfig struct {
	Logger       *slog.Logger
	EventBus     *event.EventBus
	PromRegistry prometheus.Registerer
	// Database is opened from the storage settings below when unset
	Database       *database.Database
	DataDir        string
	BlobPlugin     string
	MetadataPlugin string
	// Params defaults to DefaultParams()
	Params      *Params
	Custody     custody.Custody
	Pairer      Pairer
	TallyPolicy TallyPolicy
}

// LedgerState applies requests to the ledger. Requests are serialized: each
// one runs in its own database transaction that commits or rolls back as a
// whole
type LedgerState struct {
	sync.RWMutex
	config  LedgerStateConfig
	db      *database.Database
	ownsDb  bool
	custody custody.Custody
	pairer  Pairer
	tally   TallyPolicy
	params  Params
	metrics stateMetrics
}

func NewLedgerState(cfg LedgerStateConfig) (*LedgerState, error) {
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	params := DefaultParams()
	if cfg.Params != nil {
		params = *cfg.Params
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid protocol parameters: %w", err)
	}
	ls := &LedgerState{
		config: cfg,
		params: params,
		pairer: cfg.Pairer,
		tally:  cfg.TallyPolicy,
		db:     cfg.Database,
	}
	if ls.pairer == nil {
		ls.pairer = ShufflePairer{}
	}
	if ls.tally == nil {
		ls.tally = WeightedPlurality{}
	}
	// Init metrics
	ls.metrics.init(cfg.PromRegistry)
	// Load database
	needsRecovery := false
	if ls.db == nil {
		db, err := database.New(&database.Config{
			Logger:         cfg.Logger,
			PromRegistry:   cfg.PromRegistry,
			BlobPlugin:     cfg.BlobPlugin,
			MetadataPlugin: cfg.MetadataPlugin,
			DataDir:        cfg.DataDir,
		})
		if db == nil {
			if err == nil {
				err = errors.New("empty database returned")
			}
			return nil, err
		}
		ls.db = db
		ls.ownsDb = true
		if err != nil {
			var dbErr database.CommitTimestampError
			if !errors.As(err, &dbErr) {
				_ = db.Close()
				return nil, err
			}
			cfg.Logger.Warn(
				"database initialization error, needs recovery",
				"error", err,
				"component", "ledger",
			)
			needsRecovery = true
		}
	}
	ls.custody = cfg.Custody
	if ls.custody == nil {
		ls.custody = custody.New(ls.db, cfg.Logger, cfg.PromRegistry)
	}
	// The blob store holds the canonical records, so a partial commit is
	// repaired by rebuilding the indexes from it
	if needsRecovery {
		if err := ls.Reindex(context.Background()); err != nil {
			_ = ls.Close()
			return nil, fmt.Errorf("failed to recover database: %w", err)
		}
	}
	clock, err := ls.Clock()
	if err != nil {
		_ = ls.Close()
		return nil, err
	}
	if ls.metrics.enabled() {
		ls.metrics.clock.Set(float64(clock))
	}
	cfg.Logger.Info(
		"ledger state loaded",
		"component", "ledger",
		"clock", clock,
		"data_dir", ls.db.DataDir(),
	)
	return ls, nil
}

func (ls *LedgerState) Close() error {
	if !ls.ownsDb {
		return nil
	}
	return ls.db.Close()
}

func (ls *LedgerState) Database() *database.Database {
	return ls.db
}

func (ls *LedgerState) Params() Params {
	return ls.params
}

// Clock returns the timestamp of the latest applied request
func (ls *LedgerState) Clock() (int64, error) {
	val, err := ls.db.GetState(clockStateKey, nil)
	if err != nil {
		return 0, err
	}
	return int64(types.BytesToUint64(val)), nil // #nosec G115
}

// advanceClock enforces that request timestamps never move backward
func (ls *LedgerState) advanceClock(timestamp int64, txn *database.Txn) error {
	val, err := ls.db.GetState(clockStateKey, txn)
	if err != nil {
		return err
	}
	clock := int64(types.BytesToUint64(val)) // #nosec G115
	if timestamp < clock {
		return fmt.Errorf(
			"%w: %w: %d < %d",
			ErrMalformedRequest,
			ErrClockRegression,
			timestamp,
			clock,
		)
	}
	if timestamp == clock {
		return nil
	}
	return ls.db.SetState(
		clockStateKey,
		types.Uint64ToBytes(uint64(timestamp)), // #nosec G115
		txn,
	)
}

// run executes a request in a new transaction. In simulation mode the
// transaction is always rolled back and the accounts the instruction
// touched are returned in declaration order
func (ls *LedgerState) run(
	req *Request,
	simulate bool,
) ([]common.Address, []event.Event, error) {
	if req.Timestamp <= 0 {
		return nil, nil, malformed("request timestamp must be positive")
	}
	instr, err := req.Instruction()
	if err != nil {
		return nil, nil, err
	}
	c := &instructionContext{
		ls:       ls,
		req:      req,
		params:   ls.params,
		now:      req.Timestamp,
		simulate: simulate,
	}
	txn := ls.db.Transaction(true)
	if simulate {
		defer txn.Release()
		c.txn = txn
		if err := ls.advanceClock(req.Timestamp, txn); err != nil {
			return nil, nil, err
		}
		err := instr.execute(c)
		return c.accounts, nil, err
	}
	err = txn.Do(func(txn *database.Txn) error {
		c.txn = txn
		if err := ls.advanceClock(req.Timestamp, txn); err != nil {
			return err
		}
		if err := instr.execute(c); err != nil {
			return err
		}
		return c.finish()
	})
	var partial *database.PartialCommitError
	if errors.As(err, &partial) {
		// The records are committed, only the indexes need catching up
		ls.config.Logger.Warn(
			"rebuilding indexes after partial commit",
			"component", "ledger",
			"opcode", req.Opcode.String(),
			"error", err,
		)
		if err := ls.reindex(context.Background()); err != nil {
			return nil, nil, fmt.Errorf("failed to recover from partial commit: %w", err)
		}
		err = nil
	}
	if err != nil {
		return nil, nil, err
	}
	return c.accounts, c.events, nil
}

// Apply executes a request. A rejected request leaves no trace in the ledger
// and its error wraps one of the error kinds
func (ls *LedgerState) Apply(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, span := otel.Tracer(tracerName).Start(
		ctx,
		"ledger.apply",
		trace.WithAttributes(
			attribute.String("opcode", req.Opcode.String()),
			attribute.Int64("timestamp", req.Timestamp),
			attribute.Int("accounts", len(req.Accounts)),
		),
	)
	defer span.End()
	start := time.Now()
	ls.Lock()
	_, events, err := ls.run(&req, false)
	ls.Unlock()
	ls.observe(&req, start, events, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorKind(err))
		ls.config.Logger.Debug(
			"instruction rejected",
			"component", "ledger",
			"opcode", req.Opcode.String(),
			"kind", ErrorKind(err),
			"error", err,
		)
		ls.publish(event.NewEvent(
			LedgerErrorEventType,
			LedgerErrorEvent{Error: err, Opcode: req.Opcode},
		))
		return err
	}
	ls.config.Logger.Debug(
		"instruction applied",
		"component", "ledger",
		"opcode", req.Opcode.String(),
		"accounts", len(req.Accounts),
		"timestamp", req.Timestamp,
	)
	for _, evt := range events {
		ls.publish(evt)
	}
	return nil
}

// Simulate runs a request against the current state without committing it
// and returns the accounts it declares. When the instruction fails, the
// accounts declared up to the failure are returned with the error
func (ls *LedgerState) Simulate(ctx context.Context, req Request) ([]common.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ls.Lock()
	defer ls.Unlock()
	accounts, _, err := ls.run(&req, true)
	return accounts, err
}

// Prepare builds a request for an instruction with its accounts filled in
func (ls *LedgerState) Prepare(
	ctx context.Context,
	signers []common.Identity,
	timestamp int64,
	instr Instruction,
) (Request, error) {
	req, err := NewRequest(signers, timestamp, instr)
	if err != nil {
		return req, err
	}
	req.Accounts, err = ls.Simulate(ctx, req)
	return req, err
}

// Submit prepares and applies an instruction. An instruction that fails
// while preparing is still applied with the accounts derived so far, so
// the caller sees the same rejection as any other submitter
func (ls *LedgerState) Submit(
	ctx context.Context,
	signers []common.Identity,
	timestamp int64,
	instr Instruction,
) error {
	req, err := ls.Prepare(ctx, signers, timestamp, instr)
	if err != nil && req.Opcode == 0 {
		return err
	}
	return ls.Apply(ctx, req)
}

// Fund credits a participant wallet with tokens entering custody from
// outside the ledger. A zero mint selects the stake mint
func (ls *LedgerState) Fund(
	ctx context.Context,
	id common.Identity,
	mint common.Address,
	amount uint64,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if mint.IsZero() {
		mint = ls.params.StakeMint
	}
	wallet := ls.custody.Hold(common.IdentityAddress(id), mint)
	ls.Lock()
	defer ls.Unlock()
	return ls.db.Transaction(true).Do(func(txn *database.Txn) error {
		if err := ls.custody.Deposit(wallet, amount, txn); err != nil {
			return custodyError(err)
		}
		return nil
	})
}

func (ls *LedgerState) publish(evt event.Event) {
	if ls.config.EventBus == nil {
		return
	}
	ls.config.EventBus.Publish(evt.Type, evt)
}

func (ls *LedgerState) observe(
	req *Request,
	start time.Time,
	events []event.Event,
	err error,
) {
	if !ls.metrics.enabled() {
		return
	}
	ls.metrics.instructionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		ls.metrics.instructionsTotal.WithLabelValues(req.Opcode.String(), "rejected").Inc()
		ls.metrics.errorsTotal.WithLabelValues(ErrorKind(err)).Inc()
		return
	}
	ls.metrics.instructionsTotal.WithLabelValues(req.Opcode.String(), "applied").Inc()
	ls.metrics.clock.Set(float64(req.Timestamp))
	for _, evt := range events {
		switch data := evt.Data.(type) {
		case RoundEvent:
			ls.metrics.roundsTotal.Inc()
		case CrowningEvent:
			ls.metrics.crowningsTotal.Inc()
		case SaleEvent:
			if data.Status == ListingStatusFilled {
				ls.metrics.listingsFilled.Inc()
			}
		case EscrowEvent:
			if data.Status == EscrowStatusAccepted {
				ls.metrics.ringsOpenedTotal.Inc()
			}
		}
	}
}
