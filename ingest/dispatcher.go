package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loopfan-backend/contracts"
	"loopfan-backend/metrics"
	"loopfan-backend/models"
	"loopfan-backend/store"
)

// Dispatch results reported to metrics.
const (
	dispatchDone   = "done"
	dispatchFailed = "failed"
	dispatchDead   = "dead"
)

type Outbox interface {
	ClaimOutbox(ctx context.Context, id uuid.UUID) (*models.OutboxEntry, error)
	ClaimDueOutbox(ctx context.Context, limit int, staleAfter time.Duration, maxAttempts int) ([]models.OutboxEntry, error)
	RecordOutboxSubmission(ctx context.Context, id uuid.UUID, txHash string) error
	CompleteOutbox(ctx context.Context, id uuid.UUID, resultTxHash string) error
	FailOutbox(ctx context.Context, id uuid.UUID, cause error, maxAttempts int) (string, error)
	ExpireDeadOutbox(ctx context.Context, maxAttempts int) (int64, error)
}

// PointsAwarder submits awardPoints transactions and reports on them by hash.
type PointsAwarder interface {
	SubmitAwardPoints(ctx context.Context, fan string, points int64, reason string, record func(txHash string) error) (string, error)
	TxStatus(ctx context.Context, txHash string) (contracts.TxState, error)
	WaitTx(ctx context.Context, txHash string) (contracts.TxState, error)
}

type DispatcherOptions struct {
	MaxAttempts int
	// StaleAfter is how long an in_flight entry may sit before replay reclaims it.
	StaleAfter time.Duration
	BatchSize  int
	// ConfirmTimeout bounds the wait for one award transaction. A transaction
	// still pending after it is checked again on the next replay.
	ConfirmTimeout time.Duration
	Workers        int
	QueueSize      int
}

// Dispatcher performs the on-chain side effects queued in the outbox. Entries
// handed to Enqueue run on a fixed set of workers; whatever they miss is picked
// up by Replay.
type Dispatcher struct {
	outbox  Outbox
	awarder PointsAwarder
	opts    DispatcherOptions
	logger  *zap.Logger
	queue   chan uuid.UUID

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(outbox Outbox, awarder PointsAwarder, opts DispatcherOptions, logger *zap.Logger) *Dispatcher {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 10 * time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 2 * time.Minute
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	return &Dispatcher{
		outbox:  outbox,
		awarder: awarder,
		opts:    opts,
		logger:  logger.Named("outbox"),
		queue:   make(chan uuid.UUID, opts.QueueSize),
	}
}

// Start launches the workers. Calling it on a running dispatcher does nothing.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.work(ctx)
	}
	d.logger.Info("Outbox workers started", zap.Int("workers", d.opts.Workers))
}

// Stop cancels in-progress work and waits for the workers to return. Queued
// ids that were not started stay pending in the outbox.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	d.wg.Wait()
	d.logger.Info("Outbox workers stopped")
}

// Enqueue hands an entry to the workers without blocking. It reports false
// when the queue is full; the entry then waits for Replay.
func (d *Dispatcher) Enqueue(id uuid.UUID) bool {
	select {
	case d.queue <- id:
		return true
	default:
		d.logger.Warn("Outbox queue full, leaving entry for replay", zap.String("id", id.String()))
		return false
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-d.queue:
			d.Dispatch(ctx, id)
		}
	}
}

// Dispatch claims one entry and runs it. Entries held by another worker or
// already settled are skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, id uuid.UUID) {
	entry, err := d.outbox.ClaimOutbox(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		d.logger.Error("Failed to claim outbox entry", zap.String("id", id.String()), zap.Error(err))
		return
	}
	d.run(ctx, entry)
}

// Replay retries due entries and marks the exhausted ones dead. It returns the
// number of entries attempted.
func (d *Dispatcher) Replay(ctx context.Context) (int, error) {
	dead, err := d.outbox.ExpireDeadOutbox(ctx, d.opts.MaxAttempts)
	if err != nil {
		return 0, err
	}
	if dead > 0 {
		d.logger.Warn("Outbox entries gave up", zap.Int64("count", dead))
	}

	entries, err := d.outbox.ClaimDueOutbox(ctx, d.opts.BatchSize, d.opts.StaleAfter, d.opts.MaxAttempts)
	if err != nil {
		return 0, err
	}
	for i := range entries {
		if ctx.Err() != nil {
			break
		}
		d.run(ctx, &entries[i])
	}
	return len(entries), nil
}

func (d *Dispatcher) run(ctx context.Context, entry *models.OutboxEntry) {
	logger := d.logger.With(
		zap.String("id", entry.ID.String()),
		zap.String("kind", entry.Kind),
		zap.String("source_tx_hash", entry.SourceTxHash),
		zap.Int("attempt", entry.Attempts),
	)

	txHash, err := d.perform(ctx, entry)
	if err == nil {
		if err := d.outbox.CompleteOutbox(ctx, entry.ID, txHash); err != nil {
			logger.Error("Side effect done but not recorded", zap.String("tx_hash", txHash), zap.Error(err))
		}
		metrics.RecordOutboxDispatch(entry.Kind, dispatchDone)
		logger.Info("Outbox entry completed", zap.String("tx_hash", txHash))
		return
	}

	logger.Error("Outbox entry failed", zap.Error(err))
	// the request context may be gone already; the failure still has to be recorded
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	status, ferr := d.outbox.FailOutbox(failCtx, entry.ID, err, d.opts.MaxAttempts)
	if ferr != nil {
		logger.Error("Failed to record outbox failure", zap.Error(ferr))
		return
	}
	if status == models.OutboxDead {
		metrics.RecordOutboxDispatch(entry.Kind, dispatchDead)
		return
	}
	metrics.RecordOutboxDispatch(entry.Kind, dispatchFailed)
}

func (d *Dispatcher) perform(ctx context.Context, entry *models.OutboxEntry) (string, error) {
	switch entry.Kind {
	case models.OutboxAwardPoints:
		var p models.AwardPointsPayload
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return "", fmt.Errorf("decode payload: %w", err)
		}
		return d.awardPoints(ctx, entry, p)
	default:
		return "", fmt.Errorf("unknown outbox kind %q", entry.Kind)
	}
}

// awardPoints sends at most one live transaction per entry. A hash left by an
// earlier attempt is settled first; a new transaction is signed only when the
// old one reverted or the node no longer knows it.
func (d *Dispatcher) awardPoints(ctx context.Context, entry *models.OutboxEntry, p models.AwardPointsPayload) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.ConfirmTimeout)
	defer cancel()

	if entry.SubmittedTxHash != nil && *entry.SubmittedTxHash != "" {
		prev := *entry.SubmittedTxHash
		state, err := d.awarder.TxStatus(ctx, prev)
		if err != nil {
			return "", fmt.Errorf("check %s: %w", prev, err)
		}
		if state == contracts.TxPending {
			if state, err = d.awarder.WaitTx(ctx, prev); err != nil {
				return "", fmt.Errorf("wait for %s: %w", prev, err)
			}
		}
		if state == contracts.TxSucceeded {
			return prev, nil
		}
		d.logger.Warn("Previous award transaction did not land, resubmitting",
			zap.String("id", entry.ID.String()),
			zap.String("tx_hash", prev),
			zap.Stringer("state", state),
		)
	}

	hash, err := d.awarder.SubmitAwardPoints(ctx, p.Fan, p.Points, p.Reason, func(txHash string) error {
		return d.outbox.RecordOutboxSubmission(ctx, entry.ID, txHash)
	})
	if err != nil {
		return "", err
	}

	state, err := d.awarder.WaitTx(ctx, hash)
	if err != nil {
		return "", fmt.Errorf("wait for %s: %w", hash, err)
	}
	switch state {
	case contracts.TxSucceeded:
		return hash, nil
	case contracts.TxReverted:
		return "", fmt.Errorf("awardPoints: %w: %s", contracts.ErrTxReverted, hash)
	default:
		return "", fmt.Errorf("awardPoints: %s dropped before mining", hash)
	}
}
