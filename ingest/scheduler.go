package ingest

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"loopfan-backend/metrics"
)

type MembershipExpirer interface {
	ExpireMemberships(ctx context.Context, now time.Time) (int64, error)
}

type Replayer interface {
	Replay(ctx context.Context) (int, error)
}

// Scheduler runs the periodic reconciliation jobs.
type Scheduler struct {
	cron     *cron.Cron
	replayer Replayer
	expirer  MembershipExpirer
	timeout  time.Duration
	logger   *zap.Logger
}

type ScheduleOptions struct {
	OutboxReplay     string
	MembershipExpiry string
	// JobTimeout bounds a single run of either job.
	JobTimeout time.Duration
}

func NewScheduler(replayer Replayer, expirer MembershipExpirer, opts ScheduleOptions, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		replayer: replayer,
		expirer:  expirer,
		timeout:  opts.JobTimeout,
		logger:   logger.Named("scheduler"),
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Minute
	}

	if _, err := s.cron.AddFunc(opts.OutboxReplay, s.ReplayOutbox); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(opts.MembershipExpiry, s.ExpireMemberships); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) ReplayOutbox() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.replayer.Replay(ctx)
	if err != nil {
		s.logger.Error("Outbox replay failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("Outbox replayed", zap.Int("entries", n))
	}
}

func (s *Scheduler) ExpireMemberships() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.expirer.ExpireMemberships(ctx, time.Now())
	if err != nil {
		s.logger.Error("Membership expiry failed", zap.Error(err))
		return
	}
	metrics.RecordMembershipsExpired(n)
	if n > 0 {
		s.logger.Info("Memberships expired", zap.Int64("count", n))
	}
}
