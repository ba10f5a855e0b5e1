// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Expirer cancels pending reservations created before createdBefore,
// sparing payment intents initiated at or after initiatedBefore.
type Expirer interface {
	ExpirePending(ctx context.Context, createdBefore, initiatedBefore time.Time) (int, error)
}

// PendingSweep releases the capacity held by reservations whose payment
// was abandoned: EN_ATTENTE reservations older than ttl are cancelled
// unless they carry an intent younger than intentTTL.
type PendingSweep struct {
	expirer   Expirer
	ttl       time.Duration
	intentTTL time.Duration
	now       func() time.Time
	log       *zap.Logger
}

func NewPendingSweep(expirer Expirer, ttl, intentTTL time.Duration, log *zap.Logger) *PendingSweep {
	if log == nil {
		log = zap.NewNop()
	}
	return &PendingSweep{expirer: expirer, ttl: ttl, intentTTL: intentTTL, now: time.Now, log: log.Named("sweep")}
}

// Run performs one sweep and returns how many reservations it cancelled.
func (s *PendingSweep) Run(ctx context.Context) (int, error) {
	now := s.now()
	cutoff := now.Add(-s.ttl)
	n, err := s.expirer.ExpirePending(ctx, cutoff, now.Add(-s.intentTTL))
	if err != nil {
		s.log.Error("pending sweep failed", zap.Time("cutoff", cutoff), zap.Int("cancelled", n), zap.Error(err))
		return n, err
	}
	if n > 0 {
		s.log.Info("pending sweep done", zap.Int("cancelled", n))
	}
	return n, nil
}

// Start schedules the sweep on spec (standard five-field cron syntax or a
// descriptor such as "@every 5m") and starts the scheduler.  The caller
// stops it with the returned cron's Stop.
func (s *PendingSweep) Start(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, _ = s.Run(ctx)
	}); err != nil {
		return nil, err
	}
	c.Start()
	s.log.Info("pending sweep scheduled", zap.String("spec", spec), zap.Duration("ttl", s.ttl))
	return c, nil
}
