// Package maintenance runs periodic housekeeping over the credential store.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Purger clears expired reset and verification digests and stale lockouts.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Scheduler wraps a cron runner with a single purge job.
type Scheduler struct {
	cron   *cron.Cron
	purger Purger
	log    *logrus.Logger
	now    func() time.Time
}

// New registers the purge job on schedule (standard cron or @every syntax).
func New(schedule string, purger Purger, logger *logrus.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		purger: purger,
		log:    logger,
		now:    time.Now,
	}
	if _, err := s.cron.AddFunc(schedule, func() { _, _ = s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("maintenance schedule %q: %w", schedule, err)
	}
	return s, nil
}

// RunOnce performs a single purge pass.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	n, err := s.purger.PurgeExpired(ctx, s.now().UTC())
	if err != nil {
		s.log.WithError(err).Warn("maintenance purge failed")
		return 0, err
	}
	s.log.WithField("cleared", n).Info("maintenance purge complete")
	return n, nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for running jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	return nil
}
