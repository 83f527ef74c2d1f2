package jobs

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/config"
)

const overdueRunTimeout = 30 * time.Second

type OverdueNotifier interface {
	NotifyOverdue(ctx context.Context) (int, error)
}

type OverdueReporter interface {
	OverdueReported(n int)
}

// StartOverdueJob schedules the overdue-session scan on cfg.OverdueJobSchedule.
// The scheduler stops when ctx is done. A disabled job returns a nil cron.
func StartOverdueJob(ctx context.Context, cfg config.Config, notifier OverdueNotifier, reporter OverdueReporter) (*cron.Cron, error) {
	if !cfg.OverdueJobEnabled {
		log.Printf("overdue job disabled")
		return nil, nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(cfg.OverdueJobSchedule, func() {
		runOverdue(ctx, notifier, reporter)
	}); err != nil {
		return nil, err
	}
	c.Start()
	log.Printf("overdue job started schedule=%q", cfg.OverdueJobSchedule)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}

func runOverdue(ctx context.Context, notifier OverdueNotifier, reporter OverdueReporter) int {
	if ctx.Err() != nil {
		return 0
	}
	runCtx, cancel := context.WithTimeout(ctx, overdueRunTimeout)
	defer cancel()
	n, err := notifier.NotifyOverdue(runCtx)
	if err != nil {
		log.Printf("overdue job error: %v", err)
		return 0
	}
	if reporter != nil {
		reporter.OverdueReported(n)
	}
	if n > 0 {
		log.Printf("overdue job reported %d sessions", n)
	}
	return n
}
