package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/config"
)

type fakeNotifier struct {
	n     int
	err   error
	calls int
}

func (f *fakeNotifier) NotifyOverdue(context.Context) (int, error) {
	f.calls++
	return f.n, f.err
}

type fakeReporter struct {
	total int
}

func (f *fakeReporter) OverdueReported(n int) {
	f.total += n
}

func TestRunOverdueReports(t *testing.T) {
	notifier := &fakeNotifier{n: 2}
	reporter := &fakeReporter{}
	if got := runOverdue(context.Background(), notifier, reporter); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if reporter.total != 2 {
		t.Fatalf("expected reporter total 2, got %d", reporter.total)
	}
}

func TestRunOverdueError(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("db down")}
	reporter := &fakeReporter{}
	if got := runOverdue(context.Background(), notifier, reporter); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if reporter.total != 0 {
		t.Fatalf("expected nothing reported")
	}
}

func TestRunOverdueCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	notifier := &fakeNotifier{n: 1}
	runOverdue(ctx, notifier, nil)
	if notifier.calls != 0 {
		t.Fatalf("expected no call after cancel, got %d", notifier.calls)
	}
}

func TestStartOverdueJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := StartOverdueJob(ctx, config.Config{OverdueJobEnabled: false}, &fakeNotifier{}, nil)
	if err != nil || c != nil {
		t.Fatalf("expected disabled job, got %v %v", c, err)
	}
	if _, err := StartOverdueJob(ctx, config.Config{OverdueJobEnabled: true, OverdueJobSchedule: "not a schedule"}, &fakeNotifier{}, nil); err == nil {
		t.Fatalf("expected schedule error")
	}
	c, err = StartOverdueJob(ctx, config.Config{OverdueJobEnabled: true, OverdueJobSchedule: "@every 1h"}, &fakeNotifier{}, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(c.Entries()) != 1 {
		t.Fatalf("expected one entry, got %d", len(c.Entries()))
	}
}
