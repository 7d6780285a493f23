package maintenance

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type fakePurger struct {
	calls int
	at    time.Time
	err   error
}

func (f *fakePurger) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	f.calls++
	f.at = now
	return 3, f.err
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestRejectsBadSchedule(t *testing.T) {
	if _, err := New("not a schedule", &fakePurger{}, quietLogger()); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestRunOnceUsesClock(t *testing.T) {
	p := &fakePurger{}
	s, err := New("@every 15m", p, quietLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	n, err := s.RunOnce(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("run once: n=%d err=%v", n, err)
	}
	if !p.at.Equal(fixed) {
		t.Fatalf("purge called with %v", p.at)
	}
}

func TestRunOnceReportsFailure(t *testing.T) {
	p := &fakePurger{err: errors.New("db down")}
	s, err := New("@every 1h", p, quietLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	s, err := New("@every 1h", &fakePurger{}, quietLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
