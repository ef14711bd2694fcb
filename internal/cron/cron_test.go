package cron

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestService() *Service {
	return NewService(zap.NewNop(), time.Second)
}

func TestService_AddAndListJobs(t *testing.T) {
	s := newTestService()

	if err := s.AddJob("checkpoint", "@every 5m", func(context.Context) (string, error) { return "", nil }); err != nil {
		t.Fatalf("AddJob error: %v", err)
	}
	if err := s.AddJob("prune", "@daily", func(context.Context) (string, error) { return "", nil }); err != nil {
		t.Fatalf("AddJob error: %v", err)
	}

	jobs := s.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("len(jobs) = %d, want 2", len(jobs))
	}
	if jobs[0].Name != "checkpoint" || jobs[1].Name != "prune" {
		t.Errorf("jobs not sorted by name: %v, %v", jobs[0].Name, jobs[1].Name)
	}
	if jobs[0].Schedule != "@every 5m" {
		t.Errorf("schedule = %q", jobs[0].Schedule)
	}
}

func TestService_AddJob_InvalidSchedule(t *testing.T) {
	s := newTestService()
	err := s.AddJob("bad", "every five minutes", func(context.Context) (string, error) { return "", nil })
	if err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if len(s.Jobs()) != 0 {
		t.Error("invalid job should not be registered")
	}
}

func TestService_AddJob_Duplicate(t *testing.T) {
	s := newTestService()
	fn := func(context.Context) (string, error) { return "", nil }
	if err := s.AddJob("a", "@hourly", fn); err != nil {
		t.Fatal(err)
	}
	if err := s.AddJob("a", "@hourly", fn); err == nil {
		t.Error("expected duplicate name error")
	}
}

func TestService_RunNow(t *testing.T) {
	s := newTestService()

	var calls atomic.Int32
	_ = s.AddJob("ok", "@hourly", func(ctx context.Context) (string, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("job context has no deadline")
		}
		calls.Add(1)
		return "flushed 3 sessions", nil
	})

	if err := s.RunNow("ok"); err != nil {
		t.Fatalf("RunNow error: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}

	st := s.Jobs()[0]
	if st.LastStatus != StatusOK || st.Runs != 1 || st.LastRunAt.IsZero() {
		t.Errorf("state = %+v", st)
	}

	if err := s.RunNow("missing"); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestService_ExecuteJob_HandlerError(t *testing.T) {
	s := newTestService()
	_ = s.AddJob("fails", "@hourly", func(context.Context) (string, error) {
		return "", errors.New("database is locked")
	})

	if err := s.RunNow("fails"); err == nil {
		t.Fatal("expected error")
	}
	st := s.Jobs()[0]
	if st.LastStatus != StatusError {
		t.Errorf("lastStatus = %q, want error", st.LastStatus)
	}
	if st.LastError != "database is locked" {
		t.Errorf("lastError = %q", st.LastError)
	}
}

func TestService_ExecuteJob_Panic(t *testing.T) {
	s := newTestService()
	_ = s.AddJob("panics", "@hourly", func(context.Context) (string, error) {
		panic("boom")
	})

	err := s.RunNow("panics")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v, want panic error", err)
	}
}

func TestService_StartStop(t *testing.T) {
	s := newTestService()

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	// Second Start is a no-op.
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	cancel()
	s.Stop()
	s.Stop()
}

func TestService_Start_ParentCancelInvokesStop(t *testing.T) {
	s := newTestService()

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		stopped := !s.running && s.cancel == nil && s.stopCh == nil
		s.mu.Unlock()
		if stopped {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}

	s.Stop()
	t.Fatal("expected parent context cancellation to trigger Stop")
}

func TestService_ScheduledRunAndStop(t *testing.T) {
	s := newTestService()

	var executeCount atomic.Int32
	_ = s.AddJob("tick", "@every 1s", func(context.Context) (string, error) {
		executeCount.Add(1)
		return "ok", nil
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if next := s.Jobs()[0].NextRunAt; next.IsZero() {
		t.Error("NextRunAt should be set once running")
	}

	deadline := time.Now().Add(3 * time.Second)
	for executeCount.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if executeCount.Load() == 0 {
		t.Fatal("expected at least one scheduled execution before Stop")
	}

	s.Stop()
	countAfterStop := executeCount.Load()
	time.Sleep(1300 * time.Millisecond)

	if executeCount.Load() != countAfterStop {
		t.Fatalf("jobs should not run after Stop; count changed from %d to %d", countAfterStop, executeCount.Load())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("0123456789abc", 10); got != "0123456789..." {
		t.Errorf("truncate = %q", got)
	}
}
