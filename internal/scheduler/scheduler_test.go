package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := New(zerolog.Nop())
	s.Start(context.Background())
	t.Cleanup(s.Stop)
	return s
}

func TestAddDuplicate(t *testing.T) {
	s := newTestScheduler(t)

	if err := s.AddInterval("scan", time.Hour, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	if err := s.AddInterval("scan", time.Hour, func(context.Context) error { return nil }); err == nil {
		t.Error("duplicate AddInterval succeeded, want error")
	}
}

func TestAddBadCronSpec(t *testing.T) {
	s := newTestScheduler(t)
	if err := s.AddCron("bad", "not a cron line", func(context.Context) error { return nil }); err == nil {
		t.Error("AddCron with invalid spec succeeded, want error")
	}
}

func TestRunNow(t *testing.T) {
	s := newTestScheduler(t)

	var calls atomic.Int64
	if err := s.AddInterval("scan", time.Hour, func(context.Context) error {
		calls.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}

	if err := s.RunNow("scan"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if err := s.RunNow("ghost"); err == nil {
		t.Error("RunNow on unknown job succeeded, want error")
	}
}

func TestRunNowBypassesPause(t *testing.T) {
	s := newTestScheduler(t)

	var calls atomic.Int64
	s.AddInterval("scan", time.Hour, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	if err := s.Pause("scan"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	s.RunNow("scan")
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 despite pause", calls.Load())
	}
}

func TestSingleInstance(t *testing.T) {
	s := newTestScheduler(t)

	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int64
	s.AddInterval("slow", time.Hour, func(context.Context) error {
		calls.Add(1)
		close(started)
		<-release
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.RunNow("slow")
	}()
	<-started

	// Second trigger while the first is in flight is dropped.
	s.RunNow("slow")
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 while first run in flight", calls.Load())
	}

	close(release)
	wg.Wait()

	info := s.List()[0]
	if info.Runs != 1 || info.Skipped != 1 {
		t.Errorf("runs/skipped = %d/%d, want 1/1", info.Runs, info.Skipped)
	}
}

func TestPauseDropsScheduledTicks(t *testing.T) {
	s := newTestScheduler(t)

	var calls atomic.Int64
	s.AddInterval("fast", 20*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	s.Pause("fast")

	time.Sleep(120 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("calls = %d while paused, want 0", calls.Load())
	}

	s.Resume("fast")
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if calls.Load() == 0 {
		t.Error("no runs after resume")
	}
}

func TestListReportsErrors(t *testing.T) {
	s := newTestScheduler(t)

	s.AddInterval("b-job", time.Hour, func(context.Context) error { return errors.New("boom") })
	s.AddInterval("a-job", time.Hour, func(context.Context) error { return nil })
	s.RunNow("b-job")

	infos := s.List()
	if len(infos) != 2 {
		t.Fatalf("List = %d jobs, want 2", len(infos))
	}
	if infos[0].Name != "a-job" || infos[1].Name != "b-job" {
		t.Errorf("order = %s, %s, want sorted by name", infos[0].Name, infos[1].Name)
	}
	if infos[1].LastErr != "boom" {
		t.Errorf("LastErr = %q, want boom", infos[1].LastErr)
	}
	if infos[1].Runs != 1 {
		t.Errorf("Runs = %d, want 1", infos[1].Runs)
	}
}

func TestRemove(t *testing.T) {
	s := newTestScheduler(t)

	s.AddInterval("scan", time.Hour, func(context.Context) error { return nil })
	if err := s.Remove("scan"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove("scan"); err == nil {
		t.Error("second Remove succeeded, want error")
	}
	if len(s.List()) != 0 {
		t.Errorf("List = %d jobs after remove, want 0", len(s.List()))
	}
}
