package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/schuanhe/crawl-orch/internal/domain"
	"github.com/schuanhe/crawl-orch/internal/runstore"
)

type stubResolver struct {
	defs map[string]*domain.CrawlerDefinition
}

func (r *stubResolver) Get(id string) (*domain.CrawlerDefinition, error) {
	if def, ok := r.defs[id]; ok {
		return def, nil
	}
	return nil, errors.New("crawler not found")
}

type stubLauncher struct {
	mu     sync.Mutex
	starts []string // schedule IDs that fired
}

func (l *stubLauncher) StartRun(crawlerID string, runType domain.RunType, scheduleID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts = append(l.starts, scheduleID)
	return "run-" + scheduleID, nil
}

func (l *stubLauncher) fired() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.starts...)
}

func newTestScheduler(t *testing.T) (*Scheduler, *runstore.Store, *stubLauncher) {
	t.Helper()
	store, err := runstore.New(":memory:", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	resolver := &stubResolver{defs: map[string]*domain.CrawlerDefinition{
		"c1": {ID: "c1", Name: "Crawler One"},
	}}
	launcher := &stubLauncher{}
	sched := New(store, resolver, launcher, time.UTC)
	t.Cleanup(sched.Stop)
	return sched, store, launcher
}

func TestAddTask_PersistsAndArms(t *testing.T) {
	sched, store, _ := newTestScheduler(t)

	task, err := sched.AddTask("c1", domain.ScheduleDaily, "09:30")
	if err != nil {
		t.Fatal(err)
	}
	if task.CrawlerName != "Crawler One" {
		t.Errorf("CrawlerName = %q, want snapshot of crawler name", task.CrawlerName)
	}

	if !sched.HasLiveJob(task.ID) {
		t.Error("no live job armed after AddTask")
	}

	tasks, err := store.ListScheduledTasks()
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].ID != task.ID {
		t.Errorf("persisted tasks = %v", tasks)
	}
	if tasks[0].TimeValue != "09:30" {
		t.Errorf("TimeValue = %q", tasks[0].TimeValue)
	}
}

func TestAddTask_ValidationBeforeMutation(t *testing.T) {
	sched, store, _ := newTestScheduler(t)

	cases := []struct {
		scheduleType domain.ScheduleType
		timeValue    string
	}{
		{domain.ScheduleDaily, "25:00"},
		{domain.ScheduleDaily, "nine thirty"},
		{domain.ScheduleInterval, "-2"},
		{domain.ScheduleInterval, "soon"},
		{"hourly", "1"},
	}
	for _, tc := range cases {
		_, err := sched.AddTask("c1", tc.scheduleType, tc.timeValue)
		if !errors.Is(err, domain.ErrInvalidSchedule) {
			t.Errorf("AddTask(%s, %q) = %v, want ErrInvalidSchedule", tc.scheduleType, tc.timeValue, err)
		}
	}

	tasks, err := store.ListScheduledTasks()
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Errorf("rejected tasks were persisted: %v", tasks)
	}
	if sched.LiveJobCount() != 0 {
		t.Errorf("rejected tasks armed live jobs")
	}
}

func TestAddTask_UnknownCrawler(t *testing.T) {
	sched, store, _ := newTestScheduler(t)

	if _, err := sched.AddTask("ghost", domain.ScheduleInterval, "1.5"); err == nil {
		t.Fatal("expected error for unknown crawler")
	}
	tasks, _ := store.ListScheduledTasks()
	if len(tasks) != 0 {
		t.Errorf("task persisted for unknown crawler: %v", tasks)
	}
}

func TestRemoveTask(t *testing.T) {
	sched, _, _ := newTestScheduler(t)

	task, err := sched.AddTask("c1", domain.ScheduleInterval, "1.5")
	if err != nil {
		t.Fatal(err)
	}
	keep, err := sched.AddTask("c1", domain.ScheduleDaily, "12:00")
	if err != nil {
		t.Fatal(err)
	}

	if err := sched.RemoveTask(task.ID); err != nil {
		t.Fatal(err)
	}
	if sched.HasLiveJob(task.ID) {
		t.Error("live job survives RemoveTask")
	}

	tasks, err := sched.ListTasks()
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].ID != keep.ID {
		t.Errorf("remaining tasks = %v, want only %s", tasks, keep.ID)
	}
	if !sched.HasLiveJob(keep.ID) {
		t.Error("unrelated live job was cancelled")
	}
}

func TestRemoveTask_Unknown(t *testing.T) {
	sched, _, _ := newTestScheduler(t)

	task, err := sched.AddTask("c1", domain.ScheduleDaily, "08:00")
	if err != nil {
		t.Fatal(err)
	}

	if err := sched.RemoveTask("ghost"); !errors.Is(err, runstore.ErrTaskNotFound) {
		t.Errorf("RemoveTask(ghost) = %v, want ErrTaskNotFound", err)
	}

	// Other tasks unaffected
	if !sched.HasLiveJob(task.ID) {
		t.Error("existing live job lost")
	}
}

func TestRehydrate_IdempotentAcrossRestart(t *testing.T) {
	sched, store, _ := newTestScheduler(t)

	task, err := sched.AddTask("c1", domain.ScheduleDaily, "09:30")
	if err != nil {
		t.Fatal(err)
	}

	// Simulated restart: a fresh scheduler over the same store
	resolver := &stubResolver{defs: map[string]*domain.CrawlerDefinition{
		"c1": {ID: "c1", Name: "Crawler One"},
	}}
	restarted := New(store, resolver, &stubLauncher{}, time.UTC)
	defer restarted.Stop()

	if err := restarted.Rehydrate(); err != nil {
		t.Fatal(err)
	}
	if !restarted.HasLiveJob(task.ID) {
		t.Fatal("task not re-armed after rehydration")
	}
	if restarted.LiveJobCount() != 1 {
		t.Errorf("LiveJobCount = %d, want 1", restarted.LiveJobCount())
	}

	// Re-invoking rehydration must not double-arm
	if err := restarted.Rehydrate(); err != nil {
		t.Fatal(err)
	}
	if restarted.LiveJobCount() != 1 {
		t.Errorf("LiveJobCount after second rehydrate = %d, want exactly 1", restarted.LiveJobCount())
	}
}

func TestIntervalFires(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a real cron fire")
	}
	store, err := runstore.New(":memory:", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	resolver := &stubResolver{defs: map[string]*domain.CrawlerDefinition{
		"c1": {ID: "c1", Name: "Crawler One"},
	}}
	launcher := &stubLauncher{}
	sched := New(store, resolver, launcher, time.UTC)
	defer sched.Stop()

	// cron.Every rounds sub-second delays up to one second
	task := &domain.ScheduledTask{
		ID: "t1", CrawlerID: "c1", CrawlerName: "Crawler One",
		ScheduleType: domain.ScheduleInterval, TimeValue: "0.0003", // ~1s
	}
	if err := store.CreateScheduledTask(task); err != nil {
		t.Fatal(err)
	}
	if err := sched.Rehydrate(); err != nil {
		t.Fatal(err)
	}
	sched.Start()

	deadline := time.After(10 * time.Second)
	for {
		if fired := launcher.fired(); len(fired) > 0 {
			if fired[0] != "t1" {
				t.Errorf("fired with schedule ID %q, want t1", fired[0])
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("interval job never fired")
		case <-time.After(50 * time.Millisecond):
		}
	}
}
