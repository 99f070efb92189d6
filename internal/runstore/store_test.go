package runstore

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/schuanhe/crawl-orch/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_CreateAndGetRun(t *testing.T) {
	store := newTestStore(t)

	run := &domain.CrawlerRun{
		ID:          "run-1",
		CrawlerID:   "news",
		CrawlerName: "News Crawler",
		Status:      domain.StatusRunning,
		LogPath:     "/logs/2026/9/run.log",
		RunType:     domain.RunManual,
	}
	if err := store.CreateRun(run); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRun("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.CrawlerName != "News Crawler" {
		t.Errorf("CrawlerName = %q", got.CrawlerName)
	}
	if got.Status != domain.StatusRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}
	if got.EndTime != nil {
		t.Errorf("EndTime = %v, want nil before terminal", got.EndTime)
	}
	if got.StartTime.IsZero() {
		t.Error("StartTime should have been captured on create")
	}
	if got.ScheduleID != "" {
		t.Errorf("ScheduleID = %q, want empty for manual run", got.ScheduleID)
	}
}

func TestStore_GetRunUnknown(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetRun("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(missing) = %v, want ErrRunNotFound", err)
	}
}

func TestStore_FinishRun(t *testing.T) {
	store := newTestStore(t)

	run := &domain.CrawlerRun{
		ID: "run-1", CrawlerID: "c", CrawlerName: "C",
		Status: domain.StatusRunning, LogPath: "/l", RunType: domain.RunManual,
	}
	if err := store.CreateRun(run); err != nil {
		t.Fatal(err)
	}

	if err := store.FinishRun("run-1", domain.StatusCompleted); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRun("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.EndTime == nil {
		t.Fatal("EndTime not set on terminal status")
	}
	if got.EndTime.Before(got.StartTime) {
		t.Errorf("EndTime %v before StartTime %v", got.EndTime, got.StartTime)
	}
}

func TestStore_FinishRunUnknownIsError(t *testing.T) {
	store := newTestStore(t)
	err := store.FinishRun("ghost", domain.StatusError)
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("FinishRun(ghost) = %v, want ErrRunNotFound", err)
	}
}

func TestStore_ListRunsOrderAndLimit(t *testing.T) {
	store := newTestStore(t)

	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		run := &domain.CrawlerRun{
			ID: fmt.Sprintf("run-%d", i), CrawlerID: "c", CrawlerName: "C",
			StartTime: base.Add(time.Duration(i) * time.Minute),
			Status:    domain.StatusCompleted, LogPath: "/l", RunType: domain.RunManual,
		}
		if err := store.CreateRun(run); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := store.ListRuns(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 {
		t.Fatalf("ListRuns(3) returned %d runs", len(runs))
	}
	if runs[0].ID != "run-4" || runs[2].ID != "run-2" {
		t.Errorf("order = %s, %s, %s, want newest first", runs[0].ID, runs[1].ID, runs[2].ID)
	}
}

func TestStore_ListActiveRuns(t *testing.T) {
	store := newTestStore(t)

	for i, status := range []domain.RunStatus{domain.StatusRunning, domain.StatusCompleted, domain.StatusRunning, domain.StatusTimeout} {
		run := &domain.CrawlerRun{
			ID: fmt.Sprintf("run-%d", i), CrawlerID: "c", CrawlerName: "C",
			Status: status, LogPath: "/l", RunType: domain.RunManual,
		}
		if err := store.CreateRun(run); err != nil {
			t.Fatal(err)
		}
	}

	active, err := store.ListActiveRuns()
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 {
		t.Fatalf("ListActiveRuns() returned %d runs, want 2", len(active))
	}
	for _, run := range active {
		if run.Status != domain.StatusRunning {
			t.Errorf("run %s status = %q", run.ID, run.Status)
		}
	}
}

func TestStore_ScheduledTaskRoundTrip(t *testing.T) {
	store := newTestStore(t)

	task := &domain.ScheduledTask{
		ID: "task-1", CrawlerID: "c1", CrawlerName: "C1",
		ScheduleType: domain.ScheduleInterval, TimeValue: "1.5",
	}
	if err := store.CreateScheduledTask(task); err != nil {
		t.Fatal(err)
	}

	tasks, err := store.ListScheduledTasks()
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 {
		t.Fatalf("ListScheduledTasks() returned %d tasks", len(tasks))
	}
	if tasks[0].ScheduleType != domain.ScheduleInterval || tasks[0].TimeValue != "1.5" {
		t.Errorf("task = %+v", tasks[0])
	}
	if tasks[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should have been captured on create")
	}

	if err := store.DeleteScheduledTask("task-1"); err != nil {
		t.Fatal(err)
	}
	tasks, err = store.ListScheduledTasks()
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Errorf("tasks remain after delete: %v", tasks)
	}
}

func TestStore_DeleteScheduledTaskUnknown(t *testing.T) {
	store := newTestStore(t)

	keep := &domain.ScheduledTask{
		ID: "keep", CrawlerID: "c", CrawlerName: "C",
		ScheduleType: domain.ScheduleDaily, TimeValue: "09:30",
	}
	if err := store.CreateScheduledTask(keep); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteScheduledTask("ghost"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("DeleteScheduledTask(ghost) = %v, want ErrTaskNotFound", err)
	}

	// Other tasks are unaffected
	if _, err := store.GetScheduledTask("keep"); err != nil {
		t.Errorf("GetScheduledTask(keep) = %v", err)
	}
}
