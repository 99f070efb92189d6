// Package scheduler maintains the live recurring jobs for persisted
// scheduled tasks. The live job table is volatile; Rehydrate rebuilds it
// from the store so schedules survive process restarts.
package scheduler

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/schuanhe/crawl-orch/internal/domain"
)

// Launcher starts runs; scheduled fires go through the same entry point as
// manual runs.
type Launcher interface {
	StartRun(crawlerID string, runType domain.RunType, scheduleID string) (string, error)
}

// Store persists scheduled task records
type Store interface {
	CreateScheduledTask(task *domain.ScheduledTask) error
	DeleteScheduledTask(taskID string) error
	GetScheduledTask(taskID string) (*domain.ScheduledTask, error)
	ListScheduledTasks() ([]*domain.ScheduledTask, error)
}

// CrawlerResolver answers crawler identity queries for name snapshots
type CrawlerResolver interface {
	Get(id string) (*domain.CrawlerDefinition, error)
}

// Scheduler owns the live cron entries, one per scheduled task
type Scheduler struct {
	cron     *cron.Cron
	store    Store
	crawlers CrawlerResolver
	launcher Launcher

	entries map[string]cron.EntryID // task_id -> live job
	mu      sync.Mutex
}

// New creates a Scheduler firing in the given fixed location
func New(store Store, crawlers CrawlerResolver, launcher Launcher, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		store:    store,
		crawlers: crawlers,
		launcher: launcher,
		entries:  make(map[string]cron.EntryID),
	}
}

// Start begins firing live jobs
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels all live jobs and waits for in-flight fires to return
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Rehydrate registers a live job for every persisted task. Idempotent:
// already-registered tasks are left alone, so re-invoking it never
// double-arms a schedule.
func (s *Scheduler) Rehydrate() error {
	tasks, err := s.store.ListScheduledTasks()
	if err != nil {
		return fmt.Errorf("loading scheduled tasks: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range tasks {
		if _, live := s.entries[task.ID]; live {
			continue
		}
		if err := s.register(task); err != nil {
			log.Printf("scheduler: skipping task %s: %v", task.ID, err)
		}
	}
	return nil
}

// AddTask validates the schedule, persists the task and arms its live job.
// Validation failures reject the request before any state mutation; a
// registration failure rolls the persisted record back so no record exists
// without a live job.
func (s *Scheduler) AddTask(crawlerID string, scheduleType domain.ScheduleType, timeValue string) (*domain.ScheduledTask, error) {
	if _, err := domain.ParseSchedule(scheduleType, timeValue); err != nil {
		return nil, err
	}

	def, err := s.crawlers.Get(crawlerID)
	if err != nil {
		return nil, err
	}

	task := &domain.ScheduledTask{
		ID:           uuid.NewString(),
		CrawlerID:    crawlerID,
		CrawlerName:  def.Name,
		ScheduleType: scheduleType,
		TimeValue:    timeValue,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.CreateScheduledTask(task); err != nil {
		return nil, fmt.Errorf("persisting scheduled task: %w", err)
	}
	if err := s.register(task); err != nil {
		if delErr := s.store.DeleteScheduledTask(task.ID); delErr != nil {
			log.Printf("scheduler: rolling back task %s: %v", task.ID, delErr)
		}
		return nil, err
	}
	return task, nil
}

// register arms the live job for a task. Caller holds s.mu.
func (s *Scheduler) register(task *domain.ScheduledTask) error {
	spec, err := domain.ParseSchedule(task.ScheduleType, task.TimeValue)
	if err != nil {
		return err
	}

	fire := func() {
		if _, err := s.launcher.StartRun(task.CrawlerID, domain.RunScheduled, task.ID); err != nil {
			log.Printf("scheduler: firing task %s for crawler %s: %v", task.ID, task.CrawlerID, err)
		}
	}

	var entryID cron.EntryID
	switch spec.Type {
	case domain.ScheduleDaily:
		entryID, err = s.cron.AddFunc(spec.CronSpec(), fire)
		if err != nil {
			return fmt.Errorf("registering daily job: %w", err)
		}
	case domain.ScheduleInterval:
		// Fixed delay starting from registration time
		entryID = s.cron.Schedule(cron.Every(spec.Every), cron.FuncJob(fire))
	}

	s.entries[task.ID] = entryID
	return nil
}

// RemoveTask cancels the live job and deletes the persisted record.
// Returns the store's not-found error for an unknown task ID.
func (s *Scheduler) RemoveTask(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, live := s.entries[taskID]
	if live {
		s.cron.Remove(entryID)
		delete(s.entries, taskID)
	}

	if err := s.store.DeleteScheduledTask(taskID); err != nil {
		if live {
			// Live job existed but record was gone; the job is cancelled
			// either way, surface the inconsistency.
			log.Printf("scheduler: removing task %s: %v", taskID, err)
		}
		return err
	}
	return nil
}

// ListTasks returns the persisted scheduled tasks
func (s *Scheduler) ListTasks() ([]*domain.ScheduledTask, error) {
	return s.store.ListScheduledTasks()
}

// LiveJobCount returns how many live jobs are currently armed
func (s *Scheduler) LiveJobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// HasLiveJob reports whether a task currently has a live job armed
func (s *Scheduler) HasLiveJob(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[taskID]
	return ok
}
