// Package runmgr is the orchestrator tying the registry, run store and
// process supervisor together. It owns the set of active runs and is the
// only writer of run lifecycle state.
package runmgr

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/schuanhe/crawl-orch/internal/domain"
	"github.com/schuanhe/crawl-orch/internal/registry"
	"github.com/schuanhe/crawl-orch/internal/supervisor"
)

// Store is the persistence interface the manager requires
type Store interface {
	CreateRun(run *domain.CrawlerRun) error
	FinishRun(runID string, status domain.RunStatus) error
	GetRun(runID string) (*domain.CrawlerRun, error)
	ListRuns(limit int) ([]*domain.CrawlerRun, error)
	ListActiveRuns() ([]*domain.CrawlerRun, error)
}

// ActiveRun is the in-memory liveness handle for a run that has not yet
// reached a terminal state. Removal from the manager's active set is the
// authoritative signal that a run is over, independent of the durable record.
type ActiveRun struct {
	RunID       string
	CrawlerID   string
	CrawlerName string
	StartTime   time.Time
	RunType     domain.RunType
	ScheduleID  string
}

// FinishCallback is invoked after a run's terminal status has been persisted
// and its active handle removed.
type FinishCallback func(run ActiveRun, status domain.RunStatus)

// Options configures a Manager
type Options struct {
	LogsDir   string
	PythonBin string
	Timeout   time.Duration
	Location  *time.Location
}

type finishOp struct {
	runID  string
	status domain.RunStatus
}

// Manager launches runs and supervises their lifecycle
type Manager struct {
	registry *registry.Registry
	store    Store
	opts     Options

	active map[string]ActiveRun
	mu     sync.RWMutex
	wg     sync.WaitGroup

	// Terminal updates from concurrent supervisors are serialized through
	// a single writer goroutine.
	finishChan chan finishOp
	finishDone chan struct{}

	onFinish FinishCallback

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Manager and starts its store-write goroutine
func New(reg *registry.Registry, store Store, opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = supervisor.DefaultTimeout
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		registry:   reg,
		store:      store,
		opts:       opts,
		active:     make(map[string]ActiveRun),
		finishChan: make(chan finishOp, 100),
		finishDone: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	go m.finishWriter()
	return m
}

// SetFinishCallback registers a callback for terminal run transitions.
// Safe to call concurrently with running supervisors; runs that finish
// before a callback is registered are simply not reported.
func (m *Manager) SetFinishCallback(cb FinishCallback) {
	m.mu.Lock()
	m.onFinish = cb
	m.mu.Unlock()
}

// StartRun resolves a crawler, persists an initial running record, registers
// the active handle and dispatches the supervisor asynchronously. It returns
// the new run ID immediately; run faults after this point are observable
// only through the persisted status and the log.
func (m *Manager) StartRun(crawlerID string, runType domain.RunType, scheduleID string) (string, error) {
	def, err := m.registry.Get(crawlerID)
	if err != nil {
		return "", err
	}

	runID := uuid.NewString()
	now := time.Now().In(m.opts.Location)
	logPath := m.logPath(now, def.Name, runID)

	run := &domain.CrawlerRun{
		ID:          runID,
		CrawlerID:   crawlerID,
		CrawlerName: def.Name,
		StartTime:   now,
		Status:      domain.StatusRunning,
		LogPath:     logPath,
		RunType:     runType,
		ScheduleID:  scheduleID,
	}
	if err := m.store.CreateRun(run); err != nil {
		return "", fmt.Errorf("persisting run record: %w", err)
	}

	handle := ActiveRun{
		RunID:       runID,
		CrawlerID:   crawlerID,
		CrawlerName: def.Name,
		StartTime:   now,
		RunType:     runType,
		ScheduleID:  scheduleID,
	}
	m.mu.Lock()
	m.active[runID] = handle
	m.mu.Unlock()

	req := supervisor.Request{
		RunID:      runID,
		CrawlerID:  crawlerID,
		Dir:        def.Dir,
		EntryPoint: def.EntryPoint,
		PythonBin:  m.opts.PythonBin,
		LogPath:    logPath,
		Timeout:    m.opts.Timeout,
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		status := domain.StatusError
		defer func() {
			if r := recover(); r != nil {
				log.Printf("runmgr: supervisor for run %s panicked: %v", runID, r)
			}
			// Exactly one terminal report per run, on every exit path
			m.queueFinish(finishOp{runID: runID, status: status})
		}()
		status = supervisor.Run(m.ctx, req)
	}()

	return runID, nil
}

// logPath places logs under a year/month partition with a timestamp+name
// file. The timestamp only has second resolution, so a short run-ID suffix
// keeps two rapid starts of the same crawler from sharing a file.
func (m *Manager) logPath(now time.Time, crawlerName, runID string) string {
	suffix := runID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return filepath.Join(
		m.opts.LogsDir,
		strconv.Itoa(now.Year()),
		strconv.Itoa(int(now.Month())),
		now.Format("2006-01-02 15-04-05")+"_"+crawlerName+"_"+suffix+".log",
	)
}

// finishWriter serializes terminal store writes and handle removal
func (m *Manager) finishWriter() {
	for op := range m.finishChan {
		m.finish(op)
	}
	close(m.finishDone)
}

// queueFinish hands a terminal report to the writer goroutine. The send
// blocks if the queue is full so every finish goes through the single
// writer; Shutdown waits for all supervisors before closing the channel,
// so a send can never hit a closed channel.
func (m *Manager) queueFinish(op finishOp) {
	m.finishChan <- op
}

func (m *Manager) finish(op finishOp) {
	if err := m.store.FinishRun(op.runID, op.status); err != nil {
		// A lost terminal status is a logic error worth shouting about
		log.Printf("runmgr: recording terminal status %s for run %s: %v", op.status, op.runID, err)
	}

	m.mu.Lock()
	handle, ok := m.active[op.runID]
	delete(m.active, op.runID)
	cb := m.onFinish
	m.mu.Unlock()

	if ok && cb != nil {
		cb(handle, op.status)
	}
}

// ListActive returns the current active run handles, oldest first
func (m *Manager) ListActive() []ActiveRun {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]ActiveRun, 0, len(m.active))
	for _, h := range m.active {
		runs = append(runs, h)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartTime.Before(runs[j].StartTime)
	})
	return runs
}

// GetRun returns the durable record for a run
func (m *Manager) GetRun(runID string) (*domain.CrawlerRun, error) {
	return m.store.GetRun(runID)
}

// History returns up to limit run records, most recent first
func (m *Manager) History(limit int) ([]*domain.CrawlerRun, error) {
	return m.store.ListRuns(limit)
}

// Shutdown kills in-flight crawler processes, waits for their supervisors
// to report, and drains the store-write queue.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
	close(m.finishChan)
	<-m.finishDone
}
