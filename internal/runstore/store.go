package runstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/schuanhe/crawl-orch/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned for operations on an unknown run ID.
// A terminal update against an unknown run is a logic error, not a no-op.
var ErrRunNotFound = errors.New("run not found")

// ErrTaskNotFound is returned for operations on an unknown scheduled task ID
var ErrTaskNotFound = errors.New("scheduled task not found")

// Store provides SQLite-backed persistence for run records and scheduled
// tasks. Run records are append/update-only and never deleted. Every
// timestamp the store captures uses the single configured location.
type Store struct {
	db  *sql.DB
	loc *time.Location
}

// New creates a new Store with the given database path
func New(dbPath string, loc *time.Location) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Serialize access; completion callbacks write concurrently
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if loc == nil {
		loc = time.Local
	}
	return &Store{db: db, loc: loc}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) now() time.Time {
	return time.Now().In(s.loc)
}

// CreateRun inserts the initial record for a run. StartTime is captured
// here if the caller left it zero.
func (s *Store) CreateRun(run *domain.CrawlerRun) error {
	if run.StartTime.IsZero() {
		run.StartTime = s.now()
	}
	var scheduleID sql.NullString
	if run.ScheduleID != "" {
		scheduleID = sql.NullString{String: run.ScheduleID, Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO crawler_runs (id, crawler_id, crawler_name, start_time, status, log_path, run_type, schedule_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.CrawlerID,
		run.CrawlerName,
		run.StartTime,
		string(run.Status),
		run.LogPath,
		string(run.RunType),
		scheduleID,
	)
	return err
}

// FinishRun records a run's terminal status and sets end_time to now.
// Returns ErrRunNotFound if no such run exists.
func (s *Store) FinishRun(runID string, status domain.RunStatus) error {
	res, err := s.db.Exec(`UPDATE crawler_runs SET status = ?, end_time = ? WHERE id = ?`,
		string(status), s.now(), runID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(runID string) (*domain.CrawlerRun, error) {
	row := s.db.QueryRow(`
		SELECT id, crawler_id, crawler_name, start_time, end_time, status, log_path, run_type, schedule_id
		FROM crawler_runs WHERE id = ?
	`, runID)

	run, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// ListRuns returns up to limit runs, most recently started first
func (s *Store) ListRuns(limit int) ([]*domain.CrawlerRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, crawler_id, crawler_name, start_time, end_time, status, log_path, run_type, schedule_id
		FROM crawler_runs ORDER BY start_time DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRuns(rows)
}

// ListActiveRuns returns the runs whose persisted status is still running
func (s *Store) ListActiveRuns() ([]*domain.CrawlerRun, error) {
	rows, err := s.db.Query(`
		SELECT id, crawler_id, crawler_name, start_time, end_time, status, log_path, run_type, schedule_id
		FROM crawler_runs WHERE status = ? ORDER BY start_time DESC
	`, string(domain.StatusRunning))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRuns(rows)
}

// CreateScheduledTask inserts a scheduled task record. CreatedAt is
// captured here if the caller left it zero.
func (s *Store) CreateScheduledTask(task *domain.ScheduledTask) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = s.now()
	}
	_, err := s.db.Exec(`
		INSERT INTO scheduled_tasks (id, crawler_id, crawler_name, schedule_type, time_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		task.ID,
		task.CrawlerID,
		task.CrawlerName,
		string(task.ScheduleType),
		task.TimeValue,
		task.CreatedAt,
	)
	return err
}

// DeleteScheduledTask removes a scheduled task record.
// Returns ErrTaskNotFound if no such task exists.
func (s *Store) DeleteScheduledTask(taskID string) error {
	res, err := s.db.Exec(`DELETE FROM scheduled_tasks WHERE id = ?`, taskID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return nil
}

// GetScheduledTask retrieves a scheduled task by ID
func (s *Store) GetScheduledTask(taskID string) (*domain.ScheduledTask, error) {
	row := s.db.QueryRow(`
		SELECT id, crawler_id, crawler_name, schedule_type, time_value, created_at
		FROM scheduled_tasks WHERE id = ?
	`, taskID)

	task, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return task, err
}

// ListScheduledTasks returns all persisted scheduled tasks
func (s *Store) ListScheduledTasks() ([]*domain.ScheduledTask, error) {
	rows, err := s.db.Query(`
		SELECT id, crawler_id, crawler_name, schedule_type, time_value, created_at
		FROM scheduled_tasks ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.ScheduledTask
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanRun(scan func(dest ...any) error) (*domain.CrawlerRun, error) {
	var run domain.CrawlerRun
	var status, runType string
	var endTime sql.NullTime
	var scheduleID sql.NullString

	err := scan(&run.ID, &run.CrawlerID, &run.CrawlerName, &run.StartTime, &endTime, &status, &run.LogPath, &runType, &scheduleID)
	if err != nil {
		return nil, err
	}

	run.Status = domain.RunStatus(status)
	run.RunType = domain.RunType(runType)
	if endTime.Valid {
		t := endTime.Time
		run.EndTime = &t
	}
	if scheduleID.Valid {
		run.ScheduleID = scheduleID.String
	}
	return &run, nil
}

func collectRuns(rows *sql.Rows) ([]*domain.CrawlerRun, error) {
	var runs []*domain.CrawlerRun
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanTask(scan func(dest ...any) error) (*domain.ScheduledTask, error) {
	var task domain.ScheduledTask
	var scheduleType string

	err := scan(&task.ID, &task.CrawlerID, &task.CrawlerName, &scheduleType, &task.TimeValue, &task.CreatedAt)
	if err != nil {
		return nil, err
	}

	task.ScheduleType = domain.ScheduleType(scheduleType)
	return &task, nil
}
