package domain

import "time"

// RunStatus is the lifecycle state of a crawler run
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusError     RunStatus = "error"
	StatusTimeout   RunStatus = "timeout"
)

// Terminal returns true if the status is a final state
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusTimeout:
		return true
	}
	return false
}

// RunType records how a run was triggered
type RunType string

const (
	RunManual    RunType = "manual"
	RunScheduled RunType = "scheduled"
)

// CrawlerRun is the durable record of one execution attempt of a crawler.
// CrawlerName is a snapshot taken at start time so later renames do not
// corrupt history. EndTime is set exactly when Status becomes terminal.
type CrawlerRun struct {
	ID          string
	CrawlerID   string
	CrawlerName string
	StartTime   time.Time
	EndTime     *time.Time
	Status      RunStatus
	LogPath     string
	RunType     RunType
	ScheduleID  string // set only when RunType == RunScheduled
}

// ScheduledTask is the persisted definition of a recurring trigger
type ScheduledTask struct {
	ID           string
	CrawlerID    string
	CrawlerName  string
	ScheduleType ScheduleType
	TimeValue    string
	CreatedAt    time.Time
}
