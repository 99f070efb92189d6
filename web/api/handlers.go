package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/schuanhe/crawl-orch/internal/domain"
	"github.com/schuanhe/crawl-orch/internal/registry"
	"github.com/schuanhe/crawl-orch/internal/runmgr"
	"github.com/schuanhe/crawl-orch/internal/runstore"
)

// CrawlerResponse is the API response for an installed crawler
type CrawlerResponse struct {
	ID          string                      `json:"id"`
	Name        string                      `json:"name"`
	Description string                      `json:"description,omitempty"`
	Version     string                      `json:"version"`
	Author      string                      `json:"author,omitempty"`
	Parameters  map[string]domain.ParamSpec `json:"parameters,omitempty"`
	WebSupport  bool                        `json:"web_support"`
}

// RunResponse is the API response for a run record
type RunResponse struct {
	ID          string  `json:"id"`
	CrawlerID   string  `json:"crawler_id"`
	CrawlerName string  `json:"crawler_name"`
	StartTime   string  `json:"start_time"`
	EndTime     *string `json:"end_time,omitempty"`
	Status      string  `json:"status"`
	LogPath     string  `json:"log_path"`
	RunType     string  `json:"run_type"`
	ScheduleID  string  `json:"schedule_id,omitempty"`
}

// ActiveRunResponse is the API response for a live run handle
type ActiveRunResponse struct {
	RunID       string `json:"run_id"`
	CrawlerID   string `json:"crawler_id"`
	CrawlerName string `json:"crawler_name"`
	StartTime   string `json:"start_time"`
	RunType     string `json:"run_type"`
	ScheduleID  string `json:"schedule_id,omitempty"`
}

// ScheduleResponse is the API response for a scheduled task
type ScheduleResponse struct {
	ID           string `json:"id"`
	CrawlerID    string `json:"crawler_id"`
	CrawlerName  string `json:"crawler_name"`
	ScheduleType string `json:"schedule_type"`
	TimeValue    string `json:"time_value"`
	CreatedAt    string `json:"created_at"`
}

// ScheduleRequest is the request body for adding a scheduled task
type ScheduleRequest struct {
	CrawlerID    string `json:"crawler_id"`
	ScheduleType string `json:"schedule_type"`
	TimeValue    string `json:"time_value"`
}

func crawlerToResponse(def *domain.CrawlerDefinition) CrawlerResponse {
	return CrawlerResponse{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Version:     def.Version,
		Author:      def.Author,
		Parameters:  def.Parameters,
		WebSupport:  def.WebSupport,
	}
}

func runToResponse(run *domain.CrawlerRun) RunResponse {
	resp := RunResponse{
		ID:          run.ID,
		CrawlerID:   run.CrawlerID,
		CrawlerName: run.CrawlerName,
		StartTime:   run.StartTime.Format(time.RFC3339),
		Status:      string(run.Status),
		LogPath:     run.LogPath,
		RunType:     string(run.RunType),
		ScheduleID:  run.ScheduleID,
	}
	if run.EndTime != nil {
		t := run.EndTime.Format(time.RFC3339)
		resp.EndTime = &t
	}
	return resp
}

func activeToResponse(h runmgr.ActiveRun) ActiveRunResponse {
	return ActiveRunResponse{
		RunID:       h.RunID,
		CrawlerID:   h.CrawlerID,
		CrawlerName: h.CrawlerName,
		StartTime:   h.StartTime.Format(time.RFC3339),
		RunType:     string(h.RunType),
		ScheduleID:  h.ScheduleID,
	}
}

func scheduleToResponse(task *domain.ScheduledTask) ScheduleResponse {
	return ScheduleResponse{
		ID:           task.ID,
		CrawlerID:    task.CrawlerID,
		CrawlerName:  task.CrawlerName,
		ScheduleType: string(task.ScheduleType),
		TimeValue:    task.TimeValue,
		CreatedAt:    task.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) listCrawlersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		defs, err := s.registry.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]CrawlerResponse, 0, len(defs))
		for _, def := range defs {
			responses = append(responses, crawlerToResponse(def))
		}
		writeJSON(w, responses)
	}
}

func (s *Server) runCrawlerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Path: /api/crawlers/{id}/run
		path := strings.TrimPrefix(r.URL.Path, "/api/crawlers/")
		id, action, _ := strings.Cut(path, "/")

		if action == "" && r.Method == http.MethodGet {
			def, err := s.registry.Get(id)
			if err != nil {
				writeError(w, http.StatusNotFound, "crawler not found")
				return
			}
			writeJSON(w, crawlerToResponse(def))
			return
		}

		if action != "run" || r.Method != http.MethodPost {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		runID, err := s.manager.StartRun(id, domain.RunManual, "")
		if err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				writeError(w, http.StatusNotFound, "crawler not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, map[string]string{"run_id": runID})
	}
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		active := s.manager.ListActive()
		responses := make([]ActiveRunResponse, 0, len(active))
		for _, h := range active {
			responses = append(responses, activeToResponse(h))
		}
		writeJSON(w, responses)
	}
}

func (s *Server) listRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}

		runs, err := s.manager.History(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]RunResponse, 0, len(runs))
		for _, run := range runs {
			responses = append(responses, runToResponse(run))
		}
		writeJSON(w, responses)
	}
}

func (s *Server) getRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		if runID == "" {
			writeError(w, http.StatusBadRequest, "run ID required")
			return
		}

		run, err := s.manager.GetRun(runID)
		if err != nil {
			if errors.Is(err, runstore.ErrRunNotFound) {
				writeError(w, http.StatusNotFound, "run not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, runToResponse(run))
	}
}

func (s *Server) logHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Paths: /api/logs/{run_id} and /api/logs/{run_id}/ws
		path := strings.TrimPrefix(r.URL.Path, "/api/logs/")
		runID, sub, _ := strings.Cut(path, "/")
		if runID == "" {
			writeError(w, http.StatusBadRequest, "run ID required")
			return
		}

		run, err := s.manager.GetRun(runID)
		if err != nil {
			if errors.Is(err, runstore.ErrRunNotFound) {
				writeError(w, http.StatusNotFound, "run not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if sub == "ws" {
			s.tailLog(w, r, run)
			return
		}

		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		content, err := os.ReadFile(run.LogPath)
		if err != nil {
			if os.IsNotExist(err) {
				writeError(w, http.StatusNotFound, "log file not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, map[string]string{"content": string(content)})
	}
}

func (s *Server) schedulesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			tasks, err := s.scheduler.ListTasks()
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			responses := make([]ScheduleResponse, 0, len(tasks))
			for _, task := range tasks {
				responses = append(responses, scheduleToResponse(task))
			}
			writeJSON(w, responses)

		case http.MethodPost:
			var req ScheduleRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if req.CrawlerID == "" || req.ScheduleType == "" || req.TimeValue == "" {
				writeError(w, http.StatusBadRequest, "crawler_id, schedule_type and time_value are required")
				return
			}

			task, err := s.scheduler.AddTask(req.CrawlerID, domain.ScheduleType(req.ScheduleType), req.TimeValue)
			if err != nil {
				switch {
				case errors.Is(err, domain.ErrInvalidSchedule):
					writeError(w, http.StatusBadRequest, err.Error())
				case errors.Is(err, registry.ErrNotFound):
					writeError(w, http.StatusNotFound, "crawler not found")
				default:
					writeError(w, http.StatusInternalServerError, err.Error())
				}
				return
			}
			writeJSON(w, scheduleToResponse(task))

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func (s *Server) deleteScheduleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete && r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		taskID := strings.TrimPrefix(r.URL.Path, "/api/schedules/")
		if taskID == "" {
			writeError(w, http.StatusBadRequest, "task ID required")
			return
		}

		if err := s.scheduler.RemoveTask(taskID); err != nil {
			if errors.Is(err, runstore.ErrTaskNotFound) {
				writeError(w, http.StatusNotFound, "scheduled task not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}
