package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shaiso/taskflow/schedule"
)

// CreateScheduleRequest — тело запроса создания расписания.
type CreateScheduleRequest struct {
	// Name — уникальное имя расписания.
	Name string `json:"name"`

	// CronExpr — cron-выражение. Если задано, IntervalSec игнорируется.
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — интервал в секундах между запусками.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Flow — имя flow, зарегистрированного на сервере.
	Flow string `json:"flow"`

	// Input — вход каждого запуска.
	Input string `json:"input,omitempty"`
}

// attachedScheduler возвращает подключённый планировщик.
func (s *Server) attachedScheduler() *schedule.Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduler
}

// listSchedules возвращает все расписания.
// GET /api/v1/schedules
func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	traceID := TraceID(r.Context())

	sched := s.attachedScheduler()
	if sched == nil {
		writeError(w, http.StatusInternalServerError, CodeConfigError,
			"Scheduler is not attached.", "", traceID, nil)
		return
	}

	list := sched.List()
	writeData(w, http.StatusOK, traceID, list, len(list))
}

// createSchedule создаёт новое расписание.
// POST /api/v1/schedules
func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	traceID := TraceID(r.Context())

	sched := s.attachedScheduler()
	if sched == nil {
		writeError(w, http.StatusInternalServerError, CodeConfigError,
			"Scheduler is not attached.", "", traceID, nil)
		return
	}

	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidInput,
			"Invalid request body.", "", traceID, nil)
		return
	}

	entry, err := sched.Add(schedule.EntryConfig{
		Name:        req.Name,
		CronExpr:    req.CronExpr,
		IntervalSec: req.IntervalSec,
		Flow:        req.Flow,
		Input:       req.Input,
	})
	if err != nil {
		switch {
		case errors.Is(err, schedule.ErrInvalidSchedule),
			errors.Is(err, schedule.ErrInvalidCron),
			errors.Is(err, schedule.ErrUnknownFlow),
			errors.Is(err, schedule.ErrDuplicateSchedule):
			writeError(w, http.StatusBadRequest, CodeInvalidInput, err.Error(), "", traceID, nil)
		default:
			s.logger.Error("create schedule failed", "error", err, "trace_id", traceID)
			writeError(w, http.StatusInternalServerError, CodeInternal,
				"Internal server error", "", traceID, nil)
		}
		return
	}

	s.logger.Info("schedule created",
		"schedule", entry.Name,
		"schedule_id", entry.ID,
		"flow", entry.Flow,
		"trace_id", traceID,
	)
	writeData(w, http.StatusCreated, traceID, entry, 0)
}

// deleteSchedule удаляет расписание по ID.
// DELETE /api/v1/schedules/{id}
func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	traceID := TraceID(r.Context())

	sched := s.attachedScheduler()
	if sched == nil {
		writeError(w, http.StatusInternalServerError, CodeConfigError,
			"Scheduler is not attached.", "", traceID, nil)
		return
	}

	id := r.PathValue("id")
	if err := sched.Remove(id); err != nil {
		if errors.Is(err, schedule.ErrNotFound) {
			writeError(w, http.StatusNotFound, CodeNotFound,
				"Schedule not found.", "", traceID, nil)
			return
		}
		s.logger.Error("delete schedule failed", "error", err, "trace_id", traceID)
		writeError(w, http.StatusInternalServerError, CodeInternal,
			"Internal server error", "", traceID, nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
