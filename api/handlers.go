package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/xraph/warrant/id"
	"github.com/xraph/warrant/lease"
	"github.com/xraph/warrant/queue"
	"github.com/xraph/warrant/task"
)

type submitRequest struct {
	ID       string          `json:"id,omitempty"`
	Payload  json.RawMessage `json:"payload"`
	Priority string          `json:"priority,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body: "+err.Error())
		return
	}

	params := queue.SubmitParams{Payload: req.Payload, Priority: req.Priority}
	if req.ID != "" {
		taskID, err := id.ParseTaskID(req.ID)
		if err != nil {
			s.badRequest(w, "invalid task id: "+err.Error())
			return
		}
		params.ID = taskID
	}

	t, err := s.queue.Submit(r.Context(), params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.queue.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	s.writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.pathTaskID(w, r)
	if !ok {
		return
	}
	t, err := s.queue.GetTask(r.Context(), taskID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

type claimRequest struct {
	WorkerID     string `json:"worker_id"`
	LeaseSeconds *int64 `json:"lease_seconds,omitempty"`
}

type claimResponse struct {
	Task  *task.Task   `json:"task"`
	Lease *lease.Lease `json:"lease"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	if s.gate != nil {
		if err := s.gate.TryAcquire(); err != nil {
			s.writeError(w, err)
			return
		}
		defer s.gate.Release()
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body: "+err.Error())
		return
	}

	t, l, err := s.queue.Claim(r.Context(), req.WorkerID, leaseDuration(req.LeaseSeconds))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if t == nil {
		// Nothing claimable right now; not an error.
		s.writeJSON(w, http.StatusNoContent, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, claimResponse{Task: t, Lease: l})
}

func (s *Server) handleRenew(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.pathTaskID(w, r)
	if !ok {
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body: "+err.Error())
		return
	}

	l, err := s.queue.Renew(r.Context(), taskID, req.WorkerID, leaseDuration(req.LeaseSeconds))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, l)
}

type releaseRequest struct {
	// WorkerID identifies the holder. Omitting it is the administrative
	// form, which skips the holder check.
	WorkerID string `json:"worker_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.pathTaskID(w, r)
	if !ok {
		return
	}

	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body: "+err.Error())
		return
	}

	var err error
	if req.WorkerID == "" {
		s.logger.Info("administrative release",
			"task_id", taskID.String(), "reason", req.Reason)
		err = s.queue.ForceRelease(r.Context(), taskID)
	} else {
		err = s.queue.Release(r.Context(), taskID, req.WorkerID)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

type completeRequest struct {
	WorkerID string          `json:"worker_id"`
	Result   json.RawMessage `json:"result"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.pathTaskID(w, r)
	if !ok {
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body: "+err.Error())
		return
	}

	res, err := s.queue.Complete(r.Context(), taskID, req.WorkerID, req.Result)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.pathTaskID(w, r)
	if !ok {
		return
	}
	res, err := s.queue.GetResult(r.Context(), taskID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

type healthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.Ping(r.Context()); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:  "unavailable",
			Backend: s.queue.Strength().String(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Backend: s.queue.Strength().String(),
	})
}

func (s *Server) pathTaskID(w http.ResponseWriter, r *http.Request) (id.TaskID, bool) {
	taskID, err := id.ParseTaskID(r.PathValue("id"))
	if err != nil {
		s.badRequest(w, "invalid task id: "+err.Error())
		return id.Nil, false
	}
	return taskID, true
}

// leaseDuration maps the wire field to a duration: absent means "use the
// default", present values are clamped by the coordinator.
func leaseDuration(secs *int64) time.Duration {
	if secs == nil {
		return 0
	}
	return lease.ClampSeconds(*secs)
}
