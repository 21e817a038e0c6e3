package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gdewata/wablast/internal/dispatch"
	"github.com/gdewata/wablast/internal/models"
	"github.com/gdewata/wablast/internal/webhook"
)

// SendRequest is the request body for POST /api/send
type SendRequest struct {
	Message         string `json:"message"`
	ReminderMessage string `json:"reminder_message,omitempty"`
}

// ReminderStatusResponse is the response for GET /api/reminder
type ReminderStatusResponse struct {
	Paused bool `json:"paused"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	running, jobID := s.dispatcher.Running()

	resp := map[string]any{
		"status":           "ok",
		"dispatch_running": running,
		"reminder_paused":  s.scheduler.Paused(),
	}
	if running {
		resp["job_id"] = jobID
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleUpload handles POST /api/upload
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)

	if err := r.ParseMultipartForm(s.config.Server.MaxUploadBytes); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	result, err := s.importer.Import(header.Filename, file)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.sendJSON(w, http.StatusOK, result)
}

// handleSend handles POST /api/send
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Message == "" {
		s.sendError(w, http.StatusBadRequest, "message is required")
		return
	}

	receipt, err := s.dispatcher.Start(req.Message, req.ReminderMessage)
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrDispatchRunning):
			s.sendError(w, http.StatusConflict, "A dispatch job is already in progress")
		case errors.Is(err, dispatch.ErrNoEligibleContacts):
			s.sendError(w, http.StatusBadRequest, "No eligible contacts to send")
		default:
			s.logger.Error("failed to start dispatch", "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to start dispatch")
		}
		return
	}

	s.sendJSON(w, http.StatusAccepted, receipt)
}

// handleContacts handles GET /api/contacts
func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.contacts.List()
	if err != nil {
		s.logger.Error("failed to list contacts", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list contacts")
		return
	}

	for i := range contacts {
		if t := contacts[i].LastReplyTime; t != nil {
			contacts[i].LastReplyLocal = t.In(s.location).Format("02/01/2006 15:04")
		}
	}

	s.sendJSON(w, http.StatusOK, map[string]any{
		"total":    len(contacts),
		"contacts": contacts,
	})
}

// handleJobs handles GET /api/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	filter := models.JobListFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  50,
	}

	jobs, err := s.jobs.List(filter)
	if err != nil {
		s.logger.Error("failed to list jobs", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// handleJob handles GET /api/jobs/{id}
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := s.jobs.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get job", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}
	if job == nil {
		s.sendError(w, http.StatusNotFound, "Job not found")
		return
	}

	s.sendJSON(w, http.StatusOK, job)
}

// handleJobCancel handles POST /api/jobs/{id}/cancel
func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.dispatcher.Cancel(id); err != nil {
		if errors.Is(err, dispatch.ErrJobNotRunning) {
			s.sendError(w, http.StatusConflict, "Job is not running")
			return
		}
		s.logger.Error("failed to cancel job", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to cancel job")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// handleReminderStatus handles GET /api/reminder
func (s *Server) handleReminderStatus(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, ReminderStatusResponse{Paused: s.scheduler.Paused()})
}

// handleReminderPause handles POST /api/reminder/pause
func (s *Server) handleReminderPause(w http.ResponseWriter, r *http.Request) {
	s.scheduler.Pause()
	s.sendJSON(w, http.StatusOK, ReminderStatusResponse{Paused: true})
}

// handleReminderResume handles POST /api/reminder/resume
func (s *Server) handleReminderResume(w http.ResponseWriter, r *http.Request) {
	s.scheduler.Resume()
	s.sendJSON(w, http.StatusOK, ReminderStatusResponse{Paused: false})
}

// handleWebhook handles POST /webhook/fonnte. The gateway enforces a
// response timeout and is always acknowledged with 200 before any
// processing; a failure on our side must not make it retry forever.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhook.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.logger.Debug("undecodable webhook payload", "error", err)
		s.sendJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	go func() {
		if err := s.ingestor.Process(payload); err != nil {
			s.logger.Error("failed to process webhook", "error", err)
		}
	}()
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON", "error", err)
	}
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
