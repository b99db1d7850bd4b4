package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jupark12/docqueue/models"
	"github.com/jupark12/docqueue/operations"
	"github.com/jupark12/docqueue/queue"
)

// SessionHeader carries the dashboard session that owns a job.
const SessionHeader = "X-Session-ID"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func snapshots(jobs []*models.Job) []models.JobSnapshot {
	out := make([]models.JobSnapshot, len(jobs))
	for i, job := range jobs {
		out[i] = job.Snapshot()
	}
	return out
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, operations.Catalog())
}

// handleCreateJob accepts a multipart upload and enqueues one job.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	op := models.OperationKind(r.FormValue("operation"))
	if !op.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown operation %q", op))
		return
	}

	params, err := parseParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	inputs, err := readFiles(r.MultipartForm.File["files"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		sessionID = r.FormValue("session_id")
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	w.Header().Set(SessionHeader, sessionID)

	job := models.NewJob(sessionID, op, inputs, params)
	if err := s.queue.EnqueueJob(job); err != nil {
		if errors.Is(err, queue.ErrSessionBusy) {
			writeError(w, http.StatusConflict, "a job is already running for this session")
			return
		}
		s.log.Error().Err(err).Msg("Failed to enqueue job")
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	writeJSON(w, http.StatusCreated, job.Snapshot())
}

func parseParams(r *http.Request) (models.JobParams, error) {
	p := models.JobParams{
		SplitMode:     models.SplitMode(r.FormValue("split_mode")),
		Range:         r.FormValue("range"),
		WatermarkText: r.FormValue("watermark_text"),
	}
	ints := []struct {
		field string
		dst   *int
	}{
		{"pages_per_file", &p.PagesPerFile},
		{"parts", &p.Parts},
		{"angle", &p.Angle},
	}
	for _, f := range ints {
		raw := strings.TrimSpace(r.FormValue(f.field))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return p, fmt.Errorf("%s must be an integer", f.field)
		}
		*f.dst = v
	}
	return p, nil
}

func readFiles(headers []*multipart.FileHeader) ([]models.InputFile, error) {
	inputs := make([]models.InputFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("cannot open %s", fh.Filename)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("cannot read %s", fh.Filename)
		}
		inputs = append(inputs, models.InputFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return inputs, nil
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	status := models.JobStatus(r.URL.Query().Get("status"))
	if status == "" {
		writeJSON(w, http.StatusOK, snapshots(s.queue.GetAllJobs()))
		return
	}

	switch status {
	case models.StatusIdle, models.StatusRunning, models.StatusSucceeded, models.StatusFailed:
		writeJSON(w, http.StatusOK, snapshots(s.queue.GetJobsByStatus(status)))
	default:
		writeError(w, http.StatusBadRequest, "invalid status parameter")
	}
}

func (s *Server) jobFromURL(w http.ResponseWriter, r *http.Request) (*models.Job, bool) {
	job, err := s.queue.GetJob(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	return job, true
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobFromURL(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobFromURL(w, r)
	if !ok {
		return
	}
	if job.Status() != models.StatusSucceeded {
		writeError(w, http.StatusConflict, fmt.Sprintf("job is %s", job.Status()))
		return
	}
	art := job.Artifact()
	if art == nil || art.Data == nil {
		writeError(w, http.StatusGone, "artifact has been released")
		return
	}

	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(art.Data); err != nil {
		s.log.Warn().Err(err).Str("job_id", job.ID()).Msg("Artifact download interrupted")
		return
	}
	if s.cfg.ReleaseOnDownload {
		job.ReleaseArtifact()
	}
}

func (s *Server) handleDiscardJob(w http.ResponseWriter, r *http.Request) {
	err := s.queue.DiscardJob(chi.URLParam(r, "jobID"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, models.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, queue.ErrJobRunning):
		writeError(w, http.StatusConflict, "job is running")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to upgrade to WebSocket")
		return
	}

	// The initial list goes out before registration so it always precedes
	// the first broadcast this client sees.
	initialData, err := json.Marshal(map[string]interface{}{
		"type": "initial_jobs",
		"jobs": snapshots(s.queue.GetAllJobs()),
	})
	if err == nil {
		if err := conn.WriteMessage(websocket.TextMessage, initialData); err != nil {
			conn.Close()
			return
		}
	}
	s.wsManager.RegisterClient(conn)

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.wsManager.UnregisterClient(conn)
				return
			}
		}
	}()
}
