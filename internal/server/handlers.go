package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"resume-insights/constants"
	"resume-insights/internal/aggregate"
	"resume-insights/internal/common"
	"resume-insights/internal/entity"
	"resume-insights/internal/ws"
)

type uploadResponse struct {
	ID       uuid.UUID           `json:"id"`
	Status   constants.JobStatus `json:"status"`
	FileName string              `json:"file_name"`
}

type stageView struct {
	State    constants.StageState `json:"state"`
	Attempts int                  `json:"attempts"`
	Error    *string              `json:"error,omitempty"`
}

type statusResponse struct {
	ID     uuid.UUID                      `json:"id"`
	Status constants.JobStatus            `json:"status"`
	Error  *string                        `json:"error,omitempty"`
	Stages map[constants.Stage]*stageView `json:"stages"`
}

// handleUpload accepts a multipart resume upload and starts the pipeline.
// POST /api/v1/resumes/upload
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploads.MaxBytes)
	if err := r.ParseMultipartForm(s.uploads.MaxBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
			return
		}
		s.writeError(w, r, http.StatusBadRequest, "malformed multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "multipart field 'file' required")
		return
	}
	defer file.Close()

	ext := constants.NormalizeExt(filepath.Ext(header.Filename))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		s.writeError(w, r, http.StatusUnsupportedMediaType, "unsupported file extension: "+ext)
		return
	}

	jobID := uuid.New()
	if err := os.MkdirAll(s.uploads.Dir, 0o755); err != nil {
		s.logger.Error("create uploads dir failed", "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "could not store upload")
		return
	}
	path := filepath.Join(s.uploads.Dir, jobID.String()+"."+ext)
	dst, err := os.Create(path)
	if err != nil {
		s.logger.Error("create upload file failed", "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "could not store upload")
		return
	}
	size, err := io.Copy(dst, file)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		s.logger.Error("write upload failed", "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "could not store upload")
		return
	}

	job := &entity.Job{
		ID:          jobID,
		FileName:    header.Filename,
		FileSize:    size,
		ContentType: header.Header.Get("Content-Type"),
		FilePath:    path,
	}
	if err := s.store.CreateJob(r.Context(), job); err != nil {
		os.Remove(path)
		s.storeError(w, r, err)
		return
	}

	task := entity.Task{JobID: jobID, Stage: constants.StageExtract, Attempt: 1, EnqueuedAt: time.Now().UTC()}
	if err := s.broker.Enqueue(r.Context(), task); err != nil {
		s.logger.Error("enqueue extract failed", "job_id", jobID, "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "could not schedule processing")
		return
	}

	s.publish(jobID, "", constants.JobStatusPending)
	s.logger.Info("resume accepted", "job_id", jobID, "file", header.Filename, "bytes", size)
	s.writeJSON(w, http.StatusAccepted, uploadResponse{ID: jobID, Status: constants.JobStatusPending, FileName: header.Filename})
}

// handleStatus reports the aggregate status plus per-stage detail.
// GET /api/v1/resumes/{id}/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}

	resp := statusResponse{
		ID:     job.ID,
		Status: job.Status,
		Error:  job.Error,
		Stages: make(map[constants.Stage]*stageView, len(constants.AllStages)),
	}
	for _, stage := range constants.AllStages {
		sr := job.Stage(stage)
		resp.Stages[stage] = &stageView{State: sr.State, Attempts: sr.Attempts, Error: sr.LastError}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleResult returns the merged result once the job is terminal.
// GET /api/v1/resumes/{id}
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}

	result, err := aggregate.BuildResult(job)
	if errors.Is(err, aggregate.ErrIncomplete) {
		s.writeJSON(w, http.StatusConflict, map[string]any{
			"id":     job.ID,
			"status": job.Status,
			"error":  "job still processing",
		})
		return
	}
	if err != nil {
		s.logger.Error("build result failed", "job_id", id, "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "could not assemble result")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleAnalytics returns only the enrichment block.
// GET /api/v1/resumes/{id}/analytics
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}

	analytics, err := aggregate.BuildAnalytics(job)
	if errors.Is(err, aggregate.ErrIncomplete) {
		s.writeJSON(w, http.StatusConflict, map[string]any{
			"id":     job.ID,
			"status": job.Status,
			"error":  "job still processing",
		})
		return
	}
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "could not assemble analytics")
		return
	}
	s.writeJSON(w, http.StatusOK, analytics)
}

// handleRetry reopens a permanently failed stage and schedules a fresh
// attempt cycle.
// POST /api/v1/resumes/{id}/retry/{stage}
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	stage := constants.Stage(chi.URLParam(r, "stage"))
	if !constants.Valid(stage) {
		s.writeError(w, r, http.StatusBadRequest, "unknown stage: "+string(stage))
		return
	}

	if err := s.store.ResetStage(r.Context(), id, stage); err != nil {
		s.storeError(w, r, err)
		return
	}
	task := entity.Task{JobID: id, Stage: stage, Attempt: 1, EnqueuedAt: time.Now().UTC()}
	if err := s.broker.Enqueue(r.Context(), task); err != nil {
		s.logger.Error("enqueue retry failed", "job_id", id, "stage", stage, "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "could not schedule retry")
		return
	}

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	s.publish(id, stage, job.Status)
	s.writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "status": job.Status, "stage": stage})
}

// handleDelete cancels in-flight work and removes the job and its upload.
// DELETE /api/v1/resumes/{id}
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}

	// Terminal jobs cannot be cancelled but can still be deleted.
	if err := s.store.Cancel(r.Context(), id); err != nil && !errors.Is(err, common.ErrJobTerminal) {
		s.storeError(w, r, err)
		return
	}
	if err := s.store.DeleteJob(r.Context(), id); err != nil {
		s.storeError(w, r, err)
		return
	}
	if job.FilePath != "" {
		if err := os.Remove(job.FilePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("remove upload failed", "job_id", id, "error", err)
		}
	}

	s.publish(id, "", constants.JobStatusCancelled)
	w.WriteHeader(http.StatusNoContent)
}

// handleExport streams an XLSX of the completed jobs.
// GET /api/v1/resumes/export
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	out, err := s.exporter.ExportCompletedXLSX(r.Context())
	if err != nil {
		s.logger.Error("export failed", "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="resumes-`+time.Now().UTC().Format("2006-01-02")+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// handleEvents upgrades to a websocket and subscribes to job transitions.
// GET /api/v1/events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.hub.AddClient(conn)
}

// handleHealth reports API and store health.
// GET /api/v1/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "down"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "up"})
}

func (s *Server) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) publish(jobID uuid.UUID, stage constants.Stage, status constants.JobStatus) {
	if s.hub != nil {
		s.hub.Publish(ws.Event{JobID: jobID, Stage: stage, Status: status, At: time.Now().UTC()})
	}
}

// storeError maps job store errors onto HTTP statuses.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, "job not found")
	case errors.Is(err, common.ErrStageConflict):
		s.writeError(w, r, http.StatusConflict, "stage is not in a retryable state")
	case errors.Is(err, common.ErrJobCancelled), errors.Is(err, common.ErrJobTerminal):
		s.writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrValidation):
		s.writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("store error", "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, _ *http.Request, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
