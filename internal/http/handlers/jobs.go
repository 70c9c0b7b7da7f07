package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/studymill/studymill-backend/internal/domain"
	"github.com/studymill/studymill-backend/internal/http/response"
	"github.com/studymill/studymill-backend/internal/pipeline"
	"github.com/studymill/studymill-backend/internal/platform/envutil"
	"github.com/studymill/studymill-backend/internal/platform/logger"
	"github.com/studymill/studymill-backend/internal/repos"
	"github.com/studymill/studymill-backend/internal/storage"
)

// JobHandler owns the ingestion job routes: upload, status, cancel.
type JobHandler struct {
	log    *logger.Logger
	jobs   repos.JobRepo
	store  storage.ObjectStore
	runner *pipeline.Runner
	worker *pipeline.Worker

	maxMediaBytes    int64
	maxDocumentBytes int64
}

func NewJobHandler(log *logger.Logger, jobs repos.JobRepo, store storage.ObjectStore, runner *pipeline.Runner, worker *pipeline.Worker) *JobHandler {
	return &JobHandler{
		log:              log.With("handler", "JobHandler"),
		jobs:             jobs,
		store:            store,
		runner:           runner,
		worker:           worker,
		maxMediaBytes:    envutil.Int64("MEDIA_MAX_BYTES", 500*1024*1024),
		maxDocumentBytes: envutil.Int64("DOCUMENT_MAX_BYTES", 50*1024*1024),
	}
}

// ownerID reads the identity the upstream auth layer attaches to the request.
func ownerID(c *gin.Context) (uuid.UUID, bool) {
	raw := strings.TrimSpace(c.GetHeader("X-User-ID"))
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func (h *JobHandler) CreateJob(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}

	mimeType := fh.Header.Get("Content-Type")
	kind, ok := domain.KindForUpload(mimeType, fh.Filename)
	if !ok {
		response.RespondError(c, http.StatusUnsupportedMediaType, "unsupported_format",
			fmt.Errorf("unsupported file type %q (%s)", filepath.Ext(fh.Filename), mimeType))
		return
	}

	limit := h.maxDocumentBytes
	if kind.IsMedia() {
		limit = h.maxMediaBytes
	}
	if fh.Size > limit {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "payload_too_large",
			fmt.Errorf("file is %d bytes (limit %d)", fh.Size, limit))
		return
	}

	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer f.Close()

	jobID := uuid.New()
	name := filepath.Base(fh.Filename)
	storageKey := fmt.Sprintf("jobs/%s/original/%s", jobID, name)

	if err := h.store.Put(c.Request.Context(), storageKey, f, mimeType); err != nil {
		h.log.Error("store upload", "key", storageKey, "error", err)
		response.RespondError(c, http.StatusBadGateway, "storage_failed", errors.New("could not store upload"))
		return
	}

	job := &domain.Job{
		ID:           jobID,
		OwnerUserID:  owner,
		SourceKind:   kind,
		OriginalName: name,
		MimeType:     mimeType,
		SizeBytes:    fh.Size,
		LanguageHint: strings.TrimSpace(c.PostForm("language")),
		StorageKey:   storageKey,
		Status:       domain.JobPending,
		Progress:     0,
	}
	if err := h.jobs.Create(c.Request.Context(), nil, job); err != nil {
		h.log.Error("create job row", "job_id", jobID, "error", err)
		_ = h.store.Delete(c.Request.Context(), storageKey)
		response.RespondError(c, http.StatusInternalServerError, "create_failed", errors.New("could not create job"))
		return
	}

	if err := h.worker.Enqueue(jobID); err != nil {
		h.log.Error("enqueue job", "job_id", jobID, "error", err)
		msg := "system busy; try again shortly"
		_ = h.jobs.UpdateStatus(c.Request.Context(), nil, jobID, domain.JobError, 0, &msg)
		response.RespondError(c, http.StatusServiceUnavailable, "queue_full", errors.New(msg))
		return
	}

	c.JSON(http.StatusAccepted, job)
}

func (h *JobHandler) GetJob(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}

	job, err := h.jobs.GetByID(c.Request.Context(), nil, id)
	if err != nil {
		h.log.Error("load job", "job_id", id, "error", err)
		response.RespondError(c, http.StatusInternalServerError, "load_failed", nil)
		return
	}
	if job == nil || job.OwnerUserID != owner {
		response.RespondError(c, http.StatusNotFound, "job_not_found", nil)
		return
	}
	response.RespondOK(c, job)
}

func (h *JobHandler) CancelJob(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}

	job, err := h.jobs.GetByID(c.Request.Context(), nil, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "load_failed", nil)
		return
	}
	if job == nil || job.OwnerUserID != owner {
		response.RespondError(c, http.StatusNotFound, "job_not_found", nil)
		return
	}

	if err := h.runner.Cancel(c.Request.Context(), id); err != nil {
		response.RespondError(c, http.StatusConflict, "cancel_rejected", err)
		return
	}
	response.RespondOK(c, gin.H{"job_id": id, "status": "cancel_requested"})
}
