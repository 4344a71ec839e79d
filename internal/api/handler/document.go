package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marcus/docmorph/internal/api/middleware"
	"github.com/marcus/docmorph/internal/domain"
	"github.com/marcus/docmorph/internal/logger"
	"github.com/marcus/docmorph/internal/queue"
	"github.com/marcus/docmorph/internal/service"
)

// maxUploadBytes caps a single uploaded file at 50 MB.
const maxUploadBytes = 50 << 20

// DocumentHandler handles document-related endpoints.
type DocumentHandler struct {
	docs *service.DocumentService
	jobs queue.Queue
}

// NewDocumentHandler creates a new document handler.
// Parameters:
//   - docs: document service instance.
//   - jobs: job queue for asynchronous transformations.
// Returns:
//   - *DocumentHandler: initialized handler.
func NewDocumentHandler(docs *service.DocumentService, jobs queue.Queue) *DocumentHandler {
	return &DocumentHandler{
		docs: docs,
		jobs: jobs,
	}
}

// Upload handles POST /api/v1/documents.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "File is required",
		})
		return
	}
	if file.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "File exceeds the maximum upload size",
		})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read uploaded file: " + err.Error(),
		})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read uploaded file: " + err.Error(),
		})
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "File exceeds the maximum upload size",
		})
		return
	}

	title := c.PostForm("title")
	if title == "" {
		title = file.Filename
	}
	docType := domain.DocumentType(c.DefaultPostForm("doc_type", string(domain.DocTypeOther)))

	in := &service.UploadInput{
		Filename:    file.Filename,
		Data:        data,
		Title:       title,
		Description: c.PostForm("description"),
		DocType:     docType,
		Tag:         c.PostForm("tag"),
	}

	doc, err := h.docs.Upload(c.Request.Context(), userID, in)
	if err != nil {
		middleware.GetLogger(c).WithError(err).WithField(logger.FieldUserID, userID).
			Error("document upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to upload document: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, doc)
}

// List handles GET /api/v1/documents.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	docs, err := h.docs.List(c.Request.Context(), userID, c.Query("tag"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list documents: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, docs)
}

// Get handles GET /api/v1/documents/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *DocumentHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := documentID(c)
	if !ok {
		return
	}

	doc, err := h.docs.Get(c.Request.Context(), id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Document not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get document: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, doc)
}

// Delete handles DELETE /api/v1/documents/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := documentID(c)
	if !ok {
		return
	}

	if err := h.docs.Delete(c.Request.Context(), id, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Document not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete document: " + err.Error(),
		})
		return
	}

	c.Status(http.StatusNoContent)
}

type transformRequest struct {
	TemplateInputID  uint `json:"template_input_id" binding:"required"`
	TemplateOutputID uint `json:"template_output_id" binding:"required"`
	Async            bool `json:"async"`
}

// Transform handles POST /api/v1/documents/:id/transform.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *DocumentHandler) Transform(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := documentID(c)
	if !ok {
		return
	}

	var req transformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "template_input_id and template_output_id are required",
		})
		return
	}

	if req.Async {
		h.enqueueTransform(c, userID, id, &req)
		return
	}

	outcome, err := h.docs.TransformWithTemplates(c.Request.Context(), userID, id, req.TemplateInputID, req.TemplateOutputID)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Document not found",
			})
		case errors.Is(err, service.ErrNotTemplate):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Error processing transformation: " + err.Error(),
			})
		}
		return
	}

	if outcome.Status == service.StatusRetryRequired {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"status":      outcome.Status,
			"message":     outcome.Message,
			"detail":      outcome.Error,
			"document_id": id,
		})
		return
	}

	if outcome.TimeoutWarning != "" {
		c.Header("X-Processing-Status", "timeout")
		c.Header("X-Processing-Warning", outcome.TimeoutWarning)
	}

	c.JSON(http.StatusOK, outcome)
}

// enqueueTransform queues the transformation for the background worker.
// A queue outage still returns the job descriptor so the client knows the
// request was not silently dropped.
func (h *DocumentHandler) enqueueTransform(c *gin.Context, userID, documentID uint, req *transformRequest) {
	now := time.Now().UTC()
	job := &queue.Job{
		ID:               uuid.New().String(),
		UserID:           userID,
		DocumentID:       documentID,
		TemplateInputID:  req.TemplateInputID,
		TemplateOutputID: req.TemplateOutputID,
		Status:           queue.JobStatusQueued,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := h.jobs.Enqueue(c.Request.Context(), job); err != nil {
		middleware.GetLogger(c).WithError(err).WithField(logger.FieldJobID, job.ID).
			Error("failed to enqueue transformation job")
		c.JSON(http.StatusAccepted, gin.H{
			"job_id":      job.ID,
			"status":      string(queue.JobStatusQueued),
			"document_id": documentID,
			"warning":     "Job accepted but could not be persisted; the queue is unavailable",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":      job.ID,
		"status":      string(job.Status),
		"document_id": documentID,
		"created_at":  job.CreatedAt,
	})
}

// Download handles GET /documents/downloads/:filename.
// Authentication uses the signed token from the transformation response
// rather than the user header.
// Parameters:
//   - c: Gin request context.
// Returns: none (streams the file or writes a JSON error).
func (h *DocumentHandler) Download(c *gin.Context) {
	filename := c.Param("filename")

	token := c.Query("token")
	expires, err := strconv.ParseInt(c.Query("expires"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid download token",
		})
		return
	}
	userID, err := strconv.ParseUint(c.Query("user_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid download token",
		})
		return
	}

	rc, err := h.docs.OpenDownload(c.Request.Context(), filename, uint(userID), token, expires)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDownloadToken) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired download token",
			})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{
			"error": "File not found",
		})
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		middleware.GetLogger(c).WithError(err).Warn("download stream interrupted")
	}
}

// documentID parses the :id route parameter. It writes a 400 response and
// returns false when the parameter is not a positive integer.
func documentID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid document ID",
		})
		return 0, false
	}
	return uint(id), true
}
