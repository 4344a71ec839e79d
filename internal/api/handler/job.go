package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/marcus/docmorph/internal/queue"
)

// JobHandler handles transformation job endpoints.
type JobHandler struct {
	jobs queue.Queue
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - jobs: job queue backing the endpoints.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(jobs queue.Queue) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// List handles GET /api/v1/jobs.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	jobs, err := h.jobs.ListUserJobs(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Error listing jobs: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, jobs)
}

// Get handles GET /api/v1/jobs/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	jobID := c.Param("id")
	job, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Error getting job: " + err.Error(),
		})
		return
	}

	if job.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "Not authorized to access this job",
		})
		return
	}

	c.JSON(http.StatusOK, job)
}
