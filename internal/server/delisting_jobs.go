package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/crosslist/internal/audit/domain"
	"go.uber.org/zap"
)

func parseJobID(c *gin.Context) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError("id", "invalid_job_id", "invalid job id"))
		return 0, false
	}
	return id, true
}

func (s *Server) GetDelistingJob(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	job, err := s.jobs.FindByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": job})
}

// ExecuteDelistingJob runs a pending job immediately instead of waiting for
// the scheduler sweep.
func (s *Server) ExecuteDelistingJob(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	result, err := s.delister.ExecuteJob(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

type confirmJobRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// ConfirmDelistingJob records user approval on a job that was created with
// the confirmation gate. The job stays pending and is picked up by the next
// sweep.
func (s *Server) ConfirmDelistingJob(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	var req confirmJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil || userID == 0 {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user id"))
		return
	}

	ctx := c.Request.Context()
	job, err := s.jobs.Confirm(ctx, id, userID, s.clock.Now().UTC())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	jobID := job.ID.String()
	if err := s.auditSvc.AuditLog(ctx, job.UserID, auditdomain.ActorTypeUser, nil,
		auditdomain.ActionJobConfirmed, "delisting_job", &jobID, map[string]any{
			"confirmed_at": job.UserConfirmedAt,
		}); err != nil {
		s.log.Warn("failed to audit job confirmation", zap.String("job_id", jobID), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"data": job})
}
