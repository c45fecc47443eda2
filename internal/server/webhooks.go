package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
)

// HandleWebhook ingests one marketplace sale notification. Duplicates are
// acknowledged with 200 so marketplaces stop redelivering.
func (s *Server) HandleWebhook(c *gin.Context) {
	marketplace := marketplacedomain.Type(strings.TrimSpace(c.Param("marketplace")))

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.ingestor.IngestWebhook(c.Request.Context(), marketplace, payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": result})
}

// HandleWebhookHandshake answers subscription verification GETs by echoing
// the challenge.
func (s *Server) HandleWebhookHandshake(c *gin.Context) {
	marketplace := marketplacedomain.Type(strings.TrimSpace(c.Param("marketplace")))

	challenge, err := s.ingestor.VerifyHandshake(marketplace, c.Request.URL.Query())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.String(http.StatusOK, challenge)
}
