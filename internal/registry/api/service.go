package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aevon-lab/schema-registry/internal/registry"
)

const requestIDHeader = "X-Request-ID"

// Service exposes a Registry over HTTP.
type Service struct {
	registry         *registry.Registry
	maxBodySizeBytes int
}

// NewService creates the schema registry API service. Version payloads larger
// than maxBodySizeMB are rejected.
func NewService(reg *registry.Registry, maxBodySizeMB int) *Service {
	if reg == nil {
		panic("api: registry must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		registry:         reg,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes registers the schema registry routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	handler := NewHandler(s.registry, s.maxBodySizeBytes)

	schemas := r.Group("/schemas", requestID())
	{
		schemas.GET("", handler.HandleList)
		schemas.POST("", handler.HandleCreateSchema)
		schemas.GET("/:name", handler.HandleListVersions)
		schemas.POST("/:name", handler.HandleCreateVersion)
		// /schemas/{name}/{version|latest}
		schemas.GET("/:name/:version", handler.HandleGetVersion)
	}
}

// requestID propagates the caller's request id or assigns a new one, so that
// failures logged by the handlers can be matched to responses.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
