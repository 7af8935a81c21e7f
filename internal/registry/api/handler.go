package api

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aevon-lab/schema-registry/internal/registry"
)

const (
	HttpInternalError        = "internal_error"
	HttpInvalidRequestError  = "invalid_request"
	HttpInvalidVersionError  = "invalid_version"
	HttpSchemaExistsError    = "schema_exists"
	HttpSchemaNotFoundError  = "schema_not_found"
	HttpVersionNotFoundError = "version_not_found"
	HttpPayloadTooLargeError = "payload_too_large"
)

const latestVersion = "latest"

// Handler handles schema registry HTTP requests.
type Handler struct {
	registry         *registry.Registry
	maxBodySizeBytes int
}

// NewHandler creates a new schema registry handler.
func NewHandler(reg *registry.Registry, maxBodySizeBytes int) *Handler {
	return &Handler{
		registry:         reg,
		maxBodySizeBytes: maxBodySizeBytes,
	}
}

// CreateSchemaRequest is the request body for POST /schemas. Both JSON and
// form encodings are accepted.
type CreateSchemaRequest struct {
	Name string `json:"name" form:"name"`
}

// CreateSchemaResponse is the response body for POST /schemas.
type CreateSchemaResponse struct {
	ID   registry.ID `json:"id"`
	Name string      `json:"name"`
}

// CreateVersionResponse is the response body for POST /schemas/{name}.
type CreateVersionResponse struct {
	Version int `json:"version"`
}

// ErrorResponse is the error response body.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// HandleList handles GET /schemas. Repeated id query parameters restrict the
// listing to those schema ids; malformed ids match nothing.
func (h *Handler) HandleList(c *gin.Context) {
	raw := c.QueryArray("id")
	ids := registry.ParseIDs(raw)
	if len(raw) > 0 && len(ids) == 0 {
		c.JSON(http.StatusOK, []registry.SchemaInfo{})
		return
	}

	schemas, err := h.registry.GetSchemas(c.Request.Context(), ids...)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, schemas)
}

// HandleCreateSchema handles POST /schemas.
func (h *Handler) HandleCreateSchema(c *gin.Context) {
	var req CreateSchemaRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: HttpInvalidRequestError, Message: "Invalid request body"})
		return
	}

	id, err := h.registry.CreateSchema(c.Request.Context(), req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}

	slog.Info("Schema created", "schema", req.Name, "id", id, "request_id", c.GetString("request_id"))
	c.JSON(http.StatusCreated, CreateSchemaResponse{ID: id, Name: req.Name})
}

// HandleListVersions handles GET /schemas/{name}.
func (h *Handler) HandleListVersions(c *gin.Context) {
	versions, err := h.registry.GetVersions(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, versions)
}

// HandleCreateVersion handles POST /schemas/{name}. The raw request body is
// stored as the payload.
func (h *Handler) HandleCreateVersion(c *gin.Context) {
	name := c.Param("name")

	maxBytes := int64(h.maxBodySizeBytes)
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBytes+1)) // +1 to detect oversized requests
	if err != nil {
		slog.Error("Failed to read request body", "error", err, "request_id", c.GetString("request_id"))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: HttpInternalError, Message: "Failed to read request body"})
		return
	}
	if int64(len(payload)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(payload), "max", maxBytes)
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   HttpPayloadTooLargeError,
			Message: "Request body exceeds maximum allowed size",
			Details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		})
		return
	}

	number, err := h.registry.CreateVersion(c.Request.Context(), name, payload)
	if err != nil {
		h.writeError(c, err)
		return
	}

	slog.Info("Schema version created",
		"schema", name,
		"version", number,
		"payload_size", len(payload),
		"request_id", c.GetString("request_id"))
	c.JSON(http.StatusCreated, CreateVersionResponse{Version: number})
}

// HandleGetVersion handles GET /schemas/{name}/{version}, where version is a
// number or "latest".
func (h *Handler) HandleGetVersion(c *gin.Context) {
	name := c.Param("name")
	versionStr := c.Param("version")

	var (
		number  int
		payload []byte
		err     error
	)
	if versionStr == latestVersion {
		number, payload, err = h.registry.GetLatestVersion(c.Request.Context(), name)
	} else {
		number, err = strconv.Atoi(versionStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: HttpInvalidVersionError, Message: "version must be an integer or \"latest\""})
			return
		}
		payload, err = h.registry.GetVersion(c.Request.Context(), name, number)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("X-Schema-Version", strconv.Itoa(number))
	c.DataFromReader(http.StatusOK, int64(len(payload)), "application/octet-stream", bytes.NewReader(payload), nil)
}

// writeError maps registry errors onto HTTP responses. Anything that is not a
// domain outcome is logged and hidden behind a 500.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrInvalidName):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: HttpInvalidRequestError, Message: err.Error()})
	case errors.Is(err, registry.ErrAlreadyExists):
		c.JSON(http.StatusConflict, ErrorResponse{Error: HttpSchemaExistsError, Message: err.Error()})
	case errors.Is(err, registry.ErrDoesNotExist):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: HttpSchemaNotFoundError, Message: err.Error()})
	case errors.Is(err, registry.ErrVersionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: HttpVersionNotFoundError, Message: err.Error()})
	default:
		slog.Error("Registry operation failed",
			"error", err,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", c.GetString("request_id"))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: HttpInternalError, Message: "Internal server error"})
	}
}
