package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/controlled-docs/internal/application/workflow"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/internal/domain/policy"
	domainwf "github.com/garyjia/controlled-docs/internal/domain/workflow"
	"github.com/garyjia/controlled-docs/pkg/utils"
)

const (
	headerActorID       = "X-Actor-ID"
	headerActorRoles    = "X-Actor-Roles"
	headerContentSHA256 = "X-Content-SHA256"

	actorKey = "actor"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps           Dependencies
	maxUploadBytes int64
	logger         Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, maxUploadBytes int64, logger Logger) *Handlers {
	return &Handlers{
		deps:           deps,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody carries a stable error code plus optional details
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// LockDetails describes the holder of a checkout lease
type LockDetails struct {
	Holder    string    `json:"holder"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ViolationDetails names the governance rule that rejected a command
type ViolationDetails struct {
	Reason policy.Reason `json:"reason"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if h.deps.Health != nil {
		components, ok := h.deps.Health(c.Request.Context())
		response.Components = components
		if !ok {
			response.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	c.JSON(code, Response{Success: code == http.StatusOK, Data: response})
}

// RequireActor resolves the caller from the actor headers. Authentication is
// out of scope, the headers are trusted as given.
func (h *Handlers) RequireActor(c *gin.Context) {
	id := c.GetHeader(headerActorID)
	if err := utils.ValidateActorID(id); err != nil {
		h.abort(c, http.StatusUnauthorized, "INVALID_ACTOR", err.Error(), nil)
		return
	}

	roles, err := entity.ParseRoleSet(utils.SplitList(c.GetHeader(headerActorRoles)))
	if err != nil {
		h.abort(c, http.StatusBadRequest, "INVALID_ROLE", err.Error(), nil)
		return
	}

	c.Set(actorKey, entity.Actor{ID: id, Roles: roles})
	c.Next()
}

func actorFrom(c *gin.Context) entity.Actor {
	v, _ := c.Get(actorKey)
	actor, _ := v.(entity.Actor)
	return actor
}

func (h *Handlers) ok(c *gin.Context, code int, data interface{}) {
	c.JSON(code, Response{Success: true, Data: data})
}

func (h *Handlers) abort(c *gin.Context, code int, errCode, msg string, details interface{}) {
	c.AbortWithStatusJSON(code, Response{
		Success: false,
		Error:   &ErrorBody{Code: errCode, Message: msg, Details: details},
	})
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	h.abort(c, http.StatusBadRequest, "BAD_REQUEST", msg, nil)
}

// fail maps typed lifecycle and policy errors to status codes. Anything
// unrecognized is logged and reported as an internal error.
func (h *Handlers) fail(c *gin.Context, err error) {
	code, errCode := classify(err)

	var details interface{}
	var held *domainwf.LockHeldError
	if errors.As(err, &held) {
		details = LockDetails{Holder: held.Holder, ExpiresAt: held.ExpiresAt}
	}
	if reason, ok := policy.ReasonOf(err); ok {
		details = ViolationDetails{Reason: reason}
	}

	msg := err.Error()
	if code == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
		msg = "internal error"
	}

	h.abort(c, code, errCode, msg, details)
}

type errorClass struct {
	target  error
	status  int
	errCode string
}

// errorClasses is checked in order, specific errors before the generic guard failure
var errorClasses = []errorClass{
	{domainwf.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domainwf.ErrStaleState, http.StatusConflict, "STALE_STATE"},
	{domainwf.ErrAlreadyLocked, http.StatusConflict, "ALREADY_LOCKED"},
	{domainwf.ErrDraftExists, http.StatusConflict, "DRAFT_EXISTS"},
	{domainwf.ErrLockNotHeld, http.StatusConflict, "LOCK_NOT_HELD"},
	{domainwf.ErrLockNotExpired, http.StatusConflict, "LOCK_NOT_EXPIRED"},
	{domainwf.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
	{policy.ErrPolicyViolation, http.StatusForbidden, "POLICY_VIOLATION"},
	{policy.ErrApproverRequired, http.StatusUnprocessableEntity, "APPROVER_REQUIRED"},
	{domainwf.ErrMissingTemplateBinding, http.StatusUnprocessableEntity, "MISSING_TEMPLATE_BINDING"},
	{domainwf.ErrTemplateMismatch, http.StatusUnprocessableEntity, "TEMPLATE_MISMATCH"},
	{domainwf.ErrEmptyContent, http.StatusUnprocessableEntity, "EMPTY_CONTENT"},
	{policy.ErrInvalidPolicy, http.StatusUnprocessableEntity, "INVALID_POLICY"},
	{entity.ErrInvalidRoleCode, http.StatusUnprocessableEntity, "INVALID_ROLE"},
	{workflow.ErrInvalidCommand, http.StatusUnprocessableEntity, "VALIDATION_FAILED"},
	{workflow.ErrRenditionCorrupt, http.StatusInternalServerError, "RENDITION_CORRUPT"},
	{domainwf.ErrGuardFailed, http.StatusUnprocessableEntity, "GUARD_FAILED"},
}

func classify(err error) (int, string) {
	for _, ec := range errorClasses {
		if errors.Is(err, ec.target) {
			return ec.status, ec.errCode
		}
	}
	return http.StatusInternalServerError, "INTERNAL"
}
