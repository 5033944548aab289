package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/controlled-docs/internal/domain/entity"
	domainwf "github.com/garyjia/controlled-docs/internal/domain/workflow"
	"github.com/garyjia/controlled-docs/pkg/utils"
)

// ComplianceResponse lists the required document types still unreleased
type ComplianceResponse struct {
	ProjectID string   `json:"project_id"`
	Compliant bool     `json:"compliant"`
	Missing   []string `json:"missing"`
}

// TemplateBindingRequest is the body of PUT /templates/:id
type TemplateBindingRequest struct {
	ObjectKey string `json:"object_key" binding:"required"`
	DocType   string `json:"doc_type" binding:"required"`
	Status    string `json:"status" binding:"required"`
}

func (h *Handlers) projectID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if err := utils.ValidateIdentifier("project ID", id); err != nil {
		h.badRequest(c, err.Error())
		return "", false
	}
	return id, true
}

// GetPolicy handles GET /api/v1/projects/:id/policy
func (h *Handlers) GetPolicy(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}
	pp, err := h.deps.Policies.GetPolicy(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, pp)
}

// SavePolicy handles PUT /api/v1/projects/:id/policy. The body is the raw
// policy document.
func (h *Handlers) SavePolicy(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxUploadBytes+1))
	if err != nil {
		h.badRequest(c, "cannot read request body")
		return
	}
	if int64(len(raw)) > h.maxUploadBytes {
		h.abort(c, http.StatusRequestEntityTooLarge, "TOO_LARGE",
			fmt.Sprintf("policy exceeds %d bytes", h.maxUploadBytes), nil)
		return
	}

	pp, err := h.deps.Policies.SavePolicy(c.Request.Context(), id, raw)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.logger.Info("Project policy replaced", "project_id", id, "actor_id", actorFrom(c).ID)
	h.ok(c, http.StatusOK, pp)
}

// ImportRaci handles POST /api/v1/projects/:id/raci (multipart field "file", xlsx)
func (h *Handlers) ImportRaci(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}
	_, data, ok := h.readUpload(c)
	if !ok {
		return
	}

	pp, err := h.deps.Policies.ImportRaci(c.Request.Context(), id, bytes.NewReader(data))
	if err != nil {
		h.fail(c, err)
		return
	}

	h.logger.Info("RACI matrix replaced", "project_id", id, "actor_id", actorFrom(c).ID)
	h.ok(c, http.StatusOK, pp)
}

// Roles handles GET /api/v1/projects/:id/roles
func (h *Handlers) Roles(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}
	roles, err := h.deps.Policies.Roles(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, roles)
}

// ListDocuments handles GET /api/v1/projects/:id/documents
func (h *Handlers) ListDocuments(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}
	docs, err := h.deps.Engine.ListDocuments(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, docs)
}

// Compliance handles GET /api/v1/projects/:id/compliance
func (h *Handlers) Compliance(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}
	missing, err := h.deps.Engine.MissingRequiredDocuments(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if missing == nil {
		missing = []string{}
	}
	h.ok(c, http.StatusOK, ComplianceResponse{
		ProjectID: id,
		Compliant: len(missing) == 0,
		Missing:   missing,
	})
}

// GetTemplate handles GET /api/v1/templates/:id
func (h *Handlers) GetTemplate(c *gin.Context) {
	b, err := h.deps.Templates.ResolveTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if b == nil {
		h.fail(c, fmt.Errorf("template %s: %w", c.Param("id"), domainwf.ErrNotFound))
		return
	}
	h.ok(c, http.StatusOK, b)
}

// PutTemplate handles PUT /api/v1/templates/:id
func (h *Handlers) PutTemplate(c *gin.Context) {
	id := c.Param("id")
	if err := utils.ValidateIdentifier("template ID", id); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	var req TemplateBindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	switch req.Status {
	case entity.TemplateDraft, entity.TemplateApproved, entity.TemplateArchived:
	default:
		h.badRequest(c, fmt.Sprintf("unknown template status %q", req.Status))
		return
	}

	b := &entity.TemplateBinding{
		TemplateID: id,
		ObjectKey:  req.ObjectKey,
		DocType:    req.DocType,
		Status:     req.Status,
	}
	if err := h.deps.Templates.Upsert(c.Request.Context(), b); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, b)
}
