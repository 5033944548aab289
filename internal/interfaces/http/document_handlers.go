package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/controlled-docs/internal/application/workflow"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/pkg/utils"
)

// CreateDocumentRequest is the body of POST /documents
type CreateDocumentRequest struct {
	ProjectID  string          `json:"project_id" binding:"required"`
	DocType    string          `json:"doc_type" binding:"required"`
	Title      string          `json:"title" binding:"required"`
	TemplateID string          `json:"template_id"`
	Content    json.RawMessage `json:"content"`
}

// CreateDocumentResponse returns the document with its first draft
type CreateDocumentResponse struct {
	Document *entity.Document        `json:"document"`
	Version  *entity.DocumentVersion `json:"version"`
}

// CreateVersionRequest is the body of POST /documents/:id/versions
type CreateVersionRequest struct {
	SourceVersionID string `json:"source_version_id"`
	Blank           bool   `json:"blank"`
}

// CreateDocument handles POST /api/v1/documents
func (h *Handlers) CreateDocument(c *gin.Context) {
	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateIdentifier("project ID", req.ProjectID); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	if err := utils.ValidateText("title", req.Title); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	doc, v, err := h.deps.Engine.CreateDocument(c.Request.Context(), actorFrom(c), workflow.CreateDocumentCommand{
		ProjectID:  req.ProjectID,
		DocType:    req.DocType,
		Title:      utils.SanitizeString(req.Title),
		TemplateID: req.TemplateID,
		Content:    req.Content,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.ok(c, http.StatusCreated, CreateDocumentResponse{Document: doc, Version: v})
}

// GetDocument handles GET /api/v1/documents/:id
func (h *Handlers) GetDocument(c *gin.Context) {
	doc, err := h.deps.Engine.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, doc)
}

// ListVersions handles GET /api/v1/documents/:id/versions
func (h *Handlers) ListVersions(c *gin.Context) {
	versions, err := h.deps.Engine.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, versions)
}

// CreateVersion handles POST /api/v1/documents/:id/versions. The body is optional.
func (h *Handlers) CreateVersion(c *gin.Context) {
	var req CreateVersionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	v, err := h.deps.Engine.CreateVersion(c.Request.Context(), actorFrom(c), c.Param("id"), workflow.CreateVersionCommand{
		SourceVersionID: req.SourceVersionID,
		Blank:           req.Blank,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, v)
}
