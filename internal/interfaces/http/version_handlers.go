package http

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/controlled-docs/internal/application/workflow"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/internal/domain/policy"
	"github.com/garyjia/controlled-docs/pkg/utils"
)

// ContentRequest is the body of PUT /versions/:id/content
type ContentRequest struct {
	Content json.RawMessage `json:"content" binding:"required"`
}

// TemplateRequest is the body of PUT /versions/:id/template
type TemplateRequest struct {
	TemplateID string `json:"template_id" binding:"required"`
}

// RoutingRequest is the body of PUT /versions/:id/routing
type RoutingRequest struct {
	ReviewerID string `json:"reviewer_id"`
	ApproverID string `json:"approver_id"`
}

// CommentRequest carries an optional comment for review actions
type CommentRequest struct {
	Comment string `json:"comment"`
}

// VersionView is a version plus the lifecycle actions its state allows
type VersionView struct {
	*entity.DocumentVersion
	Actions []string `json:"actions"`
}

func newVersionView(v *entity.DocumentVersion) VersionView {
	triggers := workflow.AvailableActions(v.State)
	actions := make([]string, 0, len(triggers))
	for _, t := range triggers {
		actions = append(actions, t.String())
	}
	return VersionView{DocumentVersion: v, Actions: actions}
}

// versionCommand is the shape shared by the single-version lifecycle commands
type versionCommand func(c *gin.Context, actor entity.Actor, versionID string) (*entity.DocumentVersion, error)

// runVersionCommand executes cmd and writes the resulting version
func (h *Handlers) runVersionCommand(c *gin.Context, cmd versionCommand) {
	v, err := cmd(c, actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, newVersionView(v))
}

// bindComment reads an optional comment body
func (h *Handlers) bindComment(c *gin.Context) (string, bool) {
	var req CommentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "invalid request body: "+err.Error())
			return "", false
		}
	}
	if err := utils.ValidateText("comment", req.Comment); err != nil {
		h.badRequest(c, err.Error())
		return "", false
	}
	return utils.SanitizeString(req.Comment), true
}

// GetVersion handles GET /api/v1/versions/:id
func (h *Handlers) GetVersion(c *gin.Context) {
	v, err := h.deps.Engine.GetVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, newVersionView(v))
}

// UpdateContent handles PUT /api/v1/versions/:id/content
func (h *Handlers) UpdateContent(c *gin.Context) {
	var req ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	h.runVersionCommand(c, func(c *gin.Context, actor entity.Actor, id string) (*entity.DocumentVersion, error) {
		return h.deps.Engine.UpdateDraftContent(c.Request.Context(), actor, id, req.Content)
	})
}

// AssignTemplate handles PUT /api/v1/versions/:id/template
func (h *Handlers) AssignTemplate(c *gin.Context) {
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	h.runVersionCommand(c, func(c *gin.Context, actor entity.Actor, id string) (*entity.DocumentVersion, error) {
		return h.deps.Engine.AssignTemplate(c.Request.Context(), actor, id, req.TemplateID)
	})
}

// AssignRouting handles PUT /api/v1/versions/:id/routing
func (h *Handlers) AssignRouting(c *gin.Context) {
	var req RoutingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	h.runVersionCommand(c, func(c *gin.Context, actor entity.Actor, id string) (*entity.DocumentVersion, error) {
		return h.deps.Engine.AssignRouting(c.Request.Context(), actor, id, policy.Routing{
			ReviewerID: req.ReviewerID,
			ApproverID: req.ApproverID,
		})
	})
}

// AttachRendition handles PUT /api/v1/versions/:id/rendition (multipart field "file")
func (h *Handlers) AttachRendition(c *gin.Context) {
	name, data, ok := h.readUpload(c)
	if !ok {
		return
	}
	h.runVersionCommand(c, func(c *gin.Context, actor entity.Actor, id string) (*entity.DocumentVersion, error) {
		return h.deps.Engine.AttachRendition(c.Request.Context(), actor, id, name, data)
	})
}

// GetRendition handles GET /api/v1/versions/:id/rendition. The bytes are only
// served after they matched the hash recorded at upload.
func (h *Handlers) GetRendition(c *gin.Context) {
	r, err := h.deps.Engine.ReadRendition(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(r.FileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", r.FileName))
	c.Header(headerContentSHA256, r.Hash)
	c.Data(http.StatusOK, contentType, r.Data)
}

// readUpload reads the multipart "file" field within the upload limit
func (h *Handlers) readUpload(c *gin.Context) (string, []byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+(1<<20))

	fh, err := c.FormFile("file")
	if err != nil {
		h.badRequest(c, "multipart field \"file\" is required")
		return "", nil, false
	}
	if fh.Size > h.maxUploadBytes {
		h.abort(c, http.StatusRequestEntityTooLarge, "TOO_LARGE",
			fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes), nil)
		return "", nil, false
	}

	f, err := fh.Open()
	if err != nil {
		h.badRequest(c, "cannot read upload")
		return "", nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		h.badRequest(c, "cannot read upload")
		return "", nil, false
	}
	return fh.Filename, data, true
}

// Checkout handles POST /api/v1/versions/:id/checkout
func (h *Handlers) Checkout(c *gin.Context) {
	h.runVersionCommand(c, func(c *gin.Context, actor entity.Actor, id string) (*entity.DocumentVersion, error) {
		return h.deps.Engine.Checkout(c.Request.Context(), actor, id)
	})
}

// ReleaseLock handles DELETE /api/v1/versions/:id/checkout
func (h *Handlers) ReleaseLock(c *gin.Context) {
	h.runVersionCommand(c, func(c *gin.Context, actor entity.Actor, id string) (*entity.DocumentVersion, error) {
		return h.deps.Engine.ReleaseLock(c.Request.Context(), actor, id)
	})
}

// RenewLock handles POST /api/v1/versions/:id/checkout/renew
func (h *Handlers) RenewLock(c *gin.Context) {
	h.runVersionCommand(c, func(c *gin.Context, actor entity.Actor, id string) (*entity.DocumentVersion, error) {
		return h.deps.Engine.RenewLock(c.Request.Context(), actor, id)
	})
}

// ForceUnlock handles POST /api/v1/versions/:id/force-unlock
func (h *Handlers) ForceUnlock(c *gin.Context) {
	h.runVersionCommand(c, func(c *gin.Context, actor entity.Actor, id string) (*entity.DocumentVersion, error) {
		return h.deps.Engine.ForceUnlock(c.Request.Context(), actor, id)
	})
}

// Submit handles POST /api/v1/versions/:id/submit
func (h *Handlers) Submit(c *gin.Context) {
	h.runVersionCommand(c, func(c *gin.Context, actor entity.Actor, id string) (*entity.DocumentVersion, error) {
		return h.deps.Engine.Submit(c.Request.Context(), actor, id)
	})
}

// Endorse handles POST /api/v1/versions/:id/endorse
func (h *Handlers) Endorse(c *gin.Context) {
	comment, ok := h.bindComment(c)
	if !ok {
		return
	}
	h.runVersionCommand(c, func(c *gin.Context, actor entity.Actor, id string) (*entity.DocumentVersion, error) {
		return h.deps.Engine.Endorse(c.Request.Context(), actor, id, comment)
	})
}

// Approve handles POST /api/v1/versions/:id/approve
func (h *Handlers) Approve(c *gin.Context) {
	comment, ok := h.bindComment(c)
	if !ok {
		return
	}
	h.runVersionCommand(c, func(c *gin.Context, actor entity.Actor, id string) (*entity.DocumentVersion, error) {
		return h.deps.Engine.Approve(c.Request.Context(), actor, id, comment)
	})
}

// Reject handles POST /api/v1/versions/:id/reject
func (h *Handlers) Reject(c *gin.Context) {
	comment, ok := h.bindComment(c)
	if !ok {
		return
	}
	h.runVersionCommand(c, func(c *gin.Context, actor entity.Actor, id string) (*entity.DocumentVersion, error) {
		return h.deps.Engine.Reject(c.Request.Context(), actor, id, comment)
	})
}

// Release handles POST /api/v1/versions/:id/release
func (h *Handlers) Release(c *gin.Context) {
	h.runVersionCommand(c, func(c *gin.Context, actor entity.Actor, id string) (*entity.DocumentVersion, error) {
		return h.deps.Engine.Release(c.Request.Context(), actor, id)
	})
}

// Archive handles POST /api/v1/versions/:id/archive
func (h *Handlers) Archive(c *gin.Context) {
	reason, ok := h.bindComment(c)
	if !ok {
		return
	}
	h.runVersionCommand(c, func(c *gin.Context, actor entity.Actor, id string) (*entity.DocumentVersion, error) {
		return h.deps.Engine.Archive(c.Request.Context(), actor, id, reason)
	})
}

// AddComment handles POST /api/v1/versions/:id/comments
func (h *Handlers) AddComment(c *gin.Context) {
	body, ok := h.bindComment(c)
	if !ok {
		return
	}
	comment, err := h.deps.Engine.AddComment(c.Request.Context(), actorFrom(c), c.Param("id"), body)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, comment)
}

// ListComments handles GET /api/v1/versions/:id/comments
func (h *Handlers) ListComments(c *gin.Context) {
	comments, err := h.deps.Engine.ListComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, comments)
}

// History handles GET /api/v1/versions/:id/history
func (h *Handlers) History(c *gin.Context) {
	records, err := h.deps.Engine.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, records)
}

// ListEscalations handles GET /api/v1/versions/:id/escalations
func (h *Handlers) ListEscalations(c *gin.Context) {
	if _, err := h.deps.Engine.GetVersion(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	records, err := h.deps.Escalations.ListByVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if records == nil {
		records = []*entity.EscalationRecord{}
	}
	h.ok(c, http.StatusOK, records)
}
