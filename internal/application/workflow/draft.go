package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/garyjia/controlled-docs/internal/application/port"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/internal/domain/event"
	"github.com/garyjia/controlled-docs/internal/domain/policy"
	domainwf "github.com/garyjia/controlled-docs/internal/domain/workflow"
)

// UpdateDraftContent replaces the opaque content payload of a draft
func (e *engineImpl) UpdateDraftContent(ctx context.Context, actor entity.Actor, versionID string, content json.RawMessage) (*entity.DocumentVersion, error) {
	return e.editDraft(ctx, actor, versionID, "content", func(v *entity.DocumentVersion, _ *entity.Document, _ *entity.ProjectPolicy) error {
		if len(content) > 0 && !json.Valid(content) {
			return fmt.Errorf("%w: content is not valid JSON", ErrInvalidCommand)
		}
		v.Content = append(json.RawMessage(nil), content...)
		return nil
	})
}

// AssignTemplate binds a template to a draft. An empty templateID unbinds it.
func (e *engineImpl) AssignTemplate(ctx context.Context, actor entity.Actor, versionID, templateID string) (*entity.DocumentVersion, error) {
	templateID = strings.TrimSpace(templateID)
	return e.editDraft(ctx, actor, versionID, "template", func(v *entity.DocumentVersion, doc *entity.Document, _ *entity.ProjectPolicy) error {
		if templateID == "" {
			v.TemplateID = nil
			return nil
		}
		if err := e.checkTemplate(ctx, doc, templateID); err != nil {
			return err
		}
		v.TemplateID = strPtr(templateID)
		return nil
	})
}

// AssignRouting stores the reviewer and approver of a draft after evaluating them
// against the project's approval policy
func (e *engineImpl) AssignRouting(ctx context.Context, actor entity.Actor, versionID string, routing policy.Routing) (*entity.DocumentVersion, error) {
	routing.ReviewerID = strings.TrimSpace(routing.ReviewerID)
	routing.ApproverID = strings.TrimSpace(routing.ApproverID)
	return e.editDraft(ctx, actor, versionID, "routing", func(v *entity.DocumentVersion, doc *entity.Document, pp *entity.ProjectPolicy) error {
		resolved, err := policy.Evaluate(e.routingRequest(doc, pp, routing))
		if err != nil {
			return err
		}
		v.ApproverID = strPtr(resolved.ApproverID)
		v.ReviewerID = nil
		if resolved.ReviewerID != "" {
			v.ReviewerID = strPtr(resolved.ReviewerID)
		}
		return nil
	})
}

// AttachRendition stores a rendered file for a draft under a content-addressed key.
// A file written for an edit that does not commit is removed again.
func (e *engineImpl) AttachRendition(ctx context.Context, actor entity.Actor, versionID, fileName string, data []byte) (*entity.DocumentVersion, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: rendition is empty", ErrInvalidCommand)
	}
	if e.files == nil {
		return nil, fmt.Errorf("%w: file storage is not configured", ErrInvalidCommand)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	ext := strings.ToLower(filepath.Ext(filepath.Base(fileName)))

	var written string
	v, err := e.editDraft(ctx, actor, versionID, "rendition", func(v *entity.DocumentVersion, _ *entity.Document, _ *entity.ProjectPolicy) error {
		key := fmt.Sprintf("renditions/%s/%s/%s%s", v.DocumentID, v.VersionString, hash, ext)
		if !e.files.Exists(ctx, key) {
			if err := e.files.Save(ctx, key, data); err != nil {
				return fmt.Errorf("save rendition: %w", err)
			}
			written = key
		}
		v.FileObjectKey = strPtr(key)
		v.FileHash = strPtr(hash)
		return nil
	})
	if err != nil && written != "" {
		e.discardRendition(ctx, versionID, written)
	}
	return v, err
}

// discardRendition deletes an uncommitted rendition unless the stored version
// references it by now
func (e *engineImpl) discardRendition(ctx context.Context, versionID, key string) {
	if current, err := e.versions.GetByID(ctx, versionID); err == nil && current != nil && deref(current.FileObjectKey) == key {
		return
	}
	if err := e.files.Delete(ctx, key); err != nil {
		e.warn("Failed to delete orphaned rendition", "version_id", versionID, "key", key, "error", err)
	}
}

// ReadRendition returns the stored rendition of a version after checking its
// bytes against the recorded SHA-256
func (e *engineImpl) ReadRendition(ctx context.Context, versionID string) (*Rendition, error) {
	v, err := e.loadVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if v.FileObjectKey == nil || v.FileHash == nil {
		return nil, fmt.Errorf("rendition of version %s: %w", versionID, domainwf.ErrNotFound)
	}
	if e.files == nil {
		return nil, fmt.Errorf("%w: file storage is not configured", ErrInvalidCommand)
	}

	key := *v.FileObjectKey
	data, err := e.files.Read(ctx, key)
	if errors.Is(err, port.ErrObjectNotFound) {
		e.warn("Rendition file missing", "version_id", v.ID, "key", key)
		return nil, fmt.Errorf("%w: %s is missing", ErrRenditionCorrupt, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read rendition: %w", err)
	}

	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != *v.FileHash {
		e.warn("Rendition hash mismatch", "version_id", v.ID, "key", key, "recorded", *v.FileHash, "actual", got)
		return nil, fmt.Errorf("%w: %s hashes to %s, recorded %s", ErrRenditionCorrupt, key, got, *v.FileHash)
	}

	return &Rendition{
		VersionID: v.ID,
		FileName:  fmt.Sprintf("%s-%s%s", v.DocumentID, v.VersionString, filepath.Ext(key)),
		Hash:      *v.FileHash,
		Data:      data,
	}, nil
}

// AddComment attaches a review comment to a version in any state
func (e *engineImpl) AddComment(ctx context.Context, actor entity.Actor, versionID, body string) (*entity.ReviewComment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: comment body is required", ErrInvalidCommand)
	}
	v, err := e.loadVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	comment := &entity.ReviewComment{
		ID:        uuid.NewString(),
		VersionID: v.ID,
		AuthorID:  actor.ID,
		Body:      body,
		CreatedAt: e.now(),
	}
	if err := e.comments.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return comment, nil
}

// ListComments returns the comments of a version oldest first
func (e *engineImpl) ListComments(ctx context.Context, versionID string) ([]*entity.ReviewComment, error) {
	if _, err := e.loadVersion(ctx, versionID); err != nil {
		return nil, err
	}
	comments, err := e.comments.ListByVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

type draftEdit func(v *entity.DocumentVersion, doc *entity.Document, pp *entity.ProjectPolicy) error

// editDraft applies an edit to a DRAFT whose lease is free, expired or held by the actor
func (e *engineImpl) editDraft(ctx context.Context, actor entity.Actor, versionID, field string, edit draftEdit) (*entity.DocumentVersion, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	v, doc, pp, err := e.loadContext(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if !v.State.IsEditable() {
		return nil, fmt.Errorf("%w: cannot edit %s of a version in state %s", domainwf.ErrInvalidTransition, field, v.State)
	}

	now := e.now()
	if err := lockConflict(v, actor.ID, now); err != nil {
		return nil, err
	}

	expectedRevision := v.Revision
	if err := edit(v, doc, pp); err != nil {
		return nil, err
	}
	v.UpdatedAt = now

	if err := e.versions.CompareAndSwap(ctx, v, domainwf.StateDraft, expectedRevision); err != nil {
		return nil, err
	}

	e.emit(ctx, event.NewEvent(event.TypeVersionEdited, v.DocumentID, v.ID, actor.ID, map[string]interface{}{
		event.KeyAction: field,
	}))
	return v, nil
}

// checkTemplate verifies that a template exists, is APPROVED and matches the document type
func (e *engineImpl) checkTemplate(ctx context.Context, doc *entity.Document, templateID string) error {
	if e.templates == nil {
		return fmt.Errorf("template %s: %w", templateID, domainwf.ErrNotFound)
	}
	binding, err := e.templates.ResolveTemplate(ctx, templateID)
	if err != nil {
		return fmt.Errorf("resolve template: %w", err)
	}
	if binding == nil {
		return fmt.Errorf("template %s: %w", templateID, domainwf.ErrNotFound)
	}
	if binding.Status != entity.TemplateApproved {
		return fmt.Errorf("%w: template %s is %s, not %s",
			domainwf.ErrTemplateMismatch, templateID, binding.Status, entity.TemplateApproved)
	}
	if binding.DocType != "" && binding.DocType != doc.DocType {
		return fmt.Errorf("%w: template %s is for %s, document is %s",
			domainwf.ErrTemplateMismatch, templateID, binding.DocType, doc.DocType)
	}
	return nil
}
