package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/controlled-docs/internal/application/dispatcher"
	"github.com/garyjia/controlled-docs/internal/application/port"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/internal/domain/event"
	domainwf "github.com/garyjia/controlled-docs/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

var (
	// ErrInvalidCommand is returned when required command fields are missing
	ErrInvalidCommand = errors.New("invalid command")

	// ErrRenditionCorrupt is returned when a stored rendition no longer matches its recorded hash
	ErrRenditionCorrupt = errors.New("rendition integrity check failed")
)

const defaultLockTTL = 30 * time.Minute

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	documents  port.DocumentRepository
	versions   port.VersionRepository
	history    port.TransitionRepository
	comments   port.CommentRepository
	policies   port.PolicyRepository
	templates  port.TemplateBinder
	files      port.FileStorage
	txManager  port.TransactionManager
	dispatcher dispatcher.Dispatcher
	logger     Logger

	lockTTL time.Duration
	now     func() time.Time
}

// Repositories bundles the stores the engine works on
type Repositories struct {
	Documents   port.DocumentRepository
	Versions    port.VersionRepository
	History     port.TransitionRepository
	Comments    port.CommentRepository
	Policies    port.PolicyRepository
	Templates   port.TemplateBinder
	Files       port.FileStorage
	Transaction port.TransactionManager
}

// EngineOption configures the lifecycle engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the logger used by background operations
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithLockTTL sets the checkout lease duration
func WithLockTTL(ttl time.Duration) EngineOption {
	return func(e *engineImpl) {
		if ttl > 0 {
			e.lockTTL = ttl
		}
	}
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new lifecycle engine
func NewEngine(repos Repositories, opts ...EngineOption) Engine {
	e := &engineImpl{
		documents: repos.Documents,
		versions:  repos.Versions,
		history:   repos.History,
		comments:  repos.Comments,
		policies:  repos.Policies,
		templates: repos.Templates,
		files:     repos.Files,
		txManager: repos.Transaction,
		lockTTL:   defaultLockTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// CreateDocument creates a document and its version 1.0 in DRAFT atomically
func (e *engineImpl) CreateDocument(ctx context.Context, actor entity.Actor, cmd CreateDocumentCommand) (*entity.Document, *entity.DocumentVersion, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	cmd.ProjectID = strings.TrimSpace(cmd.ProjectID)
	cmd.DocType = strings.TrimSpace(cmd.DocType)
	cmd.Title = strings.TrimSpace(cmd.Title)
	if cmd.ProjectID == "" || cmd.DocType == "" || cmd.Title == "" {
		return nil, nil, fmt.Errorf("%w: project, document type and title are required", ErrInvalidCommand)
	}

	now := e.now()
	doc := &entity.Document{
		ID:        uuid.NewString(),
		ProjectID: cmd.ProjectID,
		DocType:   cmd.DocType,
		Title:     cmd.Title,
		CreatedBy: actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	version := e.newDraft(doc, 1, actor.ID, now)
	version.Content = cmd.Content

	if cmd.TemplateID != "" {
		if err := e.checkTemplate(ctx, doc, cmd.TemplateID); err != nil {
			return nil, nil, err
		}
		templateID := cmd.TemplateID
		version.TemplateID = &templateID
	}

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.documents.Create(txCtx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		if err := e.versions.Create(txCtx, version); err != nil {
			return fmt.Errorf("create version: %w", err)
		}
		return e.recordHistory(txCtx, version.ID, entity.ActionVersionCreate, "", domainwf.StateDraft, actor.ID, "", now)
	})
	if err != nil {
		return nil, nil, err
	}

	e.emit(ctx, event.NewEvent(event.TypeDocumentCreated, doc.ID, version.ID, actor.ID, map[string]interface{}{
		event.KeyProjectID: doc.ProjectID,
	}))
	e.emit(ctx, event.NewEvent(event.TypeVersionCreated, doc.ID, version.ID, actor.ID, nil))

	return doc, version, nil
}

// CreateVersion opens the next draft of a document, copying the source unless blanked
func (e *engineImpl) CreateVersion(ctx context.Context, actor entity.Actor, documentID string, cmd CreateVersionCommand) (*entity.DocumentVersion, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	doc, err := e.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	existing, err := e.versions.ListByDocument(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	var source *entity.DocumentVersion
	for _, v := range existing {
		if v.State == domainwf.StateDraft {
			return nil, fmt.Errorf("%w: version %s", domainwf.ErrDraftExists, v.VersionString)
		}
		if cmd.SourceVersionID != "" && v.ID == cmd.SourceVersionID {
			source = v
		}
	}
	if cmd.SourceVersionID != "" && source == nil {
		return nil, fmt.Errorf("source version %s of document %s: %w", cmd.SourceVersionID, doc.ID, domainwf.ErrNotFound)
	}
	if source == nil && len(existing) > 0 {
		source = latest(existing)
	}
	if source != nil && !cmd.Blank && source.State == domainwf.StateArchived {
		return nil, fmt.Errorf("%w: cannot derive a new version from archived version %s",
			domainwf.ErrInvalidTransition, source.VersionString)
	}

	now := e.now()
	var version *entity.DocumentVersion

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		number, err := e.versions.NextNumber(txCtx, doc.ID)
		if err != nil {
			return fmt.Errorf("next version number: %w", err)
		}

		version = e.newDraft(doc, number, actor.ID, now)
		if source != nil && !cmd.Blank {
			version.Content = append(version.Content[:0:0], source.Content...)
			if source.TemplateID != nil {
				templateID := *source.TemplateID
				version.TemplateID = &templateID
			}
		}

		if err := e.versions.Create(txCtx, version); err != nil {
			return fmt.Errorf("create version: %w", err)
		}

		comment := ""
		if source != nil {
			comment = "derived from " + source.VersionString
		}
		return e.recordHistory(txCtx, version.ID, entity.ActionVersionCreate, "", domainwf.StateDraft, actor.ID, comment, now)
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, event.NewEvent(event.TypeVersionCreated, doc.ID, version.ID, actor.ID, nil))
	return version, nil
}

// GetDocument returns a document or ErrNotFound
func (e *engineImpl) GetDocument(ctx context.Context, documentID string) (*entity.Document, error) {
	return e.loadDocument(ctx, documentID)
}

// ListDocuments returns the documents of a project ordered by type and title
func (e *engineImpl) ListDocuments(ctx context.Context, projectID string) ([]*entity.Document, error) {
	docs, err := e.documents.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if docs == nil {
		docs = []*entity.Document{}
	}
	return docs, nil
}

// GetVersion returns a version or ErrNotFound
func (e *engineImpl) GetVersion(ctx context.Context, versionID string) (*entity.DocumentVersion, error) {
	return e.loadVersion(ctx, versionID)
}

// ListVersions returns all versions of a document in number order
func (e *engineImpl) ListVersions(ctx context.Context, documentID string) ([]*entity.DocumentVersion, error) {
	if _, err := e.loadDocument(ctx, documentID); err != nil {
		return nil, err
	}
	versions, err := e.versions.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return versions, nil
}

// History returns the committed lifecycle steps of a version
func (e *engineImpl) History(ctx context.Context, versionID string) ([]*entity.TransitionRecord, error) {
	if _, err := e.loadVersion(ctx, versionID); err != nil {
		return nil, err
	}
	records, err := e.history.ListByVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return records, nil
}

// MissingRequiredDocuments lists required document types without a released version
func (e *engineImpl) MissingRequiredDocuments(ctx context.Context, projectID string) ([]string, error) {
	pp, err := e.policies.Get(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	if pp == nil || len(pp.RequiredDocTypes) == 0 {
		return []string{}, nil
	}

	released, err := e.documents.ReleasedDocTypes(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("released document types: %w", err)
	}
	have := make(map[string]bool, len(released))
	for _, t := range released {
		have[t] = true
	}

	missing := make([]string, 0)
	for _, t := range pp.RequiredDocTypes {
		if !have[t] {
			missing = append(missing, t)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

func (e *engineImpl) newDraft(doc *entity.Document, number int, actorID string, now time.Time) *entity.DocumentVersion {
	return &entity.DocumentVersion{
		ID:            uuid.NewString(),
		DocumentID:    doc.ID,
		Number:        number,
		VersionString: FormatVersion(number),
		State:         domainwf.StateDraft,
		CreatedBy:     actorID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// FormatVersion renders the display string of a version number
func FormatVersion(number int) string {
	return fmt.Sprintf("%d.0", number)
}

func latest(versions []*entity.DocumentVersion) *entity.DocumentVersion {
	var best *entity.DocumentVersion
	for _, v := range versions {
		if best == nil || v.Number > best.Number {
			best = v
		}
	}
	return best
}

func (e *engineImpl) loadDocument(ctx context.Context, id string) (*entity.Document, error) {
	doc, err := e.documents.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", id, domainwf.ErrNotFound)
	}
	return doc, nil
}

func (e *engineImpl) loadVersion(ctx context.Context, id string) (*entity.DocumentVersion, error) {
	v, err := e.versions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	if v == nil {
		return nil, fmt.Errorf("version %s: %w", id, domainwf.ErrNotFound)
	}
	return v, nil
}

// loadContext fetches a version together with its document and project policy.
// The policy is nil when the project has none.
func (e *engineImpl) loadContext(ctx context.Context, versionID string) (*entity.DocumentVersion, *entity.Document, *entity.ProjectPolicy, error) {
	v, err := e.loadVersion(ctx, versionID)
	if err != nil {
		return nil, nil, nil, err
	}
	doc, err := e.loadDocument(ctx, v.DocumentID)
	if err != nil {
		return nil, nil, nil, err
	}
	pp, err := e.policies.Get(ctx, doc.ProjectID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load policy: %w", err)
	}
	return v, doc, pp, nil
}

func (e *engineImpl) recordHistory(ctx context.Context, versionID, action string, from, to domainwf.State, actorID, comment string, at time.Time) error {
	rec := &entity.TransitionRecord{
		ID:        uuid.NewString(),
		VersionID: versionID,
		Action:    action,
		FromState: from,
		ToState:   to,
		ActorID:   actorID,
		Comment:   comment,
		CreatedAt: at,
	}
	if err := e.history.Create(ctx, rec); err != nil {
		return fmt.Errorf("create history record: %w", err)
	}
	return nil
}

func (e *engineImpl) emit(ctx context.Context, evt *event.Event) {
	if e.dispatcher == nil {
		return
	}
	e.dispatcher.DispatchAsync(ctx, evt)
}

func requireActor(actor entity.Actor) error {
	if strings.TrimSpace(actor.ID) == "" {
		return fmt.Errorf("%w: actor is required", ErrInvalidCommand)
	}
	return nil
}

func strPtr(s string) *string {
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
