package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/controlled-docs/internal/application/dispatcher"
	"github.com/garyjia/controlled-docs/internal/application/port"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/internal/domain/event"
	domainwf "github.com/garyjia/controlled-docs/internal/domain/workflow"
)

// memStore is an in-memory store with all-or-nothing transactions.
// Calls outside a transaction are serialized with transactions on the same mutex.
type memStore struct {
	mu        sync.Mutex
	docs      map[string]entity.Document
	versions  map[string]entity.DocumentVersion
	history   []entity.TransitionRecord
	comments  []entity.ReviewComment
	policies  map[string]*entity.ProjectPolicy
	templates map[string]*entity.TemplateBinding
	files     map[string][]byte

	// failHistory makes history inserts for this action fail
	failHistory string
	// beforeCAS runs before every compare-and-set, outside the store lock
	beforeCAS func()
}

type txKey struct{}

func newMemStore() *memStore {
	return &memStore{
		docs:      make(map[string]entity.Document),
		versions:  make(map[string]entity.DocumentVersion),
		policies:  make(map[string]*entity.ProjectPolicy),
		templates: make(map[string]*entity.TemplateBinding),
		files:     make(map[string][]byte),
	}
}

func (s *memStore) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make(map[string]entity.Document, len(s.docs))
	for k, v := range s.docs {
		docs[k] = v
	}
	versions := make(map[string]entity.DocumentVersion, len(s.versions))
	for k, v := range s.versions {
		versions[k] = v
	}
	history := append([]entity.TransitionRecord(nil), s.history...)

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.docs, s.versions, s.history = docs, versions, history
		return err
	}
	return nil
}

func (s *memStore) repositories() Repositories {
	return Repositories{
		Documents:   memDocs{s},
		Versions:    memVersions{s},
		History:     memHistory{s},
		Comments:    memComments{s},
		Policies:    memPolicies{s},
		Templates:   memTemplates{s},
		Files:       memFiles{s},
		Transaction: s,
	}
}

func (s *memStore) version(id string) entity.DocumentVersion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[id]
}

func (s *memStore) document(id string) entity.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[id]
}

func (s *memStore) actions(versionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, rec := range s.history {
		if rec.VersionID == versionID {
			out = append(out, rec.Action)
		}
	}
	return out
}

type memDocs struct{ *memStore }

func (m memDocs) Create(ctx context.Context, doc *entity.Document) error {
	defer m.lock(ctx)()
	m.docs[doc.ID] = *doc
	return nil
}

func (m memDocs) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	defer m.lock(ctx)()
	doc, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (m memDocs) ListByProject(ctx context.Context, projectID string) ([]*entity.Document, error) {
	defer m.lock(ctx)()
	var out []*entity.Document
	for _, d := range m.docs {
		if d.ProjectID == projectID {
			doc := d
			out = append(out, &doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (m memDocs) SetCurrentVersion(ctx context.Context, documentID, versionID string, at time.Time) error {
	defer m.lock(ctx)()
	doc, ok := m.docs[documentID]
	if !ok {
		return domainwf.ErrNotFound
	}
	doc.CurrentVersionID = &versionID
	doc.UpdatedAt = at
	m.docs[documentID] = doc
	return nil
}

func (m memDocs) ReleasedDocTypes(ctx context.Context, projectID string) ([]string, error) {
	defer m.lock(ctx)()
	seen := map[string]bool{}
	for _, v := range m.versions {
		doc := m.docs[v.DocumentID]
		if doc.ProjectID == projectID && v.State == domainwf.StateReleased {
			seen[doc.DocType] = true
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	return out, nil
}

type memVersions struct{ *memStore }

func (m memVersions) Create(ctx context.Context, v *entity.DocumentVersion) error {
	defer m.lock(ctx)()
	for _, other := range m.versions {
		if other.DocumentID != v.DocumentID {
			continue
		}
		if other.State == domainwf.StateDraft && v.State == domainwf.StateDraft {
			return domainwf.ErrDraftExists
		}
		if other.Number == v.Number {
			return fmt.Errorf("duplicate version number %d", v.Number)
		}
	}
	v.Revision = 1
	m.versions[v.ID] = *v
	return nil
}

func (m memVersions) GetByID(ctx context.Context, id string) (*entity.DocumentVersion, error) {
	defer m.lock(ctx)()
	v, ok := m.versions[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (m memVersions) ListByDocument(ctx context.Context, documentID string) ([]*entity.DocumentVersion, error) {
	defer m.lock(ctx)()
	var out []*entity.DocumentVersion
	for _, v := range m.versions {
		if v.DocumentID == documentID {
			ver := v
			out = append(out, &ver)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m memVersions) ListByState(ctx context.Context, documentID string, state domainwf.State) ([]*entity.DocumentVersion, error) {
	all, err := m.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	var out []*entity.DocumentVersion
	for _, v := range all {
		if v.State == state {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m memVersions) NextNumber(ctx context.Context, documentID string) (int, error) {
	defer m.lock(ctx)()
	max := 0
	for _, v := range m.versions {
		if v.DocumentID == documentID && v.Number > max {
			max = v.Number
		}
	}
	return max + 1, nil
}

func (m memVersions) CompareAndSwap(ctx context.Context, v *entity.DocumentVersion, expected domainwf.State, expectedRevision int64) error {
	if m.beforeCAS != nil {
		m.beforeCAS()
	}
	defer m.lock(ctx)()
	stored, ok := m.versions[v.ID]
	if !ok || stored.State != expected || stored.Revision != expectedRevision {
		return domainwf.ErrStaleState
	}
	v.Revision = expectedRevision + 1
	m.versions[v.ID] = *v
	return nil
}

func (m memVersions) ClaimLock(ctx context.Context, id, actorID string, now, expiresAt time.Time) (bool, error) {
	defer m.lock(ctx)()
	v, ok := m.versions[id]
	if !ok || v.State != domainwf.StateDraft {
		return false, nil
	}
	if holder := v.LockHolder(now); holder != "" && holder != actorID {
		return false, nil
	}
	v.LockedBy = &actorID
	v.LockedAt = &now
	v.LockExpiresAt = &expiresAt
	v.Revision++
	m.versions[id] = v
	return true, nil
}

func (m memVersions) refs(ctx context.Context, state domainwf.State, at func(v entity.DocumentVersion) *time.Time) []entity.VersionRef {
	defer m.lock(ctx)()
	var out []entity.VersionRef
	for _, v := range m.versions {
		if v.State != state {
			continue
		}
		doc := m.docs[v.DocumentID]
		ref := entity.VersionRef{
			VersionID:     v.ID,
			DocumentID:    v.DocumentID,
			ProjectID:     doc.ProjectID,
			DocType:       doc.DocType,
			Title:         doc.Title,
			VersionString: v.VersionString,
		}
		if t := at(v); t != nil {
			ref.At = *t
		}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionID < out[j].VersionID })
	return out
}

func (m memVersions) ListInReview(ctx context.Context) ([]entity.VersionRef, error) {
	return m.refs(ctx, domainwf.StateInReview, func(v entity.DocumentVersion) *time.Time { return v.SubmittedAt }), nil
}

func (m memVersions) ListReleased(ctx context.Context) ([]entity.VersionRef, error) {
	return m.refs(ctx, domainwf.StateReleased, func(v entity.DocumentVersion) *time.Time { return v.ReleasedAt }), nil
}

type memHistory struct{ *memStore }

func (m memHistory) Create(ctx context.Context, rec *entity.TransitionRecord) error {
	defer m.lock(ctx)()
	if m.failHistory != "" && rec.Action == m.failHistory {
		return errors.New("history store unavailable")
	}
	m.history = append(m.history, *rec)
	return nil
}

func (m memHistory) ListByVersion(ctx context.Context, versionID string) ([]*entity.TransitionRecord, error) {
	defer m.lock(ctx)()
	var out []*entity.TransitionRecord
	for _, rec := range m.history {
		if rec.VersionID == versionID {
			r := rec
			out = append(out, &r)
		}
	}
	return out, nil
}

type memComments struct{ *memStore }

func (m memComments) Create(ctx context.Context, c *entity.ReviewComment) error {
	defer m.lock(ctx)()
	m.comments = append(m.comments, *c)
	return nil
}

func (m memComments) ListByVersion(ctx context.Context, versionID string) ([]*entity.ReviewComment, error) {
	defer m.lock(ctx)()
	var out []*entity.ReviewComment
	for _, c := range m.comments {
		if c.VersionID == versionID {
			comment := c
			out = append(out, &comment)
		}
	}
	return out, nil
}

type memPolicies struct{ *memStore }

func (m memPolicies) Get(ctx context.Context, projectID string) (*entity.ProjectPolicy, error) {
	defer m.lock(ctx)()
	return m.policies[projectID], nil
}

func (m memPolicies) Save(ctx context.Context, p *entity.ProjectPolicy) error {
	defer m.lock(ctx)()
	m.policies[p.ProjectID] = p
	return nil
}

type memTemplates struct{ *memStore }

func (m memTemplates) ResolveTemplate(ctx context.Context, templateID string) (*entity.TemplateBinding, error) {
	defer m.lock(ctx)()
	return m.templates[templateID], nil
}

type memFiles struct{ *memStore }

func (m memFiles) Save(ctx context.Context, key string, content []byte) error {
	defer m.lock(ctx)()
	m.files[key] = append([]byte(nil), content...)
	return nil
}

func (m memFiles) Read(ctx context.Context, key string) ([]byte, error) {
	defer m.lock(ctx)()
	data, ok := m.files[key]
	if !ok {
		return nil, port.ErrObjectNotFound
	}
	return data, nil
}

func (m memFiles) Exists(ctx context.Context, key string) bool {
	defer m.lock(ctx)()
	_, ok := m.files[key]
	return ok
}

func (m memFiles) Delete(ctx context.Context, key string) error {
	defer m.lock(ctx)()
	delete(m.files, key)
	return nil
}


var _ port.VersionRepository = memVersions{}

// recordingDispatcher captures events synchronously
type recordingDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (d *recordingDispatcher) Subscribe(eventType event.Type, handler dispatcher.Handler) {}

func (d *recordingDispatcher) SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler) {
}

func (d *recordingDispatcher) SubscribeAll(name string, handler dispatcher.Handler) {}

func (d *recordingDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (d *recordingDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	d.DispatchAsync(ctx, evt)
	return nil
}

func (d *recordingDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
}

func (d *recordingDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo {
	return nil
}

func (d *recordingDispatcher) Close() error {
	return nil
}

func (d *recordingDispatcher) ofType(t event.Type) []*event.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*event.Event
	for _, evt := range d.events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
