package service

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/controlled-docs/internal/application/dispatcher"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/internal/domain/event"
	domainwf "github.com/garyjia/controlled-docs/internal/domain/workflow"
)

type mockLogger struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) Warn(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

type mockTxManager struct{}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// mockVersionRepo serves the scan queries used by background services.
// GetByID falls back to an IN_REVIEW version for refs listed in inReview.
type mockVersionRepo struct {
	inReview []entity.VersionRef
	versions map[string]*entity.DocumentVersion
	listErr  error
}

func (m *mockVersionRepo) Create(ctx context.Context, v *entity.DocumentVersion) error { return nil }

func (m *mockVersionRepo) GetByID(ctx context.Context, id string) (*entity.DocumentVersion, error) {
	if v, ok := m.versions[id]; ok {
		return v, nil
	}
	for _, ref := range m.inReview {
		if ref.VersionID == id {
			return &entity.DocumentVersion{ID: id, DocumentID: ref.DocumentID, State: domainwf.StateInReview}, nil
		}
	}
	return nil, nil
}

func (m *mockVersionRepo) ListByDocument(ctx context.Context, documentID string) ([]*entity.DocumentVersion, error) {
	return nil, nil
}

func (m *mockVersionRepo) ListByState(ctx context.Context, documentID string, state domainwf.State) ([]*entity.DocumentVersion, error) {
	return nil, nil
}

func (m *mockVersionRepo) NextNumber(ctx context.Context, documentID string) (int, error) {
	return 1, nil
}

func (m *mockVersionRepo) CompareAndSwap(ctx context.Context, v *entity.DocumentVersion, expected domainwf.State, expectedRevision int64) error {
	return nil
}

func (m *mockVersionRepo) ClaimLock(ctx context.Context, id, actorID string, now, expiresAt time.Time) (bool, error) {
	return true, nil
}

func (m *mockVersionRepo) ListInReview(ctx context.Context) ([]entity.VersionRef, error) {
	return m.inReview, m.listErr
}

func (m *mockVersionRepo) ListReleased(ctx context.Context) ([]entity.VersionRef, error) {
	return nil, nil
}

type mockDocumentRepo struct {
	docs map[string]*entity.Document
}

func (m *mockDocumentRepo) Create(ctx context.Context, doc *entity.Document) error { return nil }

func (m *mockDocumentRepo) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	return m.docs[id], nil
}

func (m *mockDocumentRepo) ListByProject(ctx context.Context, projectID string) ([]*entity.Document, error) {
	return nil, nil
}

func (m *mockDocumentRepo) SetCurrentVersion(ctx context.Context, documentID, versionID string, at time.Time) error {
	return nil
}

func (m *mockDocumentRepo) ReleasedDocTypes(ctx context.Context, projectID string) ([]string, error) {
	return nil, nil
}

type mockPolicyRepo struct {
	mu       sync.Mutex
	policies map[string]*entity.ProjectPolicy
	saved    []*entity.ProjectPolicy
}

func (m *mockPolicyRepo) Get(ctx context.Context, projectID string) (*entity.ProjectPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policies[projectID], nil
}

func (m *mockPolicyRepo) Save(ctx context.Context, p *entity.ProjectPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.policies == nil {
		m.policies = make(map[string]*entity.ProjectPolicy)
	}
	m.policies[p.ProjectID] = p
	m.saved = append(m.saved, p)
	return nil
}

// mockEscalationRepo enforces the mark CAS and UNIQUE(version, days, level) like the sqlite store
type mockEscalationRepo struct {
	mu      sync.Mutex
	marks   map[string]int
	records []*entity.EscalationRecord
}

func newMockEscalationRepo() *mockEscalationRepo {
	return &mockEscalationRepo{marks: make(map[string]int)}
}

func (m *mockEscalationRepo) mark(versionID string) int {
	if days, ok := m.marks[versionID]; ok {
		return days
	}
	return entity.NoEscalationMark
}

func (m *mockEscalationRepo) LastNotified(ctx context.Context, versionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mark(versionID), nil
}

func (m *mockEscalationRepo) AdvanceMark(ctx context.Context, versionID string, expected, next int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mark(versionID) != expected {
		return domainwf.ErrStaleState
	}
	m.marks[versionID] = next
	return nil
}

func (m *mockEscalationRepo) Create(ctx context.Context, rec *entity.EscalationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.VersionID == rec.VersionID && r.DaysAfter == rec.DaysAfter && r.Level == rec.Level {
			return domainwf.ErrStaleState
		}
	}
	cp := *rec
	m.records = append(m.records, &cp)
	return nil
}

func (m *mockEscalationRepo) ListPending(ctx context.Context, maxAttempts, limit int) ([]*entity.EscalationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.EscalationRecord
	for _, r := range m.records {
		if r.Status != entity.EscalationSent && r.Status != entity.EscalationSkipped && r.Attempts < maxAttempts {
			cp := *r
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockEscalationRepo) ListByVersion(ctx context.Context, versionID string) ([]*entity.EscalationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.EscalationRecord
	for _, r := range m.records {
		if r.VersionID == versionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

func (m *mockEscalationRepo) find(id string) *entity.EscalationRecord {
	for _, r := range m.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (m *mockEscalationRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.find(id); r != nil {
		r.Status = entity.EscalationSent
		r.Attempts++
		r.SentAt = &at
	}
	return nil
}

func (m *mockEscalationRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.find(id); r != nil {
		r.Status = entity.EscalationFailed
		r.Attempts++
		r.LastError = errMsg
	}
	return nil
}

func (m *mockEscalationRepo) MarkSkipped(ctx context.Context, id string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.find(id); r != nil && r.Status != entity.EscalationSent {
		r.Status = entity.EscalationSkipped
		r.LastError = reason
	}
	return nil
}

type mockDispatcher struct {
	mu       sync.Mutex
	events   []*event.Event
	wildcard map[string]dispatcher.Handler
}

func (m *mockDispatcher) Subscribe(eventType event.Type, handler dispatcher.Handler) {}

func (m *mockDispatcher) SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler) {
}

func (m *mockDispatcher) SubscribeAll(name string, handler dispatcher.Handler) {
	if m.wildcard == nil {
		m.wildcard = make(map[string]dispatcher.Handler)
	}
	m.wildcard[name] = handler
}

func (m *mockDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.DispatchAsync(ctx, evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo { return nil }

func (m *mockDispatcher) Close() error { return nil }

type mockRaciParser struct {
	matrix entity.RaciMatrix
	err    error
}

func (m *mockRaciParser) Parse(r io.Reader) (entity.RaciMatrix, error) {
	return m.matrix, m.err
}
