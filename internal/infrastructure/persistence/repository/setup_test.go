package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/internal/domain/workflow"
	"github.com/garyjia/controlled-docs/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/controlled-docs/pkg/database"
)

type testStore struct {
	tx          *sqlite.DB
	documents   *DocumentRepository
	versions    *VersionRepository
	transitions *TransitionRepository
	comments    *CommentRepository
	policies    *PolicyRepository
	templates   *TemplateRepository
	escalations *EscalationRepository
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "docs.db"),
		MaxOpenConns: 4,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).Up())

	return &testStore{
		tx:          sqlite.NewDB(db.DB, logger),
		documents:   NewDocumentRepository(db.DB, logger).(*DocumentRepository),
		versions:    NewVersionRepository(db.DB, logger).(*VersionRepository),
		transitions: NewTransitionRepository(db.DB, logger).(*TransitionRepository),
		comments:    NewCommentRepository(db.DB, logger).(*CommentRepository),
		policies:    NewPolicyRepository(db.DB, logger).(*PolicyRepository),
		templates:   NewTemplateRepository(db.DB, logger),
		escalations: NewEscalationRepository(db.DB, logger).(*EscalationRepository),
	}
}

// seedDocument stores a document with a first DRAFT version
func (s *testStore) seedDocument(t *testing.T, projectID, docType string) (*entity.Document, *entity.DocumentVersion) {
	t.Helper()
	ctx := context.Background()

	doc := &entity.Document{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		DocType:   docType,
		Title:     docType + " document",
		CreatedBy: "alice",
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	require.NoError(t, s.documents.Create(ctx, doc))

	v := &entity.DocumentVersion{
		ID:            uuid.NewString(),
		DocumentID:    doc.ID,
		Number:        1,
		VersionString: "1.0",
		State:         workflow.StateDraft,
		CreatedBy:     "alice",
		CreatedAt:     t0,
		UpdatedAt:     t0,
	}
	require.NoError(t, s.versions.Create(ctx, v))
	return doc, v
}
