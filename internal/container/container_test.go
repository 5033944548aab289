package container

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/controlled-docs/internal/application/workflow"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
	domainwf "github.com/garyjia/controlled-docs/internal/domain/workflow"
)

func testConfig(t *testing.T) *Config {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "docs.db")
	cfg.Storage.BaseDir = filepath.Join(dir, "renditions")
	cfg.Worker.EscalationInterval = time.Hour
	cfg.Worker.RetentionInterval = time.Hour
	return cfg
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Lifecycle.LockTTL = 0
	_, err = NewContainer(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "lock_ttl")
}

func TestContainer_Lifecycle(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(ctx), "second Start should fail")

	health := c.Health(ctx)
	assert.True(t, health.Overall)
	assert.Equal(t, "local", health.Components["leader_lock"].Message)
	assert.Equal(t, "log", health.Components["notifier"].Message)
	assert.Equal(t, 2, c.workers.Count())

	// The wired engine persists through the migrated schema
	actor := entity.Actor{ID: "alice", Roles: entity.NewRoleSet(entity.RoleSME)}
	doc, v, err := c.Engine().CreateDocument(ctx, actor, workflow.CreateDocumentCommand{
		ProjectID: "p1",
		DocType:   "URS",
		Title:     "User requirements",
		Content:   json.RawMessage(`{"body":"x"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateDraft, v.State)

	got, err := c.Engine().GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "User requirements", got.Title)

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(ctx), "closed container cannot restart")
}

func TestContainer_WorkersDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Worker.EscalationEnabled = false
	cfg.Worker.RetentionEnabled = false

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	assert.Equal(t, 0, c.workers.Count())
}

func TestContainer_RedisUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Address = "127.0.0.1:1"
	cfg.Redis.DialTimeout = 100 * time.Millisecond

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Error(t, c.Start(context.Background()))
	assert.False(t, c.Ready())
}
