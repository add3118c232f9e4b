package projects

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raunak-cloud/pocket-dev/internal/app/domain/project"
	"github.com/Raunak-cloud/pocket-dev/internal/app/storage/memory"
)

func TestCreateValidates(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, "", "site")
	require.Error(t, err)

	_, err = svc.Create(ctx, "u1", "   ")
	require.Error(t, err)

	p, err := svc.Create(ctx, "u1", "  site  ")
	require.NoError(t, err)
	assert.Equal(t, "site", p.Name)
	assert.Equal(t, "u1", p.UserID)
}

func TestPublishRequiresFiles(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, "u1", "site")
	require.NoError(t, err)

	_, err = svc.Publish(ctx, p.ID)
	require.Error(t, err, "empty project must not publish")

	p.Files = []project.File{{Path: "index.html", Content: "<html></html>"}}
	_, err = store.UpdateProject(ctx, p)
	require.NoError(t, err)

	published, err := svc.Publish(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, published.Published)
	assert.False(t, published.PublishStale)
}

func TestApplyFlipsPublishStale(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()

	p, err := store.CreateProject(ctx, project.Project{
		UserID: "u1",
		Name:   "site",
		Files:  []project.File{{Path: "index.html", Content: "v1"}},
	})
	require.NoError(t, err)

	// Unpublished projects never go stale.
	p.Files[0].Content = "v2"
	updated, err := svc.Apply(ctx, p)
	require.NoError(t, err)
	assert.False(t, updated.PublishStale)

	published, err := svc.Publish(ctx, updated.ID)
	require.NoError(t, err)

	published.Files[0].Content = "v3"
	updated, err = svc.Apply(ctx, published)
	require.NoError(t, err)
	assert.True(t, updated.PublishStale, "edits after publish must mark the published version stale")

	// Re-publishing clears the flag again.
	republished, err := svc.Publish(ctx, updated.ID)
	require.NoError(t, err)
	assert.False(t, republished.PublishStale)
}

func TestListOrdersByRecency(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	first, err := svc.Create(ctx, "u1", "first")
	require.NoError(t, err)
	second, err := svc.Create(ctx, "u1", "second")
	require.NoError(t, err)

	// Touching the older project moves it to the front.
	_, err = svc.Rename(ctx, first.ID, "first-renamed")
	require.NoError(t, err)

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}

func TestDeleteHidesProject(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, "u1", "site")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, p.ID))

	_, err = svc.Get(ctx, p.ID)
	assert.Error(t, err)

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}
