package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svylabs/ilumina/internal/model"
)

func TestFSStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)

	in := map[string]any{"name": "vault", "version": float64(2)}
	require.NoError(t, s.WriteJSON(ctx, "workspaces/sub1/summary/v2.json", in))

	ok, err := s.Exists(ctx, "workspaces/sub1/summary/v2.json")
	require.NoError(t, err)
	assert.True(t, ok)

	var out map[string]any
	require.NoError(t, s.ReadJSON(ctx, "workspaces/sub1/summary/v2.json", &out))
	assert.Equal(t, in, out)
}

func TestFSStore_MissingObject(t *testing.T) {
	ctx := context.Background()
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)

	ok, err := s.Exists(ctx, "workspaces/sub1/summary/v1.json")
	require.NoError(t, err)
	assert.False(t, ok)

	var out map[string]any
	assert.Error(t, s.ReadJSON(ctx, "workspaces/sub1/summary/v1.json", &out))
}

func TestArtifactHelpers(t *testing.T) {
	ctx := context.Background()
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)

	ver := model.ArtifactVersion{SubmissionID: "sub1", Kind: model.ArtifactProjectSummary, Version: 3}
	in := model.ProjectSummary{Name: "vault", Contracts: []model.ContractSummary{{Name: "Vault"}}}
	require.NoError(t, WriteArtifact(ctx, s, ver, in))

	var out model.ProjectSummary
	require.NoError(t, ReadArtifact(ctx, s, ver, &out))
	assert.Equal(t, in, out)

	// Versions are distinct objects.
	other := model.ArtifactVersion{SubmissionID: "sub1", Kind: model.ArtifactProjectSummary, Version: 4}
	assert.Error(t, ReadArtifact(ctx, s, other, &out))
}

func TestArtifactVersionPath(t *testing.T) {
	ver := model.ArtifactVersion{SubmissionID: "sub1", Kind: model.ArtifactActorSummary, Version: 7}
	assert.Equal(t, "workspaces/sub1/actor-summary/v7.json", ver.Path())
}
