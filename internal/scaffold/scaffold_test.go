package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/svylabs/ilumina/internal/model"
)

func testScaffolder(t *testing.T) *Scaffolder {
	t.Helper()
	return New(nil, "", t.TempDir())
}

func TestWorkspaceDirLayout(t *testing.T) {
	s := New(nil, "", "/data/workspaces")
	assert.Equal(t, filepath.Join("/data/workspaces", "sub1", "base"), s.WorkspaceDir("sub1", "base"))
	assert.Equal(t, filepath.Join("/data/workspaces", "sub1", "simulation"), s.SimulationDir("sub1"))
}

func TestWriteAndReadWorkspaceFile(t *testing.T) {
	s := testScaffolder(t)

	require.NoError(t, s.WriteWorkspaceFile("sub1", "base", DeployScriptFileName, "export {}"))
	assert.True(t, s.WorkspaceFileExists("sub1", "base", DeployScriptFileName))

	content, err := s.ReadWorkspaceFile("sub1", "base", DeployScriptFileName)
	require.NoError(t, err)
	assert.Equal(t, "export {}", content)

	// Overwrite is allowed; the debug step rewrites the script in place.
	require.NoError(t, s.WriteWorkspaceFile("sub1", "base", DeployScriptFileName, "fixed"))
	content, err = s.ReadWorkspaceFile("sub1", "base", DeployScriptFileName)
	require.NoError(t, err)
	assert.Equal(t, "fixed", content)
}

func TestReadWorkspaceFile_Missing(t *testing.T) {
	s := testScaffolder(t)
	_, err := s.ReadWorkspaceFile("sub1", "base", "nope.ts")
	require.Error(t, err)
	assert.False(t, s.WorkspaceFileExists("sub1", "base", "nope.ts"))
}

func TestWriteGenerated(t *testing.T) {
	s := testScaffolder(t)

	file := ActionFileName("Vault", "deposit")
	assert.False(t, s.GeneratedExists("sub1", file))

	require.NoError(t, s.WriteGenerated("sub1", file, "class VaultDepositAction {}"))
	assert.True(t, s.GeneratedExists("sub1", file))

	data, err := os.ReadFile(filepath.Join(s.SimulationDir("sub1"), file))
	require.NoError(t, err)
	assert.Equal(t, "class VaultDepositAction {}", string(data))
}

func TestWriteSimulationConfig(t *testing.T) {
	dir := t.TempDir()

	actors := &model.ActorSummary{Actors: []model.Actor{
		{
			Name:    "Liquidity Provider",
			Summary: "Provides pool liquidity.",
			Actions: []model.ActorAction{
				{ContractName: "Pool", FunctionName: "addLiquidity"},
				{ContractName: "Pool", FunctionName: "removeLiquidity"},
			},
		},
	}}
	scenarios := []model.Scenario{
		{Name: "steady-state", Actors: []model.ScenarioActor{{Name: "Liquidity Provider", Count: 3}}, Steps: 100},
	}

	require.NoError(t, WriteSimulationConfig(dir, "sub1", actors, scenarios))

	data, err := os.ReadFile(filepath.Join(dir, SimulationConfigFile))
	require.NoError(t, err)

	var cfg SimulationConfig
	require.NoError(t, yaml.Unmarshal(data, &cfg))

	assert.Equal(t, "sub1", cfg.Submission)
	require.Len(t, cfg.Actors, 1)
	assert.Equal(t, "Liquidity Provider", cfg.Actors[0].Name)
	assert.Equal(t, "LiquidityProvider", cfg.Actors[0].Class)
	assert.Equal(t, []string{"PoolAddLiquidityAction", "PoolRemoveLiquidityAction"}, cfg.Actors[0].Actions)
	require.Len(t, cfg.Scenarios, 1)
	assert.Equal(t, "steady-state", cfg.Scenarios[0].Name)
	assert.Equal(t, 100, cfg.Scenarios[0].Steps)
}
