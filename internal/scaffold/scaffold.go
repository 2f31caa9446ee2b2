// Package scaffold prepares on-disk workspaces: clones of the submitted
// repository for per-entity analysis and the simulation harness created
// from the template repository.
package scaffold

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/svylabs/ilumina/internal/gitrepo"
	"github.com/svylabs/ilumina/internal/model"
)

// Scaffolder creates and populates workspace directories.
type Scaffolder struct {
	git          *gitrepo.Git
	templateRepo string
	rootDir      string
}

// New creates a Scaffolder rooted at rootDir.
func New(git *gitrepo.Git, templateRepo, rootDir string) *Scaffolder {
	return &Scaffolder{git: git, templateRepo: templateRepo, rootDir: rootDir}
}

// WorkspaceDir returns the local directory for one workspace of a
// submission.
func (s *Scaffolder) WorkspaceDir(submissionID, workspaceID string) string {
	return filepath.Join(s.rootDir, submissionID, workspaceID)
}

// SimulationDir returns the directory holding the scaffolded simulation
// harness for a submission.
func (s *Scaffolder) SimulationDir(submissionID string) string {
	return filepath.Join(s.rootDir, submissionID, "simulation")
}

// PrepareWorkspace clones the submitted repository into the workspace
// directory. An existing clone is reused; task redelivery must not wipe
// work in progress.
func (s *Scaffolder) PrepareWorkspace(ctx context.Context, submissionID, workspaceID, repoURL string) (string, error) {
	dir := s.WorkspaceDir(submissionID, workspaceID)

	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		zap.L().Debug("reusing existing workspace", zap.String("dir", dir))
		return dir, nil
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", eris.Wrapf(err, "scaffold: create workspace parent %s", dir)
	}
	if err := s.git.Clone(ctx, repoURL, dir); err != nil {
		return "", err
	}

	zap.L().Info("prepared workspace",
		zap.String("submission_id", submissionID),
		zap.String("workspace_id", workspaceID),
	)
	return dir, nil
}

// ScaffoldSimulation creates the simulation harness from the template
// repository and writes the scenario configuration. Idempotent: an
// existing harness only gets its configuration refreshed.
func (s *Scaffolder) ScaffoldSimulation(ctx context.Context, submissionID string, actors *model.ActorSummary, scenarios []model.Scenario) (string, error) {
	dir := s.SimulationDir(submissionID)

	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return "", eris.Wrapf(err, "scaffold: create simulation parent %s", dir)
		}
		if err := s.git.Clone(ctx, s.templateRepo, dir); err != nil {
			return "", err
		}
	}

	if err := WriteSimulationConfig(dir, submissionID, actors, scenarios); err != nil {
		return "", err
	}

	zap.L().Info("scaffolded simulation harness",
		zap.String("submission_id", submissionID),
		zap.Int("actors", len(actors.Actors)),
		zap.Int("scenarios", len(scenarios)),
	)
	return dir, nil
}

// WriteGenerated writes a generated source file under the harness,
// creating intermediate directories.
func (s *Scaffolder) WriteGenerated(submissionID, relPath, content string) error {
	path := filepath.Join(s.SimulationDir(submissionID), relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "scaffold: mkdir for %s", relPath)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return eris.Wrapf(err, "scaffold: write %s", relPath)
	}
	return nil
}

// GeneratedExists reports whether a generated file is already present,
// used by implement steps to short-circuit redelivered tasks.
func (s *Scaffolder) GeneratedExists(submissionID, relPath string) bool {
	_, err := os.Stat(filepath.Join(s.SimulationDir(submissionID), relPath))
	return err == nil
}

// WriteWorkspaceFile writes a generated file into a submission workspace,
// creating intermediate directories.
func (s *Scaffolder) WriteWorkspaceFile(submissionID, workspaceID, relPath, content string) error {
	path := filepath.Join(s.WorkspaceDir(submissionID, workspaceID), relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "scaffold: mkdir for %s", relPath)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return eris.Wrapf(err, "scaffold: write %s", relPath)
	}
	return nil
}

// ReadWorkspaceFile reads a file from a submission workspace.
func (s *Scaffolder) ReadWorkspaceFile(submissionID, workspaceID, relPath string) (string, error) {
	path := filepath.Join(s.WorkspaceDir(submissionID, workspaceID), relPath)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "scaffold: read %s", relPath)
	}
	return string(data), nil
}

// WorkspaceFileExists reports whether a workspace file is already present.
func (s *Scaffolder) WorkspaceFileExists(submissionID, workspaceID, relPath string) bool {
	_, err := os.Stat(filepath.Join(s.WorkspaceDir(submissionID, workspaceID), relPath))
	return err == nil
}

// CommitAndPush records the generated files on a branch of the harness.
func (s *Scaffolder) CommitAndPush(ctx context.Context, submissionID, branch, message string) error {
	dir := s.SimulationDir(submissionID)
	if err := s.git.CommitAll(ctx, dir, message); err != nil {
		return err
	}
	if err := s.git.Push(ctx, dir, "origin", branch); err != nil {
		// The template remote may be read-only in development setups.
		zap.L().Warn("push failed, generated files remain local",
			zap.String("submission_id", submissionID),
			zap.Error(err),
		)
	}
	return nil
}
