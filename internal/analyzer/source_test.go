package analyzer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCollectSource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "contracts/Vault.sol", "contract Vault {}")
	writeFile(t, dir, "contracts/lib/Math.sol", "library Math {}")
	writeFile(t, dir, "hardhat.config.ts", "export default {};")
	writeFile(t, dir, "package.json", `{"name":"vault"}`)
	writeFile(t, dir, "README.md", "# not collected")
	writeFile(t, dir, "node_modules/dep/index.sol", "contract Dep {}")
	writeFile(t, dir, ".git/config", "[core]")

	src, err := CollectSource(dir)
	require.NoError(t, err)

	assert.Contains(t, src, "contracts/Vault.sol")
	assert.Contains(t, src, "contract Vault {}")
	assert.Contains(t, src, "hardhat.config.ts")
	assert.Contains(t, src, `{"name":"vault"}`)

	// Vendored and irrelevant files stay out of the prompt.
	assert.NotContains(t, src, "README.md")
	assert.NotContains(t, src, "node_modules")
	assert.NotContains(t, src, "contract Dep")
	// The lib skip applies to dependency checkouts at any depth.
	assert.NotContains(t, src, "library Math")
}

func TestCollectSource_NoContracts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README.md", "nothing here")

	_, err := CollectSource(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no contract sources")
}

func TestCollectSource_TruncatesOversizedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "contracts/Big.sol", strings.Repeat("x", maxFileBytes+1000))

	src, err := CollectSource(dir)
	require.NoError(t, err)

	assert.Contains(t, src, "[truncated]")
	assert.Less(t, len(src), maxFileBytes+1000)
}
