package analyzer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	maxFileBytes  = 48 * 1024
	maxTotalBytes = 384 * 1024
)

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"artifacts":    true,
	"cache":        true,
	"out":          true,
	"lib":          true,
	"typechain":    true,
}

var sourceFiles = map[string]bool{
	".sol": true,
	".vy":  true,
}

var buildFiles = map[string]bool{
	"package.json":      true,
	"foundry.toml":      true,
	"hardhat.config.ts": true,
	"hardhat.config.js": true,
	"remappings.txt":    true,
}

// CollectSource walks a cloned repository and renders the contract sources
// and build files into a single bounded prompt section. Oversized files
// are truncated rather than skipped; the tree listing always survives.
func CollectSource(dir string) (string, error) {
	var tree, bodies strings.Builder
	total := 0

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		ext := filepath.Ext(d.Name())
		if !sourceFiles[ext] && !buildFiles[d.Name()] {
			return nil
		}

		fmt.Fprintf(&tree, "%s\n", rel)
		if total >= maxTotalBytes {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		truncated := false
		if len(data) > maxFileBytes {
			data = data[:maxFileBytes]
			truncated = true
		}
		if total+len(data) > maxTotalBytes {
			data = data[:maxTotalBytes-total]
			truncated = true
		}
		total += len(data)

		fmt.Fprintf(&bodies, "--- %s ---\n%s\n", rel, data)
		if truncated {
			bodies.WriteString("[truncated]\n")
		}
		return nil
	})
	if err != nil {
		return "", eris.Wrapf(err, "analyzer: collect source %s", dir)
	}

	if tree.Len() == 0 {
		return "", eris.Errorf("analyzer: no contract sources found in %s", dir)
	}

	zap.L().Debug("collected repository source",
		zap.String("dir", dir),
		zap.Int("bytes", total),
	)
	return "Files:\n" + tree.String() + "\n" + bodies.String(), nil
}
