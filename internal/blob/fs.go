package blob

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// FSStore implements Store on the local filesystem, for development and
// tests.
type FSStore struct {
	root string
}

// NewFS creates a filesystem-backed store rooted at dir.
func NewFS(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "blob: mkdir %s", dir)
	}
	return &FSStore{root: dir}, nil
}

func (s *FSStore) WriteJSON(_ context.Context, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "blob: marshal %s", path)
	}

	full := filepath.Join(s.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return eris.Wrapf(err, "blob: mkdir for %s", path)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return eris.Wrapf(err, "blob: write %s", path)
	}
	return nil
}

func (s *FSStore) ReadJSON(_ context.Context, path string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(path)))
	if err != nil {
		return eris.Wrapf(err, "blob: read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "blob: decode %s", path)
	}
	return nil
}

func (s *FSStore) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(path)))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "blob: stat %s", path)
	}
	return true, nil
}
