package archive

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// LocalBackend writes archive objects into a directory.
type LocalBackend struct {
	dir string
}

// NewLocal creates the directory if needed.
func NewLocal(dir string) (*LocalBackend, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "archive: resolve dir %s", dir)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, eris.Wrapf(err, "archive: create dir %s", abs)
	}
	return &LocalBackend{dir: abs}, nil
}

func (l *LocalBackend) Put(_ context.Context, key string, data []byte, _ string) error {
	path := filepath.Join(l.dir, filepath.Base(key))
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "archive: write %s", path)
}

func (l *LocalBackend) Link(key string) string {
	return "file://" + filepath.ToSlash(filepath.Join(l.dir, filepath.Base(key)))
}
