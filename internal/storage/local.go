package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

var _ ArtifactStore = (*LocalStore)(nil)

// LocalStore keeps archives in a single directory that is served for download.
type LocalStore struct {
	dir string
	log *slog.Logger
}

func NewLocalStore(dir string, log *slog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &LocalStore{dir: dir, log: log}, nil
}

func (s *LocalStore) Put(_ context.Context, name string, srcPath string) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	dst := filepath.Join(s.dir, name)

	if err := os.Rename(srcPath, dst); err != nil {
		// Different filesystems: copy then drop the source.
		if err := copyFile(srcPath, dst); err != nil {
			_ = os.Remove(dst)
			return "", fmt.Errorf("store artifact: %w", err)
		}
		if err := os.Remove(srcPath); err != nil {
			s.log.Warn("failed to remove staged archive.", slog.String("err", err.Error()))
		}
	}
	s.log.Debug("artifact stored.", slog.String("name", name))

	return dst, nil
}

func (s *LocalStore) Open(_ context.Context, name string) (io.ReadCloser, int64, error) {
	if !ValidName(name) {
		return nil, 0, ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, 0, ErrNotFound
	}

	return f, info.Size(), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}

	return out.Close()
}
