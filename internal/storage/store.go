// Package storage keeps finished archives reachable by their generated file name.
package storage

import (
	"context"
	"errors"
	"io"
	"mime"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("artifact not found")

// ArtifactStore persists archives by name. Put takes ownership of the file at srcPath:
// after a successful call the source file no longer exists.
type ArtifactStore interface {
	Put(ctx context.Context, name string, srcPath string) (storagePath string, err error)
	Open(ctx context.Context, name string) (io.ReadCloser, int64, error)
}

// ValidName reports whether name is safe to use as a single download path component.
func ValidName(name string) bool {
	if name == "" || len(name) > 255 || strings.HasPrefix(name, ".") {
		return false
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == '.') {
			return false
		}
	}
	return !strings.Contains(name, "..")
}

// ContentType guesses the download content type from the archive extension.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".zip":
		return "application/zip"
	case ".7z":
		return "application/x-7z-compressed"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
