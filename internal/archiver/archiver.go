// Package archiver packs extracted text into a password protected archive.
//
// The plaintext intermediate never outlives a call to Archive: it is removed on success,
// on tool failure and on every I/O error.
package archiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/IliaW/url-scrape-archiver/config"
	"github.com/IliaW/url-scrape-archiver/internal/model"
	"github.com/IliaW/url-scrape-archiver/internal/storage"
	"github.com/google/uuid"
)

var ErrPackaging = errors.New("packaging failed")

type Archiver interface {
	Archive(context.Context, *model.ExtractedText) (*model.ArchiveArtifact, error)
}

type ArchiveService struct {
	workDir     string
	extension   string
	store       storage.ArtifactStore
	packager    Packager
	passphrases *PassphraseGenerator
	log         *slog.Logger
	now         func() time.Time
}

func NewArchiveService(cfg *config.ArchiveConfig, store storage.ArtifactStore, packager Packager,
	log *slog.Logger) (*ArchiveService, error) {
	passphrases, err := NewPassphraseGenerator(cfg.PassphraseLength, cfg.PassphraseCharset)
	if err != nil {
		return nil, err
	}

	return &ArchiveService{
		workDir:     cfg.WorkDir,
		extension:   cfg.Extension,
		store:       store,
		packager:    packager,
		passphrases: passphrases,
		log:         log,
		now:         time.Now,
	}, nil
}

// NewBaseName combines a millisecond timestamp with a random UUID. The result only
// contains [a-z0-9_-], so it is safe as a download path component.
func NewBaseName(t time.Time) string {
	return fmt.Sprintf("scraped_%d_%s", t.UnixMilli(), uuid.NewString())
}

func (a *ArchiveService) Archive(ctx context.Context, text *model.ExtractedText) (*model.ArchiveArtifact, error) {
	base := NewBaseName(a.now())
	filename := base + a.extension
	txtPath := filepath.Join(a.workDir, base+".txt")
	archivePath := filepath.Join(a.workDir, filename)

	if err := os.MkdirAll(a.workDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create work dir: %w", ErrPackaging, err)
	}

	defer a.remove(txtPath)
	if err := writePlaintext(txtPath, text.Text); err != nil {
		return nil, fmt.Errorf("%w: write plaintext: %w", ErrPackaging, err)
	}

	passphrase, err := a.passphrases.Generate()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPackaging, err)
	}

	if err = a.packager.Package(ctx, txtPath, archivePath, passphrase); err != nil {
		a.remove(archivePath)
		if errors.Is(err, ErrPackaging) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrPackaging, err)
	}

	// The plaintext must be gone before the archive is handed out.
	if err = os.Remove(txtPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		a.remove(archivePath)
		return nil, fmt.Errorf("%w: remove plaintext: %w", ErrPackaging, err)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: archive missing after packaging: %w", ErrPackaging, err)
	}

	storagePath, err := a.store.Put(ctx, filename, archivePath)
	if err != nil {
		a.remove(archivePath)
		return nil, fmt.Errorf("%w: %w", ErrPackaging, err)
	}
	a.log.Debug("artifact ready.", slog.String("file", filename), slog.Int64("size", info.Size()))

	return &model.ArchiveArtifact{
		Filename:    filename,
		StoragePath: storagePath,
		Passphrase:  passphrase,
		SizeBytes:   info.Size(),
	}, nil
}

func (a *ArchiveService) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		a.log.Error("failed to remove file.", slog.String("path", path), slog.String("err", err.Error()))
	}
}

func writePlaintext(path, text string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err = f.WriteString(text); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}
