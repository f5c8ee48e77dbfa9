package persistence

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/IliaW/url-scrape-archiver/internal/model"
)

type MetadataStorage interface {
	Save(context.Context, *model.ArtifactRecord)
}

type MetadataRepository struct {
	db      *sql.DB
	timeout time.Duration
	log     *slog.Logger
}

func NewMetadataRepository(db *sql.DB, log *slog.Logger) *MetadataRepository {
	return &MetadataRepository{db: db, timeout: 3 * time.Second, log: log}
}

// Save writes the audit row for a created artifact. Failures are logged only.
func (mr *MetadataRepository) Save(ctx context.Context, record *model.ArtifactRecord) {
	// the artifact already exists, so a cancelled request must not drop its record
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mr.timeout)
	defer cancel()

	_, err := mr.db.ExecContext(ctx, "INSERT INTO scrape_artifact (identity, source_url, filename, size_bytes, created_at) VALUES (?, ?, ?, ?, ?)",
		record.Identity,
		record.SourceURL,
		record.Filename,
		record.SizeBytes,
		record.CreatedAt)
	if err != nil {
		mr.log.Error("failed to save artifact record to database.", slog.String("filename", record.Filename),
			slog.String("err", err.Error()))
		return
	}
	mr.log.Debug("artifact record saved to db.", slog.String("filename", record.Filename))
}
