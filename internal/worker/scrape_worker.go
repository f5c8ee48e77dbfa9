package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IliaW/url-scrape-archiver/internal/archiver"
	"github.com/IliaW/url-scrape-archiver/internal/cache"
	"github.com/IliaW/url-scrape-archiver/internal/crawler"
	"github.com/IliaW/url-scrape-archiver/internal/extractor"
	"github.com/IliaW/url-scrape-archiver/internal/metrics"
	"github.com/IliaW/url-scrape-archiver/internal/model"
	"github.com/IliaW/url-scrape-archiver/internal/persistence"
)

type TargetValidator interface {
	Validate(rawURL string) (*model.ValidatedTarget, error)
}

// ScrapeWorker runs the validate, fetch, extract and archive stages for one request.
// Throttle, Db and OutputChan are optional. A single ScrapeWorker is shared by all
// concurrent requests; it holds no per-request state.
type ScrapeWorker struct {
	Validator  TargetValidator
	Fetcher    crawler.Fetcher
	Extractor  extractor.TextExtractor
	Archiver   archiver.Archiver
	Throttle   cache.Throttle
	Db         persistence.MetadataStorage
	OutputChan chan<- *model.ArtifactEvent
	Log        *slog.Logger
	Version    string
}

// Run executes the pipeline. It returns either a complete artifact or a *PipelineError.
func (w *ScrapeWorker) Run(ctx context.Context, req *model.ScrapeRequest) (artifact *model.ArchiveArtifact,
	err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			w.Log.Error("PANIC!", slog.Any("err", r))
			artifact, err = nil, newError(Internal, fmt.Errorf("panic: %v", r))
		}
		w.record(start, artifact, err)
	}()

	if !req.Identity.Authenticated() {
		return nil, newError(Unauthorized, nil)
	}
	log := w.Log.With(slog.String("identity", req.Identity.Subject))

	if w.Throttle != nil {
		allowed, err := w.Throttle.Allow(req.Identity.Subject)
		if err != nil {
			log.Warn("throttle unavailable, request allowed.", slog.String("err", err.Error()))
		} else if !allowed {
			return nil, newError(TooManyRequests, nil)
		}
	}

	stageStart := time.Now()
	target, err := w.Validator.Validate(req.RawURL)
	metrics.ObserveStage("validate", stageStart)
	if err != nil {
		log.Info("url rejected.", slog.String("err", err.Error()))
		return nil, classify(err, InvalidURL)
	}
	log = log.With(slog.String("url", target.URL.String()))

	stageStart = time.Now()
	doc, err := w.Fetcher.Fetch(ctx, target)
	metrics.ObserveStage("fetch", stageStart)
	if err != nil {
		log.Warn("fetch failed.", slog.String("err", err.Error()))
		return nil, classify(err, FetchError)
	}
	if doc.Truncated {
		log.Warn("response body truncated at the size cap.")
	}

	stageStart = time.Now()
	text, err := w.Extractor.Extract(doc)
	metrics.ObserveStage("extract", stageStart)
	if err != nil {
		log.Warn("extraction failed.", slog.String("err", err.Error()))
		return nil, classify(err, ExtractError)
	}

	stageStart = time.Now()
	artifact, err = w.Archiver.Archive(ctx, text)
	metrics.ObserveStage("archive", stageStart)
	if err != nil {
		log.Error("archiving failed.", slog.String("err", err.Error()))
		return nil, classify(err, PackagingError)
	}
	log.Info("artifact created.", slog.String("filename", artifact.Filename),
		slog.Int64("size", artifact.SizeBytes))

	w.publish(ctx, req.Identity, text.SourceURL, artifact)

	return artifact, nil
}

// publish records the artifact and emits its event. Neither can fail the run.
func (w *ScrapeWorker) publish(ctx context.Context, identity model.Identity, sourceURL string,
	artifact *model.ArchiveArtifact) {
	createdAt := time.Now().UTC()
	if w.Db != nil {
		w.Db.Save(ctx, &model.ArtifactRecord{
			Identity:  identity.Subject,
			SourceURL: sourceURL,
			Filename:  artifact.Filename,
			SizeBytes: artifact.SizeBytes,
			CreatedAt: createdAt,
		})
	}
	if w.OutputChan != nil {
		event := &model.ArtifactEvent{
			Identity:  identity.Subject,
			SourceURL: sourceURL,
			Filename:  artifact.Filename,
			SizeBytes: artifact.SizeBytes,
			CreatedAt: createdAt,
			Version:   w.Version,
		}
		select {
		case w.OutputChan <- event:
		default:
			w.Log.Warn("event channel is full, artifact event dropped.", slog.String("filename", artifact.Filename))
		}
	}
}

func (w *ScrapeWorker) record(start time.Time, artifact *model.ArchiveArtifact, err error) {
	if err != nil {
		metrics.RecordRun(KindOf(err).String(), time.Since(start), 0)
		return
	}
	metrics.RecordRun("ok", time.Since(start), artifact.SizeBytes)
}
