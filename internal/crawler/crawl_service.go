package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/IliaW/url-scrape-archiver/config"
	"github.com/IliaW/url-scrape-archiver/internal/model"
	"github.com/IliaW/url-scrape-archiver/internal/validator"
	"github.com/gocolly/colly"
)

var (
	ErrFetchTimeout = errors.New("fetch timed out")
	ErrFetch        = errors.New("fetch failed")
)

type Fetcher interface {
	Fetch(context.Context, *model.ValidatedTarget) (*model.FetchedDocument, error)
}

// FetchService performs one bounded GET per call. No retries.
type FetchService struct {
	cfg       *config.FetcherConfig
	log       *slog.Logger
	transport http.RoundTripper
	hostCheck func(host string) error
}

func NewFetchService(cfg *config.FetcherConfig, log *slog.Logger) *FetchService {
	dialer := &net.Dialer{
		Timeout:   cfg.Timeout,
		KeepAlive: 30 * time.Second,
	}
	dial := dialer.DialContext
	if cfg.ResolveBeforeConnect {
		dial = SafeDialContext(dialer, net.DefaultResolver)
	}

	return &FetchService{
		cfg: cfg,
		log: log,
		transport: &http.Transport{
			DialContext:           dial,
			TLSHandshakeTimeout:   cfg.Timeout,
			ResponseHeaderTimeout: cfg.Timeout,
			MaxIdleConns:          20,
			IdleConnTimeout:       90 * time.Second,
		},
		hostCheck: validator.CheckHost,
	}
}

func (f *FetchService) Fetch(ctx context.Context, target *model.ValidatedTarget) (*model.FetchedDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	doc := &model.FetchedDocument{SourceURL: target.URL.String()}

	c := colly.NewCollector()
	c.UserAgent = f.cfg.UserAgent
	c.MaxBodySize = f.cfg.MaxBodySize
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true // status is checked below, every non-2xx is a FetchError
	c.SetRequestTimeout(f.cfg.Timeout)
	c.WithTransport(&guardedTransport{ctx: ctx, base: f.transport, hostCheck: f.hostCheck})

	c.OnResponse(func(resp *colly.Response) {
		doc.StatusCode = resp.StatusCode
		doc.Body = resp.Body
		if resp.Headers != nil {
			doc.ContentType = resp.Headers.Get("Content-Type")
		}
	})

	start := time.Now()
	err := c.Visit(doc.SourceURL)
	doc.FetchedAt = time.Now().UTC()
	if err != nil {
		f.log.Warn("fetch failed.", slog.String("url", doc.SourceURL), slog.String("err", err.Error()),
			slog.Duration("elapsed", time.Since(start)))
		return nil, classify(err)
	}
	if doc.StatusCode < http.StatusOK || doc.StatusCode >= http.StatusMultipleChoices {
		f.log.Warn("unexpected status code.", slog.String("url", doc.SourceURL), slog.Int("status", doc.StatusCode))
		return nil, fmt.Errorf("%w: status %d", ErrFetch, doc.StatusCode)
	}
	if f.cfg.MaxBodySize > 0 && len(doc.Body) >= f.cfg.MaxBodySize {
		doc.Truncated = true
		f.log.Warn("response body truncated.", slog.String("url", doc.SourceURL),
			slog.Int("max_body_size", f.cfg.MaxBodySize))
	}
	f.log.Debug("page fetched.", slog.String("url", doc.SourceURL), slog.Int("bytes", len(doc.Body)),
		slog.Duration("elapsed", time.Since(start)))

	return doc, nil
}

func classify(err error) error {
	if errors.Is(err, validator.ErrBlockedTarget) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrFetchTimeout, err)
	}

	return fmt.Errorf("%w: %w", ErrFetch, err)
}

// guardedTransport binds every request, redirects included, to the fetch context and
// re-applies the host blocklist to each hop.
type guardedTransport struct {
	ctx       context.Context
	base      http.RoundTripper
	hostCheck func(host string) error
}

func (t *guardedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.hostCheck(req.URL.Hostname()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req.WithContext(t.ctx))
}
