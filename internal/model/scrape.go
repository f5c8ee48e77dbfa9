package model

import (
	"net/url"
	"time"
)

// Identity is the caller identity yielded by the upstream credential check.
// The pipeline treats it as opaque; only its presence matters.
type Identity struct {
	Subject string
}

func (i Identity) Authenticated() bool {
	return i.Subject != ""
}

type ScrapeRequest struct {
	RawURL   string
	Identity Identity
}

type ValidatedTarget struct {
	URL    *url.URL
	Scheme string
}

type FetchedDocument struct {
	SourceURL   string
	Body        []byte
	ContentType string
	StatusCode  int
	Truncated   bool // body hit the configured size cap
	FetchedAt   time.Time
}

type ExtractedText struct {
	Text        string
	SourceURL   string
	ExtractedAt time.Time
}

// ArchiveArtifact describes a stored encrypted archive. Passphrase is handed to the caller
// once and never persisted.
type ArchiveArtifact struct {
	Filename    string
	StoragePath string
	Passphrase  string
	SizeBytes   int64
}

// ArtifactRecord is the audit row written for every created artifact.
type ArtifactRecord struct {
	Identity  string
	SourceURL string
	Filename  string
	SizeBytes int64
	CreatedAt time.Time
}

type ArtifactEvent struct {
	Identity  string    `json:"identity"`
	SourceURL string    `json:"source_url"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
	Version   string    `json:"scrape_archiver_version"`
}
