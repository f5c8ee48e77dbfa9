package worker

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/IliaW/url-scrape-archiver/internal/archiver"
	"github.com/IliaW/url-scrape-archiver/internal/crawler"
	"github.com/IliaW/url-scrape-archiver/internal/extractor"
	"github.com/IliaW/url-scrape-archiver/internal/validator"
)

// Kind classifies a failed run. The zero value is Internal.
type Kind int

const (
	Internal Kind = iota
	InvalidURL
	BlockedTarget
	FetchTimeout
	FetchError
	ExtractError
	PackagingError
	Unauthorized
	TooManyRequests
)

var kindNames = map[Kind]string{
	Internal:        "Internal",
	InvalidURL:      "InvalidURL",
	BlockedTarget:   "BlockedTarget",
	FetchTimeout:    "FetchTimeout",
	FetchError:      "FetchError",
	ExtractError:    "ExtractError",
	PackagingError:  "PackagingError",
	Unauthorized:    "Unauthorized",
	TooManyRequests: "TooManyRequests",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) Status() int {
	switch k {
	case InvalidURL:
		return http.StatusBadRequest
	case BlockedTarget:
		return http.StatusForbidden
	case FetchTimeout:
		return http.StatusGatewayTimeout
	case Unauthorized:
		return http.StatusUnauthorized
	case TooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Message is the caller-facing text for k. It never carries internal detail.
func (k Kind) Message() string {
	switch k {
	case InvalidURL:
		return validator.MsgInvalidFormat
	case BlockedTarget:
		return "Access to private/internal IPs is not allowed"
	case FetchTimeout:
		return "The target website did not respond in time."
	case FetchError, ExtractError:
		return "Scraping failed"
	case PackagingError:
		return "Failed to create ZIP file"
	case Unauthorized:
		return "Unauthorized"
	case TooManyRequests:
		return "Too many requests, please try again later."
	default:
		return "Server error"
	}
}

// PipelineError is the only error type Run returns. Msg is safe to show to the caller;
// Err holds the internal cause and is for logs only.
type PipelineError struct {
	Kind Kind
	Msg  string
	Err  error
}

func newError(kind Kind, err error) *PipelineError {
	return &PipelineError{Kind: kind, Msg: kind.Message(), Err: err}
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of err, or Internal when err is not a PipelineError.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return Internal
}

// classify maps a stage error onto a kind, falling back to the stage's own kind.
func classify(err error, fallback Kind) *PipelineError {
	var invalid *validator.InvalidURLError
	switch {
	case errors.As(err, &invalid):
		return &PipelineError{Kind: InvalidURL, Msg: invalid.Reason, Err: err}
	case errors.Is(err, validator.ErrInvalidURL):
		return newError(InvalidURL, err)
	case errors.Is(err, validator.ErrBlockedTarget):
		return newError(BlockedTarget, err)
	case errors.Is(err, crawler.ErrFetchTimeout):
		return newError(FetchTimeout, err)
	case errors.Is(err, crawler.ErrFetch):
		return newError(FetchError, err)
	case errors.Is(err, extractor.ErrExtract):
		return newError(ExtractError, err)
	case errors.Is(err, archiver.ErrPackaging):
		return newError(PackagingError, err)
	default:
		return newError(fallback, err)
	}
}
