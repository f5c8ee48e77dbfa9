package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/IliaW/url-scrape-archiver/internal/model"
	"github.com/PuerkitoBio/goquery"
)

var ErrExtract = errors.New("extract failed")

// Elements whose text is never shown to a reader.
const hiddenSelector = "script, style, noscript, template"

type TextExtractor interface {
	Extract(*model.FetchedDocument) (*model.ExtractedText, error)
}

// Extractor derives the visible body text of a markup document.
type Extractor struct {
	now func() time.Time
}

func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

func (e *Extractor) Extract(doc *model.FetchedDocument) (*model.ExtractedText, error) {
	if err := checkMarkup(doc); err != nil {
		return nil, err
	}

	d, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %w", ErrExtract, err)
	}
	body := d.Find("body")
	body.Find(hiddenSelector).Remove()

	return &model.ExtractedText{
		Text:        Normalize(body.Text()),
		SourceURL:   doc.SourceURL,
		ExtractedAt: e.now().UTC(),
	}, nil
}

// Normalize collapses every whitespace run to a single space and trims both ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// checkMarkup refuses bodies that are not text: a declared non-text content type, or,
// when none is declared, content that sniffs as binary.
func checkMarkup(doc *model.FetchedDocument) error {
	contentType := doc.ContentType
	if contentType == "" {
		if len(doc.Body) == 0 {
			return nil
		}
		contentType = http.DetectContentType(doc.Body)
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("%w: bad content type %q", ErrExtract, contentType)
	}
	if strings.HasPrefix(mediaType, "text/") {
		return nil
	}
	switch mediaType {
	case "application/xhtml+xml", "application/xml":
		return nil
	}

	return fmt.Errorf("%w: unsupported content type %q", ErrExtract, mediaType)
}
