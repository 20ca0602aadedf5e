// Package normalize turns RSS 2.0, Atom and JSON Feed documents into the
// canonical feed and entry shape stored by the poller.
//
// Normalize is pure: it performs no I/O and depends only on the body and the
// URL the body was fetched from.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"

	"github.com/STRATINT/feedpoller/internal/models"
)

// Format identifies the syndication format detected in a body.
type Format string

const (
	FormatRSS     Format = "rss"
	FormatAtom    Format = "atom"
	FormatJSON    Format = "json"
	FormatUnknown Format = "unknown"
)

// ParseError reports a body that was recognised as a feed format but could
// not be parsed as one.
type ParseError struct {
	Format Format
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s feed: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// document is one parsed feed of a known format.
type document interface {
	format() Format
	normalize(fetchURL string) *models.NormalizedFeed
}

type rssDocument struct{ feed *rss.Feed }

type atomDocument struct{ feed *atom.Feed }

type jsonDocument struct{ feed *jsonFeed }

func (rssDocument) format() Format  { return FormatRSS }
func (atomDocument) format() Format { return FormatAtom }
func (jsonDocument) format() Format { return FormatJSON }

var xmlEncodingDecl = regexp.MustCompile(`^(\s*<\?xml[^>]*?encoding\s*=\s*)["'][^"']*["']`)

// Normalize parses raw and returns its canonical form. Bodies in an
// unrecognised format yield an empty entry list and no error.
func Normalize(raw, fetchURL string) (*models.NormalizedFeed, error) {
	doc, err := parse(raw)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return &models.NormalizedFeed{
			Format:  string(FormatUnknown),
			FeedURL: fetchURL,
			Entries: []models.NormalizedEntry{},
		}, nil
	}

	out := doc.normalize(fetchURL)
	out.Format = string(doc.format())
	return out, nil
}

func parse(raw string) (document, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))

	if strings.HasPrefix(trimmed, "{") {
		if feed := decodeJSONFeed(trimmed); feed != nil {
			return jsonDocument{feed: feed}, nil
		}
	}

	// The fetcher has already transcoded the body; a non-UTF-8 encoding
	// declaration would make the XML reader decode it a second time.
	if utf8.ValidString(trimmed) {
		trimmed = xmlEncodingDecl.ReplaceAllString(trimmed, `${1}"UTF-8"`)
	}

	switch gofeed.DetectFeedType(strings.NewReader(trimmed)) {
	case gofeed.FeedTypeRSS:
		feed, err := (&rss.Parser{}).Parse(strings.NewReader(trimmed))
		if err != nil {
			return nil, &ParseError{Format: FormatRSS, Err: err}
		}
		return rssDocument{feed: feed}, nil
	case gofeed.FeedTypeAtom:
		feed, err := (&atom.Parser{}).Parse(strings.NewReader(trimmed))
		if err != nil {
			return nil, &ParseError{Format: FormatAtom, Err: err}
		}
		return atomDocument{feed: feed}, nil
	default:
		return nil, nil
	}
}
