// Package extract turns a resolved document into the metadata of a content
// record: primary text, title, authors, publisher, representative image and
// outbound reference links.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/ppiankov/provenance/internal/fetch"
	"github.com/ppiankov/provenance/internal/heuristics"
	"github.com/ppiankov/provenance/internal/model"
)

// minReadableChars is the shortest readability result preferred over the
// plain visible text of the page
const minReadableChars = 200

// ErrNoContent is returned for resolutions that carry nothing to extract
var ErrNoContent = errors.New("resolution has no usable content")

// Extraction is everything the extractor learned about one document
type Extraction struct {
	Text       string
	Title      string
	Authors    []model.Author
	Publisher  model.Publisher
	Image      string
	References []model.ReferenceLink
	Media      model.MediaKind
	Retracted  bool
}

// Extractor extracts content metadata from resolved documents
type Extractor struct {
	maxReferences int
	minTitle      int
	logger        *zap.Logger
}

// NewExtractor creates a new Extractor
func NewExtractor(cfg model.ExtractConfig, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxReferences <= 0 {
		cfg.MaxReferences = 25
	}
	if cfg.MinTitleLength <= 0 {
		cfg.MinTitleLength = 8
	}
	return &Extractor{
		maxReferences: cfg.MaxReferences,
		minTitle:      cfg.MinTitleLength,
		logger:        logger.With(zap.String("component", "extractor")),
	}
}

// Extract produces the Extraction for res. nameHint is the caller-supplied
// display name, used as the title when it is long enough and sane.
func (e *Extractor) Extract(res *fetch.Resolution, rawURL, nameHint string) (*Extraction, error) {
	if res == nil {
		return nil, ErrNoContent
	}
	if rawURL == "" {
		rawURL = res.URL
	}

	switch res.Kind {
	case fetch.KindPlaceholder:
		return e.extractPlaceholder(res, rawURL, nameHint), nil
	case fetch.KindPDF:
		return e.extractPDF(res, rawURL, nameHint), nil
	case fetch.KindHTML:
		return e.extractHTML(res, rawURL, nameHint)
	default:
		return nil, ErrNoContent
	}
}

func (e *Extractor) extractPlaceholder(res *fetch.Resolution, rawURL, nameHint string) *Extraction {
	return &Extraction{
		Title:     e.resolveTitle(nameHint, nil, "", "", rawURL),
		Publisher: model.Publisher{Name: model.UnknownPublisher},
		Media:     res.Media,
	}
}

func (e *Extractor) extractPDF(res *fetch.Resolution, rawURL, nameHint string) *Extraction {
	out := &Extraction{
		Publisher: model.Publisher{Name: model.UnknownPublisher},
		Media:     model.MediaDocument,
		Retracted: res.Retracted,
	}

	var pdfTitle string
	if res.PDF != nil {
		out.Text = res.PDF.Text
		pdfTitle = res.PDF.Title
		out.Authors = mergeAuthors(nil, splitAuthorList(res.PDF.Author), "pdf")
	}
	out.Title = e.resolveTitle(nameHint, nil, "", pdfTitle, rawURL)
	if heuristics.LooksRetracted(out.Title) {
		out.Retracted = true
	}
	return out
}

func (e *Extractor) extractHTML(res *fetch.Resolution, rawURL, nameHint string) (*Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base := res.FinalURL
	if base == "" {
		base = rawURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	sd := parseStructured(doc)
	article, readErr := readability.FromReader(bytes.NewReader(res.Body), baseURL)

	out := &Extraction{
		Media:     res.Media,
		Retracted: res.Retracted,
	}
	if out.Media == "" {
		out.Media = heuristics.MediaKindForURL(rawURL)
	}

	out.Text = fetch.VisibleText(res.Body)
	if readErr == nil {
		if text := strings.TrimSpace(article.TextContent); fetch.TextLength(text) >= minReadableChars {
			out.Text = text
		}
	} else {
		e.logger.Debug("readability failed, using visible text", zap.String("url", rawURL), zap.Error(readErr))
	}

	out.Title = e.resolveTitle(nameHint, doc, sd.Headline, "", rawURL)

	var byline string
	if readErr == nil {
		byline = article.Byline
	}
	out.Authors = resolveAuthors(doc, sd, byline)
	out.Publisher = resolvePublisher(doc, sd)
	if out.Publisher.Name == model.UnknownPublisher {
		if poster, platform, ok := heuristics.PlatformPublisher(documentTitle(doc)); ok {
			out.Publisher = model.Publisher{Name: platform, Source: "title"}
			if len(out.Authors) == 0 {
				out.Authors = mergeAuthors(nil, []string{poster}, "title")
			}
		}
	}

	out.Image = resolveImage(doc, sd, baseURL)
	out.References = e.resolveReferences(doc, sd, baseURL)

	if heuristics.LooksRetracted(out.Title, metaContent(doc, "citation_title")) {
		out.Retracted = true
	}

	e.logger.Debug("extracted",
		zap.String("url", rawURL),
		zap.String("title", out.Title),
		zap.Int("authors", len(out.Authors)),
		zap.Int("references", len(out.References)),
		zap.Int("text_chars", fetch.TextLength(out.Text)),
	)
	return out, nil
}
