package fetch

import "github.com/ppiankov/provenance/internal/model"

// Kind classifies what the resolver produced
type Kind string

const (
	KindHTML        Kind = "html"
	KindPDF         Kind = "pdf"
	KindPlaceholder Kind = "placeholder" // Non-scrapable media; no network was touched
	KindUnusable    Kind = "unusable"
)

// Stage names the step of the fallback chain that produced a body
type Stage string

const (
	StageLiveDOM     Stage = "live_dom"
	StageCache       Stage = "cache"
	StageProbe       Stage = "probe"
	StageSocial      Stage = "social"
	StageDirect      Stage = "direct"
	StageRender      Stage = "render"
	StageArchive     Stage = "archive"
	StagePDF         Stage = "pdf"
	StagePlaceholder Stage = "placeholder"
)

// Resolution is the outcome of resolving one URL
type Resolution struct {
	Kind        Kind            `json:"kind"`
	URL         string          `json:"url"`       // As requested
	FinalURL    string          `json:"final_url"` // After redirects
	Stage       Stage           `json:"stage"`
	ContentType string          `json:"content_type,omitempty"`
	Body        []byte          `json:"body,omitempty"` // HTML for KindHTML, raw bytes for KindPDF
	Media       model.MediaKind `json:"media"`
	Retracted   bool            `json:"retracted"`
	PDF         *PDFDocument    `json:"pdf,omitempty"`
	Thumbnail   []byte          `json:"-"` // First-page raster for PDFs
	Attempts    []Attempt       `json:"-"`
}

// Attempt records a failed stage, for logs
type Attempt struct {
	Stage Stage
	Err   error
}

// Usable reports whether extraction can run on the resolution
func (r *Resolution) Usable() bool {
	return r != nil && (r.Kind == KindHTML || r.Kind == KindPDF)
}

// Strategy tells the resolver where the first body comes from
type Strategy interface {
	strategy()
}

// LiveDom uses a DOM the caller already holds (for example the page loaded in
// a browser extension). The chain only runs if that DOM is too thin.
type LiveDom struct {
	HTML string
}

// RemoteFetch runs the full network chain
type RemoteFetch struct{}

func (LiveDom) strategy()     {}
func (RemoteFetch) strategy() {}
