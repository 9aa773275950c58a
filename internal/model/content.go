package model

import "strings"

// ContentKind distinguishes the seed of a crawl from the evidence it discovers
type ContentKind string

const (
	KindTask      ContentKind = "task"      // Seed document, fully analyzed
	KindReference ContentKind = "reference" // Discovered evidence document
)

// ParseContentKind accepts "task" or "reference" (case-insensitive)
func ParseContentKind(raw string) (ContentKind, bool) {
	switch ContentKind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindTask:
		return KindTask, true
	case KindReference:
		return KindReference, true
	}
	return "", false
}

// MediaKind classifies the medium of a content record
type MediaKind string

const (
	MediaWeb      MediaKind = "Web"
	MediaYouTube  MediaKind = "YouTube"
	MediaAudio    MediaKind = "Audio"
	MediaVideo    MediaKind = "Video"
	MediaDocument MediaKind = "Document"
)

// UnknownPublisher is the sentinel used when no publisher can be resolved
const UnknownPublisher = "Unknown Publisher"

// NameParts is a person name decomposed for author upserts
type NameParts struct {
	Title  string `json:"title,omitempty"`
	First  string `json:"first,omitempty"`
	Middle string `json:"middle,omitempty"`
	Last   string `json:"last,omitempty"`
	Suffix string `json:"suffix,omitempty"`
}

// Full renders the parts back into a display name (without title and suffix)
func (n NameParts) Full() string {
	return strings.Join(strings.Fields(n.First+" "+n.Middle+" "+n.Last), " ")
}

// Author is a resolved author of a content record
type Author struct {
	Name   string    `json:"name"`   // Display name as found
	Parts  NameParts `json:"parts"`  // Decomposed name
	Source string    `json:"source"` // Which resolver found it (jsonld, meta, citation, script, pdf)
}

// Publisher is the organization that published a content record
type Publisher struct {
	Name   string `json:"name"`
	Source string `json:"source,omitempty"`
}

// ContentRecord is the unit of ingestion: one document, task or reference
type ContentRecord struct {
	URL        string          `json:"url"`
	Kind       ContentKind     `json:"kind"`
	Name       string          `json:"name"`
	Text       string          `json:"text"`
	Media      MediaKind       `json:"media"`
	Topic      string          `json:"topic,omitempty"`
	Subtopics  []string        `json:"subtopics,omitempty"`
	Image      string          `json:"image,omitempty"` // Representative image reference from the page
	Thumbnail  string          `json:"thumbnail,omitempty"`
	Retracted  bool            `json:"retracted"`
	Authors    []Author        `json:"authors,omitempty"`
	Publisher  Publisher       `json:"publisher"`
	References []ReferenceLink `json:"references,omitempty"`
	Claims     []Claim         `json:"claims,omitempty"`
}

// SetThumbnail back-fills the thumbnail; it is the only field that changes after creation
func (r *ContentRecord) SetThumbnail(ref string) {
	r.Thumbnail = ref
}
