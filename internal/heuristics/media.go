package heuristics

import (
	"strings"

	"github.com/ppiankov/provenance/internal/model"
)

var (
	videoExt    = set(".mp4", ".m4v", ".mov", ".avi", ".mkv", ".webm", ".wmv", ".flv", ".mpeg", ".mpg", ".3gp")
	audioExt    = set(".mp3", ".wav", ".m4a", ".aac", ".flac", ".ogg", ".oga", ".opus", ".wma")
	documentExt = set(".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".odt", ".ods", ".odp", ".rtf", ".epub")
	binaryExt   = set(".zip", ".gz", ".tgz", ".tar", ".rar", ".7z", ".bz2", ".xz", ".exe", ".msi", ".dmg", ".pkg", ".deb", ".rpm", ".apk", ".iso", ".bin", ".jar")
	imageExt    = set(".jpg", ".jpeg", ".png", ".gif", ".webp", ".avif", ".bmp", ".tif", ".tiff")
)

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// IsNonScrapable reports whether the URL points at a binary the resolver
// cannot extract text from (archives, executables, office documents, audio, video).
// PDFs are scrapable.
func IsNonScrapable(rawURL string) bool {
	ext := Extension(rawURL)
	return videoExt[ext] || audioExt[ext] || documentExt[ext] || binaryExt[ext]
}

// MediaKindForURL classifies the medium of a URL from its host and extension
func MediaKindForURL(rawURL string) model.MediaKind {
	domain := Domain(rawURL)
	switch {
	case domain == "youtu.be", domain == "youtube.com", strings.HasSuffix(domain, ".youtube.com"):
		return model.MediaYouTube
	case domain == "open.spotify.com", domain == "soundcloud.com", domain == "podcasts.apple.com":
		return model.MediaAudio
	case domain == "vimeo.com", domain == "tiktok.com", strings.HasSuffix(domain, ".tiktok.com"):
		return model.MediaVideo
	}

	ext := Extension(rawURL)
	switch {
	case videoExt[ext]:
		return model.MediaVideo
	case audioExt[ext]:
		return model.MediaAudio
	case documentExt[ext], ext == ".pdf":
		return model.MediaDocument
	}
	return model.MediaWeb
}

var iconHints = []string{"icon", "logo", "sprite", "avatar", "favicon", "badge", "pixel", "spacer", "emoji", "button", "placeholder", "blank."}

// LooksLikePhoto filters image references down to real photos: no data URIs,
// no SVGs, no icon/logo/tracking-pixel names, and not smaller than 50px on a
// declared side (0 = undeclared).
func LooksLikePhoto(src string, width, height int) bool {
	s := strings.TrimSpace(src)
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "blob:") {
		return false
	}
	if Extension(s) == ".svg" || strings.Contains(lower, ".svg?") {
		return false
	}
	for _, hint := range iconHints {
		if strings.Contains(lower, hint) {
			return false
		}
	}
	if (width > 0 && width < 50) || (height > 0 && height < 50) {
		return false
	}
	return true
}

// IsImageURL reports whether the URL path has a raster image extension
func IsImageURL(rawURL string) bool {
	return imageExt[Extension(rawURL)]
}
