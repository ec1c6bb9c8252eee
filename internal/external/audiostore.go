package external

import "strings"

// AudioStore resolves a stored audio reference to a retrievable URL.
// The write path (asset generation and upload) is owned elsewhere.
type AudioStore interface {
	ResolveURL(ref string) string
}

// StaticAudioStore resolves references against a fixed base URL, e.g. a
// CDN or object-storage bucket front.
type StaticAudioStore struct {
	baseURL string
}

// NewStaticAudioStore creates an AudioStore rooted at baseURL.
func NewStaticAudioStore(baseURL string) *StaticAudioStore {
	return &StaticAudioStore{baseURL: strings.TrimRight(baseURL, "/")}
}

// ResolveURL joins the base URL and the reference. References that are
// already absolute URLs pass through unchanged.
func (s *StaticAudioStore) ResolveURL(ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return s.baseURL + "/" + strings.TrimLeft(ref, "/")
}
