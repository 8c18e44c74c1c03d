package analysis

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jonathan/portfolio-analyzer/internal/types"
)

// Source is the resolved location of a media item's content.
type Source struct {
	URL      string
	MIMEType string
	// Remote sources are handed to the provider by reference; the rest are
	// downloaded and sent inline.
	Remote bool
}

// ResolveSource picks the best retrievable location for m. Images use the
// variant with the largest pixel area, then the base URL. YouTube videos are
// passed by canonical watch URL; every other video needs a direct URL.
func ResolveSource(m *types.Media) (Source, error) {
	switch m.Kind {
	case types.ClassImage:
		return resolveImage(m)
	case types.ClassVideo:
		return resolveVideo(m)
	default:
		return Source{}, fmt.Errorf("unsupported media kind %q", m.Kind)
	}
}

func resolveImage(m *types.Media) (Source, error) {
	best := -1
	bestArea := -1
	for i, v := range m.Variants {
		if !isHTTPURL(v.URL) {
			continue
		}
		if area := v.Width * v.Height; area > bestArea {
			best, bestArea = i, area
		}
	}
	if best >= 0 {
		return Source{URL: m.Variants[best].URL, MIMEType: m.MIMEType}, nil
	}
	if isHTTPURL(m.URL) {
		return Source{URL: m.URL, MIMEType: m.MIMEType}, nil
	}
	return Source{}, fmt.Errorf("image has no retrievable source")
}

func resolveVideo(m *types.Media) (Source, error) {
	mimeType := m.MIMEType
	if mimeType == "" {
		mimeType = "video/mp4"
	}

	id := strings.TrimSpace(m.ExternalID)
	if id != "" && m.Platform == types.PlatformYouTube {
		return Source{URL: youTubeWatchURL(id), MIMEType: mimeType, Remote: true}, nil
	}
	if isHTTPURL(m.URL) {
		return Source{URL: m.URL, MIMEType: mimeType}, nil
	}
	if id != "" {
		// The provider only accepts YouTube links by reference.
		return Source{}, fmt.Errorf("%s video %q has no direct URL", m.Platform, id)
	}
	return Source{}, fmt.Errorf("video has no canonical reference or direct URL")
}

func youTubeWatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(id)
}

func isHTTPURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
