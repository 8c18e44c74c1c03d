package types

import (
	"time"

	"github.com/google/uuid"
)

// ContentClass distinguishes media by the cost of analyzing them.
// Each class has its own concurrency limit.
type ContentClass string

// ContentClass values
const (
	ClassImage ContentClass = "image"
	ClassVideo ContentClass = "video"
)

// VideoPlatform names the host of a canonical external video reference.
type VideoPlatform string

// VideoPlatform values
const (
	PlatformYouTube VideoPlatform = "youtube"
	PlatformVimeo   VideoPlatform = "vimeo"
)

// ImageVariant is one rendition of an uploaded image.
type ImageVariant struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Media is a single image or video belonging to a project.
type Media struct {
	ID        uuid.UUID    `json:"id"`
	ProjectID uuid.UUID    `json:"project_id"`
	Kind      ContentClass `json:"kind"`

	// URL is the base (images) or direct (videos) location of the content.
	URL      string `json:"url,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`

	// Variants lists image renditions; empty for videos.
	Variants []ImageVariant `json:"variants,omitempty"`

	// Platform and ExternalID form the canonical reference of a hosted video.
	Platform   VideoPlatform `json:"platform,omitempty"`
	ExternalID string        `json:"external_id,omitempty"`

	Analysis
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
