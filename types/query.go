// Package types defines core domain types for the chartd render pipeline.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"encoding/json"
	"time"

	"github.com/opencontainers/go-digest"
)

// ChartQuery is the decoded form of an encoded chart query.
// The pipeline only checks structure; Chart.Type and the row contents are
// interpreted by the chart UI, never by chartd.
type ChartQuery struct {
	Config QueryConfig `json:"config"`
	Chart  QueryChart  `json:"chart"`
}

// QueryConfig holds presentation settings for the chart UI.
type QueryConfig struct {
	Mode   string `json:"mode"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// QueryChart is the chart type and its data rows.
// Rows are kept raw so that decoding never depends on the chart type.
type QueryChart struct {
	Type string            `json:"type"`
	Data []json.RawMessage `json:"data"`
}

// CacheKey is the content address of an encoded chart query.
// Hex-encoded SHA-256 of the raw query string.
type CacheKey string

// KeyOf computes the CacheKey of a raw encoded query.
// Identical input strings always produce identical keys.
func KeyOf(raw string) CacheKey {
	return CacheKey(digest.FromString(raw).Encoded())
}

// String returns the hex digest.
func (k CacheKey) String() string {
	return string(k)
}

// Entry is the presence marker stored in the content cache.
// The image bytes live in the artifact store under Name.
type Entry struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// ImageFormat is the raster format produced by the renderer.
type ImageFormat string

const (
	// FormatPNG renders lossless PNG images (default).
	FormatPNG ImageFormat = "png"
	// FormatJPEG renders JPEG images.
	FormatJPEG ImageFormat = "jpeg"
)

// ParseImageFormat parses a format name. Empty input selects PNG.
func ParseImageFormat(s string) (ImageFormat, bool) {
	switch s {
	case "", "png":
		return FormatPNG, true
	case "jpeg", "jpg":
		return FormatJPEG, true
	default:
		return "", false
	}
}

// Ext returns the artifact file extension, including the dot.
func (f ImageFormat) Ext() string {
	if f == FormatJPEG {
		return ".jpg"
	}
	return ".png"
}

// ContentType returns the HTTP content type for the format.
func (f ImageFormat) ContentType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}
