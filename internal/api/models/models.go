package models

import (
	"github.com/smazurov/vidcap/internal/inventory"
	"github.com/smazurov/vidcap/internal/logging"
	"github.com/smazurov/vidcap/internal/version"
	"github.com/smazurov/vidcap/pkg/vidcap"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// VersionResponse carries build metadata.
type VersionResponse struct {
	Body version.BuildInfo
}

// Backend models
type BackendListData struct {
	Backends []inventory.BackendStatus `json:"backends" doc:"Held backends in enumeration order"`
	Count    int                       `json:"count" example:"1" doc:"Number of backends"`
}

type BackendListResponse struct {
	Body BackendListData
}

// Source models
type SourceListData struct {
	Backend string              `json:"backend" example:"v4l2" doc:"Backend identifier"`
	Sources []vidcap.SourceInfo `json:"sources" doc:"Sources of the last scan"`
	Count   int                 `json:"count" example:"2" doc:"Number of sources"`
}

type SourceListResponse struct {
	Body SourceListData
}

// FormatInfo is one advertised capture format.
type FormatInfo struct {
	Width          int    `json:"width" example:"640" doc:"Width in pixels"`
	Height         int    `json:"height" example:"480" doc:"Height in pixels"`
	Fourcc         string `json:"fourcc" example:"i420" doc:"Pixel encoding"`
	FPSNumerator   int    `json:"fps_numerator" example:"30" doc:"Frame rate numerator"`
	FPSDenominator int    `json:"fps_denominator" example:"1" doc:"Frame rate denominator"`
}

// NewFormatInfo converts a vidcap format for the API.
func NewFormatInfo(f vidcap.Format) FormatInfo {
	return FormatInfo{
		Width:          f.Width,
		Height:         f.Height,
		Fourcc:         vidcap.FourccString(f.Fourcc),
		FPSNumerator:   f.FPSNumerator,
		FPSDenominator: f.FPSDenominator,
	}
}

type FormatListData struct {
	Backend string       `json:"backend" example:"v4l2" doc:"Backend identifier"`
	Source  string       `json:"source" example:"/dev/video0" doc:"Source identifier"`
	Formats []FormatInfo `json:"formats" doc:"Formats in advertised order"`
	Count   int          `json:"count" example:"12" doc:"Number of formats"`
}

type FormatListResponse struct {
	Body FormatListData
}

// Session models
type SessionListData struct {
	Sessions []vidcap.SessionInfo `json:"sessions" doc:"Acquired sources"`
	Count    int                  `json:"count" example:"1" doc:"Number of acquired sources"`
}

type SessionListResponse struct {
	Body SessionListData
}

type PreviewRequestData struct {
	Backend string      `json:"backend" example:"v4l2" doc:"Backend identifier"`
	Source  string      `json:"source" example:"/dev/video0" doc:"Source identifier"`
	Format  *FormatInfo `json:"format,omitempty" doc:"Format to bind; the first advertised format when omitted"`
}

type PreviewRequest struct {
	Body PreviewRequestData
}

type SessionResponse struct {
	Body vidcap.SessionInfo
}

// Log models
type LogListData struct {
	Entries []logging.LogEntry `json:"entries" doc:"Recent log entries, oldest first"`
	Count   int                `json:"count" example:"100" doc:"Number of entries"`
}

type LogListResponse struct {
	Body LogListData
}
