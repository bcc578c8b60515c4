package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/vidcap/internal/api/models"
	"github.com/smazurov/vidcap/pkg/vidcap"
)

// BackendPathInput selects a backend.
type BackendPathInput struct {
	Backend string `path:"backend" example:"v4l2" doc:"Backend identifier"`
}

// SourceQueryInput selects a source. Source identifiers may contain
// slashes, so they travel in the query.
type SourceQueryInput struct {
	Backend string `query:"backend" required:"true" example:"v4l2" doc:"Backend identifier"`
	Source  string `query:"source" required:"true" example:"/dev/video0" doc:"Source identifier"`
}

// toFormat converts an API format to a vidcap format.
func toFormat(f *models.FormatInfo) (*vidcap.Format, error) {
	if f == nil {
		return nil, nil
	}
	fourcc, err := vidcap.ParseFourcc(f.Fourcc)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid format", err)
	}
	return &vidcap.Format{
		Width:          f.Width,
		Height:         f.Height,
		Fourcc:         fourcc,
		FPSNumerator:   f.FPSNumerator,
		FPSDenominator: f.FPSDenominator,
	}, nil
}

func (s *Server) registerCaptureRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-backends",
		Method:      http.MethodGet,
		Path:        "/api/backends",
		Summary:     "List Backends",
		Description: "List the capture backends held by this process",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.BackendListResponse, error) {
		backends := s.inventory.Backends()
		return &models.BackendListResponse{
			Body: models.BackendListData{Backends: backends, Count: len(backends)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-sources",
		Method:      http.MethodGet,
		Path:        "/api/backends/{backend}/sources",
		Summary:     "List Sources",
		Description: "List the sources a backend found in its last scan",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(ctx context.Context, input *BackendPathInput) (*models.SourceListResponse, error) {
		sources, err := s.inventory.Sources(ctx, input.Backend)
		if err != nil {
			return nil, toHTTPError(err)
		}
		if sources == nil {
			sources = []vidcap.SourceInfo{}
		}
		return &models.SourceListResponse{
			Body: models.SourceListData{Backend: input.Backend, Sources: sources, Count: len(sources)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-formats",
		Method:      http.MethodGet,
		Path:        "/api/formats",
		Summary:     "List Formats",
		Description: "List the formats a source advertises. An idle source is acquired for the duration of the request.",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 409, 500},
	}, func(ctx context.Context, input *SourceQueryInput) (*models.FormatListResponse, error) {
		formats, err := s.inventory.Formats(ctx, input.Backend, input.Source)
		if err != nil {
			return nil, toHTTPError(err)
		}
		out := make([]models.FormatInfo, len(formats))
		for i, f := range formats {
			out[i] = models.NewFormatInfo(f)
		}
		return &models.FormatListResponse{
			Body: models.FormatListData{
				Backend: input.Backend,
				Source:  input.Source,
				Formats: out,
				Count:   len(out),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/sessions",
		Summary:     "List Sessions",
		Description: "List acquired sources with their bound format, conversion and frame counters",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.SessionListResponse, error) {
		sessions := s.inventory.Sessions()
		if sessions == nil {
			sessions = []vidcap.SessionInfo{}
		}
		return &models.SessionListResponse{
			Body: models.SessionListData{Sessions: sessions, Count: len(sessions)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "start-preview",
		Method:        http.MethodPost,
		Path:          "/api/sessions",
		Summary:       "Start Preview",
		Description:   "Acquire a source, bind a format and capture into a frame counter",
		Tags:          []string{"capture"},
		Security:      withAuth(),
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 401, 404, 409, 422, 500},
	}, func(ctx context.Context, input *models.PreviewRequest) (*models.SessionResponse, error) {
		f, err := toFormat(input.Body.Format)
		if err != nil {
			return nil, err
		}
		session, err := s.inventory.StartPreview(ctx, input.Body.Backend, input.Body.Source, f)
		if err != nil {
			return nil, toHTTPError(err)
		}
		return &models.SessionResponse{Body: session}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "stop-preview",
		Method:        http.MethodDelete,
		Path:          "/api/sessions",
		Summary:       "Stop Preview",
		Description:   "Stop a preview session and release its source",
		Tags:          []string{"capture"},
		Security:      withAuth(),
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{401, 404, 500},
	}, func(_ context.Context, input *SourceQueryInput) (*struct{}, error) {
		if err := s.inventory.StopPreview(input.Backend, input.Source); err != nil {
			return nil, toHTTPError(err)
		}
		return &struct{}{}, nil
	})
}
