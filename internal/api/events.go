package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/vidcap/internal/devices"
	"github.com/smazurov/vidcap/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of source changes, capture state changes, terminal capture errors and device events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"source-changed":        events.SourceChangedEvent{},
		"capture-state-changed": events.CaptureStateChangedEvent{},
		"capture-error":         events.CaptureErrorEvent{},
		"monitor-event":         events.MonitorEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.SourceChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CaptureStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CaptureErrorEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.MonitorEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Replay the current sources as additions so clients start from a
		// complete list.
		now := time.Now().Format(time.RFC3339)
		for _, b := range s.inventory.Backends() {
			sources, err := s.inventory.Sources(ctx, b.Info.Identifier)
			if err != nil {
				continue
			}
			for _, src := range sources {
				if err := send.Data(events.SourceChangedEvent{
					Backend:     b.Info.Identifier,
					Identifier:  src.Identifier,
					Description: src.Description,
					Action:      devices.ActionAdded,
					Timestamp:   now,
				}); err != nil {
					return
				}
			}
		}

		pump(ctx, eventCh, send)
	})
}
