package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2/sse"
)

// pump forwards bus events from ch to an SSE client until the request
// ends or the client goes away.
func pump(ctx context.Context, ch <-chan any, send sse.Sender) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			if err := send.Data(event); err != nil {
				return
			}
		}
	}
}
