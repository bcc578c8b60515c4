//go:build linux

package vidcap

import (
	"github.com/smazurov/vidcap/internal/backend"
	"github.com/smazurov/vidcap/internal/backend/v4l2"
)

func platformFactories() []factory {
	return []factory{{
		id: v4l2.Identifier,
		build: func(opts *Options) backend.Backend {
			return v4l2.New(v4l2.Options{
				Buffers: opts.V4L2Buffers,
				Hotplug: opts.Hotplug,
				Settle:  opts.Settle,
			})
		},
	}}
}
