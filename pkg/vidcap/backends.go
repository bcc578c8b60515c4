package vidcap

import (
	"github.com/smazurov/vidcap/internal/backend"
	"github.com/smazurov/vidcap/internal/backend/sim"
	"github.com/smazurov/vidcap/internal/logging"
)

// factory builds one backend from the context options.
type factory struct {
	id    string
	build func(opts *Options) backend.Backend
}

var simulated = factory{
	id: sim.Identifier,
	build: func(opts *Options) backend.Backend {
		devs := opts.Simulated.Devices
		if len(devs) == 0 {
			devs = sim.DefaultDevices()
		}
		return sim.New(sim.Options{
			Devices: devs,
			Manual:  opts.Simulated.Manual,
			Logger:  logging.GetLogger("sim"),
		})
	},
}

// factories lists the compiled-in backends, platform backends first.
func factories() []factory {
	return append(platformFactories(), simulated)
}

func lookupFactory(id string) (factory, bool) {
	for _, f := range factories() {
		if f.id == id {
			return f, true
		}
	}
	return factory{}, false
}

// AvailableBackends lists every compiled-in backend identifier.
func AvailableBackends() []string {
	fs := factories()
	ids := make([]string, len(fs))
	for i, f := range fs {
		ids[i] = f.id
	}
	return ids
}

// DefaultBackends lists the backends enabled when Options.Backends is
// empty: the platform's native backends. The simulated backend is only
// enabled by name.
func DefaultBackends() []string {
	fs := platformFactories()
	ids := make([]string, len(fs))
	for i, f := range fs {
		ids[i] = f.id
	}
	return ids
}
