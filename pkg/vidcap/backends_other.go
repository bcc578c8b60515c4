//go:build !linux

package vidcap

func platformFactories() []factory { return nil }
