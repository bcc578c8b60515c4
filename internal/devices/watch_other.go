//go:build !linux

package devices

import "context"

// Watch signals whenever device nodes matching opts.Prefix change in
// opts.Dir. Kernel hotplug is Linux only.
func Watch(ctx context.Context, opts WatchOptions) (<-chan struct{}, error) {
	return WatchDir(ctx, opts)
}
