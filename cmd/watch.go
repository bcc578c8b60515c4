package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smazurov/vidcap/pkg/vidcap"
)

// sourceDiff compares two source lists by identifier.
func sourceDiff(before, after []vidcap.SourceInfo) (added, removed []vidcap.SourceInfo) {
	seen := make(map[string]bool, len(before))
	for _, s := range before {
		seen[s.Identifier] = true
	}
	now := make(map[string]bool, len(after))
	for _, s := range after {
		now[s.Identifier] = true
		if !seen[s.Identifier] {
			added = append(added, s)
		}
	}
	for _, s := range before {
		if !now[s.Identifier] {
			removed = append(removed, s)
		}
	}
	return added, removed
}

// watcher prints source list changes. notify runs on the backend's monitor
// goroutine.
type watcher struct {
	out   io.Writer
	limit int

	mu      sync.Mutex
	current []vidcap.SourceInfo
	changes int
	done    chan struct{}
}

func (w *watcher) notify(b *vidcap.Backend, _ any) int {
	sources, err := scan(context.Background(), b)
	if err != nil {
		fmt.Fprintf(w.out, "! rescan failed: %v\n", err)
		return 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	added, removed := sourceDiff(w.current, sources)
	w.current = sources
	for _, s := range added {
		fmt.Fprintf(w.out, "+ %s\t%s\n", s.Identifier, s.Description)
	}
	for _, s := range removed {
		fmt.Fprintf(w.out, "- %s\t%s\n", s.Identifier, s.Description)
	}
	if len(added)+len(removed) == 0 {
		return 0
	}
	w.changes++
	if w.limit > 0 && w.changes >= w.limit {
		if w.changes == w.limit {
			close(w.done)
		}
		return 1
	}
	return 0
}

// CreateWatchCmd creates the watch command.
func CreateWatchCmd() *cobra.Command {
	var flags contextFlags
	var limit int

	cmd := &cobra.Command{
		Use:   "watch [backend]",
		Short: "Print source additions and removals",
		Long:  `Lists a backend's sources, then prints every source that appears or disappears until interrupted.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var id string
			if len(args) == 1 {
				id = args[0]
			}
			vc, err := flags.open(id, nil)
			if err != nil {
				return err
			}
			b, err := acquireBackend(vc, id)
			if err != nil {
				_ = vc.Destroy()
				return err
			}
			defer func() { _ = releaseAll(nil, b, vc) }()

			sources, err := scan(ctx, b)
			if err != nil {
				return err
			}
			w := &watcher{out: cmd.OutOrStdout(), limit: limit, current: sources, done: make(chan struct{})}
			for _, s := range sources {
				fmt.Fprintf(w.out, "= %s\t%s\n", s.Identifier, s.Description)
			}

			if err := b.SrcsNotify(w.notify, nil); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
			case <-w.done:
			}
			return b.SrcsNotify(nil, nil)
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().IntVarP(&limit, "count", "c", 0, "Exit after this many changes (0 = unlimited)")
	return cmd
}
