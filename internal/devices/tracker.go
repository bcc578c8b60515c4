// Package devices tracks the set of capture devices a backend presents and
// turns OS hotplug activity into change signals.
package devices

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/vidcap/internal/backend"
	"github.com/smazurov/vidcap/internal/events"
)

// Actions carried by SourceChangedEvent.
const (
	ActionAdded   = "added"
	ActionRemoved = "removed"
	ActionChanged = "changed"
)

// Lister enumerates the sources currently present. backend.Backend
// satisfies it.
type Lister interface {
	Scan(ctx context.Context) ([]backend.SourceInfo, error)
}

// Publisher receives source change events.
type Publisher interface {
	Publish(ev events.Event)
}

// Diff is the outcome of one Refresh.
type Diff struct {
	Added   []backend.SourceInfo
	Removed []backend.SourceInfo
	Changed []backend.SourceInfo
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Tracker remembers the last source list of one backend and reports what
// changed between scans.
type Tracker struct {
	backend string
	lister  Lister
	bus     Publisher
	logger  *slog.Logger

	mu      sync.Mutex
	last    map[string]backend.SourceInfo
	current []backend.SourceInfo
}

// NewTracker returns a tracker for backendID. bus may be nil.
func NewTracker(backendID string, lister Lister, bus Publisher, logger *slog.Logger) *Tracker {
	return &Tracker{
		backend: backendID,
		lister:  lister,
		bus:     bus,
		logger:  logger,
		last:    make(map[string]backend.SourceInfo),
	}
}

// Refresh rescans and publishes one SourceChangedEvent per difference.
// The first refresh reports every source as added.
func (t *Tracker) Refresh(ctx context.Context) (Diff, error) {
	sources, err := t.lister.Scan(ctx)
	if err != nil {
		return Diff{}, err
	}

	current := make(map[string]backend.SourceInfo, len(sources))
	for _, s := range sources {
		current[s.Identifier] = s
	}

	t.mu.Lock()
	var diff Diff
	for id, old := range t.last {
		if _, exists := current[id]; !exists {
			diff.Removed = append(diff.Removed, old)
		}
	}
	for _, s := range sources {
		old, exists := t.last[s.Identifier]
		switch {
		case !exists:
			diff.Added = append(diff.Added, s)
		case old != s:
			diff.Changed = append(diff.Changed, s)
		}
	}
	t.last = current
	t.current = slices.Clone(sources)
	t.mu.Unlock()

	slices.SortFunc(diff.Removed, func(a, b backend.SourceInfo) int {
		return cmp.Compare(a.Identifier, b.Identifier)
	})

	now := time.Now().Format(time.RFC3339)
	for _, s := range diff.Removed {
		t.logger.Info("Device removed", "backend", t.backend, "id", s.Identifier, "name", s.Description)
		t.publish(ActionRemoved, s, now)
	}
	for _, s := range diff.Added {
		t.logger.Info("Device added", "backend", t.backend, "id", s.Identifier, "name", s.Description)
		t.publish(ActionAdded, s, now)
	}
	for _, s := range diff.Changed {
		t.logger.Info("Device changed", "backend", t.backend, "id", s.Identifier, "name", s.Description)
		t.publish(ActionChanged, s, now)
	}
	return diff, nil
}

// Sources returns the list seen by the last Refresh, in scan order.
func (t *Tracker) Sources() []backend.SourceInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.current)
}

func (t *Tracker) publish(action string, s backend.SourceInfo, timestamp string) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(events.SourceChangedEvent{
		Backend:     t.backend,
		Identifier:  s.Identifier,
		Description: s.Description,
		Action:      action,
		Timestamp:   timestamp,
	})
}
