package graph

import (
	"sort"
	"time"

	"github.com/420247jake/the-mind/internal/domain"
)

// Changes lists what appeared between two snapshots.
type Changes struct {
	NewThoughts    []domain.Thought
	NewConnections []domain.Connection
}

// Empty reports whether nothing appeared.
func (c Changes) Empty() bool {
	return len(c.NewThoughts) == 0 && len(c.NewConnections) == 0
}

// Diff returns the thoughts and connections of next that were created since
// prev was loaded. New thoughts are ordered oldest first.
//
// Nothing is reported when prev was never loaded, so the first load does not
// look like a burst of creations. When either snapshot is windowed, entities
// that merely scrolled into view are skipped: they must also be newer than
// everything prev held.
func Diff(prev, next *Snapshot) Changes {
	if prev == nil || next == nil || prev.loadedAt.IsZero() {
		return Changes{}
	}

	windowed := prev.Windowed() || next.Windowed()
	thoughtMark, _ := prev.latestThought()
	connMark := prev.latestConnection()
	if connMark.IsZero() {
		connMark = thoughtMark
	}

	var ch Changes
	for _, t := range next.thoughts {
		if _, ok := prev.byID[t.ID]; ok {
			continue
		}
		if windowed && !t.CreatedAt.After(thoughtMark) {
			continue
		}
		ch.NewThoughts = append(ch.NewThoughts, t)
	}
	for _, c := range next.connections {
		if _, ok := prev.connByID[c.ID]; ok {
			continue
		}
		if windowed && !c.CreatedAt.After(connMark) {
			continue
		}
		ch.NewConnections = append(ch.NewConnections, c)
	}
	sort.SliceStable(ch.NewThoughts, func(i, j int) bool {
		return ch.NewThoughts[i].CreatedAt.Before(ch.NewThoughts[j].CreatedAt)
	})
	return ch
}

func (s *Snapshot) latestThought() (time.Time, bool) {
	last, ok := s.createdTree.Max()
	return last.at, ok
}

func (s *Snapshot) latestConnection() time.Time {
	var latest time.Time
	for _, c := range s.connections {
		if c.CreatedAt.After(latest) {
			latest = c.CreatedAt
		}
	}
	return latest
}
