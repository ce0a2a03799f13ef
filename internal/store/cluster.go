package store

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/420247jake/the-mind/internal/domain"
)

// ComputeClusters groups thoughts by category and returns one cluster per
// group of at least domain.MinClusterSize members, centered on the mean
// position. Stores without an aggregate query use it directly.
func ComputeClusters(thoughts []domain.Thought, now time.Time) []domain.Cluster {
	groups := make(map[domain.Category][]domain.Position)
	for _, t := range thoughts {
		groups[t.Category] = append(groups[t.Category], t.Position)
	}

	clusters := make([]domain.Cluster, 0, len(groups))
	for category, positions := range groups {
		if len(positions) < domain.MinClusterSize {
			continue
		}
		clusters = append(clusters, domain.Cluster{
			ID:           uuid.NewString(),
			Name:         domain.ClusterName(category),
			Category:     category,
			Center:       domain.Centroid(positions),
			ThoughtCount: len(positions),
			CreatedAt:    now,
		})
	}
	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i].Category < clusters[j].Category
	})
	return clusters
}

// IDSet builds a lookup set from a list of ids.
func IDSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
