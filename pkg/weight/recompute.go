package weight

import (
	"github.com/plexusdb/plexus/pkg/gcontext"
	"github.com/plexusdb/plexus/pkg/model"
)

// Recompute walks every edge in ctx, recomputes each one's raw weight from
// its contribution map using the given floor coefficient, and reports
// which edges' raw weight actually changed (so the caller can emit
// WeightsChanged only for those). Spec phase 5: run after every commit and
// every retraction.
func Recompute(ctx *gcontext.Context, floor float64) (changed []model.EdgeKey) {
	edges := ctx.AllEdges()

	// Group every adapter's contributions across the whole context so
	// normalization is computed per-adapter, not per-edge.
	perAdapter := make(map[string]map[model.EdgeKey]float64)
	for _, e := range edges {
		key := e.Key()
		for adapterID, c := range e.Contributions {
			if perAdapter[adapterID] == nil {
				perAdapter[adapterID] = make(map[model.EdgeKey]float64)
			}
			perAdapter[adapterID][key] = c
		}
	}

	normalizedPerAdapter := make(map[string]map[model.EdgeKey]float64, len(perAdapter))
	for adapterID, contributions := range perAdapter {
		normalizedPerAdapter[adapterID] = Normalize(contributions, floor)
	}

	for _, e := range edges {
		key := e.Key()
		newWeight := RawWeight(normalizedPerAdapter, key)
		if stored, ok := ctx.GetEdge(key); ok && stored.RawWeight != newWeight {
			changed = append(changed, key)
		}
		ctx.SetRawWeight(key, newWeight)
	}
	return changed
}

// PruneEmptied removes every edge whose contribution map is empty and
// whose raw weight is zero — the cleanup step after a contribution
// retraction empties some edges' only slot. Returns the keys removed.
func PruneEmptied(ctx *gcontext.Context) []model.EdgeKey {
	var pruned []model.EdgeKey
	for _, e := range ctx.AllEdges() {
		if len(e.Contributions) == 0 && e.RawWeight == 0 {
			key := e.Key()
			if ctx.RemoveEdge(key) {
				pruned = append(pruned, key)
			}
		}
	}
	return pruned
}
