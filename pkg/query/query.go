// Package query implements the read-only graph traversal primitives
// exposed through the API façade: node lookup, breadth-first traversal,
// shortest path, and typed multi-hop stepping, grounded on the teacher's
// apoc/path BFS (container/list-based) generalized to Plexus's
// relationship/dimension-typed, directed edges.
package query

import (
	"container/list"
	"fmt"

	"github.com/plexusdb/plexus/pkg/gcontext"
	"github.com/plexusdb/plexus/pkg/model"
)

// Direction selects which of a node's edges a step or traversal follows.
type Direction int

const (
	// Outgoing follows edges where the current node is the source.
	Outgoing Direction = iota
	// Incoming follows edges where the current node is the target.
	Incoming
	// Either follows edges in both directions.
	Either
)

func neighbors(ctx *gcontext.Context, id model.NodeID, dir Direction, relationship string) []*model.Edge {
	switch dir {
	case Incoming:
		return ctx.IncomingEdges(id, relationship)
	case Either:
		out := ctx.OutgoingEdges(id, relationship)
		return append(out, ctx.IncomingEdges(id, relationship)...)
	default:
		return ctx.OutgoingEdges(id, relationship)
	}
}

// otherEnd returns the id at the far end of edge e from the perspective of
// a walk currently standing on id.
func otherEnd(e *model.Edge, id model.NodeID) model.NodeID {
	if e.Source == id {
		return e.Target
	}
	return e.Source
}

// FindNodes returns every node in ctx for which pred holds.
func FindNodes(ctx *gcontext.Context, pred func(*model.Node) bool) []*model.Node {
	return ctx.FindNodes(pred)
}

// DepthGroup is every node reached at a given hop count from a traversal's
// origin.
type DepthGroup struct {
	Depth int
	Nodes []*model.Node
}

// Traverse performs a breadth-first walk from start, following at most
// maxDepth hops in the given direction, optionally restricted to a single
// relationship (empty string = any). Returns nodes grouped by the depth at
// which each was first reached; depth 0 is just start.
func Traverse(ctx *gcontext.Context, start model.NodeID, relationship string, maxDepth int, dir Direction) ([]DepthGroup, error) {
	if !ctx.HasNode(start) {
		return nil, fmt.Errorf("query: traverse: start node %s not found", start)
	}

	visited := map[model.NodeID]int{start: 0}
	byDepth := map[int][]model.NodeID{0: {start}}
	queue := list.New()
	queue.PushBack(start)

	for queue.Len() > 0 {
		front := queue.Remove(queue.Front()).(model.NodeID)
		depth := visited[front]
		if depth >= maxDepth {
			continue
		}
		for _, e := range neighbors(ctx, front, dir, relationship) {
			next := otherEnd(e, front)
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = depth + 1
			byDepth[depth+1] = append(byDepth[depth+1], next)
			queue.PushBack(next)
		}
	}

	groups := make([]DepthGroup, 0, len(byDepth))
	for depth := 0; depth <= maxDepth; depth++ {
		ids, ok := byDepth[depth]
		if !ok {
			continue
		}
		nodes := make([]*model.Node, 0, len(ids))
		for _, id := range ids {
			if n, ok := ctx.GetNode(id); ok {
				nodes = append(nodes, n)
			}
		}
		groups = append(groups, DepthGroup{Depth: depth, Nodes: nodes})
	}
	return groups, nil
}

// Path describes one shortest path between two nodes.
type Path struct {
	Nodes []model.NodeID
	Edges []model.EdgeKey
}

// FindPath returns the shortest path from start to goal (by hop count),
// optionally restricted to a single relationship, following outgoing edges.
// Returns an error if no path exists.
func FindPath(ctx *gcontext.Context, start, goal model.NodeID, relationship string) (*Path, error) {
	if !ctx.HasNode(start) {
		return nil, fmt.Errorf("query: find_path: start node %s not found", start)
	}
	if !ctx.HasNode(goal) {
		return nil, fmt.Errorf("query: find_path: goal node %s not found", goal)
	}
	if start == goal {
		return &Path{Nodes: []model.NodeID{start}}, nil
	}

	type step struct {
		node model.NodeID
		via  *model.EdgeKey
	}
	visited := map[model.NodeID]step{start: {node: start}}
	queue := list.New()
	queue.PushBack(start)

	for queue.Len() > 0 {
		front := queue.Remove(queue.Front()).(model.NodeID)
		if front == goal {
			break
		}
		for _, e := range ctx.OutgoingEdges(front, relationship) {
			if _, seen := visited[e.Target]; seen {
				continue
			}
			key := e.Key()
			visited[e.Target] = step{node: front, via: &key}
			queue.PushBack(e.Target)
		}
	}

	if _, reached := visited[goal]; !reached {
		return nil, fmt.Errorf("query: find_path: no path from %s to %s", start, goal)
	}

	var nodes []model.NodeID
	var edges []model.EdgeKey
	cur := goal
	for cur != start {
		nodes = append([]model.NodeID{cur}, nodes...)
		s := visited[cur]
		edges = append([]model.EdgeKey{*s.via}, edges...)
		cur = s.node
	}
	nodes = append([]model.NodeID{start}, nodes...)
	return &Path{Nodes: nodes, Edges: edges}, nil
}

// Step is one hop of a typed multi-hop query: follow Relationship edges in
// Direction, optionally filtering the nodes reached to those carrying
// Dimension.
type Step struct {
	Relationship string
	Direction    Direction
	Dimension    model.Dimension // zero value = no filter
}

// StepResult is the node set reached after one Step, plus the edges walked
// to reach it, so callers know which nodes were discovered at which depth
// and by which edge.
type StepResult struct {
	Nodes []*model.Node
	Edges []model.EdgeKey
}

// StepQuery follows a fixed sequence of typed hops from start. Per-step
// results are preserved (not flattened into a single final set), so callers
// can tell which nodes were discovered at which depth.
func StepQuery(ctx *gcontext.Context, start model.NodeID, steps []Step) ([]StepResult, error) {
	if !ctx.HasNode(start) {
		return nil, fmt.Errorf("query: step_query: start node %s not found", start)
	}

	frontier := map[model.NodeID]struct{}{start: {}}
	results := make([]StepResult, 0, len(steps))

	for _, step := range steps {
		next := make(map[model.NodeID]struct{})
		var edgeKeys []model.EdgeKey
		for id := range frontier {
			for _, e := range neighbors(ctx, id, step.Direction, step.Relationship) {
				target := otherEnd(e, id)
				if step.Dimension != "" {
					if n, ok := ctx.GetNode(target); !ok || n.Dimension != step.Dimension {
						continue
					}
				}
				next[target] = struct{}{}
				edgeKeys = append(edgeKeys, e.Key())
			}
		}
		frontier = next

		nodes := make([]*model.Node, 0, len(frontier))
		for id := range frontier {
			if n, ok := ctx.GetNode(id); ok {
				nodes = append(nodes, n)
			}
		}
		results = append(results, StepResult{Nodes: nodes, Edges: edgeKeys})
	}
	return results, nil
}

// EvidenceTrailResult is the typed composite evidence_trail returns for a
// concept: the marks that reference it, the chains those marks belong to,
// the fragments tagged with it, and every edge walked to assemble the
// answer.
type EvidenceTrailResult struct {
	Marks     []*model.Node
	Chains    []*model.Node
	Fragments []*model.Node
	Edges     []model.EdgeKey
}

// EvidenceTrail composes three one-hop walks from a concept node: incoming
// "references" edges give the marks that cite it, incoming "contains" edges
// from each of those marks give the chains that contain them, and incoming
// "tagged_with" edges give the fragments tagged with it.
func EvidenceTrail(ctx *gcontext.Context, conceptID model.NodeID) (*EvidenceTrailResult, error) {
	markStep, err := StepQuery(ctx, conceptID, []Step{{Relationship: "references", Direction: Incoming}})
	if err != nil {
		return nil, err
	}
	fragmentStep, err := StepQuery(ctx, conceptID, []Step{{Relationship: "tagged_with", Direction: Incoming}})
	if err != nil {
		return nil, err
	}

	result := &EvidenceTrailResult{}
	if len(markStep) > 0 {
		result.Marks = markStep[0].Nodes
		result.Edges = append(result.Edges, markStep[0].Edges...)
	}
	if len(fragmentStep) > 0 {
		result.Fragments = fragmentStep[0].Nodes
		result.Edges = append(result.Edges, fragmentStep[0].Edges...)
	}

	seenChains := make(map[model.NodeID]struct{})
	for _, mark := range result.Marks {
		chainStep, err := StepQuery(ctx, mark.ID, []Step{{Relationship: "contains", Direction: Incoming}})
		if err != nil {
			return nil, err
		}
		if len(chainStep) == 0 {
			continue
		}
		result.Edges = append(result.Edges, chainStep[0].Edges...)
		for _, chain := range chainStep[0].Nodes {
			if _, ok := seenChains[chain.ID]; ok {
				continue
			}
			seenChains[chain.ID] = struct{}{}
			result.Chains = append(result.Chains, chain)
		}
	}

	return result, nil
}
