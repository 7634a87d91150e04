// Package embedding implements a reference reflexive adapter standing in
// for gesture-encoding/reflexive-snapshot adapters: given a context
// snapshot, it scores every pair of vector-bearing nodes by cosine
// similarity and proposes may_be_related edges for the ones that clear a
// threshold. It exists to exercise the full sink/engine pipeline with a
// schedule-triggered adapter rather than an input-triggered one. It writes
// through whichever sink its caller passes; the ingest pipeline passes a
// plain AdapterSink, so no ProposalSink constraint (relationship allow-list,
// removal ban, contribution cap) is applied to its edges.
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/plexusdb/plexus/pkg/gcontext"
	"github.com/plexusdb/plexus/pkg/model"
	"github.com/plexusdb/plexus/pkg/sink"
)

// DefaultThreshold is the cosine similarity score above which a pair of
// vectors is proposed as related.
const DefaultThreshold = 0.8

// Input is the payload the Adapter accepts: the context snapshot to scan
// and the similarity threshold to apply (0 selects DefaultThreshold).
type Input struct {
	Snapshot  *gcontext.Context
	Threshold float64
}

// Adapter scores vector-bearing nodes pairwise and proposes edges for the
// similar ones. It is reflexive: it reads the graph it is also writing to,
// through the snapshot its caller supplies rather than any ambient state.
type Adapter struct {
	id string
}

// New builds an embedding adapter registered under id.
func New(id string) *Adapter {
	if id == "" {
		id = "embedding-similarity"
	}
	return &Adapter{id: id}
}

// ID implements ingest.Adapter.
func (a *Adapter) ID() string { return a.id }

// InputKind implements ingest.Adapter.
func (a *Adapter) InputKind() string { return "embedding-scan" }

// Process implements ingest.Adapter. The pairwise scan checks ctx between
// outer-loop iterations, the adapter's only real suspension point, so a
// caller scanning a large context can cancel it cooperatively.
func (a *Adapter) Process(ctx context.Context, s sink.Sink, payload any) error {
	in, ok := payload.(Input)
	if !ok {
		return fmt.Errorf("embedding: unexpected payload type %T", payload)
	}
	if in.Snapshot == nil {
		return fmt.Errorf("embedding: input snapshot must not be nil")
	}
	threshold := in.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	vectorNodes := in.Snapshot.FindNodes(func(n *model.Node) bool {
		_, ok := n.Properties["vector"].([]float64)
		return ok
	})

	var edges []model.AnnotatedEdge
	for i := 0; i < len(vectorNodes); i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		for j := i + 1; j < len(vectorNodes); j++ {
			na, nb := vectorNodes[i], vectorNodes[j]
			va := na.Properties["vector"].([]float64)
			vb := nb.Properties["vector"].([]float64)
			sim := cosineSimilarity(va, vb)
			if sim < threshold {
				continue
			}
			edges = append(edges, model.AnnotatedEdge{
				Edge: &model.Edge{
					Source: na.ID, Target: nb.ID, Relationship: "may_be_related",
					SourceDimension: na.Dimension, TargetDimension: nb.Dimension,
				},
				Contribution: sim,
				Annotation:   &model.Annotation{Method: "embedding-cosine", Detail: fmt.Sprintf("cosine=%.3f", sim)},
			})
		}
	}
	if len(edges) == 0 {
		return nil
	}

	_, err := s.Emit(model.Emission{Edges: edges})
	return err
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
