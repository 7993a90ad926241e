// Package ingest synchronizes entities into the graph store and the vector
// store with compensating rollback on partial failure.
package ingest

import (
	"context"
	"fmt"

	"github.com/spf13/cast"

	"graphrag/internal/embedding"
	"graphrag/internal/entity"
	"graphrag/internal/graph"
	"graphrag/internal/logging"
	"graphrag/internal/types"
	"graphrag/internal/vector"
)

// Coordinator performs dual-store writes. Graph writes strictly precede
// vector writes; a failed vector write triggers a compensating delete of
// the graph node.
type Coordinator struct {
	graph    graph.Store
	vector   vector.Store
	embedder embedding.Engine

	// onCritical receives rollback failures. Data is known-divergent when
	// it fires; the error is also always returned to the caller.
	onCritical func(*types.CriticalConsistencyError)
}

// NewCoordinator wires the three providers.
func NewCoordinator(g graph.Store, v vector.Store, e embedding.Engine) *Coordinator {
	return &Coordinator{graph: g, vector: v, embedder: e}
}

// OnCritical registers a handler for rollback failures. Call before first
// use; the handler must be safe for concurrent invocation.
func (c *Coordinator) OnCritical(fn func(*types.CriticalConsistencyError)) {
	c.onCritical = fn
}

// Result reports the outcome of a single-entity ingest.
type Result struct {
	EntityID             string   `json:"entity_id"`
	GraphStored          bool     `json:"graph_stored"`
	VectorStored         bool     `json:"vector_stored"`
	RelationshipsCreated int      `json:"relationships_created"`
	RelationshipsSkipped int      `json:"relationships_skipped"`
	Errors               []string `json:"errors,omitempty"`
}

// Ingest writes one entity to both stores.
//
// The graph node is written first, then declared relationships (a missing
// target or a pre-existing edge counts as skipped, not failed), then the
// embedding and vector point. An empty embed text leaves the graph node in place and marks the
// vector side failed without rollback; an embedding or upsert failure
// rolls the graph node back.
func (c *Coordinator) Ingest(ctx context.Context, d *entity.Descriptor) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryIngest, "Ingest")
	defer timer.Stop()

	if d == nil || !d.Valid() {
		return nil, types.NewValidationError("entity", "entity descriptor is missing or incomplete")
	}

	res := &Result{EntityID: d.IDString()}

	// Step 1: graph node.
	node := graph.Node{ID: d.IDString(), Label: d.Graph.Label, Properties: d.GraphProperties()}
	if err := c.graph.CreateNode(ctx, node); err != nil {
		logging.Get(logging.CategoryIngest).Error("Graph write failed for %s: %v", d.IDString(), err)
		return res, &types.DataConsistencyError{
			EntityID:  d.IDString(),
			Operation: "ingest",
			Err:       err,
		}
	}
	res.GraphStored = true

	// Step 2: declared relationships.
	created, skipped, relErrs := c.writeRelationships(ctx, d)
	res.RelationshipsCreated = created
	res.RelationshipsSkipped = skipped
	res.Errors = append(res.Errors, relErrs...)

	// Step 3: embed text.
	embedText := d.EmbedText()
	if embedText == "" {
		// Nothing to embed is a descriptor/data problem, not a store
		// divergence; the graph node stays.
		res.Errors = append(res.Errors, "embed text is empty; vector point not written")
		logging.Ingest("Entity %s has empty embed text, skipping vector write", d.IDString())
		return res, nil
	}

	// Step 4: embedding + vector upsert, rollback on failure.
	vec, err := c.embedder.Embed(ctx, embedText)
	if err != nil {
		return res, c.rollback(ctx, d, "ingest", fmt.Errorf("embedding failed: %w", err))
	}
	if err := c.upsertPoint(ctx, d, vec); err != nil {
		return res, c.rollback(ctx, d, "ingest", err)
	}
	res.VectorStored = true

	logging.Ingest("Ingested %s:%s (relationships: %d created, %d skipped)",
		d.Graph.Label, d.IDString(), created, skipped)
	return res, nil
}

// rollback deletes the graph node after a failed vector write. Returns a
// DataConsistencyError when the delete succeeded, a CriticalConsistencyError
// when it did not.
func (c *Coordinator) rollback(ctx context.Context, d *entity.Descriptor, operation string, cause error) error {
	logging.Ingest("Rolling back graph node %s:%s after vector failure: %v", d.Graph.Label, d.IDString(), cause)

	if err := c.graph.DeleteNode(ctx, d.Graph.Label, d.IDString()); err != nil {
		critical := &types.CriticalConsistencyError{
			EntityID:    d.IDString(),
			Operation:   operation,
			WriteErr:    cause,
			RollbackErr: err,
		}
		logging.Get(logging.CategoryIngest).Error("CRITICAL: %v", critical)
		if c.onCritical != nil {
			c.onCritical(critical)
		}
		return critical
	}

	return &types.DataConsistencyError{
		EntityID:     d.IDString(),
		Operation:    operation,
		GraphSuccess: true,
		RolledBack:   true,
		Err:          cause,
	}
}

func (c *Coordinator) writeRelationships(ctx context.Context, d *entity.Descriptor) (created, skipped int, errs []string) {
	for _, rel := range d.Graph.Relationships {
		fk, ok := d.Attributes[rel.ForeignKey]
		if !ok || fk == nil {
			continue
		}
		targetID := cast.ToString(fk)
		if targetID == "" {
			continue
		}

		exists, err := c.graph.NodeExists(ctx, rel.TargetLabel, targetID)
		if err != nil {
			errs = append(errs, fmt.Sprintf("relationship %s: %v", rel.Type, err))
			continue
		}
		if !exists {
			skipped++
			logging.IngestDebug("Skipping edge %s -[%s]-> %s:%s (target absent)",
				d.IDString(), rel.Type, rel.TargetLabel, targetID)
			continue
		}

		wrote, err := c.graph.CreateRelationship(ctx, graph.Relationship{
			SourceLabel: d.Graph.Label,
			SourceID:    d.IDString(),
			Type:        rel.Type,
			TargetLabel: rel.TargetLabel,
			TargetID:    targetID,
			Properties:  rel.Properties,
		})
		if err != nil {
			errs = append(errs, fmt.Sprintf("relationship %s: %v", rel.Type, err))
			continue
		}
		if !wrote {
			skipped++
			logging.IngestDebug("Skipping edge %s -[%s]-> %s:%s (already exists)",
				d.IDString(), rel.Type, rel.TargetLabel, targetID)
			continue
		}
		created++
	}
	return created, skipped, errs
}

func (c *Coordinator) upsertPoint(ctx context.Context, d *entity.Descriptor, vec []float32) error {
	collection := d.Vector.Collection
	if err := c.vector.EnsureCollection(ctx, collection, c.embedder.Dimensions()); err != nil {
		return fmt.Errorf("collection %s: %w", collection, err)
	}
	return c.vector.Upsert(ctx, collection, []vector.Point{{
		ID:      vector.PointID(collection, d.IDString()),
		Vector:  vec,
		Payload: d.Payload(),
	}})
}
