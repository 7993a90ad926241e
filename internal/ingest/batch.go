package ingest

import (
	"context"
	"fmt"
	"strings"

	"graphrag/internal/entity"
	"graphrag/internal/graph"
	"graphrag/internal/logging"
	"graphrag/internal/types"
	"graphrag/internal/vector"
)

// BatchResult summarizes a batch ingest.
type BatchResult struct {
	Total              int               `json:"total"`
	Succeeded          int               `json:"succeeded"`
	PartiallySucceeded int               `json:"partially_succeeded"`
	Failed             int               `json:"failed"`
	Errors             map[string]string `json:"errors,omitempty"` // by entity id
}

type batchItem struct {
	desc        *entity.Descriptor
	graphStored bool
	vectorDone  bool
	errs        []string
}

// IngestBatch writes a list of entities. Graph nodes are written
// sequentially in input order; vector work is grouped so the embedding
// provider is called once per distinct collection.
func (c *Coordinator) IngestBatch(ctx context.Context, descs []*entity.Descriptor) (*BatchResult, error) {
	timer := logging.StartTimer(logging.CategoryIngest, "IngestBatch")
	defer timer.Stop()

	res := &BatchResult{Total: len(descs), Errors: make(map[string]string)}

	items := make([]*batchItem, 0, len(descs))
	for i, d := range descs {
		if d == nil || !d.Valid() {
			res.Failed++
			key := fmt.Sprintf("input[%d]", i)
			if d != nil && d.ID != nil {
				key = d.IDString()
			}
			res.Errors[key] = "entity descriptor is missing or incomplete"
			continue
		}
		items = append(items, &batchItem{desc: d})
	}

	// Phase 1: graph nodes, sequential, per-entity errors don't abort.
	for _, it := range items {
		d := it.desc
		node := graph.Node{ID: d.IDString(), Label: d.Graph.Label, Properties: d.GraphProperties()}
		if err := c.graph.CreateNode(ctx, node); err != nil {
			it.errs = append(it.errs, fmt.Sprintf("graph write failed: %v", err))
			continue
		}
		it.graphStored = true
		_, _, relErrs := c.writeRelationships(ctx, d)
		it.errs = append(it.errs, relErrs...)
	}

	// Phase 2: one embedding batch and one upsert per collection. Input
	// order within each group matches the original input order.
	groups := make(map[string][]*batchItem)
	var collections []string
	for _, it := range items {
		coll := it.desc.Vector.Collection
		if _, seen := groups[coll]; !seen {
			collections = append(collections, coll)
		}
		groups[coll] = append(groups[coll], it)
	}

	for _, coll := range collections {
		c.ingestCollectionGroup(ctx, coll, groups[coll])
	}

	// Tally. Relationship errors are reported even for entities whose node
	// and point both landed.
	for _, it := range items {
		switch {
		case it.graphStored && it.vectorDone:
			res.Succeeded++
		case it.graphStored || it.vectorDone:
			res.PartiallySucceeded++
		default:
			res.Failed++
		}
		if len(it.errs) > 0 {
			res.Errors[it.desc.IDString()] = strings.Join(it.errs, "; ")
		}
	}

	logging.Ingest("Batch ingest: %d total, %d succeeded, %d partial, %d failed",
		res.Total, res.Succeeded, res.PartiallySucceeded, res.Failed)
	return res, nil
}

// ingestCollectionGroup embeds and upserts one collection's entities. A
// group-level failure marks every entity in the group vector-failed;
// graph-side state is left as is.
func (c *Coordinator) ingestCollectionGroup(ctx context.Context, coll string, group []*batchItem) {
	var embeddable []*batchItem
	var texts []string
	for _, it := range group {
		text := it.desc.EmbedText()
		if text == "" {
			it.errs = append(it.errs, "embed text is empty; vector point not written")
			continue
		}
		embeddable = append(embeddable, it)
		texts = append(texts, text)
	}
	if len(embeddable) == 0 {
		return
	}

	fail := func(err error) {
		for _, it := range embeddable {
			it.errs = append(it.errs, err.Error())
		}
		logging.Get(logging.CategoryIngest).Error("Vector batch for collection %s failed: %v", coll, err)
	}

	vecs, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		fail(fmt.Errorf("embedding batch failed: %w", err))
		return
	}
	if len(vecs) != len(embeddable) {
		fail(fmt.Errorf("embedding batch returned %d vectors for %d texts", len(vecs), len(embeddable)))
		return
	}

	if err := c.vector.EnsureCollection(ctx, coll, c.embedder.Dimensions()); err != nil {
		fail(fmt.Errorf("collection %s: %w", coll, err))
		return
	}

	points := make([]vector.Point, len(embeddable))
	for i, it := range embeddable {
		points[i] = vector.Point{
			ID:      vector.PointID(coll, it.desc.IDString()),
			Vector:  vecs[i],
			Payload: it.desc.Payload(),
		}
	}
	if err := c.vector.Upsert(ctx, coll, points); err != nil {
		fail(fmt.Errorf("upsert into %s failed: %w", coll, err))
		return
	}

	for _, it := range embeddable {
		it.vectorDone = true
	}
}

// Remove deletes an entity from both stores. Returns true when at least
// one store confirmed the deletion. A failed vector delete after a
// successful graph delete restores the graph node from the descriptor's
// current property map.
func (c *Coordinator) Remove(ctx context.Context, d *entity.Descriptor) (bool, error) {
	if d == nil || !d.Valid() {
		return false, types.NewValidationError("entity", "entity descriptor is missing or incomplete")
	}

	graphErr := c.graph.DeleteNode(ctx, d.Graph.Label, d.IDString())
	vectorErr := c.vector.Delete(ctx, d.Vector.Collection, []string{vector.PointID(d.Vector.Collection, d.IDString())})

	switch {
	case graphErr == nil && vectorErr == nil:
		logging.Ingest("Removed %s:%s from both stores", d.Graph.Label, d.IDString())
		return true, nil

	case graphErr == nil && vectorErr != nil:
		// Graph side is gone but the point survived; restore the node so
		// the stores stay consistent.
		node := graph.Node{ID: d.IDString(), Label: d.Graph.Label, Properties: d.GraphProperties()}
		if restoreErr := c.graph.CreateNode(ctx, node); restoreErr != nil {
			critical := &types.CriticalConsistencyError{
				EntityID:    d.IDString(),
				Operation:   "remove",
				WriteErr:    vectorErr,
				RollbackErr: restoreErr,
			}
			logging.Get(logging.CategoryIngest).Error("CRITICAL: %v", critical)
			if c.onCritical != nil {
				c.onCritical(critical)
			}
			return false, critical
		}
		return false, &types.DataConsistencyError{
			EntityID:     d.IDString(),
			Operation:    "remove",
			GraphSuccess: true,
			RolledBack:   true,
			Err:          vectorErr,
		}

	case graphErr != nil && vectorErr == nil:
		return true, &types.DataConsistencyError{
			EntityID:      d.IDString(),
			Operation:     "remove",
			VectorSuccess: true,
			Err:           graphErr,
		}

	default:
		return false, fmt.Errorf("remove failed in both stores: graph: %v; vector: %v", graphErr, vectorErr)
	}
}

// SyncResult reports a sync outcome.
type SyncResult struct {
	Action       string   `json:"action"` // "created" or "updated"
	GraphSynced  bool     `json:"graph_synced"`
	VectorSynced bool     `json:"vector_synced"`
	Errors       []string `json:"errors,omitempty"`
}

// Sync creates or updates the entity's graph node and always upserts the
// vector point. Errors on one side are collected without aborting the
// other.
func (c *Coordinator) Sync(ctx context.Context, d *entity.Descriptor) (*SyncResult, error) {
	if d == nil || !d.Valid() {
		return nil, types.NewValidationError("entity", "entity descriptor is missing or incomplete")
	}

	res := &SyncResult{}

	exists, err := c.graph.NodeExists(ctx, d.Graph.Label, d.IDString())
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("existence check failed: %v", err))
		res.Action = "created"
	} else {
		node := graph.Node{ID: d.IDString(), Label: d.Graph.Label, Properties: d.GraphProperties()}
		if exists {
			res.Action = "updated"
			err = c.graph.UpdateNode(ctx, node)
		} else {
			res.Action = "created"
			err = c.graph.CreateNode(ctx, node)
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("graph sync failed: %v", err))
		} else {
			res.GraphSynced = true
			c.writeRelationships(ctx, d)
		}
	}

	embedText := d.EmbedText()
	if embedText == "" {
		res.Errors = append(res.Errors, "embed text is empty; vector point not written")
		return res, nil
	}
	vec, err := c.embedder.Embed(ctx, embedText)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("embedding failed: %v", err))
		return res, nil
	}
	if err := c.upsertPoint(ctx, d, vec); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("vector sync failed: %v", err))
		return res, nil
	}
	res.VectorSynced = true

	logging.Ingest("Synced %s:%s (%s)", d.Graph.Label, d.IDString(), res.Action)
	return res, nil
}

// RelationshipSyncResult reports a post-hoc relationship sweep.
type RelationshipSyncResult struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// SyncRelationships sweeps declared edges for a list of entities, creating
// only edges whose endpoints both exist and that are not already present.
// Idempotent: a pre-existing edge is left untouched and counted as
// skipped, never as created.
func (c *Coordinator) SyncRelationships(ctx context.Context, descs []*entity.Descriptor) (*RelationshipSyncResult, error) {
	res := &RelationshipSyncResult{}

	for _, d := range descs {
		if d == nil || !d.Valid() {
			res.Failed++
			res.Errors = append(res.Errors, "entity descriptor is missing or incomplete")
			continue
		}
		created, skipped, errs := c.writeRelationships(ctx, d)
		res.Created += created
		res.Skipped += skipped
		res.Failed += len(errs)
		res.Errors = append(res.Errors, errs...)
	}

	logging.Ingest("Relationship sync: %d created, %d skipped, %d failed",
		res.Created, res.Skipped, res.Failed)
	return res, nil
}
