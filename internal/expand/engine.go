package expand

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MaxDepth is the hard ceiling on expand-path length. A request whose
// longest path exceeds it has its entire expansion skipped up front.
const MaxExpandDepth = 4

// DefaultMaxFanOut caps the concurrent internal resolutions issued while
// expanding a single array field or collection.
const DefaultMaxFanOut = 8

// Engine performs the recursive, schema-metadata-driven expansion of a
// decoded JSON response. It never fails: every problem degrades to "less
// expansion than requested" while the response shape, ordering and
// pagination metadata are preserved.
type Engine struct {
	meta      *Metadata
	resolver  *Resolver
	maxFanOut int
	log       zerolog.Logger
}

// NewEngine creates an Engine. A non-positive fan-out falls back to
// DefaultMaxFanOut.
func NewEngine(meta *Metadata, resolver *Resolver, maxFanOut int, log zerolog.Logger) *Engine {
	if maxFanOut <= 0 {
		maxFanOut = DefaultMaxFanOut
	}
	return &Engine{meta: meta, resolver: resolver, maxFanOut: maxFanOut, log: log}
}

// group is one first-segment bucket of the requested paths: the field to
// expand plus the remaining subpaths to apply to the fetched resource.
type group struct {
	field string
	rest  []Path
}

// groupPaths buckets paths by first segment, preserving the order in
// which fields first appear.
func groupPaths(paths []Path) []group {
	index := make(map[string]int, len(paths))
	var groups []group
	for _, p := range paths {
		if len(p.Segments) == 0 {
			continue
		}
		field := p.Segments[0]
		i, ok := index[field]
		if !ok {
			i = len(groups)
			index[field] = i
			groups = append(groups, group{field: field})
		}
		if len(p.Segments) > 1 {
			groups[i].rest = append(groups[i].rest, Path{Segments: p.Segments[1:]})
		}
	}
	return groups
}

// Apply expands the requested paths into data, which is the decoded JSON
// of a response body for the given schema: a resource object, an array of
// resources, or a paginated envelope. It returns the (mutated) value.
func (e *Engine) Apply(ctx context.Context, data interface{}, paths []Path, schema string, depth int, caller Caller) interface{} {
	if data == nil || len(paths) == 0 {
		return data
	}
	if depth == 0 && MaxDepth(paths) > MaxExpandDepth {
		e.log.Debug().Str("schema", schema).Int("depth", MaxDepth(paths)).
			Msg("requested expansion depth exceeds limit, skipping expansion")
		return data
	}

	switch v := data.(type) {
	case []interface{}:
		return e.applyList(ctx, v, paths, schema, depth, caller)
	case map[string]interface{}:
		if items, ok := envelopeItems(v); ok {
			v["items"] = e.applyList(ctx, items, paths, schema, depth, caller)
			return v
		}
		if depth >= MaxExpandDepth {
			return v
		}
		return e.applyObject(ctx, v, paths, schema, depth, caller)
	default:
		return data
	}
}

// envelopeItems detects the paginated envelope shape {items, pagination}
// and returns its inner array. Pagination metadata stays untouched.
func envelopeItems(obj map[string]interface{}) ([]interface{}, bool) {
	items, ok := obj["items"].([]interface{})
	if !ok {
		return nil, false
	}
	if _, ok := obj["pagination"]; !ok {
		return nil, false
	}
	return items, true
}

// applyList expands every element of a collection concurrently. Elements
// keep their positions.
func (e *Engine) applyList(ctx context.Context, items []interface{}, paths []Path, schema string, depth int, caller Caller) []interface{} {
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(e.maxFanOut)
	for i := range items {
		i := i
		grp.Go(func() error {
			items[i] = e.Apply(gctx, items[i], paths, schema, depth, caller)
			return nil
		})
	}
	_ = grp.Wait()
	return items
}

// applyObject expands the grouped fields of one resource object. Sibling
// fields resolve concurrently; assignments happen after the join so the
// map is never written from more than one goroutine.
func (e *Engine) applyObject(ctx context.Context, obj map[string]interface{}, paths []Path, schema string, depth int, caller Caller) map[string]interface{} {
	groups := groupPaths(paths)

	results := make([]interface{}, len(groups))
	assign := make([]bool, len(groups))

	grp, gctx := errgroup.WithContext(ctx)
	for i, g := range groups {
		meta, ok := e.meta.Field(schema, g.field)
		if !ok {
			e.log.Debug().Str("schema", schema).Str("field", g.field).
				Msg("field is not expandable, skipping")
			continue
		}
		value, present := obj[g.field]
		if !present || value == nil || value == "" {
			continue
		}

		i, g, meta, value := i, g, meta, value
		grp.Go(func() error {
			if out, ok := e.expandField(gctx, value, meta, g.rest, depth, caller); ok {
				results[i] = out
				assign[i] = true
			}
			return nil
		})
	}
	_ = grp.Wait()

	for i, g := range groups {
		if assign[i] {
			obj[g.field] = results[i]
		}
	}
	return obj
}

// expandField computes the replacement value for one field, returning
// ok=false when the field should be left exactly as it was.
func (e *Engine) expandField(ctx context.Context, value interface{}, meta FieldMeta, rest []Path, depth int, caller Caller) (interface{}, bool) {
	switch v := value.(type) {
	case string:
		out := e.resolver.Resolve(ctx, meta.OperationID, v, caller)
		if !out.Resolved() {
			return nil, false
		}
		return e.Apply(ctx, out.Resource, rest, meta.TargetSchema, depth+1, caller), true

	case []interface{}:
		return e.expandArray(ctx, v, meta, rest, depth, caller), true

	case map[string]interface{}:
		// Pre-expanded by the originating handler; only recurse for the
		// remaining subpaths, no resolver call.
		if len(rest) == 0 {
			return nil, false
		}
		return e.Apply(ctx, v, rest, meta.TargetSchema, depth+1, caller), true

	default:
		return nil, false
	}
}

// expandArray resolves an array of identifiers, preserving length and
// order. Each failed element falls back positionally to its original
// identifier. When the field metadata names a batch operation the whole
// array resolves with one call; otherwise (or when the batch call fails)
// each identifier resolves individually with bounded fan-out.
func (e *Engine) expandArray(ctx context.Context, items []interface{}, meta FieldMeta, rest []Path, depth int, caller Caller) []interface{} {
	var ids []string
	var idPos []int
	for i, item := range items {
		if id, ok := item.(string); ok && id != "" {
			ids = append(ids, id)
			idPos = append(idPos, i)
		}
	}

	if meta.BatchOperationID != "" && len(ids) > 1 {
		if outcomes, ok := e.resolver.ResolveMany(ctx, meta.BatchOperationID, ids, caller); ok {
			for k, out := range outcomes {
				if out.Resolved() {
					items[idPos[k]] = e.Apply(ctx, out.Resource, rest, meta.TargetSchema, depth+1, caller)
				}
			}
			e.recurseStructured(ctx, items, idPos, meta, rest, depth, caller)
			return items
		}
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(e.maxFanOut)
	for k := range ids {
		k := k
		grp.Go(func() error {
			out := e.resolver.Resolve(gctx, meta.OperationID, ids[k], caller)
			if out.Resolved() {
				items[idPos[k]] = e.Apply(gctx, out.Resource, rest, meta.TargetSchema, depth+1, caller)
			}
			return nil
		})
	}
	_ = grp.Wait()

	e.recurseStructured(ctx, items, idPos, meta, rest, depth, caller)
	return items
}

// recurseStructured applies remaining subpaths to array elements that
// arrived already structured (pre-expanded objects mixed into an
// identifier array). Positions listed in idPos were handled by the
// resolver and are skipped.
func (e *Engine) recurseStructured(ctx context.Context, items []interface{}, idPos []int, meta FieldMeta, rest []Path, depth int, caller Caller) {
	if len(rest) == 0 {
		return
	}
	resolved := make(map[int]bool, len(idPos))
	for _, i := range idPos {
		resolved[i] = true
	}
	for i, item := range items {
		if resolved[i] {
			continue
		}
		if obj, ok := item.(map[string]interface{}); ok {
			items[i] = e.Apply(ctx, obj, rest, meta.TargetSchema, depth+1, caller)
		}
	}
}
