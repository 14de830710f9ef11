package expand

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// Document is the schema document supplied at boot by an external
// code-generation step. It describes, per schema, which fields are
// expandable and how to resolve them, plus the route for every fetch
// operation. The server consumes the document as-is and does not
// validate it beyond what index construction requires.
type Document struct {
	Schemas    map[string]SchemaEntry    `json:"schemas"`
	Operations map[string]OperationEntry `json:"operations"`
}

// SchemaEntry lists the expandable fields of one schema.
type SchemaEntry struct {
	Fields map[string]FieldEntry `json:"fields"`
}

// FieldEntry is the raw per-field expansion annotation.
//
// Target is either a plain schema name ("Person") or a list of
// alternatives where all but one are "null" (["Person", "null"]); the
// concrete name is unwrapped during index construction.
type FieldEntry struct {
	OperationID      string          `json:"operationId"`
	BatchOperationID string          `json:"batchOperationId,omitempty"`
	Target           json.RawMessage `json:"target"`
	Cardinality      string          `json:"cardinality"`
}

// OperationEntry describes the route behind a fetch operation id. Path is
// a template with at most one parameter placeholder, e.g. "/persons/{id}".
// Schema names the schema of the operation's response body and lets the
// response interceptor know what it is looking at without any handler
// cooperation.
type OperationEntry struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Schema string `json:"schema"`
}

// LoadDocument reads a schema document from a JSON file.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse schema document %s: %w", path, err)
	}
	return &doc, nil
}

// Cardinality of an expandable field's value.
const (
	CardinalitySingle = "single"
	CardinalityArray  = "array"
)

// FieldMeta is the resolved, immutable expansion metadata for one
// (schema, field) pair.
type FieldMeta struct {
	OperationID      string
	BatchOperationID string
	TargetSchema     string
	Cardinality      string
}

// Metadata is the boot-time-built index of expandable fields. It is
// immutable after construction and shared read-only across requests.
type Metadata struct {
	schemas map[string]map[string]FieldMeta
}

// Field looks up the expansion metadata for a field of a schema.
func (m *Metadata) Field(schema, field string) (FieldMeta, bool) {
	fields, ok := m.schemas[schema]
	if !ok {
		return FieldMeta{}, false
	}
	meta, ok := fields[field]
	return meta, ok
}

// HasSchema reports whether the schema has any expandable fields at all.
func (m *Metadata) HasSchema(schema string) bool {
	_, ok := m.schemas[schema]
	return ok
}

// Route is the dispatchable form of an operation: concrete HTTP method
// plus a path template with at most one placeholder.
type Route struct {
	Method string
	Path   string
	Schema string
}

var placeholderPattern = regexp.MustCompile(`\{([^}/]+)\}`)

// Concrete substitutes the path parameter placeholder with the given
// value. Paths without a placeholder are returned unchanged.
func (r Route) Concrete(value string) string {
	return placeholderPattern.ReplaceAllLiteralString(r.Path, value)
}

// RouteIndex maps fetch operation ids to routes and, in reverse, echo
// route templates to response schema names. Immutable after boot.
type RouteIndex struct {
	ops      map[string]Route
	bySchema map[string]string // "GET /api/v1/persons/:id" -> "Person"
}

// Operation returns the route for a fetch operation id.
func (ri *RouteIndex) Operation(id string) (Route, bool) {
	rt, ok := ri.ops[id]
	return rt, ok
}

// SchemaForRoute returns the response schema for a matched route, using
// echo's route template form (e.g. "/api/v1/persons/:id").
func (ri *RouteIndex) SchemaForRoute(method, echoPath string) (string, bool) {
	schema, ok := ri.bySchema[method+" "+echoPath]
	return schema, ok
}

// BuildIndexes constructs the immutable Metadata and RouteIndex from a
// schema document. Entries that cannot be resolved (ambiguous target,
// unknown cardinality) are logged and skipped; the document as a whole
// only fails when it is structurally empty.
func BuildIndexes(doc *Document, logger zerolog.Logger) (*Metadata, *RouteIndex, error) {
	if doc == nil || len(doc.Operations) == 0 {
		return nil, nil, fmt.Errorf("schema document has no operations")
	}

	ops := make(map[string]Route, len(doc.Operations))
	bySchema := make(map[string]string, len(doc.Operations))
	for id, op := range doc.Operations {
		rt := Route{Method: strings.ToUpper(op.Method), Path: op.Path, Schema: op.Schema}
		ops[id] = rt
		if op.Schema != "" {
			bySchema[rt.Method+" "+toEchoPath(op.Path)] = op.Schema
		}
	}

	schemas := make(map[string]map[string]FieldMeta, len(doc.Schemas))
	for name, entry := range doc.Schemas {
		fields := make(map[string]FieldMeta, len(entry.Fields))
		for field, fe := range entry.Fields {
			target, err := unwrapTarget(fe.Target)
			if err != nil {
				logger.Warn().Str("schema", name).Str("field", field).Err(err).
					Msg("skipping expandable field with unresolvable target")
				continue
			}
			card := fe.Cardinality
			if card == "" {
				card = CardinalitySingle
			}
			if card != CardinalitySingle && card != CardinalityArray {
				logger.Warn().Str("schema", name).Str("field", field).Str("cardinality", card).
					Msg("skipping expandable field with unknown cardinality")
				continue
			}
			fields[field] = FieldMeta{
				OperationID:      fe.OperationID,
				BatchOperationID: fe.BatchOperationID,
				TargetSchema:     target,
				Cardinality:      card,
			}
		}
		if len(fields) > 0 {
			schemas[name] = fields
		}
	}

	meta := &Metadata{schemas: schemas}
	index := &RouteIndex{ops: ops, bySchema: bySchema}
	return meta, index, nil
}

// unwrapTarget resolves a raw target annotation to a single concrete
// schema name, dropping "null" alternatives.
func unwrapTarget(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("missing target")
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" || single == "null" {
			return "", fmt.Errorf("target is null")
		}
		return single, nil
	}

	var alternatives []string
	if err := json.Unmarshal(raw, &alternatives); err != nil {
		return "", fmt.Errorf("target is neither a name nor a list of names")
	}
	concrete := ""
	for _, alt := range alternatives {
		if alt == "" || alt == "null" {
			continue
		}
		if concrete != "" && concrete != alt {
			return "", fmt.Errorf("ambiguous target: %s and %s", concrete, alt)
		}
		concrete = alt
	}
	if concrete == "" {
		return "", fmt.Errorf("target list has no concrete schema")
	}
	return concrete, nil
}

// toEchoPath converts a "{param}" template to echo's ":param" form.
func toEchoPath(template string) string {
	return placeholderPattern.ReplaceAllString(template, ":$1")
}
