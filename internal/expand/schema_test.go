package expand

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func testDocument() *Document {
	return &Document{
		Schemas: map[string]SchemaEntry{
			"Patient": {Fields: map[string]FieldEntry{
				"person": {
					OperationID: "getPerson",
					Target:      json.RawMessage(`"Person"`),
					Cardinality: "single",
				},
				"primaryProvider": {
					OperationID: "getPractitioner",
					Target:      json.RawMessage(`["Practitioner", "null"]`),
					Cardinality: "single",
				},
				"careTeam": {
					OperationID:      "getPractitioner",
					BatchOperationID: "batchGetPractitioners",
					Target:           json.RawMessage(`"Practitioner"`),
					Cardinality:      "array",
				},
			}},
			"Practitioner": {Fields: map[string]FieldEntry{
				"person": {
					OperationID: "getPerson",
					Target:      json.RawMessage(`"Person"`),
					Cardinality: "single",
				},
			}},
		},
		Operations: map[string]OperationEntry{
			"getPerson":             {Method: "GET", Path: "/api/v1/persons/{id}", Schema: "Person"},
			"getPractitioner":       {Method: "GET", Path: "/api/v1/practitioners/{id}", Schema: "Practitioner"},
			"batchGetPractitioners": {Method: "GET", Path: "/api/v1/practitioners/batch/{ids}", Schema: "Practitioner"},
			"getPatient":            {Method: "GET", Path: "/api/v1/patients/{id}", Schema: "Patient"},
			"listPatients":          {Method: "GET", Path: "/api/v1/patients", Schema: "Patient"},
		},
	}
}

func TestBuildIndexes_FieldLookup(t *testing.T) {
	meta, _, err := BuildIndexes(testDocument(), zerolog.Nop())
	if err != nil {
		t.Fatalf("BuildIndexes: %v", err)
	}

	fm, ok := meta.Field("Patient", "person")
	if !ok {
		t.Fatal("expected Patient.person to be expandable")
	}
	if fm.OperationID != "getPerson" || fm.TargetSchema != "Person" || fm.Cardinality != CardinalitySingle {
		t.Errorf("unexpected metadata: %+v", fm)
	}

	if _, ok := meta.Field("Patient", "mrn"); ok {
		t.Error("mrn must not be expandable")
	}
	if _, ok := meta.Field("Unknown", "person"); ok {
		t.Error("unknown schema must have no expandable fields")
	}
}

func TestBuildIndexes_UnwrapsNullableTarget(t *testing.T) {
	meta, _, err := BuildIndexes(testDocument(), zerolog.Nop())
	if err != nil {
		t.Fatalf("BuildIndexes: %v", err)
	}
	fm, ok := meta.Field("Patient", "primaryProvider")
	if !ok {
		t.Fatal("expected Patient.primaryProvider to be expandable")
	}
	if fm.TargetSchema != "Practitioner" {
		t.Errorf("target = %q, want Practitioner", fm.TargetSchema)
	}
}

func TestBuildIndexes_SkipsAmbiguousTarget(t *testing.T) {
	doc := testDocument()
	entry := doc.Schemas["Patient"]
	entry.Fields["odd"] = FieldEntry{
		OperationID: "getPerson",
		Target:      json.RawMessage(`["Person", "Practitioner"]`),
		Cardinality: "single",
	}
	doc.Schemas["Patient"] = entry

	meta, _, err := BuildIndexes(doc, zerolog.Nop())
	if err != nil {
		t.Fatalf("BuildIndexes: %v", err)
	}
	if _, ok := meta.Field("Patient", "odd"); ok {
		t.Error("ambiguous target must be skipped")
	}
	// Other fields survive.
	if _, ok := meta.Field("Patient", "person"); !ok {
		t.Error("valid sibling field must still be indexed")
	}
}

func TestRouteIndex_Operation(t *testing.T) {
	_, routes, err := BuildIndexes(testDocument(), zerolog.Nop())
	if err != nil {
		t.Fatalf("BuildIndexes: %v", err)
	}

	rt, ok := routes.Operation("getPerson")
	if !ok {
		t.Fatal("expected getPerson operation")
	}
	if rt.Method != "GET" {
		t.Errorf("method = %q, want GET", rt.Method)
	}
	if got := rt.Concrete("p1"); got != "/api/v1/persons/p1" {
		t.Errorf("Concrete = %q", got)
	}

	if _, ok := routes.Operation("nope"); ok {
		t.Error("unknown operation must not resolve")
	}
}

func TestRouteIndex_SchemaForRoute(t *testing.T) {
	_, routes, err := BuildIndexes(testDocument(), zerolog.Nop())
	if err != nil {
		t.Fatalf("BuildIndexes: %v", err)
	}

	schema, ok := routes.SchemaForRoute("GET", "/api/v1/patients/:id")
	if !ok || schema != "Patient" {
		t.Errorf("SchemaForRoute = %q, %v; want Patient, true", schema, ok)
	}
	schema, ok = routes.SchemaForRoute("GET", "/api/v1/patients")
	if !ok || schema != "Patient" {
		t.Errorf("list SchemaForRoute = %q, %v; want Patient, true", schema, ok)
	}
	if _, ok := routes.SchemaForRoute("GET", "/api/v1/unknown/:id"); ok {
		t.Error("unknown route must not map to a schema")
	}
}

func TestBuildIndexes_EmptyDocument(t *testing.T) {
	if _, _, err := BuildIndexes(&Document{}, zerolog.Nop()); err == nil {
		t.Error("expected error for empty document")
	}
	if _, _, err := BuildIndexes(nil, zerolog.Nop()); err == nil {
		t.Error("expected error for nil document")
	}
}

func TestLoadDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.json")
	content := `{
		"schemas": {"Patient": {"fields": {"person": {"operationId": "getPerson", "target": "Person", "cardinality": "single"}}}},
		"operations": {"getPerson": {"method": "GET", "path": "/api/v1/persons/{id}", "schema": "Person"}}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if len(doc.Schemas) != 1 || len(doc.Operations) != 1 {
		t.Errorf("unexpected document: %+v", doc)
	}

	if _, err := LoadDocument(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
