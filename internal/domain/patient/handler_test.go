package patient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

func adminContext(e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder) echo.Context {
	c := e.NewContext(req, rec)
	ctx := context.WithValue(req.Context(), auth.UserRolesKey, []string{"admin"})
	c.SetRequest(req.WithContext(ctx))
	return c
}

func TestHandler_CreateSerializesReferencesAsIdentifiers(t *testing.T) {
	h := NewHandler(NewService(NewMemRepo()))

	personID := uuid.New()
	providerID := uuid.New()
	payload := `{"mrn":"M-1","person":"` + personID.String() + `","primaryProvider":"` + providerID.String() + `"}`

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := adminContext(e, req, rec)

	if err := h.Create(c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["person"] != personID.String() {
		t.Errorf("person = %v, want plain identifier", body["person"])
	}
	if body["primaryProvider"] != providerID.String() {
		t.Errorf("primaryProvider = %v, want plain identifier", body["primaryProvider"])
	}
}

func TestHandler_GetNotFound(t *testing.T) {
	h := NewHandler(NewService(NewMemRepo()))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	c := adminContext(e, req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())

	err := h.Get(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_ListEnvelope(t *testing.T) {
	svc := NewService(NewMemRepo())
	h := NewHandler(svc)

	for i := 0; i < 3; i++ {
		if err := svc.Create(context.Background(), &Patient{MRN: "M", Status: "active"}); err != nil {
			t.Fatal(err)
		}
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients?limit=2", nil)
	rec := httptest.NewRecorder()
	c := adminContext(e, req, rec)

	if err := h.List(c); err != nil {
		t.Fatalf("List: %v", err)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	items, ok := body["items"].([]interface{})
	if !ok || len(items) != 2 {
		t.Errorf("items = %v, want 2 entries", body["items"])
	}
	pg, ok := body["pagination"].(map[string]interface{})
	if !ok || pg["total"] != float64(3) {
		t.Errorf("pagination = %v", body["pagination"])
	}
}

func TestService_Validation(t *testing.T) {
	svc := NewService(NewMemRepo())
	ctx := context.Background()

	if err := svc.Create(ctx, &Patient{}); err == nil {
		t.Error("expected error for missing mrn")
	}
	if err := svc.Create(ctx, &Patient{MRN: "M-1", Status: "cryostasis"}); err == nil {
		t.Error("expected error for invalid status")
	}

	p := &Patient{MRN: "M-1"}
	if err := svc.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Status != "active" {
		t.Errorf("status = %q, want default active", p.Status)
	}
}

func TestService_CareTeamRoundTrip(t *testing.T) {
	svc := NewService(NewMemRepo())
	ctx := context.Background()

	team := []uuid.UUID{uuid.New(), uuid.New()}
	p := &Patient{MRN: "M-2", CareTeamIDs: team}
	if err := svc.Create(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := svc.Get(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.CareTeamIDs) != 2 || got.CareTeamIDs[0] != team[0] {
		t.Errorf("care team = %v, want %v", got.CareTeamIDs, team)
	}
}
