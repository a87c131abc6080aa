package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"stat7/core"
)

func newTestAnchorController(t *testing.T) (*AnchorController, *core.AnchorGraph, *core.LocalProvider) {
	t.Helper()
	provider := core.NewLocalProvider(32, 3)
	graph, err := core.NewAnchorGraph(t.TempDir(), provider, 0.9, 0.75, 0)
	if err != nil {
		t.Fatalf("NewAnchorGraph: %v", err)
	}
	return NewAnchorController(graph), graph, provider
}

func TestAnchorControllerGetFound(t *testing.T) {
	c, graph, provider := newTestAnchorController(t)
	emb, _ := provider.Embed(context.Background(), "some concept")
	id, err := graph.CreateOrUpdateAnchor(emb, "some concept", "u1", core.AnchorContext{Realm: core.RealmData})
	if err != nil {
		t.Fatalf("CreateOrUpdateAnchor: %v", err)
	}

	r := chi.NewRouter()
	r.Get("/anchors/{id}", c.Get)
	req := httptest.NewRequest(http.MethodGet, "/anchors/"+id, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rec.Code)
	}
	var a core.Anchor
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if a.AnchorID != id {
		t.Fatalf("anchor id mismatch: got %q, want %q", a.AnchorID, id)
	}
}

func TestAnchorControllerGetNotFound(t *testing.T) {
	c, _, _ := newTestAnchorController(t)
	r := chi.NewRouter()
	r.Get("/anchors/{id}", c.Get)
	req := httptest.NewRequest(http.MethodGet, "/anchors/does-not-exist", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 Not Found, got %d", rec.Code)
	}
}

func TestAnchorControllerByCoordFiltersRealm(t *testing.T) {
	c, graph, provider := newTestAnchorController(t)
	dataEmb, _ := provider.Embed(context.Background(), "data concept")
	if _, err := graph.CreateOrUpdateAnchor(dataEmb, "data concept", "u1", core.AnchorContext{Realm: core.RealmData}); err != nil {
		t.Fatalf("CreateOrUpdateAnchor: %v", err)
	}
	eventEmb, _ := provider.Embed(context.Background(), "event concept")
	if _, err := graph.CreateOrUpdateAnchor(eventEmb, "event concept", "u2", core.AnchorContext{Realm: core.RealmEvent}); err != nil {
		t.Fatalf("CreateOrUpdateAnchor: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/anchors/by-coord?realm=data", nil)
	rec := httptest.NewRecorder()
	c.ByCoord(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rec.Code)
	}
	var out []core.Anchor
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].Coord.Realm != core.RealmData {
		t.Fatalf("expected exactly one DATA-realm anchor, got %+v", out)
	}
}
