package mapbox

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func newTestApp(client *Client) *fiber.App {
	app := fiber.New()
	pass := func(c *fiber.Ctx) error { return c.Next() }
	RegisterRoutes(app.Group("/api"), client, zap.NewNop().Sugar(), pass, pass)
	return app
}

func TestMapConfigHandler(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	app := newTestApp(newTestClient(t, srv, nil))

	for query, want := range map[string]string{
		"":                                StyleLight,
		"?theme=dark":                     StyleDark,
		"?theme=system&prefers_dark=true": StyleDark,
		"?theme=system":                   StyleLight,
	} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/map/config"+query, nil))
		if err != nil || resp.StatusCode != http.StatusOK {
			t.Fatalf("config%s status: %v", query, err)
		}
		var settings MapSettings
		if err := json.NewDecoder(resp.Body).Decode(&settings); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if settings.Style != want {
			t.Fatalf("config%s: expected %s, got %s", query, want, settings.Style)
		}
		if settings.Zoom != 13 || settings.MinZoom != 11 || settings.MaxZoom != 18 {
			t.Fatalf("unexpected zoom levels %+v", settings)
		}
		if settings.MaxBounds[0][0] != -0.92 || settings.MaxBounds[1][1] != 38.02 {
			t.Fatalf("unexpected max bounds %v", settings.MaxBounds)
		}
	}
}

func TestMapHandlersWithoutToken(t *testing.T) {
	app := newTestApp(NewClient(Options{}))

	for _, path := range []string{"/api/map/config", "/api/places/search?q=plaza"} {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, resp.StatusCode)
		}
	}
}

func TestPlaceSearchHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("proximity") != "-0.79,37.87" {
			t.Errorf("unexpected proximity %q", r.URL.Query().Get("proximity"))
		}
		_, _ = w.Write([]byte(`{"features":[{"center":[-0.7912,37.8655],"text":"Plaza Mayor","place_name":"Plaza Mayor, Pilar de la Horadada"}]}`))
	}))
	defer srv.Close()
	app := newTestApp(newTestClient(t, srv, nil))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/places/search?q="+url.QueryEscape("Plaza Mayor")+"&lng=-0.79&lat=37.87", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("search status: %v", err)
	}
	var places []Place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil || len(places) != 1 || places[0].Text != "Plaza Mayor" {
		t.Fatalf("unexpected places %v %v", places, err)
	}
}

func TestPlaceSearchDegradesToEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	app := newTestApp(newTestClient(t, srv, nil))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/places/search?q=plaza", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("search status: %v", err)
	}
	var places []Place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil || places == nil || len(places) != 0 {
		t.Fatalf("expected empty list, got %v %v", places, err)
	}
}
