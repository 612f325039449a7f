package activity

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

func newTestApp(svc *Service) *fiber.App {
	app := fiber.New()
	asUser := func(c *fiber.Ctx) error {
		c.Locals("user_id", "user-1")
		return c.Next()
	}
	RegisterRoutes(app.Group("/activities"), svc, asUser)
	return app
}

func TestActivityHandlersList(t *testing.T) {
	mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(`SELECT id, user_id, name, started_at`).
		WithArgs("user-1", listLimit).
		WillReturnRows(pgxmock.NewRows(activityColumns).
			AddRow("a-1", "user-1", "Ruta", now, now, 1.0, 4.0, 4.0, 15.0, now))

	resp, err := newTestApp(NewService(mock)).Test(httptest.NewRequest(http.MethodGet, "/activities/", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list status: %v", err)
	}
	var items []Activity
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil || len(items) != 1 {
		t.Fatalf("unexpected body %v %v", items, err)
	}
}

func TestActivityHandlersGetAndGPX(t *testing.T) {
	mock := newMock(t)
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		mock.ExpectQuery(`ST_AsText\(path\)`).
			WithArgs("a-1", "user-1").
			WillReturnRows(pgxmock.NewRows(append(activityColumns, "path")).
				AddRow("a-1", "user-1", "Ruta", start, start.Add(time.Minute), 1.0, 1.0, 1.0, 60.0, start,
					"LINESTRING(-74.08 4.6,-74.07 4.61)"))
	}
	app := newTestApp(NewService(mock))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/activities/a-1", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("get status: %v", err)
	}
	var a Activity
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil || len(a.Path) != 2 {
		t.Fatalf("unexpected activity %+v %v", a, err)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/activities/a-1/gpx", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("gpx status: %v", err)
	}
	if ct := resp.Header.Get(fiber.HeaderContentType); ct != "application/gpx+xml" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := resp.Header.Get(fiber.HeaderContentDisposition); !strings.Contains(cd, "a-1.gpx") {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestActivityHandlersNotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`ST_AsText\(path\)`).
		WithArgs("missing", "user-1").
		WillReturnError(pgx.ErrNoRows)

	resp, _ := newTestApp(NewService(mock)).Test(httptest.NewRequest(http.MethodGet, "/activities/missing/gpx", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
