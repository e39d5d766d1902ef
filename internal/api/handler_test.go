package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-relief-map/internal/app"
	"github.com/mr1hm/go-relief-map/internal/geo"
	"github.com/mr1hm/go-relief-map/internal/models"
	"github.com/mr1hm/go-relief-map/internal/observability"
)

// mockSource implements source.Source for testing
type mockSource struct {
	mu     sync.Mutex
	snap   models.Snapshot
	stats  models.DashboardStats
	mapErr error
}

func (m *mockSource) FetchMapData(ctx context.Context) (models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, m.mapErr
}

func (m *mockSource) FetchDashboard(ctx context.Context) (models.DashboardStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats, nil
}

func (m *mockSource) failMap(err error) {
	m.mu.Lock()
	m.mapErr = err
	m.mu.Unlock()
}

func newMockSource() *mockSource {
	return &mockSource{
		snap: models.Snapshot{
			Disasters: []models.DisasterPoint{
				{ID: 1, Name: "River Flood", Category: models.DisasterFlood, Severity: 4, AffectedPopulation: 12000, Location: geo.Point{Lat: 29.76, Lon: -95.37}},
				{ID: 2, Name: "Ridge Fire", Category: models.DisasterFire, Severity: 9, AffectedPopulation: 300, Location: geo.Point{Lat: 34.05, Lon: -118.24}},
			},
			Centers: []models.CenterPoint{
				{ID: 10, Name: "North Shelter", Category: models.CenterShelter, Capacity: 200, Occupancy: 150, Location: geo.Point{Lat: 29.9, Lon: -95.4}},
				{ID: 11, Name: "Bayou Clinic", Category: models.CenterMedical, Capacity: 0, Occupancy: 4, Location: geo.Point{Lat: 29.7, Lon: -95.3}},
			},
		},
		stats: models.DashboardStats{
			Stats: models.Stats{ActiveDisasters: 2, TotalAffected: 12300, PendingAllocations: 5, OperationalCenters: 2},
		},
	}
}

func setupTestRouter(t *testing.T, src *mockSource) (*gin.Engine, *app.View) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics := observability.NewMetricsForTesting()
	view, err := app.Mount(context.Background(), app.Deps{
		Source:  src,
		Clock:   clockwork.NewFakeClock(),
		Metrics: metrics,
	})
	require.NoError(t, err)
	t.Cleanup(view.Unmount)

	require.Eventually(t, func() bool {
		st := view.State()
		return st.Markers["disasters"] == 2 && view.Dashboard().Loaded
	}, 2*time.Second, 5*time.Millisecond)

	router := NewRouter(view, RouterConfig{Gatherer: prometheus.NewRegistry()})
	return router, view
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router, _ := setupTestRouter(t, newMockSource())

	w := do(router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestGetGeoJSON(t *testing.T) {
	router, _ := setupTestRouter(t, newMockSource())

	w := do(router, http.MethodGet, "/api/map/geojson", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/geo+json", w.Header().Get("Content-Type"))

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 4)

	colors := map[string]string{}
	for _, f := range fc.Features {
		assert.Equal(t, "Point", f.Geometry.Type)
		key := f.Properties["layer"].(string) + ":" + f.Properties["title"].(string)
		colors[key] = f.Properties["color"].(string)
	}
	assert.Equal(t, "#dc3545", colors["disasters:River Flood"])
	assert.Equal(t, "#dc3545", colors["disasters:Ridge Fire"], "out-of-range severity falls back to level 4")
	assert.Equal(t, "#28a745", colors["centers:North Shelter"])
	assert.Equal(t, "#ffc107", colors["centers:Bayou Clinic"])
}

func TestSetLayerVisible(t *testing.T) {
	router, view := setupTestRouter(t, newMockSource())

	w := do(router, http.MethodPut, "/api/map/layers/centers", `{"visible": false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, view.State().Visible["centers"])

	// idempotent
	w = do(router, http.MethodPut, "/api/map/layers/centers", `{"visible": false}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/api/map/geojson", "")
	var fc struct {
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fc))
	assert.Len(t, fc.Features, 2)

	assert.Equal(t, http.StatusNotFound, do(router, http.MethodPut, "/api/map/layers/roads", `{"visible": true}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPut, "/api/map/layers/centers", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPut, "/api/map/layers/centers", `not json`).Code)
}

func TestClickAndPopup(t *testing.T) {
	router, view := setupTestRouter(t, newMockSource())

	w := do(router, http.MethodPost, "/api/map/layers/disasters/markers/2/click", "")
	require.Equal(t, http.StatusOK, w.Code)
	sel := view.State().Selection
	require.NotNil(t, sel.DisasterID)
	assert.Equal(t, int64(2), *sel.DisasterID)

	w = do(router, http.MethodPost, "/api/map/layers/center/markers/10/popup", `{"open": true}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusNotFound, do(router, http.MethodPost, "/api/map/layers/centers/markers/404/click", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/api/map/layers/centers/markers/abc/click", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/api/map/layers/centers/markers/10/popup", `{}`).Code)
}

func TestDetails(t *testing.T) {
	router, _ := setupTestRouter(t, newMockSource())

	w := do(router, http.MethodGet, "/api/map/disasters/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var d map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, "River Flood", d["name"])
	assert.Equal(t, "danger", d["badge_class"])
	assert.Equal(t, "29.7600, -95.3700", d["location"])

	w = do(router, http.MethodGet, "/api/map/centers/11", "")
	require.Equal(t, http.StatusOK, w.Code)
	var c map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, false, c["capacity_known"])
	assert.Equal(t, 0.0, c["occupancy_rate"])

	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/api/map/disasters/99", "").Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/api/map/centers/99", "").Code)
}

func TestNearby(t *testing.T) {
	router, _ := setupTestRouter(t, newMockSource())

	w := do(router, http.MethodGet, "/api/map/nearby?lat=29.76&lon=-95.37&radius_km=50", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Centers []nearbyCenter `json:"centers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Centers, 2)
	assert.Equal(t, int64(11), resp.Centers[0].ID, "nearest first")
	assert.LessOrEqual(t, resp.Centers[0].DistanceKm, resp.Centers[1].DistanceKm)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/api/map/nearby?lat=abc&lon=1", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/api/map/nearby?lat=95&lon=1", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/api/map/nearby?lat=1&lon=1&radius_km=-3", "").Code)
}

func TestShowNearby(t *testing.T) {
	router, view := setupTestRouter(t, newMockSource())

	w := do(router, http.MethodPost, "/api/map/disasters/1/nearby?radius_km=20", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		DisasterID int64            `json:"disaster_id"`
		Centers    []nearbyCenter   `json:"centers"`
		Viewport   *json.RawMessage `json:"viewport"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.DisasterID)
	assert.Len(t, resp.Centers, 2)
	assert.NotNil(t, resp.Viewport)
	assert.Equal(t, 2, view.State().Markers["centers"])

	w = do(router, http.MethodPost, "/api/map/disasters/2/nearby", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, view.State().Markers["centers"])

	assert.Equal(t, http.StatusNotFound, do(router, http.MethodPost, "/api/map/disasters/77/nearby", "").Code)
}

func TestRefresh(t *testing.T) {
	src := newMockSource()
	router, view := setupTestRouter(t, src)

	w := do(router, http.MethodPost, "/api/map/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)

	src.failMap(errors.New("backend down"))
	w = do(router, http.MethodPost, "/api/map/refresh", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, 2, view.State().Markers["disasters"], "failed refresh keeps markers")

	w = do(router, http.MethodGet, "/api/notifications", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to load map data")
}

func TestDashboard(t *testing.T) {
	router, _ := setupTestRouter(t, newMockSource())

	w := do(router, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, w.Code)

	var v struct {
		Cards struct {
			AffectedPopulation string `json:"affected_population"`
		} `json:"cards"`
		AlertBadgeClass string `json:"alert_badge_class"`
		EmergencyAlert  string `json:"emergency_alert"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, "12.3K", v.Cards.AffectedPopulation)
	assert.Equal(t, "danger", v.AlertBadgeClass)
	assert.NotEmpty(t, v.EmergencyAlert)

	assert.Equal(t, http.StatusNoContent, do(router, http.MethodDelete, "/api/dashboard/alert", "").Code)

	w = do(router, http.MethodGet, "/api/dashboard", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Empty(t, v.EmergencyAlert)
}

func TestUnmountedView(t *testing.T) {
	router, view := setupTestRouter(t, newMockSource())
	view.Unmount()

	assert.Equal(t, http.StatusServiceUnavailable, do(router, http.MethodPut, "/api/map/layers/centers", `{"visible": true}`).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(router, http.MethodPost, "/api/map/refresh", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t, newMockSource())

	w := do(router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNotificationStream(t *testing.T) {
	src := newMockSource()
	router, view := setupTestRouter(t, src)

	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	src.failMap(errors.New("backend down"))
	go func() {
		// keep failing until the stream has subscribed and flushed an event
		for ctx.Err() == nil {
			_ = view.RefreshMap(ctx)
			time.Sleep(20 * time.Millisecond)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/notifications/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			event = strings.TrimPrefix(line, "event:")
		}
		if strings.HasPrefix(line, "data:") {
			data = strings.TrimPrefix(line, "data:")
			break
		}
	}
	cancel()

	assert.Equal(t, "error", event)
	assert.Contains(t, data, "Failed to load map data")
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(1, 2))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/ping", "").Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/ping", "").Code)
	w := do(router, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}
