package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mr1hm/go-relief-map/internal/models"
	"github.com/mr1hm/go-relief-map/internal/observability"
)

const (
	MapDataPath        = "/api/map_data"
	DashboardStatsPath = "/api/dashboard_stats"

	endpointMapData   = "map_data"
	endpointDashboard = "dashboard_stats"

	maxBodyBytes = 16 << 20
)

// Source is what the view needs from the relief backend.
type Source interface {
	FetchMapData(ctx context.Context) (models.Snapshot, error)
	FetchDashboard(ctx context.Context) (models.DashboardStats, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchMapData loads the disaster and center points shown on the map.
func (c *Client) FetchMapData(ctx context.Context) (models.Snapshot, error) {
	body, err := c.get(ctx, endpointMapData, MapDataPath)
	if err != nil {
		return models.Snapshot{}, err
	}

	snap, report, err := DecodeMapData(body)
	if err != nil {
		c.observe(endpointMapData, err)
		return models.Snapshot{}, err
	}
	c.observe(endpointMapData, nil)
	c.recordSkips(endpointMapData, report)

	snap.FetchedAt = c.now()
	c.logger.Debug("fetched map data",
		"disasters", len(snap.Disasters),
		"centers", len(snap.Centers),
		"skipped", report.Skipped(),
	)
	return snap, nil
}

// FetchDashboard loads the statistics cards and recent activity lists.
func (c *Client) FetchDashboard(ctx context.Context) (models.DashboardStats, error) {
	body, err := c.get(ctx, endpointDashboard, DashboardStatsPath)
	if err != nil {
		return models.DashboardStats{}, err
	}

	stats, report, err := DecodeDashboard(body)
	if err != nil {
		c.observe(endpointDashboard, err)
		return models.DashboardStats{}, err
	}
	c.observe(endpointDashboard, nil)
	c.recordSkips(endpointDashboard, report)

	stats.FetchedAt = c.now()
	c.logger.Debug("fetched dashboard stats",
		"recent_disasters", len(stats.RecentDisasters),
		"recent_allocations", len(stats.RecentAllocations),
	)
	return stats, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string) ([]byte, error) {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.FetchDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		c.observe(endpoint, err)
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(endpoint, err)
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
		c.observe(endpoint, err)
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.observe(endpoint, err)
		return nil, fmt.Errorf("error reading resp.Body: %w", err)
	}
	return body, nil
}

func (c *Client) observe(endpoint string, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.metrics.FetchRequests.WithLabelValues(endpoint, outcome).Inc()
}

func (c *Client) recordSkips(endpoint string, r DecodeReport) {
	if r.Skipped() == 0 {
		return
	}
	c.logger.Warn("skipped malformed records",
		"endpoint", endpoint,
		"disasters", r.SkippedDisasters,
		"centers", r.SkippedCenters,
		"allocations", r.SkippedAllocations,
	)
	if c.metrics != nil {
		c.metrics.RecordsSkipped.WithLabelValues("disaster", "decode").Add(float64(r.SkippedDisasters))
		c.metrics.RecordsSkipped.WithLabelValues("center", "decode").Add(float64(r.SkippedCenters))
		c.metrics.RecordsSkipped.WithLabelValues("allocation", "decode").Add(float64(r.SkippedAllocations))
	}
}
