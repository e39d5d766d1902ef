package api

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/geojson"

	"github.com/mr1hm/go-relief-map/internal/app"
	"github.com/mr1hm/go-relief-map/internal/dashboard"
	"github.com/mr1hm/go-relief-map/internal/geo"
	"github.com/mr1hm/go-relief-map/internal/models"
	"github.com/mr1hm/go-relief-map/internal/overlay"
	"github.com/mr1hm/go-relief-map/internal/worker"
)

// MapView is the mounted view the handlers act on.
type MapView interface {
	FeatureCollection() *geojson.FeatureCollection
	State() app.MapState
	SetLayerVisible(ctx context.Context, kind overlay.LayerKind, visible bool) error
	Click(ctx context.Context, kind overlay.LayerKind, id int64) error
	SetPopupOpen(ctx context.Context, kind overlay.LayerKind, id int64, open bool) error
	ShowNearby(ctx context.Context, disasterID int64, radiusKm float64) ([]overlay.NearbyCenter, error)
	DisasterDetail(ctx context.Context, id int64) (overlay.DisasterDetail, error)
	CenterDetail(ctx context.Context, id int64) (overlay.CenterDetail, error)
	Nearby(origin geo.Point, radiusKm float64) []overlay.NearbyCenter
	RefreshMap(ctx context.Context) error
	Dashboard() dashboard.View
	DismissAlert(ctx context.Context) error
	Notifications() []models.Notification
	Subscribe() (<-chan models.Notification, func())
}

type Handler struct {
	view MapView
}

func NewHandler(view MapView) *Handler {
	return &Handler{view: view}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.health)

	m := r.Group("/api/map")
	m.GET("/geojson", h.getGeoJSON)
	m.GET("/state", h.getState)
	m.GET("/nearby", h.getNearby)
	m.POST("/refresh", h.refresh)
	m.PUT("/layers/:layer", h.setLayerVisible)
	m.GET("/disasters/:id", h.getDisasterDetail)
	m.GET("/centers/:id", h.getCenterDetail)
	m.POST("/disasters/:id/nearby", h.showNearby)
	m.POST("/layers/:layer/markers/:id/click", h.click)
	m.POST("/layers/:layer/markers/:id/popup", h.setPopup)

	r.GET("/api/dashboard", h.getDashboard)
	r.DELETE("/api/dashboard/alert", h.dismissAlert)
	r.GET("/api/notifications", h.getNotifications)
	r.GET("/api/notifications/stream", h.streamNotifications)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) getGeoJSON(c *gin.Context) {
	fc := h.view.FeatureCollection()
	data, err := fc.MarshalJSON()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode features"})
		return
	}
	c.Data(http.StatusOK, "application/geo+json", data)
}

func (h *Handler) getState(c *gin.Context) {
	c.JSON(http.StatusOK, h.view.State())
}

type layerRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

func (h *Handler) setLayerVisible(c *gin.Context) {
	kind, ok := layerParam(c)
	if !ok {
		return
	}

	var req layerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"visible\": bool}"})
		return
	}

	if err := h.view.SetLayerVisible(c.Request.Context(), kind, *req.Visible); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"layer": kind, "visible": *req.Visible})
}

func (h *Handler) click(c *gin.Context) {
	kind, ok := layerParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.view.Click(c.Request.Context(), kind, id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view.State().Selection)
}

type popupRequest struct {
	Open *bool `json:"open" binding:"required"`
}

func (h *Handler) setPopup(c *gin.Context) {
	kind, ok := layerParam(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req popupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"open\": bool}"})
		return
	}

	if err := h.view.SetPopupOpen(c.Request.Context(), kind, id, *req.Open); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"layer": kind, "id": id, "open": *req.Open})
}

func (h *Handler) getDisasterDetail(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	detail, err := h.view.DisasterDetail(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) getCenterDetail(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	detail, err := h.view.CenterDetail(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type nearbyCenter struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Capacity   int     `json:"capacity"`
	Occupancy  int     `json:"occupancy"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	DistanceKm float64 `json:"distance_km"`
}

func toNearbyResponse(in []overlay.NearbyCenter) []nearbyCenter {
	out := make([]nearbyCenter, 0, len(in))
	for _, n := range in {
		out = append(out, nearbyCenter{
			ID:         n.Center.ID,
			Name:       n.Center.Name,
			Type:       string(n.Center.Category),
			Capacity:   n.Center.Capacity,
			Occupancy:  n.Center.Occupancy,
			Latitude:   n.Center.Location.Lat,
			Longitude:  n.Center.Location.Lon,
			DistanceKm: math.Round(n.DistanceKm*100) / 100,
		})
	}
	return out
}

func (h *Handler) getNearby(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lat"})
		return
	}
	lon, err := strconv.ParseFloat(c.Query("lon"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lon"})
		return
	}
	origin := geo.Point{Lat: lat, Lon: lon}
	if !origin.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "coordinates out of range"})
		return
	}
	radius, ok := radiusParam(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"centers": toNearbyResponse(h.view.Nearby(origin, radius))})
}

func (h *Handler) showNearby(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	radius, ok := radiusParam(c)
	if !ok {
		return
	}

	nearby, err := h.view.ShowNearby(c.Request.Context(), id, radius)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{"disaster_id": id, "centers": toNearbyResponse(nearby)}
	if vp := h.view.State().Viewport; vp != nil && len(nearby) > 0 {
		resp["viewport"] = vp
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) refresh(c *gin.Context) {
	if err := h.view.RefreshMap(c.Request.Context()); err != nil {
		if errors.Is(err, worker.ErrStopped) {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load map data"})
		return
	}
	c.JSON(http.StatusOK, h.view.State())
}

func (h *Handler) getDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, h.view.Dashboard())
}

func (h *Handler) dismissAlert(c *gin.Context) {
	if err := h.view.DismissAlert(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notifications": h.view.Notifications()})
}

// streamNotifications sends each notification as a server-sent event until
// the client goes away or the view is unmounted.
func (h *Handler) streamNotifications(c *gin.Context) {
	ch, cancel := h.view.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case n, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(n.Level), n)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func layerParam(c *gin.Context) (overlay.LayerKind, bool) {
	kind, err := overlay.ParseLayerKind(c.Param("layer"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return "", false
	}
	return kind, true
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// radiusParam reads radius_km. Absent means zero, which the view replaces
// with its configured default.
func radiusParam(c *gin.Context) (float64, bool) {
	s := c.Query("radius_km")
	if s == "" {
		return 0, true
	}
	r, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid radius_km"})
		return 0, false
	}
	return r, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, overlay.ErrNotFound), errors.Is(err, app.ErrMarkerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, worker.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "view is not mounted"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
