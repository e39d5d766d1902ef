// Package dashboard keeps the latest statistics from the relief backend and
// renders them into the view model behind the dashboard cards and lists.
package dashboard

import (
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-relief-map/internal/display"
	"github.com/mr1hm/go-relief-map/internal/models"
)

const (
	// EmergencyThreshold is the pending allocation count that raises the
	// emergency banner.
	EmergencyThreshold = 5
	EmergencyMessage   = "High number of pending resource allocations require immediate attention"
	LoadFailedMessage  = "Failed to load dashboard data"
)

// Notifier is the subset of notify.Broadcaster the board needs.
type Notifier interface {
	Notify(level models.NotificationLevel, message string) models.Notification
}

type Board struct {
	notifier Notifier
	clock    clockwork.Clock

	mu     sync.RWMutex
	stats  models.DashboardStats
	loaded bool
	alert  string
}

func NewBoard(notifier Notifier, clock clockwork.Clock) *Board {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Board{notifier: notifier, clock: clock}
}

// Update replaces the held statistics. When pending allocations reach the
// threshold the emergency banner is set. A warning is published only when the
// banner goes from hidden to shown.
func (b *Board) Update(stats models.DashboardStats) {
	b.mu.Lock()
	b.stats = stats
	b.loaded = true
	raised := false
	if stats.Stats.PendingAllocations >= EmergencyThreshold {
		raised = b.alert == ""
		b.alert = EmergencyMessage
	}
	b.mu.Unlock()

	if raised && b.notifier != nil {
		b.notifier.Notify(models.LevelWarning, EmergencyMessage)
	}
}

// Failed reports a fetch failure. The previous statistics stay in place.
func (b *Board) Failed() {
	if b.notifier != nil {
		b.notifier.Notify(models.LevelError, LoadFailedMessage)
	}
}

// DismissAlert hides the emergency banner until the next update over threshold.
func (b *Board) DismissAlert() {
	b.mu.Lock()
	b.alert = ""
	b.mu.Unlock()
}

func (b *Board) Stats() (models.DashboardStats, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats, b.loaded
}

type Cards struct {
	ActiveDisasters    int    `json:"active_disasters"`
	AffectedPopulation string `json:"affected_population"`
	PendingAllocations int    `json:"pending_allocations"`
	OperationalCenters int    `json:"operational_centers"`
}

type RecentDisaster struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Severity      string `json:"severity"`
	SeverityClass string `json:"severity_class"`
	Affected      string `json:"affected"`
	Age           string `json:"age"`
}

type RecentAllocation struct {
	ID            int64  `json:"id"`
	ResourceName  string `json:"resource_name"`
	CenterName    string `json:"center_name"`
	Priority      string `json:"priority"`
	PriorityClass string `json:"priority_class"`
	Status        string `json:"status"`
	StatusClass   string `json:"status_class"`
	Quantity      string `json:"quantity"`
}

type View struct {
	Loaded            bool               `json:"loaded"`
	Cards             Cards              `json:"cards"`
	AlertCount        int                `json:"alert_count"`
	AlertBadgeClass   string             `json:"alert_badge_class"`
	EmergencyAlert    string             `json:"emergency_alert,omitempty"`
	RecentDisasters   []RecentDisaster   `json:"recent_disasters"`
	RecentAllocations []RecentAllocation `json:"recent_allocations"`
	UpdatedAt         string             `json:"updated_at,omitempty"`
}

// View renders the held statistics. Ages are relative to the board clock.
func (b *Board) View() View {
	b.mu.RLock()
	stats, loaded, alert := b.stats, b.loaded, b.alert
	b.mu.RUnlock()

	now := b.clock.Now()
	v := View{
		Loaded: loaded,
		Cards: Cards{
			ActiveDisasters:    stats.Stats.ActiveDisasters,
			AffectedPopulation: display.FormatNumber(stats.Stats.TotalAffected),
			PendingAllocations: stats.Stats.PendingAllocations,
			OperationalCenters: stats.Stats.OperationalCenters,
		},
		AlertCount:        stats.Stats.PendingAllocations,
		AlertBadgeClass:   AlertBadgeClass(stats.Stats.PendingAllocations),
		EmergencyAlert:    alert,
		RecentDisasters:   make([]RecentDisaster, 0, len(stats.RecentDisasters)),
		RecentAllocations: make([]RecentAllocation, 0, len(stats.RecentAllocations)),
	}
	if !stats.FetchedAt.IsZero() {
		v.UpdatedAt = display.FormatTimeAgo(now, stats.FetchedAt)
	}

	for _, d := range stats.RecentDisasters {
		v.RecentDisasters = append(v.RecentDisasters, RecentDisaster{
			ID:            d.ID,
			Name:          d.Name,
			Type:          display.Capitalize(string(d.Category)),
			Severity:      fmt.Sprintf("Level %d", d.Severity),
			SeverityClass: fmt.Sprintf("severity-%d", d.Severity),
			Affected:      display.FormatNumber(d.AffectedPopulation) + " affected",
			Age:           display.FormatTimeAgo(now, d.CreatedAt),
		})
	}
	for _, a := range stats.RecentAllocations {
		v.RecentAllocations = append(v.RecentAllocations, RecentAllocation{
			ID:            a.ID,
			ResourceName:  a.ResourceName,
			CenterName:    a.CenterName,
			Priority:      fmt.Sprintf("Priority %d", a.Priority),
			PriorityClass: fmt.Sprintf("priority-%d", a.Priority),
			Status:        display.Capitalize(a.Status),
			StatusClass:   "status-" + a.Status,
			Quantity:      display.FormatNumber(a.QuantityRequested),
		})
	}
	return v
}

// AlertBadgeClass is "danger" while any allocation is pending.
func AlertBadgeClass(pending int) string {
	if pending > 0 {
		return "danger"
	}
	return "warning"
}
