package models

import "time"

// Snapshot is one fetch cycle's worth of map data. It replaces the previous
// snapshot wholesale and is never mutated after creation.
type Snapshot struct {
	Disasters []DisasterPoint
	Centers   []CenterPoint
	FetchedAt time.Time
}

type Stats struct {
	ActiveDisasters    int   `json:"active_disasters"`
	TotalAffected      int64 `json:"total_affected"`
	PendingAllocations int   `json:"pending_allocations"`
	OperationalCenters int   `json:"operational_centers"`
}

type Allocation struct {
	ID                int64  `json:"id"`
	ResourceName      string `json:"resource_name"`
	CenterName        string `json:"center_name"`
	Priority          int    `json:"priority"`
	Status            string `json:"status"`
	QuantityRequested int64  `json:"quantity_requested"`
}

type DashboardStats struct {
	Stats             Stats
	RecentDisasters   []DisasterPoint
	RecentAllocations []Allocation
	FetchedAt         time.Time
}
