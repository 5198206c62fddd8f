package model

import "time"

// ResourceSample is a point-in-time reading of cumulative CPU time and
// resident memory for the supervisor and its reaped children
type ResourceSample struct {
	CPUTimeSeconds  float64   `json:"cpu_time_seconds"`
	MemoryMegabytes float64   `json:"memory_megabytes"`
	CollectedAt     time.Time `json:"collected_at"`
}

// HostStats represents host-wide utilisation, used by the status endpoint
type HostStats struct {
	CPUUsage    float64   `json:"cpu_usage"`
	MemoryUsage float64   `json:"memory_usage"`
	CollectedAt time.Time `json:"collected_at"`
}
