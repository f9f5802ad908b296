package models

import "time"

// AdmissionMetricsSnapshot is a JSON friendly summary of the Prometheus counters.
type AdmissionMetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	Enrolled                 uint64    `json:"enrolled"`
	Waitlisted               uint64    `json:"waitlisted"`
	Rejected                 uint64    `json:"rejected"`
	Dropped                  uint64    `json:"dropped"`
	Promoted                 uint64    `json:"promoted"`
	PromotionsSkipped        uint64    `json:"promotions_skipped"`
	NotificationsFailed      uint64    `json:"notifications_failed"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
