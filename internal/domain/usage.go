package domain

import "time"

// UsageStats is the persisted counters document.
type UsageStats struct {
	TotalQueries      int            `json:"totalQueries"`
	DestinationCounts map[string]int `json:"destinationCounts"`
	LastReset         time.Time      `json:"lastReset"`
}

// DestinationCount is one row of the popular-destinations ranking.
type DestinationCount struct {
	Destination string `json:"destination"`
	Count       int    `json:"count"`
}
