package api

import "time"

// QueryFilter defines criteria for querying audit records.
type QueryFilter struct {
	Since   time.Time `json:"since,omitempty"`
	Until   time.Time `json:"until,omitempty"`
	Filter  string    `json:"filter,omitempty"`
	Verdict Verdict   `json:"verdict,omitempty"`
	Limit   int       `json:"limit,omitempty"`
	Offset  int       `json:"offset,omitempty"`
}

// AuditStats provides summary statistics over recorded invocations.
type AuditStats struct {
	TotalInvocations int            `json:"total_invocations"`
	KeepCount        int            `json:"keep_count"`
	DropCount        int            `json:"drop_count"`
	ErrorCount       int            `json:"error_count"`
	ByFilter         map[string]int `json:"by_filter"`
}
