package models

import "time"

// UsageRecord tracks tokens consumed by one request. Records are append-only;
// quota status is always recomputed from the ledger, never stored.
type UsageRecord struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Tokens    int64     `json:"tokens"`
	CreatedAt time.Time `json:"created_at"`
}

// QuotaStatus shows a user's token usage against the configured limit for the
// active window. Derived at check time from wall clock and the usage ledger.
type QuotaStatus struct {
	UsageTokens     int64   `json:"usage_tokens"`
	LimitTokens     int64   `json:"limit_tokens"`
	RemainingTokens int64   `json:"remaining_tokens"`
	ResetsInSeconds int64   `json:"resets_in_seconds"`
	UsagePercent    float64 `json:"usage_percent"`
}
