package model

// DashboardSummary aggregates the counters shown on the admin dashboard.
// It is computed on demand and never stored.
type DashboardSummary struct {
	Books           int64 `json:"books"`
	AvailableBooks  int64 `json:"available_books"`
	Users           int64 `json:"users"`
	ActiveUsers     int64 `json:"active_users"`
	Categories      int64 `json:"categories"`
	Campuses        int64 `json:"campuses"`
	PendingRequests int64 `json:"pending_requests"`
	ProcessingLoans int64 `json:"processing_loans"`
}
