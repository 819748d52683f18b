package models

import "time"

// EndpointClass groups routes that share a request budget.
type EndpointClass string

const (
	// ClassMint covers the mint submission endpoints.
	ClassMint EndpointClass = "mint"
	// ClassRead covers config, eligibility and status lookups.
	ClassRead EndpointClass = "read"
)

// Limit is the budget for one endpoint class.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is in whole seconds and only set when the request was denied.
	RetryAfter int
}

// ExceededResponse is the body of a 429.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}
