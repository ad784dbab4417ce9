package model

// RateLimitConfig is the token bucket of one principal.
type RateLimitConfig struct {
	QPS   float64 `json:"qps"`
	Burst int     `json:"burst"`
}

// Principal is an API client of the gateway. Every batch it submits is signed
// by its ledger identity.
type Principal struct {
	ID       string          `json:"id"`
	APIKey   string          `json:"-"`
	Identity Key             `json:"identity"`
	Rate     RateLimitConfig `json:"rate_limit"`
}
