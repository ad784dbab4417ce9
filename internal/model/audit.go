package model

import (
	"slices"
	"time"
)

// AuditLog is one audited HTTP request.
type AuditLog struct {
	ID          string `json:"id"`
	PrincipalID string `json:"principal_id"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	IP          string `json:"ip"`
	UserAgent   string `json:"user_agent"`

	RequestBody   string `json:"request_body"` // redacted
	RequestHeader string `json:"request_header"`

	StatusCode   int    `json:"status_code"`
	ResponseBody string `json:"response_body"`
	LatencyMs    int64  `json:"latency_ms"`

	// Business context added by handlers, e.g. the batch id and its outcome.
	Context map[string]interface{} `json:"context"`

	CreatedAt time.Time `json:"created_at"`
}

// Audit context keys written by the batch handler.
const (
	AuditBatchID     = "batch_id"
	AuditBatchStatus = "batch_status"
	AuditBatchOps    = "ops"
	AuditFailedOp    = "failed_op"
)

// AuditFilter narrows an audit listing. Zero fields match everything.
type AuditFilter struct {
	PrincipalID string
	BatchID     string
	// Op keeps requests whose batch carried an operation of this name.
	Op    string
	Limit int
	From  *time.Time
	To    *time.Time
}

// Matches reports whether entry passes every set field except Limit.
func (f AuditFilter) Matches(entry *AuditLog) bool {
	if entry == nil {
		return false
	}
	if f.PrincipalID != "" && entry.PrincipalID != f.PrincipalID {
		return false
	}
	if f.From != nil && entry.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && entry.CreatedAt.After(*f.To) {
		return false
	}
	if f.BatchID != "" && entry.BatchID() != f.BatchID {
		return false
	}
	if f.Op != "" && !slices.Contains(entry.BatchOps(), f.Op) {
		return false
	}
	return true
}

// BatchID is the ledger batch the request submitted, if any.
func (a *AuditLog) BatchID() string {
	id, _ := a.Context[AuditBatchID].(string)
	return id
}

// BatchOps lists the operation names of the submitted batch. Entries read
// back from JSON hold them as []interface{}.
func (a *AuditLog) BatchOps() []string {
	switch ops := a.Context[AuditBatchOps].(type) {
	case []string:
		return ops
	case []interface{}:
		names := make([]string, 0, len(ops))
		for _, op := range ops {
			if name, ok := op.(string); ok {
				names = append(names, name)
			}
		}
		return names
	}
	return nil
}
