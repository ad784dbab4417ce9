package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const ContextAuditLog = "audit_log"

// bodyLogWriter captures the response body for the audit entry.
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// AuditMiddleware records every request except those under skipPaths, such
// as the health check and the metrics scrape.
func AuditMiddleware(auditSvc *service.AuditService, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		start := time.Now()
		reqID := uuid.New().String()
		c.Header("X-Request-ID", reqID)

		var reqBodyBytes []byte
		if c.Request.Body != nil {
			reqBodyBytes, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(reqBodyBytes))
		}

		// Handlers enrich Context through AddAuditContext.
		auditEntry := &model.AuditLog{
			ID:        reqID,
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			CreatedAt: start,
			Context:   make(map[string]interface{}),
		}
		c.Set(ContextAuditLog, auditEntry)

		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		if p, ok := PrincipalFrom(c); ok {
			auditEntry.PrincipalID = p.ID
			auditEntry.Context["identity"] = p.Identity.String()
		}

		auditEntry.RequestHeader = auditHeaders(c.Request.Header)
		auditEntry.RequestBody = redactAuditBody(c.Request.URL.Path, reqBodyBytes)
		auditEntry.StatusCode = c.Writer.Status()
		auditEntry.ResponseBody = redactAuditBody(c.Request.URL.Path, []byte(blw.body.String()))
		auditEntry.LatencyMs = time.Since(start).Milliseconds()

		auditSvc.Log(auditEntry)
	}
}

// AddAuditContext attaches business context to the request's audit entry.
func AddAuditContext(c *gin.Context, key string, value interface{}) {
	if val, exists := c.Get(ContextAuditLog); exists {
		if entry, ok := val.(*model.AuditLog); ok {
			entry.Context[key] = value
		}
	}
}

// auditHeaders keeps the headers that explain a request's outcome and masks
// credentials.
func auditHeaders(h http.Header) string {
	kept := make(map[string]string)
	for _, name := range []string{HeaderGatewayKey, HeaderAdminKey, HeaderIdempotencyKey, "Content-Type"} {
		v := h.Get(name)
		if v == "" {
			continue
		}
		if isSensitiveKey(name) {
			v = "***"
		}
		kept[name] = v
	}
	if len(kept) == 0 {
		return ""
	}
	out, err := json.Marshal(kept)
	if err != nil {
		return ""
	}
	return string(out)
}

func redactAuditBody(path string, body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if !isSensitivePath(path) {
		return string(body)
	}
	redacted, ok := redactJSON(body)
	if !ok {
		return "[redacted]"
	}
	return string(redacted)
}

func isSensitivePath(path string) bool {
	switch {
	case strings.HasPrefix(path, "/v1/admin"):
		return true
	case strings.HasPrefix(path, "/v1/batches"):
		return true
	default:
		return false
	}
}

func redactJSON(body []byte) ([]byte, bool) {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, false
	}
	redactValue(&data)
	out, err := json.Marshal(data)
	if err != nil {
		return nil, false
	}
	return out, true
}

func redactValue(v *interface{}) {
	switch raw := (*v).(type) {
	case map[string]interface{}:
		for key, val := range raw {
			if isSensitiveKey(key) {
				raw[key] = "***"
				continue
			}
			vv := val
			redactValue(&vv)
			raw[key] = vv
		}
	case []interface{}:
		for i, val := range raw {
			vv := val
			redactValue(&vv)
			raw[i] = vv
		}
	}
}

func isSensitiveKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "api_key",
		"admin_key",
		"x-admin-key",
		"x-gateway-key",
		"password",
		"secret":
		return true
	default:
		return false
	}
}
