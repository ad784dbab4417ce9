package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"

type IdempotencyRecord struct {
	Status     int
	Body       []byte
	CreatedAt  time.Time
	Processing bool // a request holding this key is still running
}

type IdempotencyStore interface {
	// GetOrLock returns (record, true) if exists; (nil,false) if newly locked by caller.
	GetOrLock(key string) (*IdempotencyRecord, bool)
	Save(key string, status int, body []byte)
	Unlock(key string)
}

// InMemIdempotencyStore backs single-instance deployments without Redis.
type InMemIdempotencyStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	records map[string]*IdempotencyRecord // Key: PrincipalID + ":" + IdempotencyKey
}

func NewInMemIdempotencyStore(ttl time.Duration) *InMemIdempotencyStore {
	return &InMemIdempotencyStore{
		ttl:     ttl,
		records: make(map[string]*IdempotencyRecord),
	}
}

func (s *InMemIdempotencyStore) GetOrLock(key string) (*IdempotencyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok {
		if s.ttl <= 0 || time.Since(rec.CreatedAt) < s.ttl {
			return rec, true
		}
	}

	s.records[key] = &IdempotencyRecord{
		Processing: true,
		CreatedAt:  time.Now(),
	}
	return nil, false
}

func (s *InMemIdempotencyStore) Save(key string, status int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = &IdempotencyRecord{
		Status:     status,
		Body:       body,
		CreatedAt:  time.Now(),
		Processing: false,
	}
}

func (s *InMemIdempotencyStore) Unlock(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
}

// IdempotencyMiddleware replays the stored response of a repeated
// X-Idempotency-Key, so a retried batch is never applied twice. It must run
// after AuthMiddleware.
func IdempotencyMiddleware(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		idemKey := c.GetHeader(HeaderIdempotencyKey)
		if idemKey == "" {
			c.Next()
			return
		}

		p, ok := PrincipalFrom(c)
		if !ok {
			c.Next()
			return
		}
		fullKey := p.ID + ":" + idemKey

		record, hit := store.GetOrLock(fullKey)
		if hit {
			if record.Processing {
				c.JSON(http.StatusConflict, gin.H{"error": "request in progress"})
				c.Abort()
				return
			}
			c.Header("X-Idempotent-Replay", "true")
			c.Data(record.Status, "application/json; charset=utf-8", record.Body)
			c.Abort()
			return
		}

		w := &responseBodyWriter{body: nil, ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		// Rejected batches are final and cached too; only server faults may be retried.
		if c.Writer.Status() < 500 {
			store.Save(fullKey, c.Writer.Status(), w.body)
		} else {
			store.Unlock(fullKey)
		}
	}
}

type responseBodyWriter struct {
	gin.ResponseWriter
	body []byte
}

func (w *responseBodyWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}
