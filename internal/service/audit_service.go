package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/pkg/logger"
)

type AuditService struct {
	logChan chan *model.AuditLog
	logFile *os.File
	buffer  *auditBuffer
	repo    AuditRepo
	done    sync.WaitGroup
	once    sync.Once
}

type AuditRepo interface {
	Insert(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, error)
}

// NewAuditService appends entries to a daily JSONL file under logDir and to
// repo when set. An empty logDir disables the file.
func NewAuditService(logDir string, repo AuditRepo) (*AuditService, error) {
	svc := &AuditService{
		logChan: make(chan *model.AuditLog, 1000),
		buffer:  newAuditBuffer(1000),
		repo:    repo,
	}

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, err
		}
		filename := filepath.Join(logDir, "audit-"+time.Now().Format("2006-01-02")+".jsonl")
		f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		svc.logFile = f
	}

	svc.done.Add(1)
	go func() {
		defer svc.done.Done()
		svc.processLogs()
	}()

	return svc, nil
}

func (s *AuditService) Log(entry *model.AuditLog) {
	if entry == nil {
		return
	}
	s.buffer.Add(entry)
	select {
	case s.logChan <- entry:
	default:
		// drop rather than block the request path
		logger.Warn("audit log buffer full, dropping entry", "id", entry.ID)
	}
}

// List prefers the repository and falls back to the in-process ring buffer.
func (s *AuditService) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, error) {
	if s.repo != nil {
		records, err := s.repo.List(ctx, filter)
		if err == nil {
			return records, nil
		}
		logger.LogError(ctx, err, "audit repository list failed, serving buffer")
	}
	return s.buffer.List(filter), nil
}

func (s *AuditService) processLogs() {
	var encoder *json.Encoder
	if s.logFile != nil {
		encoder = json.NewEncoder(s.logFile)
	}
	for entry := range s.logChan {
		if s.repo != nil {
			if err := s.repo.Insert(context.Background(), entry); err != nil {
				logger.Error("failed to write audit log to repository", "error", err)
			}
		}
		if encoder != nil {
			if err := encoder.Encode(entry); err != nil {
				logger.Error("failed to write audit log file", "error", err)
			}
		}
	}
}

// Close drains pending entries and closes the file.
func (s *AuditService) Close() {
	s.once.Do(func() {
		close(s.logChan)
		s.done.Wait()
		if s.logFile != nil {
			s.logFile.Close()
		}
	})
}

type auditBuffer struct {
	mu        sync.Mutex
	maxSize   int
	records   []*model.AuditLog
	nextIndex int
}

func newAuditBuffer(maxSize int) *auditBuffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &auditBuffer{
		maxSize: maxSize,
		records: make([]*model.AuditLog, 0, maxSize),
	}
}

func (b *auditBuffer) Add(entry *model.AuditLog) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, entry)
		return
	}
	b.records[b.nextIndex] = entry
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

// List returns the newest entries first.
func (b *auditBuffer) List(filter model.AuditFilter) []*model.AuditLog {
	b.mu.Lock()
	defer b.mu.Unlock()
	limit := filter.Limit
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}
	results := make([]*model.AuditLog, 0, limit)
	total := len(b.records)
	for i := 0; i < total; i++ {
		idx := (b.nextIndex + total - 1 - i) % total
		entry := b.records[idx]
		if !filter.Matches(entry) {
			continue
		}
		results = append(results, entry)
		if len(results) >= limit {
			break
		}
	}
	return results
}
