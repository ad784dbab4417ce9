package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memAuditRepo struct {
	mu      sync.Mutex
	entries []*model.AuditLog
	listErr error
}

func (r *memAuditRepo) Insert(_ context.Context, entry *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memAuditRepo) List(_ context.Context, filter model.AuditFilter) ([]*model.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*model.AuditLog
	for _, e := range r.entries {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestAuditServiceWritesRepoAndFile(t *testing.T) {
	dir := t.TempDir()
	repo := &memAuditRepo{}
	svc, err := NewAuditService(dir, repo)
	require.NoError(t, err)

	svc.Log(&model.AuditLog{ID: "1", PrincipalID: "desk", CreatedAt: time.Now()})
	svc.Log(&model.AuditLog{ID: "2", PrincipalID: "keeper", CreatedAt: time.Now()})
	svc.Log(nil)
	svc.Close()
	svc.Close()

	assert.Len(t, repo.entries, 2)
	files, err := filepath.Glob(filepath.Join(dir, "audit-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	body, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(body), `"principal_id":"desk"`)

	records, err := svc.List(context.Background(), model.AuditFilter{PrincipalID: "desk", Limit: 10})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1", records[0].ID)
}

func TestAuditServiceFallsBackToBuffer(t *testing.T) {
	repo := &memAuditRepo{listErr: errors.New("down")}
	svc, err := NewAuditService("", repo)
	require.NoError(t, err)
	defer svc.Close()

	base := time.Unix(1_700_000_000, 0)
	for i, id := range []string{"a", "b", "c"} {
		svc.Log(&model.AuditLog{ID: id, PrincipalID: "desk", CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	records, err := svc.List(context.Background(), model.AuditFilter{PrincipalID: "desk", Limit: 2})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "c", records[0].ID)
	assert.Equal(t, "b", records[1].ID)

	from := base.Add(30 * time.Second)
	to := base.Add(90 * time.Second)
	records, err = svc.List(context.Background(), model.AuditFilter{Limit: 10, From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0].ID)
}

func TestAuditBufferWrapsAround(t *testing.T) {
	buf := newAuditBuffer(2)
	for _, id := range []string{"a", "b", "c"} {
		buf.Add(&model.AuditLog{ID: id})
	}
	records := buf.List(model.AuditFilter{})
	require.Len(t, records, 2)
	assert.Equal(t, "c", records[0].ID)
	assert.Equal(t, "b", records[1].ID)
}

func TestAuditBufferFiltersByBatch(t *testing.T) {
	buf := newAuditBuffer(10)
	buf.Add(&model.AuditLog{ID: "a", Context: map[string]interface{}{
		model.AuditBatchID:  "batch-1",
		model.AuditBatchOps: []string{"deposit", "request_withdraw"},
	}})
	buf.Add(&model.AuditLog{ID: "b", Context: map[string]interface{}{
		model.AuditBatchID:  "batch-2",
		model.AuditBatchOps: []interface{}{"borrow_for_swap", "swap", "settle_swap"},
	}})
	buf.Add(&model.AuditLog{ID: "c", Context: map[string]interface{}{}})

	records := buf.List(model.AuditFilter{BatchID: "batch-1"})
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].ID)

	records = buf.List(model.AuditFilter{Op: "swap"})
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0].ID)

	assert.Empty(t, buf.List(model.AuditFilter{BatchID: "batch-1", Op: "swap"}))
	assert.Len(t, buf.List(model.AuditFilter{}), 3)
}
