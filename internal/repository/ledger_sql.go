package repository

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/GoPolymarket/fundgate/internal/ledger"
	"github.com/GoPolymarket/fundgate/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ledgerRecord is one persisted ledger record as JSON.
type ledgerRecord struct {
	Kind string `gorm:"column:record_kind;primaryKey;size:32"`
	Key  string `gorm:"column:record_key;primaryKey;size:66"`
	Body string `gorm:"column:body;type:text;not null"`
}

func (ledgerRecord) TableName() string {
	return "ledger_records"
}

// SQLLedgerStore persists the ledger through gorm. Committed state is cached
// in memory; every Update writes only the records that changed, inside one
// database transaction, so a batch lands in full or not at all.
type SQLLedgerStore struct {
	db *gorm.DB

	mu      sync.RWMutex
	state   *ledger.State
	records map[ledger.RecordID][]byte
}

func NewSQLLedgerStore(ctx context.Context, db *gorm.DB) (*SQLLedgerStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&ledgerRecord{}); err != nil {
		return nil, fmt.Errorf("migrate ledger records: %w", err)
	}
	s := &SQLLedgerStore{db: db}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLLedgerStore) load(ctx context.Context) error {
	var rows []ledgerRecord
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return fmt.Errorf("load ledger records: %w", err)
	}
	st := ledger.NewState()
	records := make(map[ledger.RecordID][]byte, len(rows))
	for _, row := range rows {
		key, err := model.ParseKey(row.Key)
		if err != nil {
			return fmt.Errorf("ledger record %s: %w", row.Kind, err)
		}
		id := ledger.RecordID{Kind: row.Kind, Key: key}
		body := []byte(row.Body)
		if err := st.Put(id, body); err != nil {
			return err
		}
		records[id] = body
	}
	s.state = st
	s.records = records
	return nil
}

func (s *SQLLedgerStore) Update(ctx context.Context, fn func(*ledger.State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.Clone()
	if err := fn(work); err != nil {
		return err
	}
	next, err := work.Records()
	if err != nil {
		return err
	}

	var upserts []ledgerRecord
	for id, body := range next {
		if prev, ok := s.records[id]; ok && bytes.Equal(prev, body) {
			continue
		}
		upserts = append(upserts, ledgerRecord{Kind: id.Kind, Key: id.Key.String(), Body: string(body)})
	}
	var deletes []ledger.RecordID
	for id := range s.records {
		if _, ok := next[id]; !ok {
			deletes = append(deletes, id)
		}
	}

	if len(upserts) > 0 || len(deletes) > 0 {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if len(upserts) > 0 {
				if err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "record_kind"}, {Name: "record_key"}},
					DoUpdates: clause.AssignmentColumns([]string{"body"}),
				}).Create(&upserts).Error; err != nil {
					return err
				}
			}
			for _, id := range deletes {
				if err := tx.Where("record_kind = ? AND record_key = ?", id.Kind, id.Key.String()).Delete(&ledgerRecord{}).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("persist ledger batch: %w", err)
		}
	}

	s.state = work
	s.records = next
	return nil
}

func (s *SQLLedgerStore) View(ctx context.Context, fn func(*ledger.State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

// Count returns the number of persisted records.
func (s *SQLLedgerStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&ledgerRecord{}).Count(&n).Error
	return n, err
}
