package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Record is one persisted entity. Seq fixes the iteration order at first
// insert.
type Record struct {
	Kind      string    `gorm:"primaryKey;column:kind"`
	ID        string    `gorm:"primaryKey;column:id"`
	Seq       int64     `gorm:"column:seq;not null;index:idx_records_kind_seq"`
	Data      string    `gorm:"column:data;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (Record) TableName() string {
	return "records"
}

type Store struct {
	db *gorm.DB
}

func New(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("accessing database handle: %w", err)
	}
	// sqlite only tolerates one writer; ":memory:" also needs a single
	// connection to keep seeing the same database.
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if err := db.AutoMigrate(&Record{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Table is a KV view over the records of one kind.
type Table[T any] struct {
	db   *gorm.DB
	kind string
}

func NewTable[T any](s *Store, kind string) *Table[T] {
	return &Table[T]{db: s.db, kind: kind}
}

func (t *Table[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	var rec Record
	err := t.db.WithContext(ctx).
		Where("kind = ? AND id = ?", t.kind, id).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("store: get %s/%s: %w", t.kind, id, err)
	}

	var v T
	if err := json.Unmarshal([]byte(rec.Data), &v); err != nil {
		return zero, false, fmt.Errorf("store: decoding %s/%s: %w", t.kind, id, err)
	}
	return v, true, nil
}

func (t *Table[T]) Put(ctx context.Context, id string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encoding %s/%s: %w", t.kind, id, err)
	}
	now := time.Now().UTC()

	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Record{}).
			Where("kind = ? AND id = ?", t.kind, id).
			Updates(map[string]any{"data": string(data), "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("store: update %s/%s: %w", t.kind, id, res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}

		var maxSeq int64
		if err := tx.Model(&Record{}).
			Where("kind = ?", t.kind).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return fmt.Errorf("store: next seq for %s: %w", t.kind, err)
		}

		rec := &Record{Kind: t.kind, ID: id, Seq: maxSeq + 1, Data: string(data), UpdatedAt: now}
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("store: insert %s/%s: %w", t.kind, id, err)
		}
		return nil
	})
}

func (t *Table[T]) Iterate(ctx context.Context, fn func(id string, v T) bool) error {
	var recs []Record
	if err := t.db.WithContext(ctx).
		Where("kind = ?", t.kind).
		Order("seq ASC").
		Find(&recs).Error; err != nil {
		return fmt.Errorf("store: listing %s: %w", t.kind, err)
	}

	for _, rec := range recs {
		var v T
		if err := json.Unmarshal([]byte(rec.Data), &v); err != nil {
			return fmt.Errorf("store: decoding %s/%s: %w", t.kind, rec.ID, err)
		}
		if !fn(rec.ID, v) {
			return nil
		}
	}
	return nil
}

func (t *Table[T]) Len(ctx context.Context) (int, error) {
	var n int64
	err := t.db.WithContext(ctx).Model(&Record{}).Where("kind = ?", t.kind).Count(&n).Error
	return int(n), err
}
