// Package audit keeps an append-only record of protocol state changes in the
// same database as the protocol state.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Entry is one audited event. SubjectID names the entity the event acted
// on (a channel, message or escrow id); AgentID is the local agent.
type Entry struct {
	ID        string    `gorm:"primaryKey;column:id" json:"id"`
	Timestamp time.Time `gorm:"column:timestamp;not null;index:idx_audit_timestamp" json:"timestamp"`
	EventType string    `gorm:"column:event_type;not null;index:idx_audit_event" json:"eventType"`
	SubjectID string    `gorm:"column:subject_id;not null;default:''" json:"subjectId,omitempty"`
	AgentID   string    `gorm:"column:agent_id;not null;default:''" json:"agentId,omitempty"`
	Actor     string    `gorm:"column:actor;not null;default:''" json:"actor,omitempty"`
	Detail    string    `gorm:"column:detail;not null;default:''" json:"detail,omitempty"`
}

func (Entry) TableName() string {
	return "audit_log"
}

type Logger struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) (*Logger, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("audit: running migrations: %w", err)
	}
	return &Logger{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Log satisfies protocol.AuditSink. Non-string details are stored as JSON.
func (l *Logger) Log(ctx context.Context, eventType, subjectID, agentID, actor string, detail any) error {
	entry := &Entry{
		ID:        uuid.NewString(),
		Timestamp: l.now(),
		EventType: eventType,
		SubjectID: subjectID,
		AgentID:   agentID,
		Actor:     actor,
		Detail:    encodeDetail(detail),
	}
	return l.db.WithContext(ctx).Create(entry).Error
}

func encodeDetail(detail any) string {
	switch v := detail.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

type Filter struct {
	EventType string
	SubjectID string
	AgentID   string
	Since     time.Time
	Until     time.Time
	Limit     int
}

// Query returns matching entries, newest first.
func (l *Logger) Query(ctx context.Context, f Filter) ([]Entry, error) {
	q := l.db.WithContext(ctx)

	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.SubjectID != "" {
		q = q.Where("subject_id = ?", f.SubjectID)
	}
	if f.AgentID != "" {
		q = q.Where("agent_id = ?", f.AgentID)
	}
	if !f.Since.IsZero() {
		q = q.Where("timestamp >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		q = q.Where("timestamp <= ?", f.Until)
	}

	q = q.Order("timestamp DESC")

	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var entries []Entry
	err := q.Find(&entries).Error
	return entries, err
}

// Count groups entries by event type.
func (l *Logger) Count(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		EventType string
		N         int64
	}
	err := l.db.WithContext(ctx).Model(&Entry{}).
		Select("event_type, count(*) as n").
		Group("event_type").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("audit: counting entries: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.EventType] = r.N
	}
	return out, nil
}
