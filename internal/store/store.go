package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrPresetLabel    = errors.New("preset labels cannot be deleted")
	ErrDuplicateLabel = errors.New("label already exists")
)

// ValidationError reports input a store refuses to persist.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func invalidf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

type scanner interface{ Scan(...any) error }

// dbTime normalizes a timestamp for storage so that text comparisons in SQL
// order correctly.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func now() time.Time {
	return dbTime(time.Now())
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: dbTime(*p), Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time.UTC()
	return &v
}
