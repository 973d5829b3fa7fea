package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// QueryRecorder receives per-statement latencies.
type QueryRecorder interface {
	RecordDBQuery(database, operation string, duration time.Duration)
}

const startedAtKey = "stepflow:started_at"

// Instrument 为 create/query/update/delete/row/raw 回调挂上耗时统计
func Instrument(db *gorm.DB, database string, rec QueryRecorder) error {
	if rec == nil {
		return nil
	}

	before := func(tx *gorm.DB) {
		tx.InstanceSet(startedAtKey, time.Now())
	}
	after := func(op string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(startedAtKey)
			if !ok {
				return
			}
			if started, ok := v.(time.Time); ok {
				rec.RecordDBQuery(database, op, time.Since(started))
			}
		}
	}

	cb := db.Callback()
	err := errors.Join(
		cb.Create().Before("gorm:create").Register("stepflow:before_create", before),
		cb.Create().After("gorm:create").Register("stepflow:after_create", after("create")),
		cb.Query().Before("gorm:query").Register("stepflow:before_query", before),
		cb.Query().After("gorm:query").Register("stepflow:after_query", after("query")),
		cb.Update().Before("gorm:update").Register("stepflow:before_update", before),
		cb.Update().After("gorm:update").Register("stepflow:after_update", after("update")),
		cb.Delete().Before("gorm:delete").Register("stepflow:before_delete", before),
		cb.Delete().After("gorm:delete").Register("stepflow:after_delete", after("delete")),
		cb.Row().Before("gorm:row").Register("stepflow:before_row", before),
		cb.Row().After("gorm:row").Register("stepflow:after_row", after("row")),
		cb.Raw().Before("gorm:raw").Register("stepflow:before_raw", before),
		cb.Raw().After("gorm:raw").Register("stepflow:after_raw", after("raw")),
	)
	if err != nil {
		return fmt.Errorf("instrument %s: %w", database, err)
	}
	return nil
}
