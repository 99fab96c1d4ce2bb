package telemetry

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
)

type startKey string

// statementHook registers a callback around one gorm processor.
type statementHook struct {
	kind   string
	before func(name string, fn func(*gorm.DB)) error
	after  func(name string, fn func(*gorm.DB)) error
}

func statementHooks(db *gorm.DB) []statementHook {
	cb := db.Callback()
	return []statementHook{
		{
			kind:   "create",
			before: func(n string, fn func(*gorm.DB)) error { return cb.Create().Before("gorm:create").Register(n, fn) },
			after:  func(n string, fn func(*gorm.DB)) error { return cb.Create().After("gorm:create").Register(n, fn) },
		},
		{
			kind:   "query",
			before: func(n string, fn func(*gorm.DB)) error { return cb.Query().Before("gorm:query").Register(n, fn) },
			after:  func(n string, fn func(*gorm.DB)) error { return cb.Query().After("gorm:query").Register(n, fn) },
		},
		{
			kind:   "update",
			before: func(n string, fn func(*gorm.DB)) error { return cb.Update().Before("gorm:update").Register(n, fn) },
			after:  func(n string, fn func(*gorm.DB)) error { return cb.Update().After("gorm:update").Register(n, fn) },
		},
		{
			kind:   "delete",
			before: func(n string, fn func(*gorm.DB)) error { return cb.Delete().Before("gorm:delete").Register(n, fn) },
			after:  func(n string, fn func(*gorm.DB)) error { return cb.Delete().After("gorm:delete").Register(n, fn) },
		},
		{
			kind:   "row",
			before: func(n string, fn func(*gorm.DB)) error { return cb.Row().Before("gorm:row").Register(n, fn) },
			after:  func(n string, fn func(*gorm.DB)) error { return cb.Row().After("gorm:row").Register(n, fn) },
		},
		{
			kind:   "raw",
			before: func(n string, fn func(*gorm.DB)) error { return cb.Raw().Before("gorm:raw").Register(n, fn) },
			after:  func(n string, fn func(*gorm.DB)) error { return cb.Raw().After("gorm:raw").Register(n, fn) },
		},
	}
}

// registerTimed installs before/after callbacks on every processor. The after
// callback receives the statement kind and the time spent in gorm.
func registerTimed(db *gorm.DB, prefix string, after func(tx *gorm.DB, kind string, elapsed time.Duration)) error {
	key := startKey(prefix)
	for _, h := range statementHooks(db) {
		kind := h.kind
		err := h.before(prefix+":before_"+kind, func(tx *gorm.DB) {
			ctx := tx.Statement.Context
			if ctx == nil {
				ctx = context.Background()
			}
			tx.Statement.Context = context.WithValue(ctx, key, time.Now())
		})
		if err != nil {
			return err
		}
		err = h.after(prefix+":after_"+kind, func(tx *gorm.DB) {
			var elapsed time.Duration
			if tx.Statement.Context != nil {
				if start, ok := tx.Statement.Context.Value(key).(time.Time); ok {
					elapsed = time.Since(start)
				}
			}
			after(tx, kind, elapsed)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// sqlOperation names the SQL verb for a statement kind, sniffing raw SQL.
func sqlOperation(kind, sql string) string {
	switch kind {
	case "create":
		return "INSERT"
	case "query":
		return "SELECT"
	case "update":
		return "UPDATE"
	case "delete":
		return "DELETE"
	}
	verb, _, _ := strings.Cut(strings.TrimSpace(sql), " ")
	switch v := strings.ToUpper(verb); v {
	case "SELECT", "INSERT", "UPDATE", "DELETE", "WITH":
		return v
	default:
		return "OTHER"
	}
}
