package store

import (
	"log"
	"sync"

	"gorm.io/gorm"
)

// DB is the shared, lazily created connection pool behind the durable
// stores. The pool is built on first use; the mutex guarantees exactly one
// construction under concurrent first access. A failed open is logged and
// retried on the next call rather than cached forever.
type DB struct {
	mu   sync.Mutex
	open func() (*gorm.DB, error)
	gdb  *gorm.DB
}

// NewDB wraps a pool constructor. open is invoked at most once successfully.
func NewDB(open func() (*gorm.DB, error)) *DB {
	return &DB{open: open}
}

// NewDBFrom wraps an already-open connection, for callers that connect and
// migrate eagerly at startup.
func NewDBFrom(gdb *gorm.DB) *DB {
	return &DB{gdb: gdb}
}

// Get returns the pool, creating it on first use. Returns nil when the
// backend is unavailable; durable store methods treat that as "no effect".
func (d *DB) Get() *gorm.DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gdb != nil {
		return d.gdb
	}
	if d.open == nil {
		return nil
	}
	gdb, err := d.open()
	if err != nil {
		log.Printf("store: open connection pool: %v", err)
		return nil
	}
	d.gdb = gdb
	return d.gdb
}
