package inmemdb

import (
	"sync"

	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/core/student"
)

type (
	// DB is a process-local store. Transactions run one at a time on a copy of the tables
	// which replaces the published copy on commit.
	DB struct {
		writeMu sync.Mutex   // one transaction at a time
		mu      sync.RWMutex // guards tables
		tables  *tables
	}

	tables struct {
		students     map[string]student.Student
		transactions map[string]payment.Transaction
	}
)

func Open() *DB {
	return &DB{tables: newTables()}
}

func newTables() *tables {
	return &tables{
		students:     make(map[string]student.Student),
		transactions: make(map[string]payment.Transaction),
	}
}

// clone copies the maps; values are only ever replaced, never mutated in place.
func (t *tables) clone() *tables {
	c := &tables{
		students:     make(map[string]student.Student, len(t.students)),
		transactions: make(map[string]payment.Transaction, len(t.transactions)),
	}
	for k, v := range t.students {
		c.students[k] = v
	}
	for k, v := range t.transactions {
		c.transactions[k] = v
	}
	return c
}

// Reset drops every record (tests).
func (db *DB) Reset() {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tables = newTables()
}

func (db *DB) read(fn func(t *tables)) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	fn(db.tables)
}

func (db *DB) begin() *tables {
	db.writeMu.Lock()
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.tables.clone()
}

func (db *DB) commit(t *tables) {
	db.mu.Lock()
	db.tables = t
	db.mu.Unlock()
	db.writeMu.Unlock()
}

func (db *DB) rollback() {
	db.writeMu.Unlock()
}
