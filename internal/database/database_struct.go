package database

import (
	"sync"
	"time"

	"gorm.io/gorm"
)

// Database is the durable side of the chat core: the append-only message log
// plus read access to users and circles.
type Database struct {
	db  *gorm.DB
	now func() time.Time

	mu          sync.Mutex
	lastCreated time.Time
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db, now: time.Now}
}

// Gorm exposes the underlying handle for seeding and migrations.
func (d *Database) Gorm() *gorm.DB {
	return d.db
}

// nextTimestamp hands out strictly increasing creation times at the
// precision postgres keeps (microseconds).
func (d *Database) nextTimestamp() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()

	ts := d.now().UTC().Truncate(time.Microsecond)
	if !ts.After(d.lastCreated) {
		ts = d.lastCreated.Add(time.Microsecond)
	}
	d.lastCreated = ts
	return ts
}
