// Package catalog persists metadata about confirmed events so the serving
// layer can list history without rescanning the output directory.
package catalog

import (
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Event is one confirmed animal event as stored in the database.
type Event struct {
	gorm.Model

	// Name is the event directory basename, e.g. "event_12".
	Name string `gorm:"uniqueIndex"`
	Dir  string

	StartedAt  time.Time
	Frames     int
	Inferences int

	// Best detection behind the confirmation.
	Detection  string
	Confidence float32
}

type Catalog struct {
	db *gorm.DB
}

// Open opens (creating if needed) the sqlite catalog at path.
func Open(path string) (*Catalog, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, err
	}
	log.Infof("Event catalog opened at %v", path)
	return &Catalog{db: db}, nil
}

// DB exposes the underlying handle so other components (push subscription
// storage) can share the same database file.
func (c *Catalog) DB() *gorm.DB {
	return c.db
}

func (c *Catalog) Add(ev *Event) error {
	return c.db.Create(ev).Error
}

// Recent returns up to n events, newest first.
func (c *Catalog) Recent(n int) ([]Event, error) {
	var evs []Event
	err := c.db.Order("started_at desc").Limit(n).Find(&evs).Error
	return evs, err
}

func (c *Catalog) Count() (int64, error) {
	var n int64
	err := c.db.Model(&Event{}).Count(&n).Error
	return n, err
}

// Remove drops the record for an event directory that no longer exists.
func (c *Catalog) Remove(name string) error {
	return c.db.Where("name = ?", name).Delete(&Event{}).Error
}
