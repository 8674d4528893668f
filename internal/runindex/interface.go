package runindex

import (
	"context"
	"time"
)

// Index records saved runs so they can be listed without walking the
// run directories.
type Index interface {
	Record(ctx context.Context, entry *Entry) error
	List(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Entry describes one saved run.
type Entry struct {
	ID        int64
	Dir       string
	Animal    string
	Sample    string
	Trial     int
	Protocol  string
	Outcome   string
	Steps     int
	Rows      int
	Duration  time.Duration
	CreatedAt time.Time
}
