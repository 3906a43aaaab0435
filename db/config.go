package db

import "time"

// Config holds database configuration
type Config struct {
	Path        string
	BusyTimeout time.Duration
	LogQueries  bool
}
