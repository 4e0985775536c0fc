package repository

import "time"

// Timestamps are stored as unix milliseconds so the same queries work on every SQL dialect.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
