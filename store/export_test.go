package store

import "time"

// SetClock replaces the time source used for timestamps.
func SetClock(s *Store, now func() time.Time) { s.now = now }
