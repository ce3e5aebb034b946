package domain

import "time"

// Global is the singleton metadata row.
type Global struct {
	Version  int
	LastSync time.Time
}
