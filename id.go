package reagent

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NowUnixMilli returns the current time as Unix milliseconds.
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
