// Package utils provides utility functions for the application.
package utils

import "time"

// UTCNow returns the current instant in UTC. Persisted timestamps and
// scheduler run times are always UTC so comparisons never cross zones.
func UTCNow() time.Time {
	return time.Now().UTC()
}

// UTCNowAdd returns the current UTC instant offset by d.
func UTCNowAdd(d time.Duration) time.Time {
	return UTCNow().Add(d)
}
