package businessflow

import (
	"math/rand"
	"time"

	"github.com/zapsender/zapsender-backend/models"
)

// IsEligibleNow reports whether a send is allowed at the given instant
// under the campaign's delivery settings. The hour window is [start, end).
func IsEligibleNow(settings *models.DeliverySettings, now time.Time) bool {
	if settings == nil {
		return true
	}
	if settings.RespectBusinessHours {
		hour := now.Hour()
		if hour < settings.BusinessHourStart || hour >= settings.BusinessHourEnd {
			return false
		}
	}
	if settings.SkipWeekends {
		weekday := int(now.Weekday())
		nonOperating := settings.NonOperatingWeekdays
		if len(nonOperating) == 0 {
			nonOperating = []int{int(time.Saturday), int(time.Sunday)}
		}
		for _, d := range nonOperating {
			if weekday == d {
				return false
			}
		}
	}
	return true
}

// NextDelay returns the inter-send delay for the settings. Random intervals
// are uniform in [min, max] milliseconds.
func NextDelay(settings *models.DeliverySettings) time.Duration {
	if settings == nil {
		return 0
	}
	if settings.IntervalType == models.IntervalRandom {
		min := settings.IntervalRandomMinMs
		max := settings.IntervalRandomMaxMs
		if max <= min {
			return time.Duration(min) * time.Millisecond
		}
		return time.Duration(min+rand.Intn(max-min+1)) * time.Millisecond
	}
	return time.Duration(settings.IntervalFixedMs) * time.Millisecond
}

// NextEligibleTime pushes the given instant forward to the next moment
// allowed by the settings. Used to encode eligibility into run_at so the
// external scheduler fires inside the allowed window.
func NextEligibleTime(settings *models.DeliverySettings, from time.Time) time.Time {
	if IsEligibleNow(settings, from) {
		return from
	}

	t := from
	// Advance hour by hour until the window opens. Bounded at two weeks so
	// impossible settings cannot loop forever.
	limit := from.Add(14 * 24 * time.Hour)
	for t.Before(limit) {
		t = t.Truncate(time.Hour).Add(time.Hour)
		if IsEligibleNow(settings, t) {
			return t
		}
	}
	return from
}
