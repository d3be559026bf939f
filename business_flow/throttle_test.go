package businessflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zapsender/zapsender-backend/models"
)

func businessHourSettings() *models.DeliverySettings {
	return &models.DeliverySettings{
		RespectBusinessHours: true,
		BusinessHourStart:    9,
		BusinessHourEnd:      18,
	}
}

func TestIsEligibleNowBusinessHours(t *testing.T) {
	settings := businessHourSettings()

	// Monday
	base := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	assert.False(t, IsEligibleNow(settings, base.Add(8*time.Hour)))
	assert.True(t, IsEligibleNow(settings, base.Add(9*time.Hour)))
	assert.True(t, IsEligibleNow(settings, base.Add(17*time.Hour+59*time.Minute)))
	// End hour is exclusive
	assert.False(t, IsEligibleNow(settings, base.Add(18*time.Hour)))
}

func TestIsEligibleNowNonOperatingWeekdays(t *testing.T) {
	settings := &models.DeliverySettings{
		SkipWeekends:         true,
		NonOperatingWeekdays: []int{0, 6}, // Sunday, Saturday
	}

	saturday := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	assert.False(t, IsEligibleNow(settings, saturday))
	assert.False(t, IsEligibleNow(settings, sunday))
	assert.True(t, IsEligibleNow(settings, monday))
}

func TestIsEligibleNowSkipWeekendsDefaultsToSaturdaySunday(t *testing.T) {
	// No explicit list: the flag alone blocks Saturday and Sunday
	settings := &models.DeliverySettings{SkipWeekends: true}

	saturday := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	assert.False(t, IsEligibleNow(settings, saturday))
	assert.False(t, IsEligibleNow(settings, sunday))
	assert.True(t, IsEligibleNow(settings, monday))
}

func TestIsEligibleNowNilSettings(t *testing.T) {
	assert.True(t, IsEligibleNow(nil, time.Now()))
}

func TestNextDelayFixed(t *testing.T) {
	settings := &models.DeliverySettings{
		IntervalType:    models.IntervalFixed,
		IntervalFixedMs: 2500,
	}
	assert.Equal(t, 2500*time.Millisecond, NextDelay(settings))
}

func TestNextDelayRandomWithinBounds(t *testing.T) {
	settings := &models.DeliverySettings{
		IntervalType:        models.IntervalRandom,
		IntervalRandomMinMs: 1000,
		IntervalRandomMaxMs: 3000,
	}

	for i := 0; i < 50; i++ {
		d := NextDelay(settings)
		assert.GreaterOrEqual(t, d, 1000*time.Millisecond)
		assert.LessOrEqual(t, d, 3000*time.Millisecond)
	}
}

func TestNextDelayRandomDegenerateBounds(t *testing.T) {
	settings := &models.DeliverySettings{
		IntervalType:        models.IntervalRandom,
		IntervalRandomMinMs: 2000,
		IntervalRandomMaxMs: 2000,
	}
	assert.Equal(t, 2000*time.Millisecond, NextDelay(settings))
}

func TestNextEligibleTimeAdvancesToWindow(t *testing.T) {
	settings := businessHourSettings()

	// Monday 06:30, window opens at 09:00
	early := time.Date(2026, 8, 24, 6, 30, 0, 0, time.UTC)
	next := NextEligibleTime(settings, early)

	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, early.Day(), next.Day())
}

func TestNextEligibleTimeAlreadyEligible(t *testing.T) {
	settings := businessHourSettings()
	inWindow := time.Date(2026, 8, 24, 10, 15, 0, 0, time.UTC)

	assert.Equal(t, inWindow, NextEligibleTime(settings, inWindow))
}

func TestNextEligibleTimeSkipsWeekend(t *testing.T) {
	settings := &models.DeliverySettings{
		RespectBusinessHours: true,
		BusinessHourStart:    9,
		BusinessHourEnd:      18,
		SkipWeekends:         true,
		NonOperatingWeekdays: []int{0, 6},
	}

	// Saturday evening rolls over to Monday morning
	saturday := time.Date(2026, 8, 29, 20, 0, 0, 0, time.UTC)
	next := NextEligibleTime(settings, saturday)

	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, 9, next.Hour())
}
