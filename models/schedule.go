package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ScheduleType represents the dispatch mode of a campaign schedule
type ScheduleType string

const (
	ScheduleTypeImmediate ScheduleType = "immediate"
	ScheduleTypeScheduled ScheduleType = "scheduled"
	ScheduleTypeRecurring ScheduleType = "recurring"
)

// String returns the string representation of the type
func (t ScheduleType) String() string {
	return string(t)
}

// Valid checks if the type is valid
func (t ScheduleType) Valid() bool {
	switch t {
	case ScheduleTypeImmediate, ScheduleTypeScheduled, ScheduleTypeRecurring:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for ScheduleType
func (t *ScheduleType) Scan(value any) error {
	if value == nil {
		*t = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*t = ScheduleType(v)
	case []byte:
		*t = ScheduleType(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ScheduleType", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ScheduleType
func (t ScheduleType) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid ScheduleType: %s", t)
	}
	return string(t), nil
}

// ScheduleStatus represents the status of a campaign schedule
type ScheduleStatus string

const (
	ScheduleStatusDraft           ScheduleStatus = "draft"
	ScheduleStatusPendingApproval ScheduleStatus = "pending_approval"
	ScheduleStatusApproved        ScheduleStatus = "approved"
	ScheduleStatusScheduled       ScheduleStatus = "scheduled"
	ScheduleStatusProcessing      ScheduleStatus = "processing"
	ScheduleStatusCompleted       ScheduleStatus = "completed"
	ScheduleStatusFailed          ScheduleStatus = "failed"
	ScheduleStatusCancelled       ScheduleStatus = "cancelled"
)

// String returns the string representation of the status
func (s ScheduleStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s ScheduleStatus) Valid() bool {
	switch s {
	case ScheduleStatusDraft, ScheduleStatusPendingApproval, ScheduleStatusApproved,
		ScheduleStatusScheduled, ScheduleStatusProcessing, ScheduleStatusCompleted,
		ScheduleStatusFailed, ScheduleStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are allowed from this status
func (s ScheduleStatus) IsTerminal() bool {
	return s == ScheduleStatusCompleted || s == ScheduleStatusFailed || s == ScheduleStatusCancelled
}

// Scan implements the sql.Scanner interface for ScheduleStatus
func (s *ScheduleStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = ScheduleStatus(v)
	case []byte:
		*s = ScheduleStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ScheduleStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ScheduleStatus
func (s ScheduleStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ScheduleStatus: %s", s)
	}
	return string(s), nil
}

// RotationStrategy selects which session/template a recipient index uses
type RotationStrategy string

const (
	RotationSequential RotationStrategy = "sequential"
	RotationRandom     RotationStrategy = "random"
	// RotationIntelligent is a reserved strategy for load/engagement-aware session
	// selection. It currently delegates to sequential but must stay a distinct
	// variant so a future implementation replaces it in one place.
	RotationIntelligent RotationStrategy = "intelligent"
)

// Valid checks if the strategy is valid
func (r RotationStrategy) Valid() bool {
	switch r {
	case RotationSequential, RotationRandom, RotationIntelligent:
		return true
	default:
		return false
	}
}

// IntervalType selects how the inter-send delay is computed
type IntervalType string

const (
	IntervalFixed  IntervalType = "fixed"
	IntervalRandom IntervalType = "random"
)

// DeliverySettings represents the JSON timing configuration of a schedule
type DeliverySettings struct {
	RespectBusinessHours bool         `json:"respect_business_hours"`
	BusinessHourStart    int          `json:"business_hour_start"`
	BusinessHourEnd      int          `json:"business_hour_end"`
	SkipWeekends         bool         `json:"skip_weekends"`
	NonOperatingWeekdays []int        `json:"non_operating_weekdays,omitempty"` // time.Weekday values
	IntervalType         IntervalType `json:"interval_type"`
	IntervalFixedMs      int          `json:"interval_fixed_ms"`
	IntervalRandomMinMs  int          `json:"interval_random_min_ms"`
	IntervalRandomMaxMs  int          `json:"interval_random_max_ms"`
	SpeedMode            string       `json:"speed_mode,omitempty"`
}

// Value implements the driver.Valuer interface for DeliverySettings
func (d DeliverySettings) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements the sql.Scanner interface for DeliverySettings
func (d *DeliverySettings) Scan(value any) error {
	if value == nil {
		*d = DeliverySettings{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into DeliverySettings", value)
	}

	return json.Unmarshal(bytes, d)
}

// Schedule represents a configured bulk-messaging campaign in the database
type Schedule struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_schedules_uuid" json:"uuid"`
	CompanyID uint      `gorm:"not null;index:idx_schedules_company_id" json:"company_id"`
	UserID    uint      `gorm:"not null" json:"user_id"`
	Name      string    `gorm:"size:255;not null" json:"name"`

	Type              ScheduleType `gorm:"type:schedule_type;not null;index:idx_schedules_type" json:"type"`
	IsDynamicCampaign bool         `gorm:"not null;default:false" json:"is_dynamic_campaign"`

	SelectedSessions       pq.StringArray   `gorm:"type:text[]" json:"selected_sessions"`
	TemplateOrder          pq.Int64Array    `gorm:"type:bigint[]" json:"template_order"`
	SessionSendingStrategy RotationStrategy `gorm:"size:32;not null;default:'sequential'" json:"session_sending_strategy"`
	MessageSequenceType    RotationStrategy `gorm:"size:32;not null;default:'sequential'" json:"message_sequence_type"`
	DeliverySettings       DeliverySettings `gorm:"type:jsonb;not null" json:"delivery_settings"`

	Status      ScheduleStatus `gorm:"type:schedule_status;not null;default:'draft';index:idx_schedules_status" json:"status"`
	SentCount   int            `gorm:"not null;default:0" json:"sent_count"`
	FailedCount int            `gorm:"not null;default:0" json:"failed_count"`

	RunAt       *time.Time `gorm:"index:idx_schedules_run_at" json:"run_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_schedules_created_at" json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Schedule) TableName() string {
	return "schedules"
}

// BeforeCreate is called before creating a new record
func (s *Schedule) BeforeCreate() error {
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	if s.Status == "" {
		s.Status = ScheduleStatusDraft
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	return nil
}

// CanTransitionTo checks if the schedule can transition to the given status.
// Transitions are monotonic forward; cancelled is reachable from any non-terminal status.
func (s *Schedule) CanTransitionTo(newStatus ScheduleStatus) bool {
	if newStatus == ScheduleStatusCancelled {
		return !s.Status.IsTerminal()
	}
	switch s.Status {
	case ScheduleStatusDraft:
		return newStatus == ScheduleStatusPendingApproval || newStatus == ScheduleStatusApproved
	case ScheduleStatusPendingApproval:
		return newStatus == ScheduleStatusApproved
	case ScheduleStatusApproved:
		return newStatus == ScheduleStatusScheduled || newStatus == ScheduleStatusProcessing
	case ScheduleStatusScheduled:
		return newStatus == ScheduleStatusProcessing
	case ScheduleStatusProcessing:
		return newStatus == ScheduleStatusCompleted || newStatus == ScheduleStatusFailed
	default:
		return false
	}
}

// ScheduleFilter represents filter criteria for schedules
type ScheduleFilter struct {
	ID            *uint           `json:"id,omitempty"`
	UUID          *uuid.UUID      `json:"uuid,omitempty"`
	CompanyID     *uint           `json:"company_id,omitempty"`
	UserID        *uint           `json:"user_id,omitempty"`
	Type          *ScheduleType   `json:"type,omitempty"`
	Status        *ScheduleStatus `json:"status,omitempty"`
	IsDynamic     *bool           `json:"is_dynamic,omitempty"`
	RunAfter      *time.Time      `json:"run_after,omitempty"`
	RunBefore     *time.Time      `json:"run_before,omitempty"`
	CreatedAfter  *time.Time      `json:"created_after,omitempty"`
	CreatedBefore *time.Time      `json:"created_before,omitempty"`
}
