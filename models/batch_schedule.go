package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// BatchStatus represents the status of a batch schedule
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusApproved   BatchStatus = "approved"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCancelled  BatchStatus = "cancelled"
	BatchStatusCompleted  BatchStatus = "completed"
)

// String returns the string representation of the status
func (s BatchStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s BatchStatus) Valid() bool {
	switch s {
	case BatchStatusPending, BatchStatusApproved, BatchStatusProcessing,
		BatchStatusCancelled, BatchStatusCompleted:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are allowed from this status
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCancelled || s == BatchStatusCompleted
}

// Scan implements the sql.Scanner interface for BatchStatus
func (s *BatchStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = BatchStatus(v)
	case []byte:
		*s = BatchStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into BatchStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for BatchStatus
func (s BatchStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid BatchStatus: %s", s)
	}
	return string(s), nil
}

// Recipient is a single frozen recipient entry inside a static batch
type Recipient struct {
	ContactID uint   `json:"contact_id"`
	Phone     string `json:"phone"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
}

// RecipientList is the JSON list of frozen recipients for a static batch
type RecipientList []Recipient

// Value implements the driver.Valuer interface for RecipientList
func (l RecipientList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]Recipient{})
	}
	return json.Marshal(l)
}

// Scan implements the sql.Scanner interface for RecipientList
func (l *RecipientList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into RecipientList", value)
	}

	return json.Unmarshal(bytes, l)
}

// DynamicFilter defines how a dynamic batch resolves its recipients at run time
type DynamicFilter struct {
	Tags                 []string `json:"tags,omitempty"`
	Temperature          []string `json:"temperature,omitempty"`
	InteractedAfterDays  *int     `json:"interacted_after_days,omitempty"`
	InteractedBeforeDays *int     `json:"interacted_before_days,omitempty"`
}

// Value implements the driver.Valuer interface for DynamicFilter
func (f DynamicFilter) Value() (driver.Value, error) {
	return json.Marshal(f)
}

// Scan implements the sql.Scanner interface for DynamicFilter
func (f *DynamicFilter) Scan(value any) error {
	if value == nil {
		*f = DynamicFilter{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into DynamicFilter", value)
	}

	return json.Unmarshal(bytes, f)
}

// BatchSchedule represents one scheduled execution window of a recurring or
// dynamic campaign. A pending dynamic batch owns zero message rows; recipients
// are resolved only when the batch is activated.
type BatchSchedule struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	ScheduleID  uint        `gorm:"not null;index:idx_batch_schedules_schedule_id" json:"schedule_id"`
	CompanyID   uint        `gorm:"not null;index:idx_batch_schedules_company_id" json:"company_id"`
	BatchNumber int         `gorm:"not null" json:"batch_number"`
	RunAt       time.Time   `gorm:"not null;index:idx_batch_schedules_run_at" json:"run_at"`
	Status      BatchStatus `gorm:"type:batch_status;not null;default:'pending';index:idx_batch_schedules_status" json:"status"`
	IsDynamic   bool        `gorm:"not null;default:false" json:"is_dynamic"`

	// Static batches freeze their recipients at creation time.
	RecipientCount int           `gorm:"not null;default:0" json:"recipient_count"`
	Recipients     RecipientList `gorm:"type:jsonb" json:"recipients,omitempty"`

	// Dynamic batches carry a filter and compute recipients lazily.
	Filter               DynamicFilter `gorm:"type:jsonb" json:"filter,omitempty"`
	CalculatedCount      *int          `json:"calculated_count,omitempty"`
	CalculatedRecipients pq.Int64Array `gorm:"type:bigint[]" json:"calculated_recipients,omitempty"`

	// SchedulerJobID correlates the batch-activation job on the external scheduler.
	SchedulerJobID *string `gorm:"size:64;index:idx_batch_schedules_job_id" json:"scheduler_job_id,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (BatchSchedule) TableName() string {
	return "batch_schedules"
}

// BeforeCreate is called before creating a new record
func (b *BatchSchedule) BeforeCreate() error {
	if b.Status == "" {
		b.Status = BatchStatusPending
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	return nil
}

// BatchScheduleFilter represents filter criteria for batch schedules
type BatchScheduleFilter struct {
	ID         *uint        `json:"id,omitempty"`
	ScheduleID *uint        `json:"schedule_id,omitempty"`
	CompanyID  *uint        `json:"company_id,omitempty"`
	Status     *BatchStatus `json:"status,omitempty"`
	IsDynamic  *bool        `json:"is_dynamic,omitempty"`
	RunAfter   *time.Time   `json:"run_after,omitempty"`
	RunBefore  *time.Time   `json:"run_before,omitempty"`
}
