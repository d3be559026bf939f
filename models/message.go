package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// MessageStatus represents the delivery status of a message
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusRetry     MessageStatus = "retry"
	MessageStatusSuccess   MessageStatus = "success"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusCancelled MessageStatus = "cancelled"
)

// String returns the string representation of the status
func (s MessageStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s MessageStatus) Valid() bool {
	switch s {
	case MessageStatusPending, MessageStatusRetry, MessageStatusSuccess,
		MessageStatusFailed, MessageStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the message may not transition further.
// Only pending and retry messages are still mutable.
func (s MessageStatus) IsTerminal() bool {
	return s == MessageStatusSuccess || s == MessageStatusCancelled
}

// Scan implements the sql.Scanner interface for MessageStatus
func (s *MessageStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = MessageStatus(v)
	case []byte:
		*s = MessageStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into MessageStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for MessageStatus
func (s MessageStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid MessageStatus: %s", s)
	}
	return string(s), nil
}

// MessageDirection distinguishes outbound from inbound messages
type MessageDirection string

const (
	MessageDirectionSent     MessageDirection = "sent"
	MessageDirectionReceived MessageDirection = "received"
)

// Valid checks if the direction is valid
func (d MessageDirection) Valid() bool {
	return d == MessageDirectionSent || d == MessageDirectionReceived
}

// MessageType classifies how a message entered the pipeline
type MessageType string

const (
	MessageTypeImmediately MessageType = "immediately"
	MessageTypeScheduled   MessageType = "scheduled"
	MessageTypeChat        MessageType = "chat"
)

// Valid checks if the type is valid
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeImmediately, MessageTypeScheduled, MessageTypeChat:
		return true
	default:
		return false
	}
}

// Message is one outbound/inbound message record, the unit of delivery tracking.
// SchedulerJobID is unique per tenant when present: message creation is idempotent
// on it so retried webhook deliveries never duplicate rows.
type Message struct {
	ID        uint  `gorm:"primaryKey" json:"id"`
	CompanyID uint  `gorm:"not null;index:idx_messages_company_id;uniqueIndex:uk_messages_company_job,priority:1" json:"company_id"`
	ScheduleID *uint `gorm:"index:idx_messages_schedule_id" json:"schedule_id,omitempty"`
	BatchID    *uint `gorm:"index:idx_messages_batch_id" json:"batch_id,omitempty"`
	ContactID  *uint `gorm:"index:idx_messages_contact_id" json:"contact_id,omitempty"`

	SessionName string           `gorm:"size:128;not null" json:"session_name"`
	ChatID      string           `gorm:"size:128;not null;index:idx_messages_chat_id" json:"chat_id"`
	Content     string           `gorm:"type:text;not null" json:"content"`
	Direction   MessageDirection `gorm:"size:16;not null;default:'sent'" json:"direction"`
	Status      MessageStatus    `gorm:"type:message_status;not null;default:'pending';index:idx_messages_status" json:"status"`
	Type        MessageType      `gorm:"size:16;not null;default:'scheduled'" json:"type"`

	RunAt         *time.Time `gorm:"index:idx_messages_run_at" json:"run_at,omitempty"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	AttemptCount  int        `gorm:"not null;default:0" json:"attempt_count"`

	SchedulerJobID *string `gorm:"size:64;uniqueIndex:uk_messages_company_job,priority:2" json:"scheduler_job_id,omitempty"`
	ErrorDetails   *string `gorm:"type:text" json:"error_details,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_messages_created_at" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Message) TableName() string {
	return "messages"
}

// BeforeCreate is called before creating a new record
func (m *Message) BeforeCreate() error {
	if m.Status == "" {
		m.Status = MessageStatusPending
	}
	if m.Direction == "" {
		m.Direction = MessageDirectionSent
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return nil
}

// MessageFilter represents filter criteria for messages
type MessageFilter struct {
	ID             *uint             `json:"id,omitempty"`
	CompanyID      *uint             `json:"company_id,omitempty"`
	ScheduleID     *uint             `json:"schedule_id,omitempty"`
	BatchID        *uint             `json:"batch_id,omitempty"`
	ContactID      *uint             `json:"contact_id,omitempty"`
	SessionName    *string           `json:"session_name,omitempty"`
	ChatID         *string           `json:"chat_id,omitempty"`
	Direction      *MessageDirection `json:"direction,omitempty"`
	Status         *MessageStatus    `json:"status,omitempty"`
	StatusIn       []MessageStatus   `json:"status_in,omitempty"`
	SchedulerJobID *string           `json:"scheduler_job_id,omitempty"`
	RunAfter       *time.Time        `json:"run_after,omitempty"`
	RunBefore      *time.Time        `json:"run_before,omitempty"`
	CreatedAfter   *time.Time        `json:"created_after,omitempty"`
	CreatedBefore  *time.Time        `json:"created_before,omitempty"`
}
