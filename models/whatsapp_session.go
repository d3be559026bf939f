package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// SessionStatus represents the connection state of a sending session
type SessionStatus string

const (
	SessionStatusConnected    SessionStatus = "connected"
	SessionStatusDisconnected SessionStatus = "disconnected"
	SessionStatusBanned       SessionStatus = "banned"
)

// Valid checks if the status is valid
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusConnected, SessionStatusDisconnected, SessionStatusBanned:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for SessionStatus
func (s *SessionStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = SessionStatus(v)
	case []byte:
		*s = SessionStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into SessionStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for SessionStatus
func (s SessionStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid SessionStatus: %s", s)
	}
	return string(s), nil
}

// WhatsAppSession is a registered sending account; rotation strategies pick
// among the sessions a schedule selected.
type WhatsAppSession struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	CompanyID   uint          `gorm:"not null;uniqueIndex:uk_wa_sessions_company_name,priority:1" json:"company_id"`
	SessionName string        `gorm:"size:128;not null;uniqueIndex:uk_wa_sessions_company_name,priority:2" json:"session_name"`
	Phone       string        `gorm:"size:32" json:"phone,omitempty"`
	Status      SessionStatus `gorm:"size:16;not null;default:'disconnected'" json:"status"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (WhatsAppSession) TableName() string {
	return "whatsapp_sessions"
}

// WhatsAppSessionFilter represents filter criteria for sessions
type WhatsAppSessionFilter struct {
	ID          *uint          `json:"id,omitempty"`
	CompanyID   *uint          `json:"company_id,omitempty"`
	SessionName *string        `json:"session_name,omitempty"`
	NameIn      []string       `json:"name_in,omitempty"`
	Status      *SessionStatus `json:"status,omitempty"`
}
