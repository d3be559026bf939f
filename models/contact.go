package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Temperature is the engagement heuristic on a contact, driven by message direction history
type Temperature string

const (
	TemperatureCold Temperature = "cold"
	TemperatureWarm Temperature = "warm"
	TemperatureHot  Temperature = "hot"
)

// Valid checks if the temperature is valid
func (t Temperature) Valid() bool {
	switch t {
	case TemperatureCold, TemperatureWarm, TemperatureHot:
		return true
	default:
		return false
	}
}

// ContactPhoneType classifies an alternate identifier entry
const (
	PhoneTypePrimary  = "primary"
	PhoneTypeBusiness = "lid" // business-account linked ID
	PhoneTypeAlt      = "alt"
)

// ContactPhone is one phone/identifier entry on a contact
type ContactPhone struct {
	Phone string `json:"phone"`
	Type  string `json:"type"`
}

// ContactPhoneList is the JSON list of alternate identifiers on a contact
type ContactPhoneList []ContactPhone

// Value implements the driver.Valuer interface for ContactPhoneList
func (l ContactPhoneList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]ContactPhone{})
	}
	return json.Marshal(l)
}

// Scan implements the sql.Scanner interface for ContactPhoneList
func (l *ContactPhoneList) Scan(value any) error {
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
		return fmt.Errorf("cannot scan %T into ContactPhoneList", value)
	}

	return json.Unmarshal(bytes, l)
}

// Contact represents a messaging contact within a tenant. Within a tenant no two
// active contacts may resolve to the same normalized phone number or any of its
// Brazilian-format variations; resolution therefore searches the variation set,
// never the literal string alone.
type Contact struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	CompanyID uint   `gorm:"not null;index:idx_contacts_company_id" json:"company_id"`
	Name      string `gorm:"size:255" json:"name"`
	Email     string `gorm:"size:255" json:"email,omitempty"`

	Phone  string           `gorm:"size:32;not null;index:idx_contacts_phone" json:"phone"`
	Phones ContactPhoneList `gorm:"type:jsonb" json:"phones,omitempty"`

	Tags        pq.StringArray `gorm:"type:text[]" json:"tags,omitempty"`
	Temperature Temperature    `gorm:"size:8;not null;default:'cold'" json:"temperature"`

	LastInteractionAt *time.Time `json:"last_interaction_at,omitempty"`
	DeletedAt         *time.Time `gorm:"index:idx_contacts_deleted_at" json:"deleted_at,omitempty"`
	CreatedAt         time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Contact) TableName() string {
	return "contacts"
}

// BeforeCreate is called before creating a new record
func (c *Contact) BeforeCreate() error {
	if c.Temperature == "" {
		c.Temperature = TemperatureCold
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return nil
}

// IsDeleted reports whether the contact is soft-deleted
func (c *Contact) IsDeleted() bool {
	return c.DeletedAt != nil
}

// AllIdentifiers returns the primary phone plus every alternate identifier entry
func (c *Contact) AllIdentifiers() []string {
	out := make([]string, 0, len(c.Phones)+1)
	if c.Phone != "" {
		out = append(out, c.Phone)
	}
	for _, p := range c.Phones {
		if p.Phone != "" {
			out = append(out, p.Phone)
		}
	}
	return out
}

// ContactFilter represents filter criteria for contacts
type ContactFilter struct {
	ID             *uint        `json:"id,omitempty"`
	CompanyID      *uint        `json:"company_id,omitempty"`
	Phone          *string      `json:"phone,omitempty"`
	PhoneIn        []string     `json:"phone_in,omitempty"`
	Temperature    *Temperature `json:"temperature,omitempty"`
	Tag            *string      `json:"tag,omitempty"`
	IncludeDeleted bool         `json:"include_deleted,omitempty"`
	InteractedAfter  *time.Time `json:"interacted_after,omitempty"`
	InteractedBefore *time.Time `json:"interacted_before,omitempty"`
}
