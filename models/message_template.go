package models

import "time"

// MessageTemplate is one reusable message body; campaign schedules reference
// templates by ID in their template order.
type MessageTemplate struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	CompanyID uint   `gorm:"not null;index:idx_message_templates_company_id" json:"company_id"`
	Name      string `gorm:"size:255;not null" json:"name"`
	Content   string `gorm:"type:text;not null" json:"content"`
	IsActive  bool   `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (MessageTemplate) TableName() string {
	return "message_templates"
}

// MessageTemplateFilter represents filter criteria for templates
type MessageTemplateFilter struct {
	ID        *uint   `json:"id,omitempty"`
	CompanyID *uint   `json:"company_id,omitempty"`
	IDIn      []int64 `json:"id_in,omitempty"`
	IsActive  *bool   `json:"is_active,omitempty"`
}
