package dto

import (
	"time"
)

// RecipientDTO is one recipient entry in a static campaign request
type RecipientDTO struct {
	ContactID uint   `json:"contact_id,omitempty"`
	Phone     string `json:"phone" validate:"required"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
}

// DeliverySettingsDTO mirrors the schedule's timing configuration
type DeliverySettingsDTO struct {
	RespectBusinessHours bool   `json:"respect_business_hours"`
	BusinessHourStart    int    `json:"business_hour_start"`
	BusinessHourEnd      int    `json:"business_hour_end"`
	SkipWeekends         bool   `json:"skip_weekends"`
	NonOperatingWeekdays []int  `json:"non_operating_weekdays,omitempty"`
	IntervalType         string `json:"interval_type,omitempty"`
	IntervalFixedMs      int    `json:"interval_fixed_ms,omitempty"`
	IntervalRandomMinMs  int    `json:"interval_random_min_ms,omitempty"`
	IntervalRandomMaxMs  int    `json:"interval_random_max_ms,omitempty"`
	SpeedMode            string `json:"speed_mode,omitempty"`
}

// DynamicFilterDTO defines recipient selection for dynamic campaigns
type DynamicFilterDTO struct {
	Tags                 []string `json:"tags,omitempty"`
	Temperature          []string `json:"temperature,omitempty"`
	InteractedAfterDays  *int     `json:"interacted_after_days,omitempty"`
	InteractedBeforeDays *int     `json:"interacted_before_days,omitempty"`
}

// CreateCampaignRequest represents the request to create a new campaign
type CreateCampaignRequest struct {
	CompanyID uint `json:"-"`
	UserID    uint `json:"-"`

	Name      *string `json:"name,omitempty"`
	Type      *string `json:"type,omitempty"` // immediate, scheduled, recurring
	IsDynamic bool    `json:"is_dynamic,omitempty"`

	SelectedSessions       []string `json:"selected_sessions,omitempty"`
	TemplateOrder          []int64  `json:"template_order,omitempty"`
	SessionSendingStrategy *string  `json:"session_sending_strategy,omitempty"`
	MessageSequenceType    *string  `json:"message_sequence_type,omitempty"`

	DeliverySettings *DeliverySettingsDTO `json:"delivery_settings,omitempty"`

	// Static campaigns freeze their recipients at creation time.
	Recipients []RecipientDTO `json:"recipients,omitempty"`
	// Dynamic campaigns carry a filter instead.
	Filter *DynamicFilterDTO `json:"filter,omitempty"`

	RunAt *time.Time `json:"run_at,omitempty"`
	// BatchIntervalMinutes spaces consecutive batch run times for
	// recurring campaigns. Zero means all batches share run_at.
	BatchIntervalMinutes int `json:"batch_interval_minutes,omitempty"`
}

// CreateCampaignResponse represents the response to create a new campaign
type CreateCampaignResponse struct {
	UUID             string `json:"uuid"`
	Status           string `json:"status"`
	BatchCount       int    `json:"batch_count"`
	MessagesCreated  int    `json:"messages_created"`
	MessagesFailed   int    `json:"messages_failed"`
	MessagesSkipped  int    `json:"messages_skipped"`
}

// ApproveCampaignRequest represents the request to approve a campaign
type ApproveCampaignRequest struct {
	UUID      string `json:"-"`
	CompanyID uint   `json:"-"`
}

// ApproveCampaignResponse represents the response to approve a campaign
type ApproveCampaignResponse struct {
	UUID   string `json:"uuid"`
	Status string `json:"status"`
}

// GetCampaignRequest represents the request to fetch a campaign
type GetCampaignRequest struct {
	UUID      string `json:"-"`
	CompanyID uint   `json:"-"`
}

// BatchSummaryDTO summarizes one batch in campaign detail responses
type BatchSummaryDTO struct {
	ID              uint      `json:"id"`
	BatchNumber     int       `json:"batch_number"`
	RunAt           time.Time `json:"run_at"`
	Status          string    `json:"status"`
	IsDynamic       bool      `json:"is_dynamic"`
	RecipientCount  int       `json:"recipient_count"`
	CalculatedCount *int      `json:"calculated_count,omitempty"`
}

// GetCampaignResponse represents a campaign in responses
type GetCampaignResponse struct {
	UUID             string            `json:"uuid"`
	Name             string            `json:"name"`
	Type             string            `json:"type"`
	Status           string            `json:"status"`
	IsDynamic        bool              `json:"is_dynamic"`
	SelectedSessions []string          `json:"selected_sessions,omitempty"`
	SentCount        int               `json:"sent_count"`
	FailedCount      int               `json:"failed_count"`
	RunAt            *time.Time        `json:"run_at,omitempty"`
	StartedAt        *time.Time        `json:"started_at,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	CancelledAt      *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	Batches          []BatchSummaryDTO `json:"batches,omitempty"`
}

// ListCampaignsRequest represents the request to list campaigns
type ListCampaignsRequest struct {
	CompanyID uint `json:"-"`
	PaginationRequest
	Status *string `json:"status,omitempty" query:"status"`
}

// ListCampaignsResponse represents the paged campaign list
type ListCampaignsResponse struct {
	Items      []GetCampaignResponse `json:"items"`
	Pagination PaginationResponse    `json:"pagination"`
}

// CancelCampaignRequest represents the request to cancel a campaign
type CancelCampaignRequest struct {
	UUID      string `json:"-"`
	CompanyID uint   `json:"-"`
}

// CancelCampaignResponse reports the aggregate effect of a cancellation
type CancelCampaignResponse struct {
	UUID              string `json:"uuid"`
	MessagesCancelled int    `json:"messages_cancelled"`
	MessagesDeleted   int    `json:"messages_deleted"`
	BatchesCancelled  int    `json:"batches_cancelled"`
	RemoteFailures    int    `json:"remote_failures"`
}

// ActivateBatchRequest represents the scheduler callback to activate a batch
type ActivateBatchRequest struct {
	BatchID   uint `json:"-"`
	CompanyID uint `json:"-"`
}

// ActivateBatchResponse reports the materialization outcome of a batch
type ActivateBatchResponse struct {
	BatchID         uint   `json:"batch_id"`
	Status          string `json:"status"`
	RecipientCount  int    `json:"recipient_count"`
	MessagesCreated int    `json:"messages_created"`
	MessagesFailed  int    `json:"messages_failed"`
	MessagesSkipped int    `json:"messages_skipped"`
}
