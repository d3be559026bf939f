package dto

// InboundMessageRequest is the payload delivered by the gateway when a
// message arrives. Duplicate deliveries of the same scheduler_job_id are
// safely ignorable; the reply carries is_duplicate instead of an error.
type InboundMessageRequest struct {
	CompanyID      uint              `json:"-"`
	SessionName    string            `json:"session_name" validate:"required"`
	ChatID         string            `json:"chat_id" validate:"required"`
	SchedulerJobID string            `json:"scheduler_job_id" validate:"required"`
	Direction      string            `json:"direction,omitempty"` // sent, received
	Content        string            `json:"content"`
	SenderName     string            `json:"sender_name,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// InboundMessageResponse reports the ingestion outcome
type InboundMessageResponse struct {
	MessageID      uint `json:"message_id"`
	ContactID      uint `json:"contact_id,omitempty"`
	IsDuplicate    bool `json:"is_duplicate"`
	ContactCreated bool `json:"contact_created"`
}

// DeliveryResultRequest is the payload delivered when a scheduled send
// completes or fails at the gateway
type DeliveryResultRequest struct {
	CompanyID      uint    `json:"-"`
	SchedulerJobID string  `json:"scheduler_job_id" validate:"required"`
	Status         string  `json:"status" validate:"required,oneof=success failed"`
	ErrorDetails   *string `json:"error_details,omitempty"`
}

// DeliveryResultResponse reports the delivery bookkeeping outcome
type DeliveryResultResponse struct {
	MessageID         uint   `json:"message_id"`
	Status            string `json:"status"`
	CampaignCompleted bool   `json:"campaign_completed"`
}
