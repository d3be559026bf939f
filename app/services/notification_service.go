package services

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/zapsender/zapsender-backend/config"
)

// Campaign lifecycle event types published to the notification relay
const (
	EventCampaignApproved  = "campaign.approved"
	EventCampaignCancelled = "campaign.cancelled"
	EventCampaignCompleted = "campaign.completed"
	EventBatchActivated    = "batch.activated"
	EventMessageReceived   = "message.received"
)

// NotificationService publishes campaign lifecycle events to interested
// parties (dashboards, websocket relays). Delivery is best effort; a
// failed publish never fails the triggering operation.
type NotificationService interface {
	Publish(ctx context.Context, companyID uint, eventType string, payload any)
}

// NotificationEvent is the envelope posted to the relay
type NotificationEvent struct {
	CompanyID uint      `json:"company_id"`
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// NotificationServiceImpl implements NotificationService over an HTTP relay
type NotificationServiceImpl struct {
	config *config.NotifyConfig
	client *http.Client
}

// NewNotificationService creates a new notification service
func NewNotificationService(cfg *config.NotifyConfig) NotificationService {
	return &NotificationServiceImpl{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Publish posts the event to the relay. Errors are logged and swallowed.
func (s *NotificationServiceImpl) Publish(ctx context.Context, companyID uint, eventType string, payload any) {
	if !s.config.Enabled || s.config.RelayURL == "" {
		return
	}

	event := NotificationEvent{
		CompanyID: companyID,
		Type:      eventType,
		Payload:   payload,
		EmittedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("notification: failed to marshal %s event: %v", eventType, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.RelayURL, bytes.NewBuffer(body))
	if err != nil {
		log.Printf("notification: failed to create request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("notification: relay unreachable for %s event: %v", eventType, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("notification: relay returned status %d for %s event", resp.StatusCode, eventType)
	}
}

// MockNotificationService records published events for testing
type MockNotificationService struct {
	mu     sync.Mutex
	Events []NotificationEvent
}

// NewMockNotificationService creates a new mock notification service
func NewMockNotificationService() *MockNotificationService {
	return &MockNotificationService{}
}

func (m *MockNotificationService) Publish(ctx context.Context, companyID uint, eventType string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, NotificationEvent{
		CompanyID: companyID,
		Type:      eventType,
		Payload:   payload,
		EmittedAt: time.Now().UTC(),
	})
}

// EventTypes returns the types of all published events in order
func (m *MockNotificationService) EventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.Events))
	for _, e := range m.Events {
		types = append(types, e.Type)
	}
	return types
}
