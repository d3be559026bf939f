package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/zapsender/zapsender-backend/config"
)

// WhatsAppClient queries the WhatsApp gateway for account information.
// Message delivery itself is performed by the gateway when scheduled jobs
// fire; this client only covers lookups needed during contact resolution.
type WhatsAppClient interface {
	CheckPhoneExists(ctx context.Context, session, phone string) (bool, error)
	GetProfile(ctx context.Context, session, phone string) (*WhatsAppProfile, error)
}

// WhatsAppProfile is the gateway's view of a WhatsApp account
type WhatsAppProfile struct {
	ChatID     string `json:"chat_id"`
	Name       string `json:"name"`
	PictureURL string `json:"picture_url,omitempty"`
	IsBusiness bool   `json:"is_business"`
}

// WhatsAppClientImpl implements WhatsAppClient over HTTP with bearer auth
type WhatsAppClientImpl struct {
	config *config.GatewayConfig
	client *http.Client
}

// NewWhatsAppClient creates a gateway client from configuration
func NewWhatsAppClient(cfg *config.GatewayConfig) WhatsAppClient {
	return &WhatsAppClientImpl{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (w *WhatsAppClientImpl) get(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", w.config.BaseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.config.BearerToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return resp.StatusCode, nil
}

// CheckPhoneExists reports whether the phone has a WhatsApp account,
// as seen from the given session
func (w *WhatsAppClientImpl) CheckPhoneExists(ctx context.Context, session, phone string) (bool, error) {
	path := fmt.Sprintf("/sessions/%s/contacts/%s/exists", url.PathEscape(session), url.PathEscape(phone))
	var result struct {
		Exists bool `json:"exists"`
	}
	status, err := w.get(ctx, path, &result)
	if err != nil {
		return false, err
	}
	if status == http.StatusNotFound {
		return false, nil
	}
	return result.Exists, nil
}

// GetProfile fetches the account profile, or nil when the phone is not on WhatsApp
func (w *WhatsAppClientImpl) GetProfile(ctx context.Context, session, phone string) (*WhatsAppProfile, error) {
	path := fmt.Sprintf("/sessions/%s/contacts/%s/profile", url.PathEscape(session), url.PathEscape(phone))
	var profile WhatsAppProfile
	status, err := w.get(ctx, path, &profile)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	return &profile, nil
}

// MockWhatsAppClient implements WhatsAppClient for testing
type MockWhatsAppClient struct {
	mu       sync.Mutex
	Existing map[string]bool
	Profiles map[string]*WhatsAppProfile
}

// NewMockWhatsAppClient creates a new mock gateway client
func NewMockWhatsAppClient() *MockWhatsAppClient {
	return &MockWhatsAppClient{
		Existing: make(map[string]bool),
		Profiles: make(map[string]*WhatsAppProfile),
	}
}

func (m *MockWhatsAppClient) CheckPhoneExists(ctx context.Context, session, phone string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Existing[phone], nil
}

func (m *MockWhatsAppClient) GetProfile(ctx context.Context, session, phone string) (*WhatsAppProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Profiles[phone], nil
}
