// Package services provides external service integrations and technical concerns like scheduling and notifications
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/zapsender/zapsender-backend/config"
)

// SchedulerClient talks to the external job-scheduling service. Submitted
// jobs call back into this service at their run time.
type SchedulerClient interface {
	SubmitJob(ctx context.Context, job *SchedulerJob) (string, error)
	CancelJobs(ctx context.Context, jobIDs []string) ([]CancelJobResult, error)
}

// SchedulerJob is the payload for a single scheduled callback
type SchedulerJob struct {
	Name        string            `json:"name"`
	RunAt       time.Time         `json:"run_at"`
	CallbackURL string            `json:"callback_url"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`
}

// CancelJobResult is the per-job outcome of a batch cancellation
type CancelJobResult struct {
	JobID     string `json:"job_id"`
	Cancelled bool   `json:"cancelled"`
	Error     string `json:"error,omitempty"`
}

type submitJobResponse struct {
	JobID string `json:"job_id"`
}

// SchedulerClientImpl implements SchedulerClient over HTTP with bearer auth
type SchedulerClientImpl struct {
	config *config.SchedulerConfig
	client *http.Client
}

// NewSchedulerClient creates a scheduler client from configuration
func NewSchedulerClient(cfg *config.SchedulerConfig) SchedulerClient {
	return &SchedulerClientImpl{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// SubmitJob registers a job and returns the scheduler-assigned job ID.
// Failures are returned to the caller; retry policy belongs to the caller.
func (s *SchedulerClientImpl) SubmitJob(ctx context.Context, job *SchedulerJob) (string, error) {
	requestBody, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal scheduler job: %w", err)
	}

	url := fmt.Sprintf("%s/jobs", s.config.BaseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.BearerToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to submit scheduler job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("scheduler rejected job submission: status %d: %s", resp.StatusCode, string(body))
	}

	var result submitJobResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode scheduler response: %w", err)
	}
	if result.JobID == "" {
		return "", fmt.Errorf("scheduler returned empty job ID")
	}
	return result.JobID, nil
}

// CancelJobs cancels a set of jobs in one call and returns per-job results.
// A job that already fired or is unknown comes back with Cancelled=false.
func (s *SchedulerClientImpl) CancelJobs(ctx context.Context, jobIDs []string) ([]CancelJobResult, error) {
	if len(jobIDs) == 0 {
		return nil, nil
	}

	requestBody, err := json.Marshal(jobIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job IDs: %w", err)
	}

	url := fmt.Sprintf("%s/jobs/cancel/batch", s.config.BaseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.BearerToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send batch cancellation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("scheduler rejected batch cancellation: status %d: %s", resp.StatusCode, string(body))
	}

	var results []CancelJobResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode cancellation response: %w", err)
	}
	return results, nil
}

// MockSchedulerClient implements SchedulerClient for testing
type MockSchedulerClient struct {
	mu            sync.Mutex
	SubmittedJobs []*SchedulerJob
	CancelledIDs  []string
	SubmitErr     error
	CancelErr     error
	nextID        int
}

// NewMockSchedulerClient creates a new mock scheduler client
func NewMockSchedulerClient() *MockSchedulerClient {
	return &MockSchedulerClient{}
}

func (m *MockSchedulerClient) SubmitJob(ctx context.Context, job *SchedulerJob) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubmitErr != nil {
		return "", m.SubmitErr
	}
	m.nextID++
	m.SubmittedJobs = append(m.SubmittedJobs, job)
	return fmt.Sprintf("mock-job-%d", m.nextID), nil
}

func (m *MockSchedulerClient) CancelJobs(ctx context.Context, jobIDs []string) ([]CancelJobResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CancelErr != nil {
		return nil, m.CancelErr
	}
	m.CancelledIDs = append(m.CancelledIDs, jobIDs...)
	results := make([]CancelJobResult, 0, len(jobIDs))
	for _, id := range jobIDs {
		results = append(results, CancelJobResult{JobID: id, Cancelled: true})
	}
	return results, nil
}
