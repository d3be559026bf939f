package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapsender/zapsender-backend/config"
)

func schedulerTestConfig(baseURL string) *config.SchedulerConfig {
	return &config.SchedulerConfig{
		BaseURL:     baseURL,
		BearerToken: "test-token",
		Timeout:     5 * time.Second,
	}
}

func TestSubmitJob(t *testing.T) {
	var gotAuth string
	var gotJob SchedulerJob

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/jobs", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotJob))
		json.NewEncoder(w).Encode(map[string]string{"job_id": "job-123"})
	}))
	defer server.Close()

	client := NewSchedulerClient(schedulerTestConfig(server.URL))
	runAt := time.Now().UTC().Add(time.Hour).Truncate(time.Second)

	jobID, err := client.SubmitJob(context.Background(), &SchedulerJob{
		Name:        "batch-activation",
		RunAt:       runAt,
		CallbackURL: "http://localhost:8080/api/v1/batches/7/activate",
		Method:      "POST",
	})

	require.NoError(t, err)
	assert.Equal(t, "job-123", jobID)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "batch-activation", gotJob.Name)
	assert.True(t, gotJob.RunAt.Equal(runAt))
}

func TestSubmitJobServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "scheduler unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewSchedulerClient(schedulerTestConfig(server.URL))
	_, err := client.SubmitJob(context.Background(), &SchedulerJob{Name: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestSubmitJobEmptyJobID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	client := NewSchedulerClient(schedulerTestConfig(server.URL))
	_, err := client.SubmitJob(context.Background(), &SchedulerJob{Name: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty job ID")
}

func TestCancelJobsBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/jobs/cancel/batch", r.URL.Path)

		var ids []string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ids))

		results := make([]CancelJobResult, 0, len(ids))
		for _, id := range ids {
			// Simulate one job that already fired
			if id == "job-2" {
				results = append(results, CancelJobResult{JobID: id, Cancelled: false, Error: "already executed"})
				continue
			}
			results = append(results, CancelJobResult{JobID: id, Cancelled: true})
		}
		json.NewEncoder(w).Encode(results)
	}))
	defer server.Close()

	client := NewSchedulerClient(schedulerTestConfig(server.URL))
	results, err := client.CancelJobs(context.Background(), []string{"job-1", "job-2", "job-3"})

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].Cancelled)
	assert.False(t, results[1].Cancelled)
	assert.Equal(t, "already executed", results[1].Error)
	assert.True(t, results[2].Cancelled)
}

func TestCancelJobsEmptyList(t *testing.T) {
	client := NewSchedulerClient(schedulerTestConfig("http://localhost:1"))
	results, err := client.CancelJobs(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, results)
}
