package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	results := []Result{
		{Kind: "view", StatusCode: http.StatusOK, Duration: 30 * time.Millisecond},
		{Kind: "view", StatusCode: http.StatusOK, Duration: 10 * time.Millisecond},
		{Kind: "retry", StatusCode: http.StatusAccepted, Duration: 20 * time.Millisecond},
		{Kind: "base", StatusCode: http.StatusTooManyRequests, Duration: 40 * time.Millisecond},
	}

	summary := Summarize(results, 2*time.Second)

	assert.Equal(t, 4, summary.TotalRequests)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.RateLimited)
	assert.Equal(t, map[string]int{"view": 2, "retry": 1, "base": 1}, summary.ByKind)
	assert.Equal(t, 10*time.Millisecond, summary.Min)
	assert.Equal(t, 40*time.Millisecond, summary.Max)
	assert.Equal(t, 25*time.Millisecond, summary.Average)
	assert.Equal(t, 40*time.Millisecond, summary.P99)
	assert.InDelta(t, 2.0, summary.RequestsPerSecond, 0.001)
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil, time.Second)
	assert.Zero(t, summary.TotalRequests)
	assert.Zero(t, summary.P95)
}

func TestSplitBases(t *testing.T) {
	assert.Equal(t, []string{"USD", "EUR"}, splitBases(" usd, ,eur"))
	assert.Nil(t, splitBases(""))
}

func TestRunMixesReadsAndCommands(t *testing.T) {
	var views, retries, bases atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/view":
			views.Add(1)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/retry":
			retries.Add(1)
			w.WriteHeader(http.StatusAccepted)
		case r.Method == http.MethodPut && r.URL.Path == "/api/v1/base":
			bases.Add(1)
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := LoadConfig{
		URL:             server.URL + "/",
		ConcurrentUsers: 2,
		RequestsPerUser: 5,
		CommandEvery:    2,
		Bases:           []string{"EUR"},
	}

	summary, err := Run(context.Background(), cfg, server.Client())
	require.NoError(t, err)

	// per user: n=0,1,3 read, n=2 retry, n=4 base change
	assert.Equal(t, 10, summary.TotalRequests)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, int64(6), views.Load())
	assert.Equal(t, int64(2), retries.Load())
	assert.Equal(t, int64(2), bases.Load())

	var out bytes.Buffer
	Print(&out, summary)
	assert.Contains(t, out.String(), "Requests:      10 (view 6, retry 2, base 2)")
}

func TestRunRejectsNoUsers(t *testing.T) {
	_, err := Run(context.Background(), LoadConfig{}, http.DefaultClient)
	assert.Error(t, err)
}
