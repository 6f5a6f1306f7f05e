package testutils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// BackendRate is one entry of a stub /rates response
type BackendRate struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Rate        float64 `json:"rate"`
	InverseRate float64 `json:"inverse_rate"`
}

// BackendResponse is the body the stub serves for GET /rates
type BackendResponse struct {
	Base             string                 `json:"base,omitempty"`
	Rates            map[string]BackendRate `json:"rates"`
	LastUpdated      string                 `json:"last_updated"`
	Freshness        string                 `json:"freshness"`
	SourcesUsed      int                    `json:"sources_used"`
	SourcesAvailable int                    `json:"sources_available"`
	IsCached         bool                   `json:"is_cached"`
	CacheAgeSeconds  *int                   `json:"cache_age_seconds,omitempty"`
	Message          *string                `json:"message,omitempty"`
}

// StubBackend is an httptest server speaking the rate backend's contract
type StubBackend struct {
	server *httptest.Server

	mu        sync.Mutex
	responses map[string]BackendResponse
	status    int
	rawBody   string
	delay     time.Duration
	requests  []string
}

// NewStubBackend starts a stub serving USD and EUR snapshots
func NewStubBackend() *StubBackend {
	stub := &StubBackend{
		responses: make(map[string]BackendResponse),
		status:    http.StatusOK,
	}
	stub.responses["USD"] = USDResponse()
	stub.responses["EUR"] = EURResponse()

	stub.server = httptest.NewServer(http.HandlerFunc(stub.handler))
	return stub
}

// USDResponse is the reference USD body used across tests
func USDResponse() BackendResponse {
	return BackendResponse{
		Rates: map[string]BackendRate{
			"USD": {Code: "USD", Name: "US Dollar", Rate: 1.0, InverseRate: 1.0},
			"EUR": {Code: "EUR", Name: "Euro", Rate: 0.84, InverseRate: 1.19},
			"GBP": {Code: "GBP", Name: "British Pound", Rate: 0.73, InverseRate: 1.369863},
			"JPY": {Code: "JPY", Name: "Japanese Yen", Rate: 149.5, InverseRate: 0.006689},
		},
		LastUpdated:      "2024-01-01T00:00:00Z",
		Freshness:        "fresh",
		SourcesUsed:      3,
		SourcesAvailable: 3,
		IsCached:         false,
	}
}

// EURResponse is a EUR-based body carrying the optional fields
func EURResponse() BackendResponse {
	age := 120
	message := "Using cached data - live rates temporarily unavailable"
	return BackendResponse{
		Base: "EUR",
		Rates: map[string]BackendRate{
			"EUR": {Code: "EUR", Name: "Euro", Rate: 1.0, InverseRate: 1.0},
			"USD": {Code: "USD", Name: "US Dollar", Rate: 1.19, InverseRate: 0.84},
		},
		LastUpdated:      "2024-01-01T00:00:00.123456",
		Freshness:        "stale",
		SourcesUsed:      0,
		SourcesAvailable: 3,
		IsCached:         true,
		CacheAgeSeconds:  &age,
		Message:          &message,
	}
}

func (stub *StubBackend) handler(w http.ResponseWriter, r *http.Request) {
	stub.mu.Lock()
	stub.requests = append(stub.requests, r.URL.RequestURI())
	status := stub.status
	rawBody := stub.rawBody
	delay := stub.delay
	base := strings.ToUpper(r.URL.Query().Get("base"))
	response, found := stub.responses[base]
	stub.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	switch r.URL.Path {
	case "/health":
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
		return
	case "/rates":
	default:
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":true,"message":"Rates temporarily unavailable","retry_after_seconds":30}`))
		return
	}
	if rawBody != "" {
		_, _ = w.Write([]byte(rawBody))
		return
	}
	if !found {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":true,"message":"Rates temporarily unavailable"}`))
		return
	}
	_ = json.NewEncoder(w).Encode(response)
}

// URL returns the stub base URL
func (stub *StubBackend) URL() string {
	return stub.server.URL
}

// Close shuts the stub down
func (stub *StubBackend) Close() {
	stub.server.Close()
}

// SetResponse sets the body served for base
func (stub *StubBackend) SetResponse(base string, response BackendResponse) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	stub.responses[strings.ToUpper(base)] = response
}

// SetStatus makes every endpoint answer with status; 200 restores normal bodies
func (stub *StubBackend) SetStatus(status int) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	stub.status = status
}

// SetRawBody serves body verbatim for /rates with status 200
func (stub *StubBackend) SetRawBody(body string) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	stub.rawBody = body
}

// SetDelay holds every response for delay
func (stub *StubBackend) SetDelay(delay time.Duration) {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	stub.delay = delay
}

// Requests returns the request URIs seen so far
func (stub *StubBackend) Requests() []string {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	return append([]string(nil), stub.requests...)
}
