// Command viewload drives a running view server with concurrent view reads
// and an occasional retry or base change command, then prints latency and
// status statistics.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dalfonso89/ratewatch/internal/middleware"
	"github.com/dalfonso89/ratewatch/internal/models"
)

// LoadConfig holds the flags of a run
type LoadConfig struct {
	URL             string
	ConcurrentUsers int
	RequestsPerUser int
	CommandEvery    int
	Bases           []string
	Timeout         time.Duration
	TestDuration    time.Duration
	RampUpDuration  time.Duration
	ThinkTime       time.Duration
}

// Result is one request made by a simulated user
type Result struct {
	Kind       string
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Success reports a 2xx response
func (r Result) Success() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Summary aggregates the results of a run
type Summary struct {
	TotalRequests     int
	Failed            int
	RateLimited       int
	ByKind            map[string]int
	TotalDuration     time.Duration
	Average           time.Duration
	Min               time.Duration
	Max               time.Duration
	P95               time.Duration
	P99               time.Duration
	RequestsPerSecond float64
}

func main() {
	var cfg LoadConfig
	var bases string

	flag.StringVar(&cfg.URL, "url", "http://localhost:8090", "View server address")
	flag.IntVar(&cfg.ConcurrentUsers, "users", 10, "Number of concurrent users")
	flag.IntVar(&cfg.RequestsPerUser, "requests", 100, "Requests per user")
	flag.IntVar(&cfg.CommandEvery, "command-every", 10, "Send a command every N requests (0 = reads only)")
	flag.StringVar(&bases, "bases", "USD,EUR,GBP", "Bases cycled by base change commands")
	flag.DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "Request timeout")
	flag.DurationVar(&cfg.TestDuration, "duration", 0, "Stop after this long (0 = run all requests)")
	flag.DurationVar(&cfg.RampUpDuration, "rampup", 2*time.Second, "Ramp-up duration")
	flag.DurationVar(&cfg.ThinkTime, "think", 50*time.Millisecond, "Pause between requests of one user")
	flag.Parse()
	cfg.Bases = splitBases(bases)

	fmt.Printf("viewload: %d users x %d requests against %s\n", cfg.ConcurrentUsers, cfg.RequestsPerUser, cfg.URL)

	ctx := context.Background()
	if cfg.TestDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.TestDuration)
		defer cancel()
	}

	summary, err := Run(ctx, cfg, &http.Client{Timeout: cfg.Timeout})
	if err != nil {
		fmt.Fprintln(os.Stderr, "viewload:", err)
		os.Exit(1)
	}
	Print(os.Stdout, summary)
}

// Run starts every simulated user and collects their results
func Run(ctx context.Context, cfg LoadConfig, httpClient *http.Client) (Summary, error) {
	if cfg.ConcurrentUsers <= 0 {
		return Summary{}, fmt.Errorf("users must be positive, got %d", cfg.ConcurrentUsers)
	}

	var (
		mu      sync.Mutex
		results []Result
	)
	record := func(result Result) {
		mu.Lock()
		results = append(results, result)
		mu.Unlock()
	}

	started := time.Now()
	rampUpDelay := cfg.RampUpDuration / time.Duration(cfg.ConcurrentUsers)
	group, groupCtx := errgroup.WithContext(ctx)

	for user := 0; user < cfg.ConcurrentUsers; user++ {
		user := user
		group.Go(func() error {
			if !sleep(groupCtx, time.Duration(user)*rampUpDelay) {
				return nil
			}
			for n := 0; n < cfg.RequestsPerUser; n++ {
				if groupCtx.Err() != nil {
					return nil
				}
				record(do(groupCtx, httpClient, cfg, user, n))
				if !sleep(groupCtx, cfg.ThinkTime) {
					return nil
				}
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return Summary{}, err
	}
	return Summarize(results, time.Since(started)), nil
}

func do(ctx context.Context, httpClient *http.Client, cfg LoadConfig, user, n int) Result {
	base := strings.TrimSuffix(cfg.URL, "/")

	var request *http.Request
	var err error
	kind := "view"

	switch {
	case cfg.CommandEvery > 0 && n > 0 && n%cfg.CommandEvery == 0 && len(cfg.Bases) > 0 && (n/cfg.CommandEvery)%2 == 0:
		kind = "base"
		body, _ := json.Marshal(models.BaseChangeRequest{Base: cfg.Bases[(user+n)%len(cfg.Bases)]})
		request, err = http.NewRequestWithContext(ctx, http.MethodPut, base+"/api/v1/base", bytes.NewReader(body))
		if err == nil {
			request.Header.Set("Content-Type", "application/json")
		}
	case cfg.CommandEvery > 0 && n > 0 && n%cfg.CommandEvery == 0:
		kind = "retry"
		request, err = http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/retry", nil)
	default:
		request, err = http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v1/view", nil)
	}
	if err != nil {
		return Result{Kind: kind, Err: err}
	}
	request.Header.Set(middleware.RequestIDHeader, uuid.NewString())

	start := time.Now()
	response, err := httpClient.Do(request)
	result := Result{Kind: kind, Duration: time.Since(start), Err: err}
	if err != nil {
		return result
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	result.StatusCode = response.StatusCode
	return result
}

// Summarize computes the statistics of a finished run
func Summarize(results []Result, elapsed time.Duration) Summary {
	summary := Summary{
		TotalRequests: len(results),
		TotalDuration: elapsed,
		ByKind:        make(map[string]int),
	}
	if len(results) == 0 {
		return summary
	}

	durations := make([]time.Duration, 0, len(results))
	var total time.Duration
	for _, result := range results {
		summary.ByKind[result.Kind]++
		if !result.Success() {
			summary.Failed++
		}
		if result.StatusCode == http.StatusTooManyRequests {
			summary.RateLimited++
		}
		durations = append(durations, result.Duration)
		total += result.Duration
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	summary.Min = durations[0]
	summary.Max = durations[len(durations)-1]
	summary.Average = total / time.Duration(len(durations))
	summary.P95 = percentile(durations, 95)
	summary.P99 = percentile(durations, 99)
	if elapsed > 0 {
		summary.RequestsPerSecond = float64(len(results)) / elapsed.Seconds()
	}
	return summary
}

// percentile expects sorted input
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	index := len(sorted) * p / 100
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

// Print writes a human readable report
func Print(out io.Writer, summary Summary) {
	fmt.Fprintln(out, "=== viewload results ===")
	fmt.Fprintf(out, "Requests:      %d (view %d, retry %d, base %d)\n",
		summary.TotalRequests, summary.ByKind["view"], summary.ByKind["retry"], summary.ByKind["base"])
	if summary.TotalRequests == 0 {
		return
	}
	fmt.Fprintf(out, "Failed:        %d (%.2f%%), rate limited %d\n",
		summary.Failed, float64(summary.Failed)/float64(summary.TotalRequests)*100, summary.RateLimited)
	fmt.Fprintf(out, "Duration:      %v (%.2f req/s)\n", summary.TotalDuration, summary.RequestsPerSecond)
	fmt.Fprintf(out, "Latency:       avg %v, min %v, max %v\n", summary.Average, summary.Min, summary.Max)
	fmt.Fprintf(out, "Percentiles:   p95 %v, p99 %v\n", summary.P95, summary.P99)
}

func splitBases(raw string) []string {
	var bases []string
	for _, part := range strings.Split(raw, ",") {
		code := models.CurrencyCode(part).Normalize()
		if code != "" {
			bases = append(bases, code.String())
		}
	}
	return bases
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
