// Package loadgen drives synthetic load against a running verifysvc
// instance by repeatedly walking the createSession -> sendVerificationCode
// -> checkVerificationCode call chain with randomized phone numbers.
package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Config describes one load-generation run.
type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
}

// Result summarizes one run's outcome.
type Result struct {
	TotalRequests int
	Failures      int
	StatusClasses map[string]int
}

// Run issues createSession/send/check cycles against cfg.BaseURL for
// cfg.Duration, spread across cfg.Concurrency workers, until ctx is done or
// the duration elapses.
func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	interval := time.Second / time.Duration(cfg.RPS)

	var total, failures int64
	classes := make(map[string]*int64)
	for _, c := range []string{"2xx", "3xx", "4xx", "5xx", "other"} {
		var n int64
		classes[c] = &n
	}

	profile := normalizeProfile(cfg.Profile)

	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		seed := cfg.Seed + int64(w)
		go func(workerRand *rand.Rand) {
			defer wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					status, err := runOneCycle(ctx, client, cfg.BaseURL, profile, workerRand)
					atomic.AddInt64(&total, 1)
					if err != nil {
						atomic.AddInt64(&failures, 1)
						atomic.AddInt64(classes["other"], 1)
						continue
					}
					atomic.AddInt64(classes[classifyStatusClass(status)], 1)
					if status >= 400 {
						atomic.AddInt64(&failures, 1)
					}
				}
			}
		}(rand.New(rand.NewSource(seed)))
	}
	wg.Wait()

	result := Result{TotalRequests: int(total), Failures: int(failures), StatusClasses: map[string]int{}}
	for k, v := range classes {
		result.StatusClasses[k] = int(*v)
	}
	return result, nil
}

// runOneCycle walks createSession -> sendVerificationCode ->
// checkVerificationCode for one synthetic phone number. The "create_only"
// profile stops after createSession, so a load run can stress session
// creation and its rate limiter in isolation.
func runOneCycle(ctx context.Context, client *http.Client, baseURL, profile string, rng *rand.Rand) (int, error) {
	e164 := uint64(15550000000) + uint64(rng.Intn(9999999))

	sessionID, status, err := postJSON(ctx, client, baseURL+"/api/v1/sessions", map[string]any{"e164": e164})
	if err != nil || status >= 400 || profile == "create_only" {
		return status, err
	}

	_, status, err = postJSON(ctx, client, baseURL+"/api/v1/sessions/"+sessionID+"/send", map[string]any{"transport": "SMS"})
	if err != nil || status >= 400 {
		return status, err
	}

	_, status, err = postJSON(ctx, client, baseURL+"/api/v1/sessions/"+sessionID+"/check", map[string]any{"verificationCode": "000000"})
	return status, err
}

func postJSON(ctx context.Context, client *http.Client, url string, body any) (string, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	var envelope struct {
		Data struct {
			SessionMetadata struct {
				SessionID string `json:"sessionId"`
			} `json:"sessionMetadata"`
		} `json:"data"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&envelope)
	return envelope.Data.SessionMetadata.SessionID, resp.StatusCode, nil
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

func normalizeProfile(profile string) string {
	v := strings.ToLower(strings.TrimSpace(profile))
	if v == "" {
		return "mixed"
	}
	return v
}
