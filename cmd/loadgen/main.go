package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Load generator for the order-initiation endpoint. Creates a fresh
// campaign, then drives backings against it at a fixed RPS from a worker
// pool. Atomic counters avoid lock contention on the hot path.

const (
	baseURL        = "http://localhost:8080"
	fixedWorkers   = 50
	fixedRPSTarget = 200
	fixedDuration  = 30 * time.Second
	defaultTimeout = 30 * time.Second
	backingAmount  = "25.00"
	goalAmount     = "1000000.00"
)

type perfResult struct {
	TotalRequests int64
	SuccessCount  int64
	ErrorCount    int64
	LatencySumNs  int64
}

func main() {
	transport := &http.Transport{
		MaxIdleConns:        fixedWorkers * 4,
		MaxIdleConnsPerHost: fixedWorkers * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   defaultTimeout,
	}

	campaignID, err := createCampaign(httpClient)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create campaign: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created load-test campaign %d (goal %s)\n", campaignID, goalAmount)

	limiter := rate.NewLimiter(rate.Limit(fixedRPSTarget), fixedRPSTarget)
	ctx, cancel := context.WithTimeout(context.Background(), fixedDuration)
	defer cancel()

	var result perfResult
	var mu sync.Mutex
	var latencies []time.Duration

	var wg sync.WaitGroup
	for w := 0; w < fixedWorkers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			backerID := fmt.Sprintf("loadgen-%d", worker)
			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				start := time.Now()
				err := initiateBacking(httpClient, campaignID, backerID)
				elapsed := time.Since(start)

				atomic.AddInt64(&result.TotalRequests, 1)
				atomic.AddInt64(&result.LatencySumNs, int64(elapsed))
				if err != nil {
					atomic.AddInt64(&result.ErrorCount, 1)
				} else {
					atomic.AddInt64(&result.SuccessCount, 1)
				}
				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	report(result, latencies)
}

func createCampaign(client *http.Client) (int64, error) {
	payload := map[string]interface{}{
		"title":       fmt.Sprintf("loadgen %d", time.Now().Unix()),
		"goal_amount": goalAmount,
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/campaigns", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "loadgen-owner")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody)
	}

	var campaign struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(respBody, &campaign); err != nil {
		return 0, err
	}
	return campaign.ID, nil
}

func initiateBacking(client *http.Client, campaignID int64, backerID string) error {
	body, _ := json.Marshal(map[string]string{"amount": backingAmount})

	url := fmt.Sprintf("%s/api/v1/campaigns/%d/backings", baseURL, campaignID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", backerID)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func report(result perfResult, latencies []time.Duration) {
	fmt.Printf("total=%d success=%d errors=%d\n",
		result.TotalRequests, result.SuccessCount, result.ErrorCount)
	if result.TotalRequests == 0 {
		return
	}

	avg := time.Duration(result.LatencySumNs / result.TotalRequests)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	p95 := latencies[len(latencies)*95/100]
	fmt.Printf("avg=%v p95=%v rps=%.1f\n",
		avg, p95, float64(result.TotalRequests)/fixedDuration.Seconds())
}
