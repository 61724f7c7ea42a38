package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the load settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	replayRate  float64
)

// Metrics
var (
	totalRequests uint64
	applied       uint64 // credits that mutated a balance
	duplicates    uint64 // redeliveries absorbed by the idempotency key
	notFound      uint64
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.Float64Var(&replayRate, "replay", 0.5, "Fraction of deliveries that reuse a prior payment session")
}

// replaycheck hammers the payment webhook with a mix of fresh and replayed
// payment sessions and verifies the ledger absorbs every replay as a
// duplicate. Assumes a seeded database (IDs 1-1000).
func main() {
	flag.Parse()
	log.Printf("Starting replay check | Workers: %d | Duration: %s | Replay rate: %.2f", concurrency, duration, replayRate)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	// Shared pool of previously sent sessions that workers replay from.
	var mu sync.Mutex
	var sentSessions []string

	for i := 0; i < concurrency; i++ {
		go func(worker int) {
			defer wg.Done()
			client := &http.Client{Timeout: 5 * time.Second}

			for time.Since(start) < duration {
				var session string
				mu.Lock()
				if len(sentSessions) > 0 && rand.Float64() < replayRate {
					session = sentSessions[rand.Intn(len(sentSessions))]
					mu.Unlock()
				} else {
					session = fmt.Sprintf("sess-%d-%d", worker, time.Now().UnixNano())
					sentSessions = append(sentSessions, session)
					mu.Unlock()
				}

				fire(client, session)
			}
		}(i)
	}

	wg.Wait()
	printResults(time.Since(start), len(sentSessions))
}

func fire(client *http.Client, session string) {
	payload := map[string]interface{}{
		"account_id":         int64(rand.Intn(1000) + 1),
		"amount":             int64(100),
		"description":        "Treat pack purchase",
		"payment_session_id": session,
	}
	body, _ := json.Marshal(payload)

	req, _ := http.NewRequest("POST", targetURL+"/webhooks/payment", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return
	}
	defer resp.Body.Close()

	atomic.AddUint64(&totalRequests, 1)
	switch resp.StatusCode {
	case 200:
		var result struct {
			Applied bool `json:"applied"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			atomic.AddUint64(&failOther, 1)
			return
		}
		if result.Applied {
			atomic.AddUint64(&applied, 1)
		} else {
			atomic.AddUint64(&duplicates, 1)
		}
	case 404:
		atomic.AddUint64(&notFound, 1)
	default:
		atomic.AddUint64(&failOther, 1)
	}
}

func printResults(d time.Duration, distinctSessions int) {
	total := atomic.LoadUint64(&totalRequests)
	app := atomic.LoadUint64(&applied)
	dup := atomic.LoadUint64(&duplicates)
	nf := atomic.LoadUint64(&notFound)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()

	// Every distinct session must be applied exactly once: applied count
	// above the distinct-session count means a double credit slipped through.
	doubleCredits := int64(app) - int64(distinctSessions-int(nf))

	results := map[string]interface{}{
		"duration_sec":      d.Seconds(),
		"total_requests":    total,
		"throughput_tps":    tps,
		"applied":           app,
		"duplicates":        dup,
		"distinct_sessions": distinctSessions,
		"not_found":         nf,
		"errors":            fErr,
		"double_credits":    doubleCredits,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	if doubleCredits > 0 {
		log.Fatalf("IDEMPOTENCY VIOLATION: %d sessions credited more than once", doubleCredits)
	}
	log.Println("No double credits observed.")
}
