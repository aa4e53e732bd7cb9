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

	"github.com/google/uuid"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	copyCount   int
)

// Metrics
var (
	totalRequests uint64
	success201    uint64 // Loans created
	fail409       uint64 // Copy contention (unavailable / already on loan)
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&copyCount, "copies", 100, "Number of copies to create for the run")
}

type copyResponse struct {
	ID string `json:"id"`
}

type loanResponse struct {
	ID string `json:"id"`
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	copies, err := setupCopies()
	if err != nil {
		log.Fatalf("Setup failed: %v", err)
	}
	log.Printf("Created %d copies", len(copies))

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, copies)
	}

	wg.Wait()
	printResults(time.Since(start))
}

// setupCopies registers a fresh batch of copies and returns their ids.
func setupCopies() ([]string, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	runTag := time.Now().UnixNano()

	ids := make([]string, 0, copyCount)
	for i := 0; i < copyCount; i++ {
		payload := map[string]string{
			"barcode":          fmt.Sprintf("bench-%d-%04d", runTag, i),
			"publication_date": "2020-01-01",
		}
		body, _ := json.Marshal(payload)

		resp, err := client.Post(targetURL+"/api/v1/copies", "application/json", bytes.NewBuffer(body))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusCreated {
			resp.Body.Close()
			return nil, fmt.Errorf("copy create returned %d", resp.StatusCode)
		}
		var created copyResponse
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			resp.Body.Close()
			return nil, err
		}
		resp.Body.Close()
		ids = append(ids, created.ID)
	}
	return ids, nil
}

func worker(wg *sync.WaitGroup, start time.Time, copies []string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}
	dueAt := time.Now().AddDate(0, 0, 7).UTC().Format("2006-01-02")
	borrowerID := uuid.NewString()

	for time.Since(start) < duration {
		copyID := pickCopy(copies)

		payload := map[string]string{
			"copy_id":     copyID,
			"borrower_id": borrowerID,
			"due_at":      dueAt,
		}
		body, _ := json.Marshal(payload)

		resp, err := client.Post(targetURL+"/api/v1/loans", "application/json", bytes.NewBuffer(body))
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 201:
			atomic.AddUint64(&success201, 1)
			var loan loanResponse
			json.NewDecoder(resp.Body).Decode(&loan)
			resp.Body.Close()
			// Check the copy straight back in so the pool keeps circulating.
			req, _ := http.NewRequest("DELETE", targetURL+"/api/v1/loans/"+loan.ID, nil)
			if ret, err := client.Do(req); err == nil {
				ret.Body.Close()
			}
		case 409:
			atomic.AddUint64(&fail409, 1)
			resp.Body.Close()
		default:
			atomic.AddUint64(&failOther, 1)
			resp.Body.Close()
		}
	}
}

func pickCopy(copies []string) string {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic fights over the first copy
		if rand.Float32() < 0.90 {
			return copies[0]
		}
	}
	return copies[rand.Intn(len(copies))]
}

func summarize(d time.Duration) map[string]interface{} {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	f409 := atomic.LoadUint64(&fail409)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	conflictRate := 0.0
	if total > 0 {
		conflictRate = float64(f409) / float64(total) * 100
	}

	return map[string]interface{}{
		"workload":          workload,
		"duration_sec":      d.Seconds(),
		"total_requests":    total,
		"throughput_tps":    tps,
		"loans_created":     s201,
		"copy_conflicts":    f409,
		"conflict_rate_pct": conflictRate,
		"errors":            fErr,
	}
}

func printResults(d time.Duration) {
	results := summarize(d)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
