// Replay tool for running a CSV of applicants against Kestrel.
//
// Usage:
//
//	go run ./cmd/replay -csv applicants.csv -product product-001 -url http://localhost:8080
//
// Every CSV column is sent as a variable value keyed by its header, except
// "applicant_id" and "expected_status". Empty cells are sent as null. When
// "expected_status" is present the tool reports how often Kestrel agrees.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	colApplicant = "applicant_id"
	colExpected  = "expected_status"
)

// Applicant is one CSV row.
type Applicant struct {
	Line           int
	ApplicantID    string
	Values         map[string]any
	ExpectedStatus string
}

// CalculateRequest is the Kestrel request format.
type CalculateRequest struct {
	ProductID     string         `json:"product_id,omitempty"`
	ModelID       string         `json:"model_id,omitempty"`
	ApplicantID   string         `json:"applicant_id,omitempty"`
	Values        map[string]any `json:"values"`
	MissingPolicy string         `json:"missing_policy,omitempty"`
}

// CalculateResponse is the subset of the Kestrel response the tool reads.
type CalculateResponse struct {
	SimulationID   string  `json:"simulation_id"`
	ScoreFinal     float64 `json:"score_final"`
	Status         string  `json:"status"`
	Classification string  `json:"classification"`
	Recommendation string  `json:"recommendation"`
	Error          string  `json:"error"`
}

// Metrics tracks replay results.
type Metrics struct {
	mu               sync.Mutex
	byStatus         map[string]int
	byClass          map[string]int
	byRecommendation map[string]int

	TotalProcessed int64
	TotalErrors    int64
	Compared       int64
	Agreed         int64

	ProcessingTimeMs int64
	scoreSum         float64
}

func newMetrics() *Metrics {
	return &Metrics{
		byStatus:         make(map[string]int),
		byClass:          make(map[string]int),
		byRecommendation: make(map[string]int),
	}
}

func (m *Metrics) record(a Applicant, res *CalculateResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byStatus[res.Status]++
	m.byClass[res.Classification]++
	m.byRecommendation[res.Recommendation]++
	m.scoreSum += res.ScoreFinal

	if a.ExpectedStatus != "" {
		m.Compared++
		if strings.EqualFold(a.ExpectedStatus, res.Status) {
			m.Agreed++
		}
	}
}

func main() {
	csvPath := flag.String("csv", "", "Path to applicants CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "replay-test", "Institution ID sent as X-Tenant-ID")
	productID := flag.String("product", "", "Credit product to score against")
	modelID := flag.String("model", "", "Scoring model to score against (when no product)")
	missingPolicy := flag.String("missing-policy", "", "REFUSE or PENALIZE (server default when empty)")
	limit := flag.Int("limit", 0, "Maximum applicants to replay (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each applicant result")
	flag.Parse()

	if *csvPath == "" || (*productID == "" && *modelID == "") {
		fmt.Println("Usage: replay -csv applicants.csv (-product ID | -model ID) [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║              KESTREL REPLAY - Applicant Scoring               ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:     %s\n", *csvPath)
	fmt.Printf("Kestrel URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:    %s\n", *tenantID)
	fmt.Printf("Product:      %s\n", *productID)
	fmt.Printf("Model:        %s\n", *modelID)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run ./cmd/kestrel")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	applicants, err := readApplicants(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d applicants\n", len(applicants))

	template := CalculateRequest{
		ProductID:     *productID,
		ModelID:       *modelID,
		MissingPolicy: strings.ToUpper(*missingPolicy),
	}

	fmt.Printf("\nReplaying with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runReplay(applicants, *baseURL, *tenantID, template, *workers, *verbose)
	printResults(metrics, time.Since(startTime))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readApplicants(path string, limit int) ([]Applicant, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return parseApplicants(file, limit)
}

func parseApplicants(r io.Reader, limit int) ([]Applicant, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var applicants []Applicant
	line := 1
	for {
		record, err := reader.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Printf("WARN: skipping line %d: %v\n", line, err)
			continue
		}

		a := Applicant{Line: line, Values: make(map[string]any, len(header))}
		for i, col := range header {
			if i >= len(record) {
				break
			}
			cell := strings.TrimSpace(record[i])
			switch col {
			case colApplicant:
				a.ApplicantID = cell
			case colExpected:
				a.ExpectedStatus = cell
			default:
				if cell == "" {
					a.Values[col] = nil
				} else {
					a.Values[col] = cell
				}
			}
		}
		applicants = append(applicants, a)

		if limit > 0 && len(applicants) >= limit {
			break
		}
	}

	return applicants, nil
}

func runReplay(applicants []Applicant, baseURL, tenantID string, template CalculateRequest, numWorkers int, verbose bool) *Metrics {
	metrics := newMetrics()
	if numWorkers <= 0 {
		numWorkers = 1
	}

	work := make(chan Applicant, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for a := range work {
				start := time.Now()
				res, err := calculate(client, baseURL, tenantID, template, a)
				atomic.AddInt64(&metrics.ProcessingTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: line %d -> %v\n", a.Line, err)
					}
					continue
				}

				metrics.record(a, res)

				if verbose {
					mark := " "
					if a.ExpectedStatus != "" {
						mark = "✓"
						if !strings.EqualFold(a.ExpectedStatus, res.Status) {
							mark = "✗"
						}
					}
					fmt.Printf("%s line %-6d | %-12s | %6.2f | %-12s | %-9s | %s\n",
						mark, a.Line, res.Status, res.ScoreFinal, res.Classification, res.Recommendation, res.Error)
				}
			}
		}()
	}

	for _, a := range applicants {
		work <- a
	}
	close(work)

	wg.Wait()
	return metrics
}

func calculate(client *http.Client, baseURL, tenantID string, template CalculateRequest, a Applicant) (*CalculateResponse, error) {
	req := template
	req.ApplicantID = a.ApplicantID
	req.Values = a.Values

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/simulations/calculate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result CalculateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printDistribution(title string, counts map[string]int, total int64) {
	fmt.Printf("\n%s\n", title)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		pct := 0.0
		if total > 0 {
			pct = float64(counts[k]) / float64(total) * 100
		}
		fmt.Printf("   %-14s %8d  (%.2f%%)\n", k, counts[k], pct)
	}
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        REPLAY RESULTS                         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	scored := m.TotalProcessed - m.TotalErrors
	fmt.Printf("\n📊 DATASET\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Scored:           %d\n", scored)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)
	if scored > 0 {
		fmt.Printf("   Average Score:    %.2f\n", m.scoreSum/float64(scored))
	}

	printDistribution("📈 STATUS", m.byStatus, scored)
	printDistribution("🏷️  CLASSIFICATION", m.byClass, scored)
	printDistribution("💡 RECOMMENDATION", m.byRecommendation, scored)

	if m.Compared > 0 {
		fmt.Printf("\n🎯 AGREEMENT WITH EXPECTED STATUS\n")
		fmt.Printf("   Agreed:   %d / %d (%.2f%%)\n", m.Agreed, m.Compared, float64(m.Agreed)/float64(m.Compared)*100)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f req/sec\n", rps)
	}

	fmt.Println()
}
