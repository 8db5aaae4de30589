//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel scoring
// service running at KESTREL_TEST_URL (default http://localhost:8080).
//
// These tests drive the complete pipeline over HTTP:
//
//	Model → Product → Values → Score → Classification → Recommendation
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// Each test creates its own scoring model and credit product under a
// run-unique institution, so no seeding is required.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig(t *testing.T) TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: fmt.Sprintf("it-%s-%d", t.Name(), time.Now().UnixNano()),
	}
}

// Variable mirrors a scoring model variable.
type Variable struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Weight             float64 `json:"weight"`
	Min                float64 `json:"min"`
	Max                float64 `json:"max"`
	FavorableDirection string  `json:"favorableDirection"`
	Blocking           bool    `json:"blocking"`
}

// CalculateResponse is what POST /simulations/calculate returns.
type CalculateResponse struct {
	ScoreFinal     float64 `json:"score_final"`
	Status         string  `json:"status"`
	Classification string  `json:"classification"`
	BlockingFailed []struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"blocking_failed"`
	Details []struct {
		ID            string  `json:"id"`
		ScoreVariable float64 `json:"score_variable"`
	} `json:"details"`
	Error          string `json:"error"`
	ErrorCode      string `json:"error_code"`
	SimulationID   string `json:"simulation_id"`
	Recommendation string `json:"recommendation"`
	Metadata       struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

func do(t *testing.T, config TestConfig, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if config.TenantID != "" {
		httpReq.Header.Set("X-Tenant-ID", config.TenantID)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, respBody
}

// setupProduct creates a model with the given variables and a product on it.
func setupProduct(t *testing.T, config TestConfig, vars []Variable) string {
	t.Helper()

	code, body := do(t, config, http.MethodPost, "/models", map[string]any{
		"id":        "model",
		"name":      "integration model",
		"variables": vars,
	})
	if code != http.StatusCreated {
		t.Fatalf("Failed to create model: %d %s", code, body)
	}

	code, body = do(t, config, http.MethodPost, "/products", map[string]any{
		"id":             "product",
		"name":           "integration product",
		"maxAmount":      10000,
		"scoringModelId": "model",
	})
	if code != http.StatusCreated {
		t.Fatalf("Failed to create product: %d %s", code, body)
	}
	return "product"
}

func calculate(t *testing.T, config TestConfig, productID string, values map[string]any) CalculateResponse {
	t.Helper()

	code, body := do(t, config, http.MethodPost, "/simulations/calculate", map[string]any{
		"product_id": productID,
		"values":     values,
	})
	if code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", code, body)
	}

	var result CalculateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, body)
	}
	return result
}

func TestIncreasingVariable(t *testing.T) {
	config := getTestConfig(t)
	product := setupProduct(t, config, []Variable{
		{ID: "revenue", Name: "Revenue", Weight: 100, Min: 50000, Max: 200000, FavorableDirection: "CROISSANT"},
	})

	result := calculate(t, config, product, map[string]any{"revenue": 125000})

	if result.ScoreFinal != 50 || result.Status != "ELIGIBLE" || result.Classification != "BON" {
		t.Errorf("Expected 50/ELIGIBLE/BON, got %v/%s/%s", result.ScoreFinal, result.Status, result.Classification)
	}
	if result.Recommendation != "conditional" {
		t.Errorf("Expected conditional recommendation, got %s", result.Recommendation)
	}
}

func TestDecreasingVariable(t *testing.T) {
	config := getTestConfig(t)
	product := setupProduct(t, config, []Variable{
		{ID: "debt", Name: "Debt ratio", Weight: 100, Min: 0, Max: 100, FavorableDirection: "DECROISSANT"},
	})

	result := calculate(t, config, product, map[string]any{"debt": "30"})

	if result.ScoreFinal != 70 || result.Classification != "BON" {
		t.Errorf("Expected 70/BON, got %v/%s", result.ScoreFinal, result.Classification)
	}
}

func TestBlockingVariable(t *testing.T) {
	config := getTestConfig(t)
	product := setupProduct(t, config, []Variable{
		{ID: "seniority", Name: "Seniority", Weight: 100, Min: 2, Max: 50, FavorableDirection: "CROISSANT", Blocking: true},
	})

	result := calculate(t, config, product, map[string]any{"seniority": 1})

	if result.Status != "NON_ELIGIBLE" || result.ScoreFinal != 0 {
		t.Errorf("Expected NON_ELIGIBLE/0, got %s/%v", result.Status, result.ScoreFinal)
	}
	if len(result.BlockingFailed) != 1 {
		t.Errorf("Expected one blocking failure, got %d", len(result.BlockingFailed))
	}
	if result.Recommendation != "ineligible" {
		t.Errorf("Expected ineligible, got %s", result.Recommendation)
	}
}

func TestWeightedVariables(t *testing.T) {
	config := getTestConfig(t)
	product := setupProduct(t, config, []Variable{
		{ID: "a", Name: "A", Weight: 60, Min: 0, Max: 10, FavorableDirection: "CROISSANT"},
		{ID: "b", Name: "B", Weight: 40, Min: 0, Max: 10, FavorableDirection: "CROISSANT"},
	})

	result := calculate(t, config, product, map[string]any{"a": 10, "b": 0})

	if result.ScoreFinal != 60 || result.Classification != "MOYEN" {
		t.Errorf("Expected 60/MOYEN, got %v/%s", result.ScoreFinal, result.Classification)
	}
	if len(result.Details) != 2 || result.Details[0].ScoreVariable != 100 {
		t.Errorf("Unexpected details %+v", result.Details)
	}
}

func TestDegenerateRange_ConfigError(t *testing.T) {
	config := getTestConfig(t)
	product := setupProduct(t, config, []Variable{
		{ID: "x", Name: "X", Weight: 100, Min: 100, Max: 100, FavorableDirection: "CROISSANT"},
	})

	result := calculate(t, config, product, map[string]any{"x": 100})

	if result.Status != "CONFIG_ERROR" || result.Error == "" || result.ScoreFinal != 0 {
		t.Errorf("Expected CONFIG_ERROR with error, got %s %q %v", result.Status, result.Error, result.ScoreFinal)
	}
}

func TestSimulationPersistedAndCounted(t *testing.T) {
	config := getTestConfig(t)
	product := setupProduct(t, config, []Variable{
		{ID: "x", Name: "X", Weight: 100, Min: 0, Max: 100, FavorableDirection: "CROISSANT"},
	})

	first := calculate(t, config, product, map[string]any{"x": 80})
	calculate(t, config, product, map[string]any{"x": 20})

	code, body := do(t, config, http.MethodGet, "/simulations/"+first.SimulationID, nil)
	if code != http.StatusOK {
		t.Fatalf("Expected saved simulation, got %d: %s", code, body)
	}

	code, body = do(t, config, http.MethodGet, "/simulations/stats", nil)
	if code != http.StatusOK {
		t.Fatalf("Expected stats, got %d", code)
	}
	var st struct {
		Total   int     `json:"total_simulations"`
		Average float64 `json:"average_score"`
		Above60 int     `json:"scores_above_60_count"`
	}
	json.Unmarshal(body, &st)
	if st.Total != 2 || st.Average != 50 || st.Above60 != 1 {
		t.Errorf("Unexpected stats %+v", st)
	}
}

func TestAsyncSimulation(t *testing.T) {
	config := getTestConfig(t)
	product := setupProduct(t, config, []Variable{
		{ID: "x", Name: "X", Weight: 100, Min: 0, Max: 100, FavorableDirection: "CROISSANT"},
	})

	code, body := do(t, config, http.MethodPost, "/simulations", map[string]any{
		"product_id": product,
		"values":     map[string]any{"x": 90},
	})
	if code == http.StatusServiceUnavailable {
		t.Skip("Message bus not configured")
	}
	if code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", code, body)
	}
	var queued map[string]string
	json.Unmarshal(body, &queued)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		code, _ = do(t, config, http.MethodGet, "/simulations/"+queued["simulation_id"], nil)
		if code == http.StatusOK {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Errorf("Queued simulation %s was not stored by the worker", queued["simulation_id"])
}

func TestMissingTenantHeader_Error(t *testing.T) {
	config := getTestConfig(t)
	config.TenantID = ""

	code, _ := do(t, config, http.MethodPost, "/simulations/calculate", map[string]any{
		"product_id": "product",
		"values":     map[string]any{},
	})
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing tenant, got %d", code)
	}
}

func TestResponseMetadata(t *testing.T) {
	config := getTestConfig(t)
	product := setupProduct(t, config, []Variable{
		{ID: "x", Name: "X", Weight: 100, Min: 0, Max: 100, FavorableDirection: "CROISSANT"},
	})

	result := calculate(t, config, product, map[string]any{"x": 50})

	if result.SimulationID == "" {
		t.Error("Missing simulation_id")
	}
	if result.Metadata.TraceID == "" {
		t.Error("Missing metadata.traceId")
	}
	if result.Metadata.TotalMs < 0 {
		t.Error("Invalid metadata.totalMs (negative)")
	}
}
