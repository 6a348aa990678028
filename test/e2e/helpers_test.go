//go:build e2e

// Package e2e_test exercises complete user journeys against a deployed
// server. The target is taken from E2E_SERVER_URL and tests skip when
// it is unreachable.
package e2e_test

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

// Environment variable names for e2e test configuration.
const (
	EnvServerURL = "E2E_SERVER_URL"
	EnvAPIKey    = "E2E_API_KEY"
	EnvBasicUser = "E2E_BASIC_USER"
	EnvBasicPass = "E2E_BASIC_PASS"
)

// DefaultServerURL is used when E2E_SERVER_URL is not set.
const DefaultServerURL = "http://localhost:8080"

// DefaultTimeout bounds each request made during a journey.
const DefaultTimeout = 10 * time.Second

// e2eServerURL returns the base URL of the deployment under test.
func e2eServerURL() string {
	if url := os.Getenv(EnvServerURL); url != "" {
		return url
	}
	return DefaultServerURL
}

// skipIfServerUnavailable skips the test when the deployment is not
// reachable.
func skipIfServerUnavailable(t *testing.T) {
	t.Helper()

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(e2eServerURL() + "/health")
	if err != nil {
		t.Skipf("Server unavailable at %s: %v", e2eServerURL(), err)
	}
	resp.Body.Close()
}

// newHTTPClient returns the client used for journey steps.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// buildAuthHeaders assembles credentials from the environment. An empty
// map matches a deployment with auth disabled.
func buildAuthHeaders(t *testing.T) map[string]string {
	t.Helper()

	headers := map[string]string{}

	if apiKey := os.Getenv(EnvAPIKey); apiKey != "" {
		headers["X-API-Key"] = apiKey
		return headers
	}

	if user := os.Getenv(EnvBasicUser); user != "" {
		pass := os.Getenv(EnvBasicPass)
		credentials := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
		headers["Authorization"] = "Basic " + credentials
	}

	return headers
}

// apiResponse is the generic response envelope.
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// listResponse represents a shopping list returned by the API.
type listResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
}

// itemResponse represents an item returned by the API.
type itemResponse struct {
	ID        string  `json:"id"`
	ListID    string  `json:"list_id"`
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
	Unit      string  `json:"unit"`
	Frequency int     `json:"frequency"`
	State     string  `json:"state"`
}

// doRequest performs an HTTP request and returns status and body.
func doRequest(
	t *testing.T,
	client *http.Client,
	method, url string,
	body io.Reader,
	headers map[string]string,
) (int, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request %s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}

	return resp.StatusCode, respBody
}

// parseData unmarshals the data field of a successful envelope into out.
func parseData(t *testing.T, body []byte, out any) {
	t.Helper()

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("Failed to parse envelope: %v. Body: %s", err, body)
	}
	if !envelope.Success {
		t.Fatalf("Expected success envelope, got error: %s", envelope.Error)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("Failed to parse data: %v", err)
	}
}

// createList creates a list for the journey.
func createList(
	t *testing.T,
	client *http.Client,
	base string,
	headers map[string]string,
	name string,
) *listResponse {
	t.Helper()

	status, body := doRequest(
		t, client, http.MethodPost, base+"/api/v1/lists",
		strings.NewReader(fmt.Sprintf(`{"name":%q}`, name)), headers,
	)
	if status != http.StatusCreated {
		t.Fatalf("Create list: expected 201, got %d. Body: %s", status, body)
	}

	var list listResponse
	parseData(t, body, &list)
	return &list
}

// updateItemState drives the item through the desired state resolver
// and returns the resulting row.
func updateItemState(
	t *testing.T,
	client *http.Client,
	itemURL string,
	headers map[string]string,
	desired string,
) *itemResponse {
	t.Helper()

	status, body := doRequest(
		t, client, http.MethodPut, itemURL,
		strings.NewReader(fmt.Sprintf(`{"desired_state":%q}`, desired)), headers,
	)
	if status != http.StatusOK {
		t.Fatalf("Transition to %s: expected 200, got %d. Body: %s", desired, status, body)
	}

	var item itemResponse
	parseData(t, body, &item)
	return &item
}
