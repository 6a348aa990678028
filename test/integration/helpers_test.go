//go:build integration

package integration_test

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

	"github.com/shoplist-api/shoplist/internal/auth"
)

// Environment variable names for integration test configuration.
const (
	EnvServerURL = "INTEGRATION_SERVER_URL"
	EnvAPIKey    = "INTEGRATION_API_KEY"
	EnvBasicUser = "INTEGRATION_BASIC_USER"
	EnvBasicPass = "INTEGRATION_BASIC_PASS"
	EnvJWTSecret = "INTEGRATION_JWT_SECRET"
	EnvJWTUser   = "INTEGRATION_JWT_USER"
)

// Default configuration values.
const (
	DefaultServerURL = "http://localhost:8080"
	DefaultTimeout   = 10 * time.Second
)

// getEnvOrDefault returns the value of the environment variable
// identified by key, or defaultVal if the variable is not set.
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// serverURL returns the base URL of the server under test.
func serverURL() string {
	return getEnvOrDefault(EnvServerURL, DefaultServerURL)
}

// skipIfServiceUnavailable checks whether the service at the given
// URL is reachable and skips the test if it is not.
func skipIfServiceUnavailable(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		t.Skipf("Service unavailable at %s: %v", url, err)
	}
	resp.Body.Close()
}

// createHTTPClient returns an *http.Client with a sensible timeout
// for integration tests.
func createHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// buildAuthHeaders assembles request headers for whichever credentials
// the environment provides. With no credentials configured the map is
// empty, matching a server running with auth disabled.
func buildAuthHeaders(t *testing.T) map[string]string {
	t.Helper()

	headers := map[string]string{}

	if apiKey := os.Getenv(EnvAPIKey); apiKey != "" {
		headers[auth.APIKeyHeader] = apiKey
		return headers
	}

	if user := os.Getenv(EnvBasicUser); user != "" {
		pass := os.Getenv(EnvBasicPass)
		credentials := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
		headers["Authorization"] = "Basic " + credentials
		return headers
	}

	if secret := os.Getenv(EnvJWTSecret); secret != "" {
		subject := getEnvOrDefault(EnvJWTUser, "integration-user")
		authenticator, err := auth.NewBearerAuthenticator(secret)
		if err != nil {
			t.Fatalf("Failed to create bearer authenticator: %v", err)
		}
		token, err := authenticator.IssueToken(subject, "Integration User")
		if err != nil {
			t.Fatalf("Failed to issue token: %v", err)
		}
		headers["Authorization"] = "Bearer " + token
		return headers
	}

	return headers
}

// jsonBody wraps a JSON string for use as a request body.
func jsonBody(payload string) io.Reader {
	return strings.NewReader(payload)
}

// apiResponse is a generic API response envelope used for parsing
// integration test responses.
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// listResponse represents a shopping list returned by the API.
type listResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
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

// healthResponse represents the health endpoint response.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// readyResponse represents the ready endpoint response.
type readyResponse struct {
	Status string `json:"status"`
}

// doRequest is a convenience wrapper that performs an HTTP request and
// returns the status code and body bytes.
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
		t.Fatalf("Failed to parse response envelope: %v. Body: %s", err, body)
	}
	if !envelope.Success {
		t.Fatalf("Expected success envelope, got error: %s", envelope.Error)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("Failed to parse response data: %v", err)
	}
}

// createList creates a list on the server under test.
func createList(
	t *testing.T,
	client *http.Client,
	base string,
	headers map[string]string,
	name string,
) *listResponse {
	t.Helper()

	payload := fmt.Sprintf(`{"name":%q}`, name)
	status, body := doRequest(
		t, client, http.MethodPost, base+"/api/v1/lists",
		jsonBody(payload), headers,
	)
	if status != http.StatusCreated {
		t.Fatalf("Create list: expected 201, got %d. Body: %s", status, body)
	}

	var list listResponse
	parseData(t, body, &list)
	return &list
}

// createItem creates an item on the given list.
func createItem(
	t *testing.T,
	client *http.Client,
	base string,
	headers map[string]string,
	listID, payload string,
) *itemResponse {
	t.Helper()

	status, body := doRequest(
		t, client, http.MethodPost,
		fmt.Sprintf("%s/api/v1/lists/%s/items", base, listID),
		jsonBody(payload), headers,
	)
	if status != http.StatusCreated {
		t.Fatalf("Create item: expected 201, got %d. Body: %s", status, body)
	}

	var item itemResponse
	parseData(t, body, &item)
	return &item
}

// deleteList removes a list so integration runs do not accumulate data
// on a long-lived server.
func deleteList(
	t *testing.T,
	client *http.Client,
	base string,
	headers map[string]string,
	listID string,
) {
	t.Helper()

	status, body := doRequest(
		t, client, http.MethodDelete,
		base+"/api/v1/lists/"+listID, nil, headers,
	)
	if status != http.StatusNoContent {
		t.Logf("Cleanup of list %s returned %d: %s", listID, status, body)
	}
}
