package remotetask

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient polls a Globus Transfer API-shaped REST endpoint
// (GET {BaseURL}/task/{task_id}) for its status field. This is the
// concrete remote-transfer client the core spec treats as an external
// collaborator (SPEC_FULL.md §1); no third-party REST client library in the
// retrieved example pack fits a simple polling GET (the pack's OpenAPI
// tooling is server-side spec generation, not a generic client), so this
// is built on net/http directly.
type HTTPClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPClient returns an HTTPClient polling baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type taskStatusResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// Query implements API.
func (c *HTTPClient) Query(ctx context.Context, _, token, taskID string) (Status, error) {
	url := fmt.Sprintf("%s/task/%s", c.BaseURL, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("globus transfer api: unexpected status %s", resp.Status)
	}

	var body taskStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}

	switch body.Status {
	case string(StatusSucceeded):
		return StatusSucceeded, nil
	case string(StatusFailed):
		return StatusFailed, nil
	default:
		return "", nil
	}
}
