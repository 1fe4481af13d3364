package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sevigo/release-warden/internal/core"
)

// TestFarmClient talks to the test farm API. It submits pipelines and queries
// their state for the reconciliation loop.
type TestFarmClient struct {
	baseURL    string
	token      string
	httpClient HTTPClient
}

// NewTestFarmClient creates a test farm client.
func NewTestFarmClient(baseURL, token string, httpClient HTTPClient) *TestFarmClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TestFarmClient{baseURL: baseURL, token: token, httpClient: httpClient}
}

var _ core.TestSystem = (*TestFarmClient)(nil)

type testSubmission struct {
	ProjectURL string `json:"project_url"`
	Ref        string `json:"ref"`
	Target     string `json:"target"`
}

type testResponse struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	ResultURL string `json:"result_url"`
}

// SubmitTests requests one test pipeline for a single target. It returns the
// farm's pipeline id.
func (c *TestFarmClient) SubmitTests(ctx context.Context, pkg core.PackageConfig, ref, target string) (string, error) {
	body := testSubmission{
		ProjectURL: pkg.ProjectURL,
		Ref:        ref,
		Target:     target,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding test request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/requests", bytes.NewReader(encoded))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("test submission failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 && httpResp.StatusCode < 500 {
		respBody, _ := io.ReadAll(httpResp.Body)
		return "", &core.RequestError{Operation: "test submission", Reason: string(respBody)}
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(httpResp.Body)
		return "", fmt.Errorf("test farm returned status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp testResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("decoding test response: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("test farm returned no pipeline id")
	}
	return resp.ID, nil
}

// QueryTestRun asks the farm for the state of one pipeline.
func (c *TestFarmClient) QueryTestRun(ctx context.Context, correlationID string) (core.TestQueryResult, error) {
	url := fmt.Sprintf("%s/api/v1/requests/%s", c.baseURL, correlationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return core.TestQueryResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return core.TestQueryResult{}, fmt.Errorf("querying test run %s: %w", correlationID, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusNotFound {
		return core.TestQueryResult{Outcome: core.QueryNotFound}, nil
	}
	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return core.TestQueryResult{}, fmt.Errorf("test farm returned status %d: %s", httpResp.StatusCode, string(body))
	}

	var resp testResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return core.TestQueryResult{}, fmt.Errorf("decoding test state: %w", err)
	}

	result := core.TestQueryResult{
		Outcome:   core.QueryPending,
		State:     resp.State,
		ResultURL: resp.ResultURL,
	}
	if testFinished(resp.State) {
		result.Outcome = core.QueryCompleted
	}
	return result, nil
}

func testFinished(state string) bool {
	switch state {
	case "passed", "failed", "error", "canceled":
		return true
	}
	return false
}
