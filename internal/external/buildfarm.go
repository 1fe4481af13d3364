// Package external contains the HTTP clients for the systems the service
// drives: the build farm, the test farm, and the release-sync executor. The
// clients translate HTTP failures into the error classes the core
// understands.
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

// HTTPClient interface for HTTP operations (allows mocking in tests).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// BuildFarmClient talks to the build farm API. It submits builds and queries
// their state for the reconciliation loop.
type BuildFarmClient struct {
	baseURL    string
	token      string
	httpClient HTTPClient
}

// NewBuildFarmClient creates a build farm client.
func NewBuildFarmClient(baseURL, token string, httpClient HTTPClient) *BuildFarmClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &BuildFarmClient{baseURL: baseURL, token: token, httpClient: httpClient}
}

var _ core.BuildSystem = (*BuildFarmClient)(nil)

type buildSubmission struct {
	ProjectURL string   `json:"project_url"`
	Package    string   `json:"package,omitempty"`
	Ref        string   `json:"ref"`
	Chroots    []string `json:"chroots"`
	Scratch    bool     `json:"scratch,omitempty"`
}

type buildResponse struct {
	ID        string            `json:"id"`
	State     string            `json:"state"`
	ResultURL string            `json:"result_url"`
	Chroots   map[string]string `json:"chroots"`
}

// SubmitBuild submits one build covering all chroots. It returns the farm's
// build id and the result URL.
func (c *BuildFarmClient) SubmitBuild(ctx context.Context, pkg core.PackageConfig, ref string, chroots []string, scratch bool) (string, string, error) {
	body := buildSubmission{
		ProjectURL: pkg.ProjectURL,
		Package:    pkg.DownstreamPackage,
		Ref:        ref,
		Chroots:    chroots,
		Scratch:    scratch,
	}

	var resp buildResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/builds", body, &resp, "build submission"); err != nil {
		return "", "", err
	}
	if resp.ID == "" {
		return "", "", fmt.Errorf("build farm returned no build id")
	}
	return resp.ID, resp.ResultURL, nil
}

// SubmitDownstreamBuild triggers a build for an already-synced dist-git
// branch. The farm tracks it on its own; no correlation id comes back.
func (c *BuildFarmClient) SubmitDownstreamBuild(ctx context.Context, pkg core.PackageConfig, branch string, scratch bool) error {
	body := buildSubmission{
		ProjectURL: pkg.ProjectURL,
		Package:    pkg.DownstreamPackage,
		Ref:        branch,
		Scratch:    scratch,
	}
	return c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/downstream-builds", body, nil, "downstream build")
}

// QueryBuild asks the farm for the state of one build.
func (c *BuildFarmClient) QueryBuild(ctx context.Context, correlationID string) (core.BuildQueryResult, error) {
	url := fmt.Sprintf("%s/api/v1/builds/%s", c.baseURL, correlationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return core.BuildQueryResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return core.BuildQueryResult{}, fmt.Errorf("querying build %s: %w", correlationID, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusNotFound {
		return core.BuildQueryResult{Outcome: core.QueryNotFound}, nil
	}
	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return core.BuildQueryResult{}, fmt.Errorf("build farm returned status %d: %s", httpResp.StatusCode, string(body))
	}

	var resp buildResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return core.BuildQueryResult{}, fmt.Errorf("decoding build state: %w", err)
	}

	result := core.BuildQueryResult{
		Outcome:   core.QueryPending,
		ResultURL: resp.ResultURL,
	}
	if buildFinished(resp.State) {
		result.Outcome = core.QueryCompleted
		result.ChrootStates = resp.Chroots
	}
	return result, nil
}

func buildFinished(state string) bool {
	switch state {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

// do performs a JSON request. 4xx responses other than 404 become
// core.RequestError; everything else unexpected stays unclassified so the
// retry controller handles it.
func (c *BuildFarmClient) do(ctx context.Context, method, url string, body, result any, operation string) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", operation, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		respBody, _ := io.ReadAll(resp.Body)
		return &core.RequestError{Operation: operation, Reason: string(respBody)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d: %s", operation, resp.StatusCode, string(respBody))
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding %s response: %w", operation, err)
	}
	return nil
}
