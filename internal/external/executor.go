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

// Executor combines the farm clients and the release-sync service into the
// single operation surface the handlers use.
type Executor struct {
	builds *BuildFarmClient
	tests  *TestFarmClient
	sync   *SyncClient
}

// NewExecutor wires a composite executor from the three clients.
func NewExecutor(builds *BuildFarmClient, tests *TestFarmClient, sync *SyncClient) *Executor {
	return &Executor{builds: builds, tests: tests, sync: sync}
}

var _ core.Executor = (*Executor)(nil)

func (e *Executor) SyncRelease(ctx context.Context, pkg core.PackageConfig, branch, tag string) (string, error) {
	return e.sync.SyncRelease(ctx, pkg, branch, tag)
}

func (e *Executor) SubmitBuild(ctx context.Context, pkg core.PackageConfig, ref string, chroots []string, scratch bool) (string, string, error) {
	return e.builds.SubmitBuild(ctx, pkg, ref, chroots, scratch)
}

func (e *Executor) SubmitTests(ctx context.Context, pkg core.PackageConfig, ref, target string) (string, error) {
	return e.tests.SubmitTests(ctx, pkg, ref, target)
}

func (e *Executor) SubmitDownstreamBuild(ctx context.Context, pkg core.PackageConfig, branch string, scratch bool) error {
	return e.builds.SubmitDownstreamBuild(ctx, pkg, branch, scratch)
}

// SyncClient talks to the release-sync service, which clones the package
// repositories and opens the downstream pull request.
type SyncClient struct {
	baseURL    string
	token      string
	httpClient HTTPClient
}

// NewSyncClient creates a release-sync client.
func NewSyncClient(baseURL, token string, httpClient HTTPClient) *SyncClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SyncClient{baseURL: baseURL, token: token, httpClient: httpClient}
}

type syncRequest struct {
	ProjectURL string `json:"project_url"`
	Package    string `json:"package,omitempty"`
	Branch     string `json:"branch"`
	Tag        string `json:"tag"`
}

type syncResponse struct {
	PullRequestURL string `json:"pull_request_url"`
}

// SyncRelease opens the downstream pull request for one branch and returns
// its URL. HTTP 425 means the upstream archive has not been published yet and
// maps to core.ErrArchiveNotReady so the caller schedules a retry.
func (c *SyncClient) SyncRelease(ctx context.Context, pkg core.PackageConfig, branch, tag string) (string, error) {
	body := syncRequest{
		ProjectURL: pkg.ProjectURL,
		Package:    pkg.DownstreamPackage,
		Branch:     branch,
		Tag:        tag,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding sync request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/release-syncs", bytes.NewReader(encoded))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("release sync request failed: %w", err)
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusTooEarly:
		return "", core.ErrArchiveNotReady
	case httpResp.StatusCode >= 400 && httpResp.StatusCode < 500:
		respBody, _ := io.ReadAll(httpResp.Body)
		return "", &core.RequestError{Operation: "release sync", Reason: string(respBody)}
	case httpResp.StatusCode < 200 || httpResp.StatusCode >= 300:
		respBody, _ := io.ReadAll(httpResp.Body)
		return "", fmt.Errorf("release sync returned status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp syncResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("decoding sync response: %w", err)
	}
	return resp.PullRequestURL, nil
}
