// Package api implements the HTTP client for the daybook sync protocol.
// It owns the wire format: payloads are decoded into typed structs here and
// nowhere else.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vblinov/daybook/internal/common"
)

// TokenSource supplies the bearer credential for authenticated calls.
// Implementations return common.ErrNotAuthenticated when no usable
// credential is available.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client talks JSON over HTTP to the sync server.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// New returns a Client for the server at baseURL. timeout bounds every
// request; the sync cycle treats a timeout like any other transport failure.
func New(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// Login exchanges credentials for a bearer token. It is the only
// authenticated-API call that does not itself require a token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body, err := json.Marshal(LoginRequest{Username: username, Password: password})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp loginEnvelope
	if err := c.do(req, &resp, &resp.envelope); err != nil {
		return "", err
	}
	return resp.Data.Token, nil
}

// Ping probes the server health endpoint. Used by the reachability watcher;
// no auth required.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned %s", common.ErrServerError, resp.Status)
	}
	return nil
}

// RegisterDevice idempotently upserts this device with the server.
func (c *Client) RegisterDevice(ctx context.Context, deviceID, deviceName string) error {
	var resp struct{ envelope }
	return c.post(ctx, "/api/sync/register-device",
		RegisterDeviceRequest{DeviceID: deviceID, DeviceName: deviceName, DeviceType: common.DeviceType},
		&resp, &resp.envelope)
}

// PullChanges fetches server-side changes for one entity type since the
// given timestamp, bounded to limit items.
func (c *Client) PullChanges(ctx context.Context, since time.Time, entityType string, limit int) ([]Change, error) {
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339))
	q.Set("types", entityType)
	q.Set("limit", strconv.Itoa(limit))

	req, err := c.newAuthRequest(ctx, http.MethodGet, "/api/sync/changes?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp changesEnvelope
	if err := c.do(req, &resp, &resp.envelope); err != nil {
		return nil, err
	}
	return resp.Data.Changes, nil
}

// PushChanges submits one batch of queued mutations scoped to this device.
// The returned results align positionally with req.Changes.
func (c *Client) PushChanges(ctx context.Context, pushReq PushRequest) ([]PushResult, error) {
	var resp pushEnvelope
	if err := c.post(ctx, "/api/sync/push", pushReq, &resp, &resp.envelope); err != nil {
		return nil, err
	}
	if len(resp.Data.Results) != len(pushReq.Changes) {
		return nil, fmt.Errorf("%w: push returned %d results for %d changes",
			common.ErrServerError, len(resp.Data.Results), len(pushReq.Changes))
	}
	return resp.Data.Results, nil
}

// ResolveConflict reports a conflict resolution to the server and returns
// the record as it stands after the resolution, nil if the server had
// nothing left to report.
func (c *Client) ResolveConflict(ctx context.Context, resolveReq ResolveConflictRequest) (*Change, error) {
	var resp resolveEnvelope
	if err := c.post(ctx, "/api/sync/resolve-conflict", resolveReq, &resp, &resp.envelope); err != nil {
		return nil, err
	}
	return resp.Data.Change, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any, env *envelope) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := c.newAuthRequest(ctx, http.MethodPost, path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out, env)
}

func (c *Client) newAuthRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// do executes the request and decodes the response into out, translating
// transport failures, auth rejections and malformed envelopes into the
// shared error taxonomy.
func (c *Client) do(req *http.Request, out any, env *envelope) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return common.ErrNotAuthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s: %s", common.ErrServerError, resp.Status, string(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed response: %w", common.ErrServerError, err)
	}
	if !env.Success {
		return fmt.Errorf("%w: %s", common.ErrServerError, env.Error)
	}
	return nil
}
