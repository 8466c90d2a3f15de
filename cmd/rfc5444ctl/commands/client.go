// Package commands implements the rfc5444ctl CLI commands.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// errRequest wraps a non-2xx response from the daemon's admin surface.
var errRequest = errors.New("request failed")

// apiClient is a thin JSON/HTTP client for the daemon's admin surface
// (internal/server). It intentionally mirrors the shape of that
// package's view types rather than importing it, keeping rfc5444ctl
// buildable against any daemon speaking the same wire contract.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(addr string) *apiClient {
	return &apiClient{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type protocolView struct {
	Name                string   `json:"name"`
	AggregationInterval string   `json:"aggregation_interval"`
	MTU                 int      `json:"mtu"`
	Interfaces          []string `json:"interfaces"`
}

type targetView struct {
	Address string `json:"address"`
	Active  bool   `json:"active"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *apiClient) listProtocols(ctx context.Context) ([]protocolView, error) {
	var out []protocolView
	if err := c.do(ctx, http.MethodGet, "/protocols", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) getProtocol(ctx context.Context, name string) (protocolView, error) {
	var out protocolView
	path := "/protocols?name=" + url.QueryEscape(name)
	if err := c.do(ctx, http.MethodGet, path, &out); err != nil {
		return protocolView{}, err
	}
	return out, nil
}

func (c *apiClient) listTargets(ctx context.Context, protocol string) ([]targetView, error) {
	var out []targetView
	path := fmt.Sprintf("/protocols/%s/targets", url.PathEscape(protocol))
	if err := c.do(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) flushTarget(ctx context.Context, protocol, addr string) error {
	path := fmt.Sprintf("/protocols/%s/targets/%s/flush", url.PathEscape(protocol), url.PathEscape(addr))
	return c.do(ctx, http.MethodPost, path, nil)
}

// do issues req against the daemon and decodes a JSON response body into
// out (when non-nil and the response carries one).
func (c *apiClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr errorResponse
		body, _ := io.ReadAll(resp.Body)
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Error != "" {
			return fmt.Errorf("%w: %s: %s", errRequest, resp.Status, apiErr.Error)
		}
		return fmt.Errorf("%w: %s", errRequest, resp.Status)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
