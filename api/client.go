package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/jmcleod/ironwallet/protocol"
)

// Client talks to a running wallet server. It implements relay.Backend, so a
// relay host can forward page requests to a core in another process.
type Client struct {
	baseURL    string
	relayToken string
	uiToken    string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithClientRelayToken sets the bearer token sent to /external.
func WithClientRelayToken(token string) ClientOption {
	return func(c *Client) {
		c.relayToken = token
	}
}

// WithClientUIToken sets the bearer token sent to /internal.
func WithClientUIToken(token string) ClientOption {
	return func(c *Client) {
		c.uiToken = token
	}
}

// NewClient returns a Client for the server at baseURL, for example
// http://127.0.0.1:8420.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api/v1",
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send posts req to /external with req.Origin in OriginHeader and returns
// the result as sent by the core. Transport failures and non-200 responses
// are returned as errors.
func (c *Client) Send(ctx context.Context, req protocol.ExternalRequest) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	header := http.Header{}
	header.Set(OriginHeader, req.Origin)
	return c.post(ctx, "/external", c.relayToken, header, body)
}

// Internal performs one wallet UI action and returns its data. A failed
// action is returned as a *protocol.RemoteError carrying the wallet's
// message.
func (c *Client) Internal(ctx context.Context, action string, params any) (json.RawMessage, error) {
	msg := map[string]json.RawMessage{}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encoding params: %w", err)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("params must encode to an object: %w", err)
		}
		maps.Copy(msg, fields)
	}
	msg["action"], _ = json.Marshal(action)
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	raw, err := c.post(ctx, "/internal", c.uiToken, nil, body)
	if err != nil {
		return nil, err
	}
	var res protocol.InternalResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	if !res.Success {
		return nil, &protocol.RemoteError{Message: res.Error}
	}
	return res.Data, nil
}

func (c *Client) post(ctx context.Context, path, token string, header http.Header, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wallet api %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e ErrorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("wallet api %s: %s (status %d)", path, e.Error, resp.StatusCode)
		}
		return nil, fmt.Errorf("wallet api %s: status %d", path, resp.StatusCode)
	}
	return bytes.TrimSpace(raw), nil
}
