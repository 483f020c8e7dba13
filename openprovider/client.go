// Package openprovider implements a minimal client for the parts of the
// Openprovider REST API needed to manage DNS zone records: session login and
// zone query/update. Openprovider publishes no Go SDK.
package openprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-cleanhttp"
)

// DefaultBaseURL is the production Openprovider API endpoint.
const DefaultBaseURL = "https://api.openprovider.eu"

var (
	// ErrAuthFailed reports that the login call was rejected.
	ErrAuthFailed = errors.New("authentication failed")
)

// APIError describes a request the API refused, either with a non-2xx status
// or with a non-zero code in the response envelope.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Code       int
	Desc       string
}

func (e *APIError) Error() string {
	if e.Desc != "" {
		return fmt.Sprintf("openprovider: %s %s returned status %d code %d: %s", e.Method, e.Path, e.StatusCode, e.Code, e.Desc)
	}
	return fmt.Sprintf("openprovider: %s %s returned status %d", e.Method, e.Path, e.StatusCode)
}

// Client talks to the Openprovider API on behalf of one account.
//
// The bearer token is obtained lazily: the first request needing
// authorization triggers a single login call and the token is reused for the
// life of the client. A 401 on any later request discards the token,
// re-authenticates once, and replays that request once.
type Client struct {
	baseURL    string
	username   string
	password   string
	token      string
	httpClient *http.Client
	log        logr.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a non-default API endpoint.
func WithBaseURL(rawurl string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(rawurl, "/") }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpclient *http.Client) Option {
	return func(c *Client) {
		if httpclient != nil {
			c.httpClient = httpclient
		}
	}
}

// WithLogger directs client logging to logger. The default discards logs.
func WithLogger(logger logr.Logger) Option {
	return func(c *Client) { c.log = logger }
}

// NewClient returns a Client authenticating as the given Openprovider account.
func NewClient(username, password string, options ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		username:   username,
		password:   password,
		httpClient: cleanhttp.DefaultPooledClient(),
		log:        logr.Discard(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// SetHTTPClient replaces the HTTP client used for API requests.
// A nil httpclient restores the default.
func (c *Client) SetHTTPClient(httpclient *http.Client) {
	if httpclient == nil {
		httpclient = cleanhttp.DefaultPooledClient()
	}
	c.httpClient = httpclient
}

// SetLogger directs client logging to logger.
func (c *Client) SetLogger(logger logr.Logger) {
	c.log = logger
}

// envelope is the wrapper Openprovider puts around every response body.
type envelope struct {
	Code int             `json:"code"`
	Desc string          `json:"desc"`
	Data json.RawMessage `json:"data"`
}

// Login authenticates and stores the session token. Callers normally never
// need it: requests log in lazily. It is exported so credentials can be
// verified without touching any zone.
func (c *Client) Login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return fmt.Errorf("openprovider: marshal login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1beta/auth/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("openprovider: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openprovider: login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openprovider: login returned status %d: %w", resp.StatusCode, ErrAuthFailed)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("openprovider: decode login response: %w", err)
	}
	if env.Code != 0 {
		return fmt.Errorf("openprovider: login rejected with code %d (%s): %w", env.Code, env.Desc, ErrAuthFailed)
	}

	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("openprovider: decode login response: %w", err)
	}
	if data.Token == "" {
		return fmt.Errorf("openprovider: login response carried no token: %w", ErrAuthFailed)
	}

	c.token = data.Token
	c.log.V(1).Info("logged in", "username", c.username)
	return nil
}

// do executes one authorized API request, logging in first if no token is
// held and replaying once with a fresh token on a 401. A non-nil out receives
// the decoded data portion of the response envelope.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.token == "" {
		if err := c.Login(ctx); err != nil {
			return err
		}
	}

	resp, err := c.send(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		c.log.V(1).Info("session token rejected, re-authenticating", "method", method, "path", path)
		c.token = ""
		if err := c.Login(ctx); err != nil {
			return err
		}
		resp, err = c.send(ctx, method, path, query, body)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("openprovider: decode %s %s response: %w", method, path, err)
	}
	if env.Code != 0 {
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Code: env.Code, Desc: env.Desc}
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("openprovider: decode %s %s response data: %w", method, path, err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("openprovider: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("openprovider: build request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openprovider: %s %s: %w", method, path, err)
	}
	return resp, nil
}
