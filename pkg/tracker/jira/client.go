// Package jira implements the tracker boundary against the Jira REST API v2.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"jirahooks/pkg/tracker"

	"golang.org/x/oauth2"
)

// Config configures the Jira client.
type Config struct {
	BaseURL string
	// Username enables basic auth with Token. When empty, Token is sent as a
	// bearer personal access token.
	Username string
	Token    string
	// UserTokens maps a Jira username to a personal access token used when
	// acting as that user.
	UserTokens map[string]string
	Timeout    time.Duration
	// CommentVisibilityRole restricts commit comments to a project role.
	CommentVisibilityRole string
	// AllowServiceAccount lets calls made as a user without an entry in
	// UserTokens go out with the service account credentials. When false
	// such calls fail with ErrNoUserCredentials.
	AllowServiceAccount bool
}

// ErrNoUserCredentials is returned for calls made as a user that has no
// personal access token while the service account fallback is disabled.
var ErrNoUserCredentials = errors.New("no jira credentials for user")

// Client talks to a Jira server.
type Client struct {
	baseURL        string
	username       string
	token          string
	userTokens     map[string]string
	visibilityRole string
	allowService   bool
	client         *http.Client
}

// NewClient builds a Jira client.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("jira base_url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:        baseURL,
		username:       cfg.Username,
		token:          cfg.Token,
		userTokens:     cfg.UserTokens,
		visibilityRole: cfg.CommentVisibilityRole,
		allowService:   cfg.AllowServiceAccount,
		client:         &http.Client{Timeout: timeout},
	}, nil
}

// apiError is the Jira error envelope.
type apiError struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}

func (e apiError) messages() []string {
	out := append([]string(nil), e.ErrorMessages...)
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		out = append(out, field+": "+e.Errors[field])
	}
	return out
}

// response is a completed HTTP exchange.
type response struct {
	status int
	body   []byte
}

func (r response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// failure turns a non-2xx response into tracker error messages.
func (r response) failure() []string {
	var env apiError
	if err := json.Unmarshal(r.body, &env); err == nil {
		if msgs := env.messages(); len(msgs) > 0 {
			return msgs
		}
	}
	text := strings.TrimSpace(string(r.body))
	if text == "" {
		return []string{fmt.Sprintf("jira returned %d", r.status)}
	}
	if len(text) > 512 {
		text = text[:512]
	}
	return []string{fmt.Sprintf("jira returned %d: %s", r.status, text)}
}

// do executes a request as identity. A nil identity uses the service
// account. Only transport failures return an error.
func (c *Client) do(ctx context.Context, identity *tracker.Identity, method, path string, payload interface{}) (response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return response{}, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return response{}, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient, err := c.httpClient(ctx, identity, req)
	if err != nil {
		return response{}, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return response{}, err
	}
	return response{status: resp.StatusCode, body: raw}, nil
}

// HasUserCredentials reports whether calls made as identity carry the
// user's own token.
func (c *Client) HasUserCredentials(identity tracker.Identity) bool {
	return c.userTokens[identity.Name] != ""
}

// httpClient picks credentials for identity and may set basic auth on req.
// A nil identity means the service account.
func (c *Client) httpClient(ctx context.Context, identity *tracker.Identity, req *http.Request) (*http.Client, error) {
	if identity != nil {
		if token := c.userTokens[identity.Name]; token != "" {
			return c.bearer(ctx, token), nil
		}
		if !c.allowService {
			return nil, fmt.Errorf("%w: user=%s", ErrNoUserCredentials, identity.Name)
		}
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.token)
		return c.client, nil
	}
	if c.token == "" {
		return c.client, nil
	}
	return c.bearer(ctx, c.token), nil
}

func (c *Client) bearer(ctx context.Context, token string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = c.client.Timeout
	return httpClient
}
