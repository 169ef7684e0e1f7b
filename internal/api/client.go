package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client talks to the deep-research backend. All methods attach the bearer
// token (when set) and the legacy X-User-Id header.
type Client struct {
	BaseURL string
	Token   func() string
	UserID  string
	HTTP    *http.Client
}

// NewClient builds a client for the given server base URL, e.g.
// "https://research.example.com". token may be nil for guest access.
func NewClient(baseURL string, token func() string, userID string) *Client {
	if userID == "" {
		userID = "1"
	}
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   token,
		UserID:  userID,
		HTTP:    &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) researchURL(parts ...string) string {
	u := c.BaseURL + "/api/v1/research"
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

// Decorate attaches auth and identity headers to any request bound for the
// backend, including the SSE stream request owned by another package.
func (c *Client) Decorate(req *http.Request) {
	if c.Token != nil {
		if tok := c.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	req.Header.Set("X-User-Id", c.UserID)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.Decorate(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func unwrap[T any](env result[T], err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if env.Code != 0 {
		return zero, &APIError{Code: env.Code, Message: env.Message}
	}
	return env.Data, nil
}

// Create allocates n new research sessions in NEW status.
func (c *Client) Create(ctx context.Context, n int) (CreateResponse, error) {
	if n <= 0 {
		n = 1
	}
	var env result[CreateResponse]
	err := c.do(ctx, http.MethodGet, c.researchURL("create")+fmt.Sprintf("?num=%d", n), nil, &env)
	return unwrap(env, err)
}

// GetStatus fetches the lightweight status snapshot for one session.
func (c *Client) GetStatus(ctx context.Context, researchID string) (StatusResponse, error) {
	var env result[StatusResponse]
	err := c.do(ctx, http.MethodGet, c.researchURL("research", researchID), nil, &env)
	return unwrap(env, err)
}

// GetMessages fetches the full message/event snapshot for one session.
func (c *Client) GetMessages(ctx context.Context, researchID string) (MessagesResponse, error) {
	var env result[MessagesResponse]
	err := c.do(ctx, http.MethodGet, c.researchURL("research", researchID, "messages"), nil, &env)
	return unwrap(env, err)
}

// SendMessage submits user input to a session. Model/budget fields in req are
// only meaningful on the session's first message.
func (c *Client) SendMessage(ctx context.Context, researchID string, req SendMessageRequest) (SendMessageResponse, error) {
	var env result[SendMessageResponse]
	err := c.do(ctx, http.MethodPost, c.researchURL("research", researchID, "messages"), req, &env)
	return unwrap(env, err)
}

// GetHistory lists status summaries for all of the caller's sessions.
func (c *Client) GetHistory(ctx context.Context) ([]StatusResponse, error) {
	var env result[[]StatusResponse]
	err := c.do(ctx, http.MethodGet, c.researchURL("list"), nil, &env)
	return unwrap(env, err)
}

// GetModels lists the platform's free models.
func (c *Client) GetModels(ctx context.Context) ([]ModelInfo, error) {
	var env result[[]ModelInfo]
	err := c.do(ctx, http.MethodGet, c.researchURL("models", "free"), nil, &env)
	return unwrap(env, err)
}

// StreamURL is the push-stream endpoint consumed by the stream package.
func (c *Client) StreamURL() string {
	return c.researchURL("sse")
}
