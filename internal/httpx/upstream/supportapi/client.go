package supportapi

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
	"time"

	"github.com/vadim/tutor-support/internal/domain/support/entity"
)

const (
	defaultBaseURL = "http://localhost:8080/api/v1"
	defaultTimeout = 30 * time.Second
	basePath       = "/support-messaging"
)

// Client is a REST client for the support-messaging API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientOption is a function that configures the Client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithToken sets the bearer token sent with every request
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// New creates a new support-messaging API client
func New(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents a non-2xx response from the API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("support API error: %s (status: %d)", e.Message, e.StatusCode)
}

// IsStatus reports whether err is an APIError with the given status code
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// ListAdmins searches the administrator directory
// GET /support-messaging/admins?search=
func (c *Client) ListAdmins(ctx context.Context, query string) ([]entity.AdminUser, error) {
	params := url.Values{}
	if query != "" {
		params.Set("search", query)
	}

	var out struct {
		Admins []entity.AdminUser `json:"admins"`
	}
	if err := c.get(ctx, "/admins", params, &out); err != nil {
		return nil, err
	}
	return out.Admins, nil
}

// ListConversations lists the current user's conversations
// GET /support-messaging/chats
func (c *Client) ListConversations(ctx context.Context) ([]entity.Conversation, error) {
	var out struct {
		Chats []entity.Conversation `json:"chats"`
	}
	if err := c.get(ctx, "/chats", nil, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// ListMessages fetches the full history of a conversation
// GET /support-messaging/chats/{id}/messages
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]entity.Message, error) {
	var out struct {
		Messages []entity.Message `json:"messages"`
	}
	if err := c.get(ctx, "/chats/"+url.PathEscape(conversationID)+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// StartWithAdmin creates or fetches the conversation with an administrator
// POST /support-messaging/chats/start-with-admin
func (c *Client) StartWithAdmin(ctx context.Context, adminID string) (*entity.Conversation, error) {
	var out entity.Conversation
	if err := c.post(ctx, "/chats/start-with-admin", map[string]string{"adminId": adminID}, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, errors.New("decoding response: conversation without id")
	}
	return &out, nil
}

// SendMessage posts a text message to a conversation
// POST /support-messaging/chats/{id}/messages
func (c *Client) SendMessage(ctx context.Context, conversationID, body string) (*entity.Message, error) {
	in := map[string]string{
		"body":        body,
		"messageType": string(entity.MessageTypeText),
	}

	var out entity.Message
	if err := c.post(ctx, "/chats/"+url.PathEscape(conversationID)+"/messages", in, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, errors.New("decoding response: message without id")
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := c.baseURL + basePath + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+basePath+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// do executes an HTTP request and decodes the response
func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
