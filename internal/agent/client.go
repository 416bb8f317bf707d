package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 4 << 20 // 4MB
)

// Envelope is the normalized result of a successful agent call. Status is
// agent-defined; Result is an open structured object whose shape depends on
// which agent answered.
type Envelope struct {
	Status  string
	Message string
	Result  map[string]any
}

// Envelope status values shared by all agents.
const (
	StatusSuccess            = "success"
	StatusError              = "error"
	StatusNeedsClarification = "needs_clarification"
)

// CallContext carries the opaque identity fields passed through to agents.
// Neither field is interpreted by the client.
type CallContext struct {
	SessionID string
	UserID    string
}

// Client invokes remote agents on the platform over HTTP. It holds no state
// beyond connection configuration; retries are the caller's concern.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

// New creates a Client for the given platform base URL and API key.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: defaultTimeout,
		httpClient: &http.Client{
			Timeout: 0,
		},
	}
}

// NewWithTimeout creates a Client with a per-call timeout other than the
// default. A timeout <= 0 keeps the default.
func NewWithTimeout(baseURL, apiKey string, timeout time.Duration) *Client {
	c := New(baseURL, apiKey)
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

// invokeRequest is the JSON body for POST /v1/agents/{id}/invoke.
type invokeRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// invokeResponse mirrors the platform's call envelope.
type invokeResponse struct {
	Success  bool `json:"success"`
	Response struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	} `json:"response"`
	Error string `json:"error,omitempty"`
}

// Invoke sends text to the identified agent and returns its normalized
// envelope. All failures come back as *CallError; Invoke never panics past
// the transport boundary and never returns a nil envelope with a nil error.
func (c *Client) Invoke(ctx context.Context, agentID, text string, cc CallContext) (*Envelope, error) {
	body, err := json.Marshal(invokeRequest{
		Message:   text,
		SessionID: cc.SessionID,
		UserID:    cc.UserID,
	})
	if err != nil {
		return nil, &CallError{Kind: ErrMalformed, AgentID: agentID, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/agents/%s/invoke", c.baseURL, agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &CallError{Kind: ErrNetwork, AgentID: agentID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := ErrNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			kind = ErrTimeout
		}
		return nil, &CallError{Kind: kind, AgentID: agentID, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		kind := ErrNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			kind = ErrTimeout
		}
		return nil, &CallError{Kind: kind, AgentID: agentID, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &CallError{
			Kind:    ErrRemote,
			AgentID: agentID,
			Err:     fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var ir invokeResponse
	if err := json.Unmarshal(raw, &ir); err != nil {
		return nil, &CallError{Kind: ErrMalformed, AgentID: agentID, Err: err}
	}

	if !ir.Success {
		msg := ir.Error
		if msg == "" {
			msg = ir.Response.Message
		}
		return nil, &CallError{
			Kind:    ErrRemote,
			AgentID: agentID,
			Err:     fmt.Errorf("platform reported failure: %s", msg),
		}
	}

	env := &Envelope{
		Status:  ir.Response.Status,
		Message: ir.Response.Message,
	}
	if len(ir.Response.Result) > 0 {
		if err := json.Unmarshal(ir.Response.Result, &env.Result); err != nil {
			// A result that is present but not an object is malformed:
			// every agent contract returns an object here.
			return nil, &CallError{Kind: ErrMalformed, AgentID: agentID, Err: err}
		}
	}
	if env.Result == nil {
		env.Result = map[string]any{}
	}
	return env, nil
}
