package agentcore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// sessionIDHeader attributes the invocation to a runtime session
const sessionIDHeader = "X-Amzn-Bedrock-AgentCore-Runtime-Session-Id"

// ErrNoBody signals a response that arrived without a readable body
var ErrNoBody = errors.New("agentcore: response has no body")

// InvokeRequest describes one streamed agent invocation
type InvokeRequest struct {
	Prompt      string
	SessionID   string
	ActorID     string
	BearerToken string
}

type invokePayload struct {
	Prompt  string `json:"prompt"`
	ActorID string `json:"actor_id,omitempty"`
}

// Client invokes an AgentCore runtime endpoint and streams decoded lines
type Client struct {
	endpoint   string
	qualifier  string
	httpClient *http.Client
}

// EndpointURL computes the AgentCore invocation URL for a runtime ARN
func EndpointURL(region, agentARN string) string {
	escaped := url.PathEscape(agentARN)
	return fmt.Sprintf("https://bedrock-agentcore.%s.amazonaws.com/runtimes/%s/invocations", region, escaped)
}

// NewClient creates a client for the given region and runtime ARN
func NewClient(region, agentARN, qualifier string) *Client {
	return NewClientWithEndpoint(EndpointURL(region, agentARN), qualifier)
}

// NewClientWithEndpoint creates a client against an explicit invocation URL
func NewClientWithEndpoint(endpoint, qualifier string) *Client {
	if qualifier == "" {
		qualifier = "DEFAULT"
	}
	return &Client{
		endpoint:  endpoint,
		qualifier: qualifier,
		// No client-side timeout: the read side of a stream is open-ended,
		// cancellation comes from the request context
		httpClient: &http.Client{},
	}
}

// SetTimeout applies an overall HTTP timeout (zero disables)
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// Invoke opens a single chunked POST and returns a channel of decoded lines.
// The channel closes when the server ends the body, the context is cancelled,
// or a read error occurs (delivered as a terminal Line with Err set).
func (c *Client) Invoke(ctx context.Context, req InvokeRequest) (<-chan Line, error) {
	reqBody, err := json.Marshal(invokePayload{Prompt: req.Prompt, ActorID: req.ActorID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s?qualifier=%s", c.endpoint, url.QueryEscape(c.qualifier))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.BearerToken)
	httpReq.Header.Set(sessionIDHeader, req.SessionID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errorBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("request failed with status %d (failed to read error response: %w)", resp.StatusCode, readErr)
		}

		// The proxy contract signals errors as {"detail": string}; some
		// backends use {"error": string} instead
		var errorResp struct {
			Detail string `json:"detail"`
			Error  string `json:"error"`
		}
		if json.Unmarshal(errorBody, &errorResp) == nil {
			if errorResp.Detail != "" {
				return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, errorResp.Detail)
			}
			if errorResp.Error != "" {
				return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, errorResp.Error)
			}
		}
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(errorBody))
	}

	if resp.Body == nil {
		return nil, ErrNoBody
	}

	lines := make(chan Line, 64)
	go readStream(ctx, resp.Body, lines)

	return lines, nil
}
