package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"threatrelay/pkg/models"
)

// ErrUpstreamTimeout reports that an agent execution exceeded its budget.
var ErrUpstreamTimeout = errors.New("agent execution exceeded budget")

// Executor runs one agent and reports its result. Agent execution is an
// external collaborator; this package only defines the contract and an
// HTTP client for it.
type Executor interface {
	Execute(ctx context.Context, agentID string, config map[string]interface{}) (*models.ExecutionResult, error)
}

// HTTPConfig configures the HTTP agent execution client.
type HTTPConfig struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string
}

// HTTPExecutor invokes the agent execution service over HTTP.
type HTTPExecutor struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewHTTPExecutor creates an HTTP execution client.
func NewHTTPExecutor(cfg HTTPConfig) (*HTTPExecutor, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("agent execution URL is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPExecutor{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type executeRequest struct {
	AgentID string                 `json:"agent_id"`
	Config  map[string]interface{} `json:"config,omitempty"`
}

// Execute posts the agent invocation and decodes its result.
func (e *HTTPExecutor) Execute(ctx context.Context, agentID string, config map[string]interface{}) (*models.ExecutionResult, error) {
	body, err := json.Marshal(executeRequest{AgentID: agentID, Config: config})
	if err != nil {
		return nil, fmt.Errorf("marshal execution request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create execution request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w: agent %s: %v", ErrUpstreamTimeout, agentID, err)
		}
		return nil, fmt.Errorf("execute agent %s: %w", agentID, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("execute agent %s: status %s", agentID, resp.Status)
	}

	var result models.ExecutionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode execution result for agent %s: %w", agentID, err)
	}
	if result.AgentID == "" {
		result.AgentID = agentID
	}
	if result.ExecutionID == "" {
		result.ExecutionID = uuid.NewString()
	}
	return &result, nil
}
