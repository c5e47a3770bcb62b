package brain

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// HTTPChatClient talks to an AI sidecar service over HTTP. The sidecar owns
// the provider credentials and the screen capture; this client only carries
// the conversation.
type HTTPChatClient struct {
	endpoint string
	apiKey   string
	client   *http.Client

	mu      sync.Mutex
	session string
}

// NewHTTPChatClient creates a client for the sidecar at endpoint. apiKey
// may be empty when the sidecar runs unauthenticated on localhost.
func NewHTTPChatClient(endpoint, apiKey string) *HTTPChatClient {
	c := &HTTPChatClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	c.session = newSessionID()
	return c
}

type chatRequest struct {
	Session       string `json:"session"`
	SystemPrompt  string `json:"systemPrompt"`
	Prompt        string `json:"prompt"`
	IncludeVision bool   `json:"includeVision"`
}

type chatResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Send implements ChatClient. HTTP 429 maps to ErrQuotaExceeded, 409 to
// ErrSessionConflict, anything else unexpected to ErrTransport.
func (c *HTTPChatClient) Send(ctx context.Context, prompt string, includeVision bool) (string, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	body, err := json.Marshal(chatRequest{
		Session:       session,
		SystemPrompt:  systemPrompt,
		Prompt:        prompt,
		IncludeVision: includeVision,
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to encode request: %v", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return "", ErrQuotaExceeded
	case http.StatusConflict:
		return "", ErrSessionConflict
	default:
		return "", fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", ErrTransport, err)
	}
	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", ErrTransport, err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrTransport, parsed.Error)
	}
	return parsed.Response, nil
}

// ResetSession implements ChatClient by rotating the session identifier.
// The sidecar treats an unseen session as a fresh conversation.
func (c *HTTPChatClient) ResetSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = newSessionID()
	log.Printf("[Brain] Started new conversation session %s", c.session)
}

func newSessionID() string {
	return fmt.Sprintf("session_%d", time.Now().UnixNano())
}
