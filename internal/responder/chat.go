package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL      = "https://api.deepseek.com"
	DefaultModel        = "deepseek-chat"
	DefaultSystemPrompt = "You are a helpful assistant"

	maxReplyBytes = 1 << 20
)

// ChatConfig configures an OpenAI-compatible chat completion client.
type ChatConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	// RequestsPerMinute bounds outbound calls; zero disables limiting.
	RequestsPerMinute int
	HTTPClient        *http.Client
	Logger            *log.Logger
}

// ChatClient sends each request as a single non-streaming chat completion
// with a system prompt and one user message.
type ChatClient struct {
	baseURL      string
	apiKey       string
	model        string
	systemPrompt string
	httpClient   *http.Client
	limiter      *rate.Limiter
	logger       *log.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func NewChatClient(cfg ChatConfig) *ChatClient {
	c := &ChatClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		httpClient:   cfg.HTTPClient,
		logger:       cfg.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.systemPrompt == "" {
		c.systemPrompt = DefaultSystemPrompt
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return c
}

// Respond implements Responder.
func (c *ChatClient) Respond(ctx context.Context, request string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &FriendlyError{Code: "ASSISTANT_RATE_LIMITED", Message: "assistant request budget exhausted", Cause: err}
		}
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: c.systemPrompt},
			{Role: "user", Content: request},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", mapTransportError(err)
	}
	defer resp.Body.Close()

	c.logger.Debug("assistant response", "event", "assistant_http_response", "status", resp.StatusCode, "duration_ms", time.Since(started).Milliseconds())
	if err := mapStatus(resp); err != nil {
		return "", err
	}

	var decoded chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReplyBytes)).Decode(&decoded); err != nil {
		return "", &FriendlyError{Code: "ASSISTANT_BAD_RESPONSE", Message: "assistant response could not be decoded", Cause: err}
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return "", ErrEmptyReply
	}
	return decoded.Choices[0].Message.Content, nil
}

func mapStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	cause := fmt.Errorf("assistant request failed: %s", resp.Status)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &FriendlyError{Code: "ASSISTANT_UNAUTHORIZED", Message: "assistant rejected the API key", Cause: cause}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &FriendlyError{Code: "ASSISTANT_RATE_LIMITED", Message: "assistant is rate limiting requests", Cause: cause}
	case resp.StatusCode >= 500:
		return &FriendlyError{Code: "ASSISTANT_UPSTREAM", Message: "assistant service is unavailable", Cause: cause}
	default:
		return &FriendlyError{Code: "ASSISTANT_REJECTED", Message: "assistant rejected the request", Cause: cause}
	}
}

func mapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FriendlyError{Code: "ASSISTANT_TIMEOUT", Message: "assistant did not answer in time", Cause: err}
	}
	return &FriendlyError{Code: "ASSISTANT_UNREACHABLE", Message: "unable to reach the assistant service", Cause: err}
}
