package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jensabrahamsson/overblick/common/retry"
	"github.com/jensabrahamsson/overblick/internal/errs"
)

// defaultTimeout bounds one completion call when the config doesn't say
// otherwise. LLM calls are the slowest suspension point in the system.
const defaultTimeout = 180 * time.Second

// OpenAIConfig configures the OpenAI-compatible adapter.
type OpenAIConfig struct {
	// APIKey is the bearer token for the API. May be empty for local
	// servers that don't check it.
	APIKey string
	// BaseURL is the API endpoint (e.g. a local Ollama at
	// "http://localhost:11434/v1"). Required — this runtime never defaults
	// to a hosted service.
	BaseURL string
	// Model is the model identifier sent with every request.
	Model string
	// MaxTokens caps the response length. 0 = provider default.
	MaxTokens int
	// Timeout for each HTTP request. Defaults to 180s.
	Timeout time.Duration
}

// openAIProvider implements Provider against the OpenAI chat completions
// API shape, which local model servers (Ollama, llama.cpp, vLLM) also
// speak. Transient transport failures are retried with backoff; API-level
// errors are not.
type openAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAI returns a Provider backed by an OpenAI-compatible endpoint, or
// an error if cfg is unusable.
func NewOpenAI(cfg OpenAIConfig) (Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm: base URL is required: %w", errs.ErrConfig)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &openAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// --- wire types (subset of the OpenAI API) ---

type oaiRequest struct {
	Model     string       `json:"model"`
	Messages  []oaiMessage `json:"messages"`
	MaxTokens int          `json:"max_tokens,omitempty"`
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

// Complete sends a chat completion request.
func (p *openAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	messages := make([]oaiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, oaiMessage{Role: string(m.Role), Content: m.Content})
	}

	data, err := json.Marshal(oaiRequest{
		Model:     p.cfg.Model,
		Messages:  messages,
		MaxTokens: p.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	var oaiResp oaiResponse
	var status int
	err = retry.Do(ctx, retry.Config{MaxAttempts: 2, InitialDelay: time.Second}, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			p.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if p.cfg.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
		}

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("llm: http request: %w", err)
		}
		defer resp.Body.Close()
		status = resp.StatusCode

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("llm: read response: %w", err)
		}
		oaiResp = oaiResponse{}
		if err := json.Unmarshal(body, &oaiResp); err != nil {
			return fmt.Errorf("llm: decode response (status %d): %w", status, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrLLM, err)
	}

	if oaiResp.Error != nil {
		return nil, fmt.Errorf("llm: api error %s: %s: %w", oaiResp.Error.Type, oaiResp.Error.Message, errs.ErrLLM)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, fmt.Errorf("llm: no choices in response (status %d): %w", status, errs.ErrLLM)
	}

	choice := oaiResp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return &CompletionResponse{Blocked: true, BlockReason: "content filtered by provider"}, nil
	}
	return &CompletionResponse{Content: choice.Message.Content}, nil
}
