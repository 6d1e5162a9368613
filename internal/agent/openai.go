// File path: internal/agent/openai.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jacobaguon-blip/support-triage/internal/common"
)

const (
	defaultOpenAIModel = "gpt-4o-mini"
	systemPrompt       = "You are a support engineer triaging customer tickets. Answer in Markdown and cite sources inline as [Source: ...]."
)

// OpenAIConfig configures the chat completion backend.
type OpenAIConfig struct {
	APIKey   string
	Model    string
	Endpoint string
	Timeout  time.Duration
}

// OpenAIConfigFromEnv reads OPENAI_API_KEY, OPENAI_MODEL, OPENAI_ENDPOINT
// and OPENAI_HTTP_TIMEOUT.
func OpenAIConfigFromEnv() OpenAIConfig {
	logger := common.Logger()
	cfg := OpenAIConfig{
		APIKey:   strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		Model:    strings.TrimSpace(os.Getenv("OPENAI_MODEL")),
		Endpoint: strings.TrimSpace(os.Getenv("OPENAI_ENDPOINT")),
	}
	if timeoutStr := strings.TrimSpace(os.Getenv("OPENAI_HTTP_TIMEOUT")); timeoutStr != "" {
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			logger.Warn("agent: invalid OPENAI_HTTP_TIMEOUT, using default", "value", timeoutStr, "error", err)
		} else {
			cfg.Timeout = timeout
		}
	}
	return cfg
}

// OpenAIRunner answers prompts with a single chat completion.
type OpenAIRunner struct {
	client *openai.Client
	model  string
}

// NewOpenAIRunner builds a runner from cfg. An API key is required.
func NewOpenAIRunner(cfg OpenAIConfig) (*OpenAIRunner, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("agent: OPENAI_API_KEY not set")
	}
	logger := common.Logger()
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		logger.Info("agent: configuring OpenAI client with custom endpoint", "endpoint", cfg.Endpoint)
		clientCfg.BaseURL = cfg.Endpoint
	}
	if cfg.Timeout > 0 {
		logger.Info("agent: configuring OpenAI client with custom HTTP timeout", "timeout", cfg.Timeout)
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	logger.Info("agent: OpenAI backend selected", "model", model)
	return &OpenAIRunner{client: openai.NewClientWithConfig(clientCfg), model: model}, nil
}

// Run sends the prompt as one user message.
func (o *OpenAIRunner) Run(ctx context.Context, req Request) (string, error) {
	out, err := o.complete(ctx, req.Prompt)
	record("openai", err)
	return out, err
}

func (o *OpenAIRunner) complete(ctx context.Context, prompt string) (string, error) {
	if o == nil || o.client == nil {
		return "", errors.New("agent runner not initialised")
	}
	logger := common.Logger()
	logger.Debug("agent: sending chat completion request", "model", o.model, "prompt_bytes", len(prompt))
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", classifyAPIError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("agent: no choices returned")
	}
	logger.Debug("agent: chat completion succeeded")
	return resp.Choices[0].Message.Content, nil
}

func classifyAPIError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && (apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden) {
		return fmt.Errorf("%w: %s", ErrAuthRequired, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && (reqErr.HTTPStatusCode == http.StatusUnauthorized || reqErr.HTTPStatusCode == http.StatusForbidden) {
		return fmt.Errorf("%w: %v", ErrAuthRequired, reqErr.Err)
	}
	return fmt.Errorf("agent: chat completion: %w", err)
}

// Check issues a minimal completion.
func (o *OpenAIRunner) Check(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, defaultCheckTimeout)
	defer cancel()
	_, err := o.complete(ctx, healthPrompt)
	switch {
	case err == nil:
		return Health{Authenticated: true, Message: "OpenAI backend is authenticated and ready"}
	case errors.Is(err, ErrAuthRequired):
		return Health{Authenticated: false, Message: "OpenAI backend rejected the API key. Check OPENAI_API_KEY."}
	}
	return Health{Authenticated: false, Error: err.Error(), Message: "OpenAI backend check failed. Please verify the endpoint configuration."}
}
