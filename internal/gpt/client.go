// Package gpt answers cooking questions in the voice of a recipe's
// character, through an OpenAI-compatible chat API.
package gpt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/hammamikhairi/storyplated/internal/logger"
)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithModel overrides the default model name. For Azure this is the
// deployment name.
func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) ClientOption {
	return func(c *Client) { c.temperature = t }
}

// WithMaxTokens sets the response token limit.
func WithMaxTokens(n int) ClientOption {
	return func(c *Client) { c.maxTokens = n }
}

// WithHTTPTimeout sets the HTTP client timeout.
func WithHTTPTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithAzure talks to an Azure OpenAI resource: endpoint is the resource
// URL and requests go to the model's deployment with the given API version.
func WithAzure(apiVersion string) ClientOption {
	return func(c *Client) { c.azureVersion = apiVersion }
}

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	api          oai.Client
	endpoint     string
	model        string
	azureVersion string
	temperature  float64
	maxTokens    int
	timeout      time.Duration
	log          *logger.Logger
}

// NewClient creates a chat client.
//   - endpoint: the API base URL (e.g. "https://api.openai.com/v1/") or,
//     with WithAzure, the resource URL ("https://<resource>.openai.azure.com")
//   - apiKey:   the API / subscription key
func NewClient(endpoint, apiKey string, log *logger.Logger, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gpt: api key must not be empty")
	}
	c := &Client{
		endpoint:    endpoint,
		model:       "gpt-4o-mini",
		temperature: 0.7,
		maxTokens:   300,
		timeout:     30 * time.Second,
		log:         log,
	}
	for _, o := range opts {
		o(c)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: c.timeout}),
		option.WithMaxRetries(1),
	}
	switch {
	case c.azureVersion != "":
		base := strings.TrimSuffix(endpoint, "/") + "/openai/deployments/" + c.model + "/"
		reqOpts = append(reqOpts,
			option.WithBaseURL(base),
			option.WithHeader("api-key", apiKey),
			option.WithQuery("api-version", c.azureVersion),
		)
	case endpoint != "":
		reqOpts = append(reqOpts, option.WithBaseURL(endpoint))
	}

	c.api = oai.NewClient(reqOpts...)
	return c, nil
}

// Chat sends a system prompt and one user message and returns the
// assistant's reply.
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(system),
			oai.UserMessage(user),
		},
	}
	if c.temperature != 0 {
		params.Temperature = param.NewOpt(c.temperature)
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(c.maxTokens))
	}

	c.log.Debug("gpt: chat completion (model=%s, %d chars)", c.model, len(user))

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("gpt: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("gpt: empty response (no choices)")
	}

	reply := resp.Choices[0].Message.Content
	c.log.Debug("gpt: reply (%d chars): %s", len(reply), truncate(reply, 120))
	return reply, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
