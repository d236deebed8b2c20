// Package ai talks to an OpenAI-compatible chat completion endpoint used for
// locator inference and record extraction.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/patrickjm/patsearch/internal/failure"
)

const systemPrompt = "You are a precise web page analysis assistant. Reply with valid JSON only, no prose and no markdown."

var tracer = otel.Tracer("github.com/patrickjm/patsearch/internal/ai")

// Completer sends one prompt and returns the raw model text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type Options struct {
	BaseURL     string
	Model       string
	APIKey      string
	Timeout     time.Duration
	Rate        float64
	Burst       int
	Temperature float64
	Logger      *slog.Logger
}

type Client struct {
	http        *resty.Client
	model       string
	temperature float64
	timeout     time.Duration
	logger      *slog.Logger
}

func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("ai base url required")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("ai api key required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(strings.TrimRight(opts.BaseURL, "/"))
	httpClient.SetAuthToken(opts.APIKey)
	httpClient.SetHeader("content-type", "application/json")
	httpClient.SetTimeout(opts.Timeout)

	if opts.Rate > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(opts.Rate), burst)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	return &Client{
		http:        httpClient,
		model:       opts.Model,
		temperature: opts.Temperature,
		timeout:     opts.Timeout,
		logger:      logger,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete returns the first choice's content. Every failure wraps
// failure.ErrCollaboratorUnavailable.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "ai.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.model", c.model),
		attribute.Int("ai.prompt_chars", len(prompt)),
	)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.complete(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("ai completion failed", "model", c.model, "error", err)
		return "", fmt.Errorf("%w: %v", failure.ErrCollaboratorUnavailable, err)
	}
	return out, nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("json marshal: %w", err)
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(res.Body(), &parsed); err != nil {
		return "", fmt.Errorf("unmarshal json (status %d): %w", res.StatusCode(), err)
	}
	if res.IsError() {
		msg := res.Status()
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("status %d: %s", res.StatusCode(), msg)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("response has no choices")
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("empty completion")
	}
	return content, nil
}
