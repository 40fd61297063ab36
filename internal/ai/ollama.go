package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"local-rag-platform/internal/config"
	"local-rag-platform/internal/telemetry"
)

// OllamaClient talks to the local model server. The chat model and the
// embedding model are separate identifiers against the same runtime.
type OllamaClient struct {
	baseURL      string
	chatModel    string
	maxTokens    int
	httpClient   *http.Client
	breaker      *gobreaker.CircuitBreaker
	rateLimiter  *rate.Limiter
	tokenCounter *TokenCounter
}

// TokenCounter tracks model token throughput in minute/day windows.
type TokenCounter struct {
	mu              sync.Mutex
	minuteTokens    int
	dailyTokens     int
	minuteRequests  int
	dailyRequests   int
	lastMinuteReset time.Time
	lastDayReset    time.Time
}

// ChatMessage is one turn sent to the chat endpoint.
type ChatMessage struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// GenerateResult is the model answer plus token accounting.
type GenerateResult struct {
	Text       string
	TokensUsed int
	Model      string
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  modelOptions  `json:"options,omitempty"`
}

type generateRequest struct {
	Model   string       `json:"model"`
	Prompt  string       `json:"prompt"`
	Stream  bool         `json:"stream"`
	Options modelOptions `json:"options,omitempty"`
}

type modelOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type chatResponse struct {
	Message         ChatMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
	Error           string      `json:"error,omitempty"`
}

type generateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

// NewOllamaClient builds the client. metrics may be nil; breaker state
// transitions are then only logged.
func NewOllamaClient(cfg *config.Config, metrics *telemetry.Metrics) *OllamaClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "OllamaAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
			if metrics != nil {
				metrics.RecordCircuitBreakerState(name, to.String())
			}
		},
	})

	// Local servers serialize generation anyway; the limiter keeps a
	// burst of API callers from queueing unbounded work on the runtime.
	rateLimiter := rate.NewLimiter(rate.Limit(2), 4)

	return &OllamaClient{
		baseURL:   cfg.OllamaBaseURL,
		chatModel: cfg.ChatModel,
		maxTokens: cfg.ModelMaxTokens,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.OllamaTimeout) * time.Second,
		},
		breaker:      breaker,
		rateLimiter:  rateLimiter,
		tokenCounter: &TokenCounter{},
	}
}

// Chat sends a multi-turn conversation to the chat model.
func (oc *OllamaClient) Chat(ctx context.Context, messages []ChatMessage) (*GenerateResult, error) {
	tracer := otel.Tracer("ollama-client")
	ctx, span := tracer.Start(ctx, "ollama.chat")
	defer span.End()

	span.SetAttributes(
		attribute.String("model.name", oc.chatModel),
		attribute.Int("chat.messages", len(messages)),
	)

	if err := oc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("ollama.rate_limited", true))
		return nil, err
	}

	result, err := oc.breaker.Execute(func() (interface{}, error) {
		body := chatRequest{
			Model:    oc.chatModel,
			Messages: messages,
			Stream:   false,
			Options:  modelOptions{NumPredict: oc.maxTokens, Temperature: 0.7},
		}

		var resp chatResponse
		if err := oc.post(ctx, "/api/chat", body, &resp); err != nil {
			return nil, err
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("model server error: %s", resp.Error)
		}

		tokens := resp.PromptEvalCount + resp.EvalCount
		if tokens == 0 {
			tokens = estimateTokens(resp.Message.Content)
		}
		oc.tokenCounter.RecordUsage(tokens, 1)

		span.SetAttributes(attribute.Int("ollama.tokens", tokens))

		return &GenerateResult{
			Text:       resp.Message.Content,
			TokensUsed: tokens,
			Model:      oc.chatModel,
		}, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			span.SetAttributes(attribute.Bool("ollama.circuit_breaker_open", true))
			return oc.fallbackResult(), nil
		}
		span.SetAttributes(attribute.Bool("ollama.error", true))
		return nil, err
	}

	return result.(*GenerateResult), nil
}

// Generate sends a single prompt to the chat model.
func (oc *OllamaClient) Generate(ctx context.Context, prompt string) (*GenerateResult, error) {
	tracer := otel.Tracer("ollama-client")
	ctx, span := tracer.Start(ctx, "ollama.generate")
	defer span.End()

	span.SetAttributes(
		attribute.String("model.name", oc.chatModel),
		attribute.Int("prompt.chars", len(prompt)),
	)

	if err := oc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("ollama.rate_limited", true))
		return nil, err
	}

	result, err := oc.breaker.Execute(func() (interface{}, error) {
		body := generateRequest{
			Model:   oc.chatModel,
			Prompt:  prompt,
			Stream:  false,
			Options: modelOptions{NumPredict: oc.maxTokens, Temperature: 0.7},
		}

		var resp generateResponse
		if err := oc.post(ctx, "/api/generate", body, &resp); err != nil {
			return nil, err
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("model server error: %s", resp.Error)
		}

		tokens := resp.PromptEvalCount + resp.EvalCount
		if tokens == 0 {
			tokens = estimateTokens(resp.Response)
		}
		oc.tokenCounter.RecordUsage(tokens, 1)

		span.SetAttributes(attribute.Int("ollama.tokens", tokens))

		return &GenerateResult{
			Text:       resp.Response,
			TokensUsed: tokens,
			Model:      oc.chatModel,
		}, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			span.SetAttributes(attribute.Bool("ollama.circuit_breaker_open", true))
			return oc.fallbackResult(), nil
		}
		span.SetAttributes(attribute.Bool("ollama.error", true))
		return nil, err
	}

	return result.(*GenerateResult), nil
}

// Usage returns tokens and requests recorded in the current day window.
func (oc *OllamaClient) Usage() (tokens, requests int) {
	return oc.tokenCounter.DailyUsage()
}

func (oc *OllamaClient) post(ctx context.Context, path string, reqBody, out interface{}) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, oc.baseURL+path, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := oc.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call model server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("model server returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode model server response: %w", err)
	}
	return nil
}

// Fallback when the local model server is unavailable
func (oc *OllamaClient) fallbackResult() *GenerateResult {
	return &GenerateResult{
		Text:  "The model server is not responding right now. Please try again in a moment.",
		Model: oc.chatModel,
	}
}

func (tc *TokenCounter) RecordUsage(tokens, requests int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := time.Now()

	if now.Sub(tc.lastMinuteReset) >= time.Minute {
		tc.minuteTokens = 0
		tc.minuteRequests = 0
		tc.lastMinuteReset = now
	}
	if now.Sub(tc.lastDayReset) >= 24*time.Hour {
		tc.dailyTokens = 0
		tc.dailyRequests = 0
		tc.lastDayReset = now
	}

	tc.minuteTokens += tokens
	tc.minuteRequests += requests
	tc.dailyTokens += tokens
	tc.dailyRequests += requests
}

func (tc *TokenCounter) DailyUsage() (tokens, requests int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.dailyTokens, tc.dailyRequests
}

// Rough estimation when the server omits eval counts: 1 token ≈ 4 characters
func estimateTokens(text string) int {
	estimated := len(text) / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}
