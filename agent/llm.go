package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vantus-ai/webpilot/config"
	"github.com/vantus-ai/webpilot/types"
)

const plannerSystemPrompt = `You control a web browser to accomplish a user goal.
Reply with a single JSON object and nothing else:
{"done": false, "reason": "...", "command": {"action": "navigate|click|type|scroll|screenshot|wait", "selector": "...", "value": "...", "delta_x": 0, "delta_y": 0}}
Set "done": true once the goal is accomplished and omit "command".
Selectors are CSS. For "navigate", put the URL in "value". For "type", put the text in "value".`

// providerBaseURLs maps a provider name to its OpenAI-compatible endpoint.
var providerBaseURLs = map[string]string{
	"deepseek": "https://api.deepseek.com",
	"openai":   "https://api.openai.com/v1",
}

// LLMConfig configures the chat-completion planner.
type LLMConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	// RequestsPerSecond throttles calls to the provider. Zero uses the
	// default of 1 rps with a small burst.
	RequestsPerSecond float64
}

// LLMPlanner asks an OpenAI-compatible chat endpoint for the next action.
type LLMPlanner struct {
	cfg     LLMConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewLLMPlanner creates a planner from agent configuration. The API key is
// read from WEBPILOT_API_KEY when not set explicitly.
func NewLLMPlanner(cfg config.AgentConfig, logger *zap.Logger) (*LLMPlanner, error) {
	llmCfg := LLMConfig{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		APIKey:      os.Getenv("WEBPILOT_API_KEY"),
	}
	return NewLLMPlannerWithConfig(llmCfg, logger)
}

// NewLLMPlannerWithConfig creates a planner with explicit settings.
func NewLLMPlannerWithConfig(cfg LLMConfig, logger *zap.Logger) (*LLMPlanner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		base, ok := providerBaseURLs[cfg.Provider]
		if !ok {
			return nil, types.Errorf(types.ErrInvalidConfig, "unknown LLM provider: %s", cfg.Provider)
		}
		cfg.BaseURL = base
	}
	if cfg.APIKey == "" {
		return nil, types.NewError(types.ErrInvalidConfig, "LLM API key is not set")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 1
	}
	return &LLMPlanner{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 3),
		logger:  logger.With(zap.String("component", "llm_planner"), zap.String("provider", cfg.Provider)),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NextAction sends the goal, page state, and history to the model and
// decodes its JSON reply.
func (p *LLMPlanner) NextAction(ctx context.Context, goal string, state PageState, history []StepRecord) (Decision, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return Decision{}, err
	}
	userMsg, err := buildUserMessage(goal, state, history)
	if err != nil {
		return Decision{}, err
	}

	body := chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: plannerSystemPrompt},
			{Role: "user", Content: userMsg},
		},
		Temperature: p.cfg.Temperature,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Decision{}, err
	}

	url := strings.TrimSuffix(p.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Decision{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Decision{}, fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Decision{}, fmt.Errorf("chat completion: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return Decision{}, fmt.Errorf("chat completion decode: %w", err)
	}
	if chat.Error != nil {
		return Decision{}, fmt.Errorf("chat completion: %s", chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return Decision{}, fmt.Errorf("chat completion: empty response")
	}

	decision, err := parseDecision(chat.Choices[0].Message.Content)
	if err != nil {
		return Decision{}, err
	}
	p.logger.Debug("planner decision",
		zap.Bool("done", decision.Done),
		zap.String("action", string(decision.Command.Action)))
	return decision, nil
}

func buildUserMessage(goal string, state PageState, history []StepRecord) (string, error) {
	payload := struct {
		Goal    string       `json:"goal"`
		State   PageState    `json:"state"`
		History []StepRecord `json:"history,omitempty"`
	}{Goal: goal, State: state, History: history}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// parseDecision decodes the model reply, tolerating a fenced code block
// around the JSON.
func parseDecision(content string) (Decision, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}

	var decision Decision
	if err := json.Unmarshal([]byte(content), &decision); err != nil {
		return Decision{}, fmt.Errorf("undecodable planner reply: %w", err)
	}
	if !decision.Done && decision.Command.Action == "" {
		return Decision{}, fmt.Errorf("planner reply has neither done nor a command")
	}
	return decision, nil
}
