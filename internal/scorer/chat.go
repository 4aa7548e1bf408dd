package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ChatConfig configures the chat-completions backend. The cloud profile
// points BaseURL at a hosted OpenAI-compatible endpoint with credentials;
// the local profile points it at an Ollama server with none. The core
// behaves identically either way.
type ChatConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float64
	HTTPClient  *http.Client
}

// ChatScorer calls an OpenAI-compatible /v1/chat/completions endpoint.
type ChatScorer struct {
	config ChatConfig
	client *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewChatScorer validates the config and returns a chat-backed scorer.
func NewChatScorer(config ChatConfig) (*ChatScorer, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("chat scorer requires a base URL")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("chat scorer requires a model")
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &ChatScorer{config: config, client: client}, nil
}

// Score sends the prompt and parses the completion text. Any transport or
// upstream failure surfaces as ErrScorerUnavailable.
func (s *ChatScorer) Score(ctx context.Context, prompt string) (Scored, error) {
	reqBody := chatRequest{
		Model:       s.config.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
		Stream:      false,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Scored{}, fmt.Errorf("failed to encode scoring request: %w", err)
	}

	url := strings.TrimRight(s.config.BaseURL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Scored{}, fmt.Errorf("failed to build scoring request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return Scored{}, fmt.Errorf("%w: %v", ErrScorerUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Scored{}, fmt.Errorf("%w: reading response: %v", ErrScorerUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return Scored{}, fmt.Errorf("%w: status %d: %s", ErrScorerUnavailable, resp.StatusCode, snippet)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Scored{}, fmt.Errorf("%w: decoding response: %v", ErrScorerUnavailable, err)
	}
	if len(parsed.Choices) == 0 {
		return Scored{}, fmt.Errorf("%w: response carried no choices", ErrScorerUnavailable)
	}

	log.Debug().
		Str("model", s.config.Model).
		Int("prompt_tokens", parsed.Usage.PromptTokens).
		Int("completion_tokens", parsed.Usage.CompletionTokens).
		Dur("latency", time.Since(start)).
		Msg("Scorer call completed")

	return Parse(parsed.Choices[0].Message.Content), nil
}
