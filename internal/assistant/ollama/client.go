// Package ollama implements assistant.Provider on a local Ollama server's
// /api/chat endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/assistant"
)

const (
	DefaultEndpoint = "http://localhost:11434"
	DefaultModel    = "llama3.2"
)

type Config struct {
	// Endpoint is the server base URL; /api/chat is appended.
	Endpoint string
	Model    string
	// MaxTokens maps to options.num_predict. Zero leaves the server default.
	MaxTokens  int
	HTTPClient *http.Client
}

type Client struct {
	url       string
	model     string
	maxTokens int
	client    *http.Client
}

func New(cfg Config) *Client {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{url: endpoint + "/api/chat", model: model, maxTokens: cfg.MaxTokens, client: hc}
}

func (c *Client) Model() string { return c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

func (c *Client) Complete(ctx context.Context, system string, turns []assistant.Turn) (string, error) {
	req := chatRequest{Model: c.model, Stream: false}
	if system != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: system})
	}
	for _, t := range turns {
		req.Messages = append(req.Messages, chatMessage{Role: string(t.Role), Content: t.Text})
	}
	if c.maxTokens > 0 {
		req.Options = &chatOptions{NumPredict: c.maxTokens}
	}

	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", &assistant.ProviderError{Kind: assistant.ErrorKindOther, Err: fmt.Errorf("post to ollama: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &assistant.ProviderError{
			Kind:       assistant.KindForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("ollama: %s", strings.TrimSpace(string(msg))),
		}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &assistant.ProviderError{Kind: assistant.ErrorKindOther, Err: fmt.Errorf("decode ollama response: %w", err)}
	}
	if out.Error != "" {
		return "", &assistant.ProviderError{Kind: assistant.ErrorKindOther, Err: errors.New(out.Error)}
	}
	text := strings.TrimSpace(out.Message.Content)
	if text == "" {
		return "", &assistant.ProviderError{Kind: assistant.ErrorKindOther, Err: errors.New("ollama returned an empty message")}
	}
	return text, nil
}
