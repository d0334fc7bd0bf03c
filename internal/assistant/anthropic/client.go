// Package anthropic implements assistant.Provider on the Anthropic Messages
// API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/wilsonzlin/aero/proxy/callroom-relay/internal/assistant"
)

const (
	DefaultModel     = "claude-sonnet-4-5"
	DefaultMaxTokens = 150
)

type Config struct {
	APIKey string
	// Model defaults to DefaultModel.
	Model string
	// MaxTokens defaults to DefaultMaxTokens.
	MaxTokens int
	// MaxRetries is passed to the SDK. Zero disables retries.
	MaxRetries int
	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	api       sdk.Client
	model     string
	maxTokens int64
}

func New(cfg Config) *Client {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Client{
		api:       sdk.NewClient(opts...),
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

func (c *Client) Model() string { return c.model }

// Complete sends the conversation and returns the concatenated text blocks of
// the reply.
func (c *Client) Complete(ctx context.Context, system string, turns []assistant.Turn) (string, error) {
	msgs := buildMessages(turns)
	if len(msgs) == 0 {
		return "", &assistant.ProviderError{Kind: assistant.ErrorKindOther, Err: errors.New("no user turn to send")}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  msgs,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}

	resp, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type != "text" {
			continue
		}
		sb.WriteString(block.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", &assistant.ProviderError{Kind: assistant.ErrorKindOther, Err: fmt.Errorf("reply %s has no text content", resp.ID)}
	}
	return text, nil
}

func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &assistant.ProviderError{
			Kind:       assistant.KindForStatus(apiErr.StatusCode),
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	}
	return &assistant.ProviderError{Kind: assistant.ErrorKindOther, Err: err}
}

// buildMessages converts the transcript into the alternating user/assistant
// sequence the Messages API requires. Leading assistant turns (left behind by
// window eviction) are dropped and consecutive turns of the same role (left
// behind by failed exchanges) are merged into one message.
func buildMessages(turns []assistant.Turn) []sdk.MessageParam {
	type group struct {
		role  assistant.Role
		texts []string
	}
	var groups []group
	for _, t := range turns {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		if len(groups) == 0 && t.Role != assistant.RoleUser {
			continue
		}
		if n := len(groups); n > 0 && groups[n-1].role == t.Role {
			groups[n-1].texts = append(groups[n-1].texts, t.Text)
			continue
		}
		groups = append(groups, group{role: t.Role, texts: []string{t.Text}})
	}

	out := make([]sdk.MessageParam, 0, len(groups))
	for _, g := range groups {
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(g.texts))
		for _, text := range g.texts {
			blocks = append(blocks, sdk.NewTextBlock(text))
		}
		if g.role == assistant.RoleAssistant {
			out = append(out, sdk.NewAssistantMessage(blocks...))
		} else {
			out = append(out, sdk.NewUserMessage(blocks...))
		}
	}
	return out
}
