// ABOUTME: remote.Service implementation backed by the OpenAI Assistants API
// ABOUTME: Translates openai-go Beta threads/runs/assistants and moderations into parley types

package openaiapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/2389/parley/internal/moderation"
	"github.com/2389/parley/internal/remote"
)

// APIKeyEnv is consulted when no key is passed to New.
const APIKeyEnv = "OPENAI_API_KEY"

// Config holds connection settings. Empty fields fall back to library defaults.
type Config struct {
	APIKey          string
	BaseURL         string
	ModerationModel string
	MaxRetries      int
	HTTPClient      *http.Client
}

// Client adapts openai-go to remote.Service and moderation.Scorer.
type Client struct {
	api             openai.Client
	configured      bool
	moderationModel string
	logger          *slog.Logger
}

// New builds a Client. The key comes from cfg.APIKey, then OPENAI_API_KEY.
// A missing key is reported lazily: every remote call returns
// remote.ErrMissingCredential.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv(APIKeyEnv)
	}

	opts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	model := cfg.ModerationModel
	if model == "" {
		model = openai.ModerationModelOmniModerationLatest
	}

	return &Client{
		api:             openai.NewClient(opts...),
		configured:      key != "",
		moderationModel: model,
		logger:          logger.With("component", "openai"),
	}
}

func (c *Client) ready() error {
	if !c.configured {
		return fmt.Errorf("%w: set %s or openai.api_key", remote.ErrMissingCredential, APIKeyEnv)
	}
	return nil
}

// translate maps 404 responses onto remote.ErrNotFound and keeps everything else wrapped.
func translate(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w: %v", op, remote.ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// CreateThread implements remote.Threads.
func (c *Client) CreateThread(ctx context.Context) (*remote.Thread, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	th, err := c.api.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return nil, translate("creating thread", err)
	}
	c.logger.Debug("created thread", "thread_id", th.ID)
	return &remote.Thread{ID: th.ID, CreatedAt: time.Unix(th.CreatedAt, 0)}, nil
}

// GetThread implements remote.Threads.
func (c *Client) GetThread(ctx context.Context, threadID string) (*remote.Thread, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	th, err := c.api.Beta.Threads.Get(ctx, threadID)
	if err != nil {
		return nil, translate("retrieving thread", err)
	}
	return &remote.Thread{ID: th.ID, CreatedAt: time.Unix(th.CreatedAt, 0)}, nil
}

// PostMessage implements remote.Threads.
func (c *Client) PostMessage(ctx context.Context, threadID, content string) error {
	if err := c.ready(); err != nil {
		return err
	}
	_, err := c.api.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(content),
		},
	})
	if err != nil {
		return translate("posting message", err)
	}
	return nil
}

// StartRun implements remote.Threads.
func (c *Client) StartRun(ctx context.Context, threadID, assistantID string) (*remote.Run, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	run, err := c.api.Beta.Threads.Runs.New(ctx, threadID, openai.BetaThreadRunNewParams{
		AssistantID: assistantID,
	})
	if err != nil {
		return nil, translate("starting run", err)
	}
	return convertRun(run), nil
}

// GetRun implements remote.Threads.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*remote.Run, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	run, err := c.api.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return nil, translate("retrieving run", err)
	}
	return convertRun(run), nil
}

// CancelRun implements remote.Threads.
func (c *Client) CancelRun(ctx context.Context, threadID, runID string) (*remote.Run, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	run, err := c.api.Beta.Threads.Runs.Cancel(ctx, threadID, runID)
	if err != nil {
		return nil, translate("cancelling run", err)
	}
	return convertRun(run), nil
}

// SubmitToolOutputs implements remote.Threads.
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []remote.ToolOutput) (*remote.Run, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	params := openai.BetaThreadRunSubmitToolOutputsParams{
		ToolOutputs: make([]openai.BetaThreadRunSubmitToolOutputsParamsToolOutput, 0, len(outputs)),
	}
	for _, o := range outputs {
		params.ToolOutputs = append(params.ToolOutputs, openai.BetaThreadRunSubmitToolOutputsParamsToolOutput{
			ToolCallID: openai.String(o.CallID),
			Output:     openai.String(o.Output),
		})
	}
	run, err := c.api.Beta.Threads.Runs.SubmitToolOutputs(ctx, threadID, runID, params)
	if err != nil {
		return nil, translate("submitting tool outputs", err)
	}
	return convertRun(run), nil
}

// ListMessages implements remote.Threads.
func (c *Client) ListMessages(ctx context.Context, threadID string, limit int) ([]remote.Message, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	params := openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderDesc,
	}
	if limit > 0 {
		params.Limit = openai.Int(int64(limit))
	}
	page, err := c.api.Beta.Threads.Messages.List(ctx, threadID, params)
	if err != nil {
		return nil, translate("listing messages", err)
	}

	out := make([]remote.Message, 0, len(page.Data))
	for _, m := range page.Data {
		out = append(out, remote.Message{
			ID:          m.ID,
			ThreadID:    m.ThreadID,
			RunID:       m.RunID,
			AssistantID: m.AssistantID,
			Role:        string(m.Role),
			Text:        messageText(m),
			CreatedAt:   time.Unix(m.CreatedAt, 0),
		})
	}
	return out, nil
}

// messageText returns the first text block of a message.
func messageText(m openai.Message) string {
	for _, part := range m.Content {
		if part.Type == "text" {
			return part.Text.Value
		}
	}
	return ""
}

func convertRun(r *openai.Run) *remote.Run {
	out := &remote.Run{
		ID:          r.ID,
		ThreadID:    r.ThreadID,
		AssistantID: r.AssistantID,
		Status:      remote.RunStatus(r.Status),
		LastError:   r.LastError.Message,
	}
	for _, tc := range r.RequiredAction.SubmitToolOutputs.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, remote.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

// CreateAssistant implements remote.Assistants.
func (c *Client) CreateAssistant(ctx context.Context, def remote.AssistantDefinition) (*remote.Assistant, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	params := openai.BetaAssistantNewParams{
		Model: def.Model,
	}
	if def.Name != "" {
		params.Name = openai.String(def.Name)
	}
	if def.Description != "" {
		params.Description = openai.String(def.Description)
	}
	if def.Instructions != "" {
		params.Instructions = openai.String(def.Instructions)
	}
	if def.Temperature != nil {
		params.Temperature = openai.Float(*def.Temperature)
	}
	if def.TopP != nil {
		params.TopP = openai.Float(*def.TopP)
	}
	if len(def.Metadata) > 0 {
		params.Metadata = shared.Metadata(def.Metadata)
	}
	for _, fn := range def.Tools {
		params.Tools = append(params.Tools, openai.AssistantToolUnionParam{
			OfFunction: &openai.FunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        fn.Name,
					Description: openai.String(fn.Description),
					Parameters:  openai.FunctionParameters(fn.Parameters),
				},
			},
		})
	}

	a, err := c.api.Beta.Assistants.New(ctx, params)
	if err != nil {
		return nil, translate("creating assistant", err)
	}
	c.logger.Info("created assistant", "agent_id", a.ID, "name", a.Name)
	return &remote.Assistant{ID: a.ID, Name: a.Name, Model: a.Model}, nil
}

// GetAssistant implements remote.Assistants.
func (c *Client) GetAssistant(ctx context.Context, assistantID string) (*remote.Assistant, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	a, err := c.api.Beta.Assistants.Get(ctx, assistantID)
	if err != nil {
		return nil, translate("retrieving assistant", err)
	}
	return &remote.Assistant{ID: a.ID, Name: a.Name, Model: a.Model}, nil
}

// DeleteAssistant implements remote.Assistants.
func (c *Client) DeleteAssistant(ctx context.Context, assistantID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if _, err := c.api.Beta.Assistants.Delete(ctx, assistantID); err != nil {
		return translate("deleting assistant", err)
	}
	c.logger.Info("deleted assistant", "agent_id", assistantID)
	return nil
}

// Score implements moderation.Scorer.
func (c *Client) Score(ctx context.Context, text string) (moderation.Scores, error) {
	if err := c.ready(); err != nil {
		return moderation.Scores{}, err
	}
	resp, err := c.api.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(text)},
		Model: c.moderationModel,
	})
	if err != nil {
		return moderation.Scores{}, translate("scoring content", err)
	}
	if len(resp.Results) == 0 {
		return moderation.Scores{}, errors.New("scoring content: empty moderation result")
	}

	first := resp.Results[0]
	scores := make(map[string]float64)
	if raw := first.CategoryScores.RawJSON(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &scores); err != nil {
			return moderation.Scores{}, fmt.Errorf("decoding category scores: %w", err)
		}
	}
	return moderation.Scores{Flagged: first.Flagged, Categories: scores}, nil
}

var (
	_ remote.Service    = (*Client)(nil)
	_ moderation.Scorer = (*Client)(nil)
)
