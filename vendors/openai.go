package vendors

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/xiaoyuanzhu-com/my-life-chat/chats"
	"github.com/xiaoyuanzhu-com/my-life-chat/log"
	"github.com/xiaoyuanzhu-com/my-life-chat/models"
)

var logger = log.GetLogger("OpenAI")

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("openai is not configured")
	// ErrRepliesDisabled is returned for chats whose settings forbid replies.
	ErrRepliesDisabled = errors.New("replies are disabled for this chat")
)

// ChatStream is the part of *openai.ChatCompletionStream the responder reads.
type ChatStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// ChatCompleter opens streaming chat completions.
type ChatCompleter interface {
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (ChatStream, error)
}

// ReplyStore is what the responder needs from the chat store.
type ReplyStore interface {
	Messages(ctx context.Context, path chats.Path) ([]models.Message, error)
	Settings(ctx context.Context, path chats.Path) (models.ChatSettings, error)
	AppendToken(ctx context.Context, path chats.Path, role models.Role, token string, isFirst bool) error
}

type openAIClient struct {
	client *openai.Client
}

func (c openAIClient) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (ChatStream, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// ResponderConfig holds application-wide model defaults.
type ResponderConfig struct {
	Model        string
	SystemPrompt string
}

// Responder streams model replies into a chat, one AppendToken per delta.
type Responder struct {
	client ChatCompleter
	store  ReplyStore
	cfg    ResponderConfig
}

// NewResponder builds a responder around any completion client.
func NewResponder(store ReplyStore, client ChatCompleter, cfg ResponderConfig) *Responder {
	return &Responder{
		client: client,
		store:  store,
		cfg:    cfg,
	}
}

// OpenAIConfig holds connection settings and model defaults
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
}

// NewOpenAIResponder builds a responder backed by the OpenAI API
func NewOpenAIResponder(store ReplyStore, cfg OpenAIConfig) (*Responder, error) {
	if cfg.APIKey == "" {
		logger.Warn().Msg("OPENAI_API_KEY not configured, replies disabled")
		return nil, ErrNotConfigured
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" && cfg.BaseURL != "https://api.openai.com/v1" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	logger.Info().Str("model", cfg.Model).Str("baseURL", cfg.BaseURL).Msg("OpenAI initialized")
	return NewResponder(store, openAIClient{client: openai.NewClientWithConfig(clientConfig)}, ResponderConfig{
		Model:        cfg.Model,
		SystemPrompt: cfg.SystemPrompt,
	}), nil
}

// BuildRequest turns a chat log and its settings into a streaming request.
// Tool messages are notes for the user and are not sent to the model.
func (r *Responder) BuildRequest(messages []models.Message, settings models.ChatSettings) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:  r.cfg.Model,
		Stream: true,
	}
	if settings.LLM.ModelID != "" {
		req.Model = settings.LLM.ModelID
	}
	if settings.LLM.Temperature != nil {
		req.Temperature = float32(*settings.LLM.Temperature)
		// The client omits a zero temperature from the request body.
		if req.Temperature == 0 {
			req.Temperature = math.SmallestNonzeroFloat32
		}
	}
	if settings.LLM.NumPredict != nil && *settings.LLM.NumPredict > 0 {
		req.MaxTokens = *settings.LLM.NumPredict
	}

	systemPrompt := r.cfg.SystemPrompt
	if settings.LLM.SystemPrompt != nil {
		systemPrompt = *settings.LLM.SystemPrompt
	}
	if strings.TrimSpace(systemPrompt) != "" {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}

	for _, m := range messages {
		var role string
		switch m.Role {
		case models.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case models.RoleUser:
			role = openai.ChatMessageRoleUser
		case models.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		default:
			continue
		}
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}
	return req
}

// Reply asks the model to continue the chat at path and commits the
// streamed answer as a new assistant message. It returns the full reply.
func (r *Responder) Reply(ctx context.Context, path chats.Path) (string, error) {
	settings, err := r.store.Settings(ctx, path)
	if err != nil {
		return "", err
	}
	if !settings.RepliesAllowed {
		return "", ErrRepliesDisabled
	}
	messages, err := r.store.Messages(ctx, path)
	if err != nil {
		return "", err
	}

	req := r.BuildRequest(messages, settings)
	logger.Debug().
		Str("path", path.String()).
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Msg("openai stream request")

	stream, err := r.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("completion stream failed")
		return "", err
	}
	defer stream.Close()

	var reply strings.Builder
	first := true
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Error().Err(err).Int("received", reply.Len()).Msg("completion stream interrupted")
			return reply.String(), err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := r.store.AppendToken(ctx, path, models.RoleAssistant, delta, first); err != nil {
			return reply.String(), err
		}
		first = false
		reply.WriteString(delta)
	}

	logger.Debug().Str("path", path.String()).Int("chars", reply.Len()).Msg("reply committed")
	return reply.String(), nil
}
