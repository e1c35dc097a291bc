package llm

import (
	"context"
	"iter"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/orgpedia/orgpedia/internal/log"
)

// OpenAI streams chat completions through the official openai-go client.
type OpenAI struct {
	client openai.Client
	opts   Options
	logger log.Logger
}

// NewOpenAI creates an OpenAI provider. extra request options (base URL
// overrides in tests, org headers) may be appended.
func NewOpenAI(apiKey string, opts Options, logger log.Logger, extra ...option.RequestOption) *OpenAI {
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, extra...)
	return &OpenAI{
		client: openai.NewClient(reqOpts...),
		opts:   opts,
		logger: logger,
	}
}

// Name implements Provider.
func (o *OpenAI) Name() string { return "openai" }

// Stream implements Provider.
func (o *OpenAI) Stream(ctx context.Context, model string, msgs []Message) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		params := openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(model),
			Messages: toOpenAIMessages(msgs),
		}
		if o.opts.Temperature > 0 {
			params.Temperature = openai.Float(o.opts.Temperature)
		}
		if o.opts.MaxTokens > 0 {
			params.MaxTokens = openai.Int(int64(o.opts.MaxTokens))
		}

		stream := o.client.Chat.Completions.NewStreaming(ctx, params)
		defer func() {
			_ = stream.Close()
		}()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if !yield(Chunk{Content: delta}, nil) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			yield(Chunk{}, err)
			return
		}

		yield(Chunk{Done: true}, nil)
	}
}

// toOpenAIMessages converts the internal message list to the SDK's union
// types. Unknown roles are sent as user messages rather than dropped.
func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
