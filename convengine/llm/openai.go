package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bloomline-ai/promoflow/convengine/observability"
)

var tracer = otel.Tracer("promoflow/llm")

// DefaultModel is used when no model is configured.
const DefaultModel = openai.GPT4oMini

// OpenAIGenerator calls the OpenAI chat completion API.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIGenerator builds a generator backed by the OpenAI API.
// An empty model selects DefaultModel.
func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIGenerator{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: 0.7,
	}
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, systemPrompt, userContext string) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.generate",
		trace.WithAttributes(attribute.String("llm.model", g.model)))
	defer span.End()

	started := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userContext},
		},
	})
	elapsed := int(time.Since(started).Milliseconds())

	if err != nil {
		status := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
			err = ErrTimeout
		}
		observability.RecordLLMCall("openai", g.model, status, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		return "", err
	}

	observability.RecordLLMCall("openai", g.model, "success", elapsed)
	span.SetStatus(codes.Ok, "success")

	if len(resp.Choices) == 0 {
		return "", errors.New("llm: empty completion response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
