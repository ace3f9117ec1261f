package ai

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "grading_duration_seconds",
		Help:      "Duration of AI grading requests",
	}, []string{"model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "grading_failures_total",
		Help:      "Number of AI grading failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI grader.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIGrader implements Grader against the OpenAI chat completion API.
type OpenAIGrader struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGrader builds a new grader using the provided configuration.
func NewOpenAIGrader(cfg OpenAIConfig) (*OpenAIGrader, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIGrader{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-kg/pkg/ai/openai"),
		logger: logger.With().Str("component", "openai_grader").Logger(),
	}, nil
}

// Grade sends the submission to OpenAI and parses the per-question outcomes.
func (g *OpenAIGrader) Grade(parent context.Context, input GradingInput) (GradingResult, error) {
	ctx, span := g.tracer.Start(parent, "openai.grade", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.Int("rubric.size", len(input.Rubric)),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: graderSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildUserPrompt(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := g.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues(g.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return GradingResult{}, g.fail(span, fmt.Errorf("openai grade: %w", err))
	}

	if len(resp.Choices) == 0 {
		return GradingResult{}, g.fail(span, fmt.Errorf("no choices returned from openai"))
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	result, err := parseGradingResponse(content, input.MaxScore)
	if err != nil {
		return GradingResult{}, g.fail(span, err)
	}

	result.Raw = map[string]interface{}{
		"usage": resp.Usage,
	}
	span.SetAttributes(attribute.Int("outcomes", len(result.Outcomes)))
	g.logger.Debug().Int("outcomes", len(result.Outcomes)).Float64("grade", result.Grade).Msg("submission graded")

	return result, nil
}

func (g *OpenAIGrader) fail(span trace.Span, err error) error {
	aiFailures.WithLabelValues(g.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func graderSystemPrompt() string {
	return "You are a strict teaching assistant grading written answers against a rubric. Respond with a JSON object " +
		"containing grade (number), feedback (string) and outcomes (array). Add one outcome per question where points " +
		"were lost with question, justification, scoreAwarded, rubricCriteriaMatched (rubric criterion names), " +
		"sourceTextExcerpts (short quotes from the course material the student should revisit) and optional " +
		"criteriaDescriptions mapping criterion name to description."
}

func buildUserPrompt(input GradingInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Assignment\n")
	builder.WriteString(input.AssignmentName)
	if input.Instructions != "" {
		builder.WriteString("\n\n## Instructions\n")
		builder.WriteString(input.Instructions)
	}
	builder.WriteString("\n\n## Rubric\n")
	for _, item := range input.Rubric {
		builder.WriteString("- ")
		builder.WriteString(item.Name)
		if item.Points > 0 {
			builder.WriteString(" (")
			builder.WriteString(strconv.FormatFloat(item.Points, 'f', -1, 64))
			builder.WriteString(" pts)")
		}
		if item.Description != "" {
			builder.WriteString(": ")
			builder.WriteString(item.Description)
		}
		builder.WriteString("\n")
	}
	if input.MaxScore > 0 {
		builder.WriteString("\n## Maximum Score\n")
		builder.WriteString(strconv.FormatFloat(input.MaxScore, 'f', -1, 64))
		builder.WriteString("\n")
	}
	if len(input.SectionTitles) > 0 {
		builder.WriteString("\n## Course Material Sections\n")
		for _, title := range input.SectionTitles {
			builder.WriteString("- ")
			builder.WriteString(title)
			builder.WriteString("\n")
		}
	}
	builder.WriteString("\n## Submission\n")
	builder.WriteString(input.SubmissionText)
	if input.AdditionalNotes != "" {
		builder.WriteString("\n\n## Notes\n")
		builder.WriteString(input.AdditionalNotes)
	}
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}
