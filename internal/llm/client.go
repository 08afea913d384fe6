package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/jonathan/forum-responder/internal/retry"
)

// Client is an abstraction over LLM providers
type Client interface {
	// GenerateContent generates text content using the specified model tier
	GenerateContent(ctx context.Context, system, prompt string, tier ModelTier) (*Result, error)
	// GenerateJSON generates JSON content using the specified model tier
	GenerateJSON(ctx context.Context, system, prompt string, tier ModelTier) (*Result, error)
	// GenerateVision generates text from an image plus an instruction, for transcription
	GenerateVision(ctx context.Context, system, prompt string, image []byte, format string, tier ModelTier) (*Result, error)
	// GetModel returns the underlying provider model for a tier (for direct access if needed)
	GetModel(tier ModelTier) string
	// Close releases any resources held by the client
	Close() error
}

// Result holds the generated text plus the usage/cost metadata recorded for
// every invocation.
type Result struct {
	Text         string
	Model        string
	InputTokens  int32
	OutputTokens int32
	Cost         Cost
	Elapsed      time.Duration
}

// Cost is the dollar cost breakdown of a single call.
type Cost struct {
	Input  float64 `json:"input_cost"`
	Output float64 `json:"output_cost"`
	Total  float64 `json:"total_cost"`
}

// Gemini pricing per million tokens, by model family.
const (
	proInputPerMillion        = 1.25
	proOutputPerMillion       = 10.0
	flashInputPerMillion      = 0.30
	flashOutputPerMillion     = 2.50
	flashLiteInputPerMillion  = 0.10
	flashLiteOutputPerMillion = 0.40
)

// CalculateCost computes the dollar cost of a call from token counts.
func CalculateCost(model string, inputTokens, outputTokens int32) Cost {
	inPrice, outPrice := flashInputPerMillion, flashOutputPerMillion
	switch {
	case strings.Contains(model, "pro"):
		inPrice, outPrice = proInputPerMillion, proOutputPerMillion
	case strings.Contains(model, "lite"):
		inPrice, outPrice = flashLiteInputPerMillion, flashLiteOutputPerMillion
	}

	c := Cost{
		Input:  float64(inputTokens) / 1_000_000 * inPrice,
		Output: float64(outputTokens) / 1_000_000 * outPrice,
	}
	c.Total = c.Input + c.Output
	return c
}

// NewClient creates a new LLM client based on configuration
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, config, apiKey)
	// case ProviderOpenAI:
	//     return NewOpenAIClient(ctx, config, apiKey)
	// case ProviderAnthropic:
	//     return NewClaudeClient(ctx, config, apiKey)
	default:
		return NewGeminiClient(ctx, config, apiKey)
	}
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

// GenerateContent generates text content using the specified model tier
func (c *GeminiClient) GenerateContent(ctx context.Context, system, prompt string, tier ModelTier) (*Result, error) {
	return c.generate(ctx, system, tier, false, genai.Text(prompt))
}

// GenerateJSON generates JSON content using the specified model tier.
// The response is stripped of markdown code block wrappers.
func (c *GeminiClient) GenerateJSON(ctx context.Context, system, prompt string, tier ModelTier) (*Result, error) {
	result, err := c.generate(ctx, system, tier, true, genai.Text(prompt))
	if err != nil {
		return nil, err
	}
	result.Text = CleanJSONBlock(result.Text)
	return result, nil
}

// GenerateVision generates text from an image followed by a text instruction.
// format is the image extension without a dot ("png", "jpeg", ...).
func (c *GeminiClient) GenerateVision(ctx context.Context, system, prompt string, image []byte, format string, tier ModelTier) (*Result, error) {
	return c.generate(ctx, system, tier, false, genai.ImageData(format, image), genai.Text(prompt))
}

// generate runs a single logical invocation through the shared retry policy.
// Each attempt is bounded by the configured call timeout.
func (c *GeminiClient) generate(ctx context.Context, system string, tier ModelTier, asJSON bool, parts ...genai.Part) (*Result, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return nil, fmt.Errorf("no model configured for tier %s", tier)
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(0.1) // Low temperature for consistent output
	if asJSON {
		model.ResponseMIMEType = "application/json"
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	policy := retry.Policy{
		Attempts: c.config.Attempts,
		Delay:    c.config.Backoff,
		Retryable: func(err error) bool {
			return ctx.Err() == nil
		},
	}

	var result *Result
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		attemptCtx := ctx
		if c.config.CallTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, c.config.CallTimeout)
			defer cancel()
		}

		start := time.Now()
		resp, err := model.GenerateContent(attemptCtx, parts...)
		if err != nil {
			return fmt.Errorf("failed to generate content: %w", err)
		}

		text, err := extractTextFromResponse(resp)
		if err != nil {
			return err
		}

		result = &Result{
			Text:    text,
			Model:   modelName,
			Elapsed: time.Since(start),
		}
		if resp.UsageMetadata != nil {
			result.InputTokens = resp.UsageMetadata.PromptTokenCount
			result.OutputTokens = resp.UsageMetadata.CandidatesTokenCount
			result.Cost = CalculateCost(modelName, result.InputTokens, result.OutputTokens)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetModel returns the model name for a tier
func (c *GeminiClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
