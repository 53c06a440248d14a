package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/MaximushkaBed/telegram-sales-parser/internal/config"
)

// Oracle is the external half of the engine: one binary classification call
// per message. Implementations must be safe for concurrent use.
type Oracle interface {
	IsSaleAd(ctx context.Context, text string) (bool, error)
}

// oracleSystemInstruction constrains the model to a single binary token so
// the response can be compared verbatim.
const oracleSystemInstruction = "Ты — высокоточный классификатор сообщений. " +
	"Определи, является ли сообщение объявлением о продаже, покупке или обмене товаров/услуг. " +
	"Отвечай только 'Да' или 'Нет'."

// affirmativeToken is the only response treated as a positive verdict.
const affirmativeToken = "да"

// oracleMaxOutputTokens caps the reply length; one token suffices for the
// binary answer.
const oracleMaxOutputTokens = 8

// geminiOracle implements Oracle using the Google Gemini SDK.
type geminiOracle struct {
	genaiClient   *genai.Client
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	modelName     string
	timeout       time.Duration
	maxRetries    int
	retryDelay    time.Duration
}

// NewGeminiOracle creates an Oracle backed by the Gemini API. Sampling is
// deterministic (temperature 0) and the output is capped to the binary
// token.
func NewGeminiOracle(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Oracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	temperature := float32(0)
	maxTokens := int32(oracleMaxOutputTokens)
	contentConfig := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: oracleSystemInstruction}}},
		Temperature:       &temperature,
		MaxOutputTokens:   maxTokens,
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	logger := log.With("component", "gemini_oracle")
	logger.Info("Gemini oracle initialized", "model", cfg.ModelName)
	return &geminiOracle{
		genaiClient:   gi,
		log:           logger,
		contentConfig: contentConfig,
		modelName:     cfg.ModelName,
		timeout:       cfg.Timeout,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}, nil
}

func (o *geminiOracle) IsSaleAd(ctx context.Context, text string) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Сообщение: %q", text)
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := o.generateContentWithRetries(ctx, contents)
	if err != nil {
		return false, err
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		return false, fmt.Errorf("oracle request blocked by safety filter: %v", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return false, errors.New("oracle returned empty content")
	}

	verdict := strings.ToLower(strings.TrimSpace(resp.Text()))
	verdict = strings.TrimRight(verdict, ".!")

	o.log.DebugContext(ctx, "Oracle verdict", "verdict", verdict)
	return verdict == affirmativeToken, nil
}

func (o *geminiOracle) generateContentWithRetries(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= o.maxRetries; i++ {
		resp, err = o.genaiClient.Models.GenerateContent(ctx, o.modelName, contents, o.contentConfig)
		if err == nil {
			return resp, nil
		}

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503) && i < o.maxRetries {
			o.log.WarnContext(ctx, "Gemini API call failed, retrying",
				"attempt", i+1, "code", apiErr.Code, "delay", o.retryDelay)
			time.Sleep(o.retryDelay)
			continue
		}

		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}

	return nil, fmt.Errorf("gemini API call failed after %d retries: %w", o.maxRetries, err)
}
