package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/meridian-mfg/pricewatch/internal/domain/entity"
	"github.com/meridian-mfg/pricewatch/internal/gate"
)

// Extractor is the billable structured-extraction stage, invoked only after
// detection has confirmed a price change.
type Extractor struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	logger      *zap.Logger
}

// NewExtractor creates a new extraction stage
func NewExtractor(cfg Config, logger *zap.Logger) *Extractor {
	return &Extractor{
		client:      openai.NewClient(cfg.APIKey),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		logger:      logger,
	}
}

const extractorSystemPrompt = "You are a procurement data-entry specialist. Extract every " +
	"product price change announced in a supplier email into structured records. Extract " +
	"exactly what the email states; never invent part numbers or prices. Always respond " +
	"with valid JSON."

// Extract runs the extraction call and returns one record per affected
// product. Like detection, it requires a gate verdict.
func (e *Extractor) Extract(ctx context.Context, clearance gate.Verdict, rec *entity.EmailRecord, body string) (*entity.ExtractedPriceChange, error) {
	if !clearance.Verified() {
		return nil, ErrNotCleared
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`Extract all price changes from this supplier email:

Sender: %s
Subject: %s

Body:
%s

Respond with ONLY a JSON object:
{
  "products": [
    {
      "product_name": "string, the product as named in the email",
      "part_num": "string, internal or manufacturer part number if stated, else empty",
      "supplier_name": "string, the announcing supplier",
      "old_price": number (0 if not stated),
      "new_price": number,
      "currency": "ISO code if stated, else empty",
      "effective_date": "YYYY-MM-DD if stated, else empty"
    }
  ],
  "confidence": number between 0.0 and 1.0
}

Include one entry per product. If a field is not present in the email, use
the empty value; do not guess.`, rec.Sender, rec.Subject, body)

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		e.logger.Error("Extraction call failed",
			zap.String("message_id", rec.MessageID),
			zap.Error(err))
		return nil, fmt.Errorf("extraction call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("extraction call returned no choices")
	}

	extracted, err := parseExtraction(resp.Choices[0].Message.Content)
	if err != nil {
		e.logger.Error("Failed to parse extraction response",
			zap.String("message_id", rec.MessageID),
			zap.String("content", resp.Choices[0].Message.Content),
			zap.Error(err))
		return nil, err
	}

	extracted.MessageID = rec.MessageID
	extracted.ExtractedAt = time.Now()

	e.logger.Info("Extraction completed",
		zap.String("message_id", rec.MessageID),
		zap.Int("products", len(extracted.Products)),
		zap.Float64("confidence", extracted.Confidence))
	return extracted, nil
}

func parseExtraction(content string) (*entity.ExtractedPriceChange, error) {
	var extracted entity.ExtractedPriceChange
	if err := json.Unmarshal([]byte(content), &extracted); err != nil {
		jsonStr := extractJSON(content)
		if jsonStr == "" {
			return nil, fmt.Errorf("failed to parse extraction response: %w", err)
		}
		if err := json.Unmarshal([]byte(jsonStr), &extracted); err != nil {
			return nil, fmt.Errorf("failed to parse extraction response: %w", err)
		}
	}
	return &extracted, nil
}
