// Package ai implements the two billable OpenAI stages: price-change
// detection and structured extraction. Both require a gate.Verdict, so
// neither can run on an email the verification gate has not cleared.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/meridian-mfg/pricewatch/internal/domain/entity"
	"github.com/meridian-mfg/pricewatch/internal/gate"
)

// ErrNotCleared is returned when a caller presents an unverified verdict.
// This should be unreachable from the pipeline; it is a last-line defense
// of the gate-before-detect ordering.
var ErrNotCleared = errors.New("email has not cleared the verification gate")

// Config holds the OpenAI call parameters shared by both stages
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Detector is the billable classification stage deciding whether an email
// is a supplier price-change notification.
type Detector struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	logger      *zap.Logger
}

// NewDetector creates a new detection stage
func NewDetector(cfg Config, logger *zap.Logger) *Detector {
	return &Detector{
		client:      openai.NewClient(cfg.APIKey),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		logger:      logger,
	}
}

const detectorSystemPrompt = "You are a procurement analyst for a manufacturing company. " +
	"Classify whether a supplier email announces a price change (price increase, decrease, " +
	"surcharge, or revised price list) for purchased parts. Always respond with valid JSON."

// Classify runs the detection call. The clearance argument makes this stage
// unreachable without a gate result for the email.
func (d *Detector) Classify(ctx context.Context, clearance gate.Verdict, rec *entity.EmailRecord, body string) (*entity.DetectionOutcome, error) {
	if !clearance.Verified() {
		return nil, ErrNotCleared
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`Classify this supplier email:

Sender: %s
Subject: %s

Body:
%s

Respond with ONLY a JSON object:
{
  "is_price_change": boolean,
  "confidence": number between 0.0 and 1.0,
  "reasoning": "one or two sentences explaining the classification"
}`, rec.Sender, rec.Subject, body)

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       d.model,
		Temperature: d.temperature,
		MaxTokens:   d.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: detectorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		d.logger.Error("Detection call failed",
			zap.String("message_id", rec.MessageID),
			zap.Error(err))
		return nil, fmt.Errorf("detection call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("detection call returned no choices")
	}

	outcome, err := parseDetection(resp.Choices[0].Message.Content)
	if err != nil {
		d.logger.Error("Failed to parse detection response",
			zap.String("message_id", rec.MessageID),
			zap.String("content", resp.Choices[0].Message.Content),
			zap.Error(err))
		return nil, err
	}

	d.logger.Info("Detection completed",
		zap.String("message_id", rec.MessageID),
		zap.Bool("is_price_change", outcome.IsPriceChange),
		zap.Float64("confidence", outcome.Confidence))
	return outcome, nil
}

func parseDetection(content string) (*entity.DetectionOutcome, error) {
	var outcome entity.DetectionOutcome
	if err := json.Unmarshal([]byte(content), &outcome); err != nil {
		jsonStr := extractJSON(content)
		if jsonStr == "" {
			return nil, fmt.Errorf("failed to parse detection response: %w", err)
		}
		if err := json.Unmarshal([]byte(jsonStr), &outcome); err != nil {
			return nil, fmt.Errorf("failed to parse detection response: %w", err)
		}
	}
	return &outcome, nil
}
