package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"TrafficSentry/internal/config"
)

// AlerterAnalyzer implements model.Analyzer using an OpenAI-compatible chat completion API.
type AlerterAnalyzer struct {
	cfg    config.AIConfig
	client *openai.Client
}

// NewAlerterAnalyzer creates a new instance of AlerterAnalyzer.
func NewAlerterAnalyzer(cfg config.AIConfig) (*AlerterAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("AI API key is not configured")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &AlerterAnalyzer{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

// Prompt wraps a dangerous-cluster summary into the analyst instruction sent to the model.
func Prompt(input string) string {
	return fmt.Sprintf(
		"You are a senior network security analyst. "+
			"The TrafficSentry monitor grouped traffic sources by behaviour and flagged the clusters below as dangerous. "+
			"Assess what kind of activity each cluster most likely represents (scanning, flooding, brute force or benign bursts), "+
			"how severe it is, and which sources to investigate first. Keep the answer concise and actionable.\n\n"+
			"--- Alert Data ---\n%s\n--- End of Alert Data ---", input,
	)
}

// AnalyzeTraffic asks the model for an analysis of the alert summary.
func (a *AlerterAnalyzer) AnalyzeTraffic(ctx context.Context, input string) (string, error) {
	resp, err := a.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: a.cfg.Model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: Prompt(input),
				},
			},
		},
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("AI request timeout: %w", err)
		}
		if errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("AI request canceled by client: %w", err)
		}
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI API returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
