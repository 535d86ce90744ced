package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/realty-ai-agent/internal/config"
	"github.com/wolfman30/realty-ai-agent/internal/llm"
	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

// BuildLLMClient wires Bedrock as primary and Gemini as fallback. Either
// alone works; with neither configured it returns a nil client and the
// agent runs on templates only. The returned closer is never nil.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, bedrock *bedrockruntime.Client, logger *logging.Logger) (llm.Client, func() error, error) {
	noop := func() error { return nil }
	if cfg == nil {
		return nil, noop, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var primary llm.Client
	if bedrock != nil && strings.TrimSpace(cfg.BedrockModelID) != "" {
		primary = llm.NewBedrockClient(bedrock, cfg.BedrockModelID)
	}

	var fallback llm.Client
	closer := noop
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Warn("gemini fallback unavailable", "error", err)
		} else {
			fallback = gemini
			closer = gemini.Close
		}
	}

	switch {
	case primary != nil && fallback != nil:
		logger.Info("llm configured", "primary", "bedrock", "model", cfg.BedrockModelID, "fallback", "gemini")
		return llm.NewFallbackClient(primary, fallback, logger), closer, nil
	case primary != nil:
		logger.Info("llm configured", "primary", "bedrock", "model", cfg.BedrockModelID)
		return primary, closer, nil
	case fallback != nil:
		logger.Info("llm configured", "primary", "gemini", "model", cfg.GeminiModelID)
		return fallback, closer, nil
	}
	logger.Warn("no LLM configured; replies come from templates only")
	return nil, closer, nil
}

// IntentModel picks the model for LLM intent verification.
func IntentModel(cfg *appconfig.Config) string {
	if m := strings.TrimSpace(cfg.BedrockIntentModelID); m != "" {
		return m
	}
	return cfg.BedrockModelID
}
