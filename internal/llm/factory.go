package llm

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// NewProvider creates a Provider from configuration, wrapped with request
// logging. recorder may be nil when events should not be persisted.
// Callers check cfg.Enabled first; the "none" provider is an error here.
func NewProvider(ctx context.Context, cfg Config, recorder EventRecorder, log logrus.FieldLogger) (Provider, error) {
	var base Provider
	var err error

	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "mock":
		base = NewMockProvider()
	case ProviderNone, "":
		return nil, fmt.Errorf("LLM provider is disabled")
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	return WithLogging(base, cfg.Provider, recorder, log), nil
}
