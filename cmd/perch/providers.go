package cli

import (
	"fmt"

	"github.com/perchbot/perch/internal/agent/ai"
	"github.com/perchbot/perch/internal/agent/runner"
	"github.com/perchbot/perch/internal/config"
	"github.com/perchbot/perch/internal/logging"
)

// BuildCandidates resolves each configured provider into a live handle,
// preserving config order: primary first, then fallbacks. Entries with
// missing credentials are skipped with a warning so the default config
// works with whichever keys the user has set; an unknown provider name
// is an error so a typo never silently shortens the failover chain.
func BuildCandidates(cfg *config.Config) ([]runner.Candidate, error) {
	candidates := make([]runner.Candidate, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		provider, err := buildProvider(pc)
		if err != nil {
			return nil, err
		}
		if provider == nil {
			continue
		}
		candidates = append(candidates, runner.Candidate{Config: pc, Provider: provider})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no usable providers; set an API key for at least one entry under providers: in the config")
	}
	return candidates, nil
}

// buildProvider returns (nil, nil) when the entry is valid but unusable
// right now: missing credentials, or a local Ollama that isn't running.
func buildProvider(pc config.ProviderConfig) (ai.Provider, error) {
	switch pc.Name {
	case "anthropic":
		if pc.APIKey == "" {
			logging.Warnf("provider %s/%s skipped: no API key set", pc.Name, pc.Model)
			return nil, nil
		}
		return ai.NewAnthropicProvider(pc.APIKey, pc.Model), nil
	case "openai":
		if pc.APIKey == "" {
			logging.Warnf("provider %s/%s skipped: no API key set", pc.Name, pc.Model)
			return nil, nil
		}
		return ai.NewOpenAIProvider(pc.APIKey, pc.Model), nil
	case "gemini":
		if pc.APIKey == "" {
			logging.Warnf("provider %s/%s skipped: no API key set", pc.Name, pc.Model)
			return nil, nil
		}
		return ai.NewGeminiProvider(pc.APIKey, pc.Model), nil
	case "ollama":
		if !ai.CheckOllamaAvailable(pc.BaseURL) {
			logging.Warnf("provider ollama/%s skipped: not reachable at %s", pc.Model, pc.BaseURL)
			return nil, nil
		}
		return ai.NewOllamaProvider(pc.BaseURL, pc.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (supported: anthropic, openai, gemini, ollama)", pc.Name)
	}
}
