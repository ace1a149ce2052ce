package config

import (
	"fmt"

	"github.com/entrhq/browserpilot/pkg/types"
)

// Backend profile names accepted as serverTarget.
const (
	TargetVPS     = "vps"
	TargetCloudEU = "cloud-eu"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434/v1"
	defaultOllamaAPIKey  = "ollama"
	defaultOllamaModel   = "kimi-k2-thinking:cloud"
)

// Backend is a resolved model endpoint.
type Backend struct {
	Profile string
	BaseURL string
	APIKey  string
	Model   string
}

// ResolveBackend maps a serverTarget to endpoint settings. The set of
// targets is closed and an incomplete profile is an error, never a fallback.
func ResolveBackend(target string, env Env) (Backend, error) {
	switch target {
	case "", TargetVPS:
		return Backend{
			Profile: TargetVPS,
			BaseURL: env.GetDefault("OLLAMA_BASE_URL", defaultOllamaBaseURL),
			APIKey:  env.GetDefault("OLLAMA_API_KEY", defaultOllamaAPIKey),
			Model:   env.GetDefault("OLLAMA_MODEL", defaultOllamaModel),
		}, nil

	case TargetCloudEU:
		b := Backend{
			Profile: TargetCloudEU,
			BaseURL: env.Get("OLLAMA_CLOUD_BASE_URL"),
			APIKey:  env.Get("OLLAMA_CLOUD_API_KEY"),
			Model:   env.GetDefault("OLLAMA_CLOUD_MODEL", defaultOllamaModel),
		}
		var missing []string
		if b.BaseURL == "" {
			missing = append(missing, "OLLAMA_CLOUD_BASE_URL")
		}
		if b.APIKey == "" {
			missing = append(missing, "OLLAMA_CLOUD_API_KEY")
		}
		if len(missing) > 0 {
			return Backend{}, &types.ConfigurationError{
				Code:    types.CodeBackendMisconfigured,
				Profile: TargetCloudEU,
				Missing: missing,
			}
		}
		return b, nil

	default:
		return Backend{}, &types.ConfigurationError{
			Code:    types.CodeBackendMisconfigured,
			Profile: target,
			Message: fmt.Sprintf("unknown server target %q (expected %q or %q)", target, TargetVPS, TargetCloudEU),
		}
	}
}
