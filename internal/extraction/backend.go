package extraction

import (
	"context"
	"fmt"
)

const (
	BackendDocIntel = "docintel"
	BackendGemini   = "gemini"
)

// Config selects and configures a Backend
type Config struct {
	Backend     string
	DocIntel    DocIntelConfig
	GeminiKey   string
	GeminiModel string
}

// New creates the backend named by cfg.Backend, defaulting to docintel
func New(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "", BackendDocIntel:
		return NewDocIntel(cfg.DocIntel), nil
	case BackendGemini:
		g, err := NewGemini(ctx, cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (valid: %s, %s)", cfg.Backend, BackendDocIntel, BackendGemini)
	}
}
