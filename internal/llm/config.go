// Package llm wraps the content-generation model used to write document feedback.
package llm

// ModelTier represents the capability level of a model
type ModelTier string

const (
	// TierLite is for short guidance on unfilled sections
	TierLite ModelTier = "lite"
	// TierStandard is for section evaluations and the document overview
	TierStandard ModelTier = "standard"
)

// Config holds the model configuration for the feedback generator
type Config struct {
	Models          map[ModelTier]string
	Temperature     float32
	MaxOutputTokens int32
}

// DefaultConfig returns the default Gemini configuration
func DefaultConfig() *Config {
	return &Config{
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
		},
		Temperature:     0.4,
		MaxOutputTokens: 2048,
	}
}

// GetModel returns the model name for a tier, falling back to the standard tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok && model != "" {
		return model
	}
	return c.Models[TierStandard]
}

// WithModel returns a copy of c with model set for tier. An empty model leaves c unchanged.
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	next := &Config{
		Models:          make(map[ModelTier]string, len(c.Models)+1),
		Temperature:     c.Temperature,
		MaxOutputTokens: c.MaxOutputTokens,
	}
	for k, v := range c.Models {
		next.Models[k] = v
	}
	if model != "" {
		next.Models[tier] = model
	}
	return next
}
