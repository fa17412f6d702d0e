package config

// LLMConfig configures the AI planning service.
type LLMConfig struct {
	Provider        string  `yaml:"provider"` // gemini
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	Timeout         string  `yaml:"timeout"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
}
