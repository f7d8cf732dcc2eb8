package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mwinata/crm-web-ui/internal/handlers"
	"github.com/mwinata/crm-web-ui/internal/services"
	"gopkg.in/yaml.v3"
)

type botConfig interface {
	bot(systemPrompt string) (handlers.Bot, error)
}

// BaseBotConfig contains the common fields for all bot configurations.
type BaseBotConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type config struct {
	Port         string    `yaml:"port"`
	DBPath       string    `yaml:"dbPath"`
	SystemPrompt string    `yaml:"systemPrompt"`
	Streaming    bool      `yaml:"streaming"`
	IconBaseURL  string    `yaml:"iconBaseURL"`
	IconCacheTTL string    `yaml:"iconCacheTTL"`
	Bot          botConfig `yaml:"bot"`
}

type ollamaConfig struct {
	BaseBotConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

type openAIConfig struct {
	BaseBotConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port         string         `yaml:"port"`
		DBPath       string         `yaml:"dbPath"`
		SystemPrompt string         `yaml:"systemPrompt"`
		Streaming    *bool          `yaml:"streaming"`
		IconBaseURL  string         `yaml:"iconBaseURL"`
		IconCacheTTL string         `yaml:"iconCacheTTL"`
		Bot          map[string]any `yaml:"bot"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.DBPath = rawConfig.DBPath
	c.SystemPrompt = rawConfig.SystemPrompt
	c.IconBaseURL = rawConfig.IconBaseURL
	c.IconCacheTTL = rawConfig.IconCacheTTL

	// Streaming defaults to on; a bot_response reply path has to be opted into.
	c.Streaming = true
	if rawConfig.Streaming != nil {
		c.Streaming = *rawConfig.Streaming
	}

	botProvider, ok := rawConfig.Bot["provider"].(string)
	if !ok {
		return fmt.Errorf("bot provider is required")
	}

	botRawYAML, err := yaml.Marshal(rawConfig.Bot)
	if err != nil {
		return err
	}

	var bot botConfig
	switch botProvider {
	case "ollama":
		bot = &ollamaConfig{}
	case "openai":
		bot = &openAIConfig{}
	default:
		return fmt.Errorf("unknown bot provider: %s", botProvider)
	}

	if err := yaml.Unmarshal(botRawYAML, bot); err != nil {
		return err
	}

	c.Bot = bot

	return nil
}

func (c config) iconCacheTTL() (time.Duration, error) {
	if c.IconCacheTTL == "" {
		return time.Hour, nil
	}
	d, err := time.ParseDuration(c.IconCacheTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid iconCacheTTL: %w", err)
	}
	return d, nil
}

func (o ollamaConfig) bot(systemPrompt string) (handlers.Bot, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	return services.NewOllama(host, o.Model, systemPrompt), nil
}

func (o openAIConfig) bot(systemPrompt string) (handlers.Bot, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return services.NewOpenAI(apiKey, o.BaseURL, o.Model, systemPrompt), nil
}
