package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names accepted by llm.provider.
const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"
)

// ProviderOrder is the order in which providers are tried when none is chosen.
var ProviderOrder = []string{ProviderGroq, ProviderOpenAI, ProviderGoogle}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type LLMConfig struct {
	Provider    string         `yaml:"provider"`
	Timeout     time.Duration  `yaml:"timeout"`
	MaxTokens   int            `yaml:"max_tokens"`
	Temperature float64        `yaml:"temperature"`
	Groq        ProviderConfig `yaml:"groq"`
	OpenAI      ProviderConfig `yaml:"openai"`
	Google      ProviderConfig `yaml:"google"`
}

type EmbedderConfig struct {
	Type      string `yaml:"type"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

type DatabaseConfig struct {
	Type       string `yaml:"type"`
	URL        string `yaml:"url"`
	SQLitePath string `yaml:"sqlite_path"`
	TableName  string `yaml:"table_name"`
}

type ScraperConfig struct {
	MaxDepth       int      `yaml:"max_depth"`
	RateLimit      float64  `yaml:"rate_limit"`
	IgnorePatterns []string `yaml:"ignore_patterns"`
}

type ProcessorConfig struct {
	MaxChunkSize int `yaml:"max_chunk_size"`
	Overlap      int `yaml:"overlap"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

type AssistantConfig struct {
	Locale          string `yaml:"locale"`
	HistoryTurns    int    `yaml:"history_turns"`
	IngestWorkers   int    `yaml:"ingest_workers"`
	DuplicatePolicy string `yaml:"duplicate_policy"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Database  DatabaseConfig  `yaml:"database"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Processor ProcessorConfig `yaml:"processor"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Assistant AssistantConfig `yaml:"assistant"`
	Server    ServerConfig    `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/pdfchat/config.yaml"),
			"/etc/pdfchat/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := newConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Environment wins over the file
	mergeWithEnv(config)
	applyDefaults(config)

	return config, nil
}

// unsetOverlap marks an overlap the user never chose, since 0 is a valid overlap.
const unsetOverlap = -1

func newConfig() *Config {
	return &Config{Processor: ProcessorConfig{Overlap: unsetOverlap}}
}

func getDefaultConfig() (*Config, error) {
	config := newConfig()
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

// Provider returns the configuration block for the named provider.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	switch name {
	case ProviderGroq:
		return c.LLM.Groq, true
	case ProviderOpenAI:
		return c.LLM.OpenAI, true
	case ProviderGoogle:
		return c.LLM.Google, true
	}
	return ProviderConfig{}, false
}

// AvailableProviders lists the providers that have an API key, in ProviderOrder.
func (c *Config) AvailableProviders() []string {
	var out []string
	for _, name := range ProviderOrder {
		if p, _ := c.Provider(name); p.APIKey != "" {
			out = append(out, name)
		}
	}
	return out
}

// ResolveProvider returns the configured provider if it has a key, otherwise the
// first available one. It returns "" when no provider has a key.
func (c *Config) ResolveProvider() string {
	if p, ok := c.Provider(c.LLM.Provider); ok && p.APIKey != "" {
		return c.LLM.Provider
	}
	if available := c.AvailableProviders(); len(available) > 0 {
		return available[0]
	}
	return ""
}

func applyDefaults(config *Config) {
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 60 * time.Second
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1024
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.3
	}
	if config.LLM.Groq.Model == "" {
		config.LLM.Groq.Model = "llama-3.1-8b-instant"
	}
	if config.LLM.Groq.BaseURL == "" {
		config.LLM.Groq.BaseURL = "https://api.groq.com/openai/v1"
	}
	if config.LLM.OpenAI.Model == "" {
		config.LLM.OpenAI.Model = "gpt-4o-mini"
	}
	if config.LLM.Google.Model == "" {
		config.LLM.Google.Model = "gemini-1.5-flash"
	}

	if config.Embedder.Type == "" {
		config.Embedder.Type = "hash"
	}
	if config.Embedder.Dimension == 0 {
		config.Embedder.Dimension = defaultDimension(config.Embedder.Type)
	}
	if config.Embedder.BatchSize == 0 {
		config.Embedder.BatchSize = 32
	}
	if config.Embedder.Type == "ollama" && config.Embedder.BaseURL == "" {
		config.Embedder.BaseURL = "http://localhost:11434"
	}

	if config.Database.Type == "" {
		config.Database.Type = "memory"
	}
	if config.Database.TableName == "" {
		config.Database.TableName = "chunks"
	}
	if config.Database.SQLitePath == "" {
		config.Database.SQLitePath = "pdfchat.db"
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 1
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}

	if config.Processor.MaxChunkSize == 0 {
		config.Processor.MaxChunkSize = 1000
	}
	if config.Processor.Overlap == unsetOverlap {
		config.Processor.Overlap = 200
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 5
	}

	if config.Assistant.Locale == "" {
		config.Assistant.Locale = "en"
	}
	if config.Assistant.HistoryTurns == 0 {
		config.Assistant.HistoryTurns = 6
	}
	if config.Assistant.IngestWorkers == 0 {
		config.Assistant.IngestWorkers = 2
	}
	if config.Assistant.DuplicatePolicy == "" {
		config.Assistant.DuplicatePolicy = "replace"
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
}

func defaultDimension(embedder string) int {
	switch embedder {
	case "openai":
		return 1536
	case "ollama":
		return 768
	case "google":
		return 768
	}
	return 512
}

func mergeWithEnv(config *Config) {
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		config.LLM.Groq.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.LLM.OpenAI.APIKey = key
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		config.LLM.Google.APIKey = key
	}
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.Embedder.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if store := os.Getenv("PDFCHAT_STORE"); store != "" {
		config.Database.Type = store
	}
	if path := os.Getenv("PDFCHAT_SQLITE_PATH"); path != "" {
		config.Database.SQLitePath = path
	}
	envInt("PDFCHAT_MAX_CHUNK_SIZE", &config.Processor.MaxChunkSize)
	envInt("PDFCHAT_OVERLAP", &config.Processor.Overlap)
	envInt("PDFCHAT_TOP_K", &config.Retrieval.TopK)
}

// envInt leaves dst untouched when the variable is unset or not a number;
// Validate reports out-of-range values.
func envInt(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}
