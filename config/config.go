// Package config holds the explicit configuration value injected into the
// workflow selector and every collaborator constructor at startup. It is
// loaded once, treated as immutable for the duration of a request, and
// replaced atomically through Holder on an administrative reload.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ModelConfig describes one LLM endpoint.
type ModelConfig struct {
	ModelName            string  `json:"model_name"`
	APIBaseURL           string  `json:"api_base_url"`
	APIKey               string  `json:"api_key"`
	MaxLength            int     `json:"max_length"`
	MaxTokens            int     `json:"max_tokens"`
	Temperature          float32 `json:"temperature"`
	TopP                 float32 `json:"top_p"`
	Qwords               string  `json:"qwords"`
	ReasoningNonstandard bool    `json:"reasoning_nonstandard"`
}

// Config is the full application configuration.
type Config struct {
	ListenAddr string `json:"listen_addr"`

	// Token limits.
	MaxInputTokens  int `json:"max_input_tokens"`
	MaxPromptTokens int `json:"max_prompt_tokens"`

	// Character limits.
	MaxDocContentLength int `json:"max_doc_content_length"`

	// Knowledge-base retrieval defaults.
	DefaultTopK      int     `json:"default_top_k"`
	DefaultTopN      int     `json:"default_top_n"`
	DefaultKeyWeight float64 `json:"default_key_weight"`
	RerankModel      string  `json:"rerank_model"`

	DefaultSystemPrompt string `json:"default_system_prompt"`

	// Collaborator endpoints.
	KnowledgeBaseAPI  string `json:"knowledge_base_api"`
	FileExtractionAPI string `json:"file_extraction_api"`
	OAExpenseAPIURL   string `json:"oa_expense_api_url"`
	OAExpensePageNum  int    `json:"oa_expense_page_num"`
	OAExpensePageSize int    `json:"oa_expense_page_size"`

	// Token used against the knowledge-base backend when a request does
	// not carry its own.
	Token string `json:"token"`

	OCREnabled bool `json:"ocr_enabled"`

	// Model routing: AgentModels are used for tool-style calls, CoTModels
	// for final answers; the first entry of each is the default.
	AgentModels []string               `json:"agent_llm_models"`
	CoTModels   []string               `json:"cot_llm_models"`
	Models      map[string]ModelConfig `json:"llm_model_api"`

	// Upload validation.
	AllowedExtensions []string `json:"allowed_extensions"`
	MaxUploadSize     int64    `json:"max_upload_size"`

	// Bounded concurrency for the parallel multi-file workflow.
	ParallelWorkers int `json:"parallel_workers"`

	// Session history persistence.
	SessionBackend      string `json:"session_backend"` // "sqlite" or "redis"
	SQLitePath          string `json:"sqlite_path"`
	RedisAddr           string `json:"redis_addr"`
	RedisPassword       string `json:"redis_password"`
	RedisDB             int    `json:"redis_db"`
	SessionHistoryLimit int    `json:"session_history_limit"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:          ":8899",
		MaxInputTokens:      14000,
		MaxPromptTokens:     28000,
		MaxDocContentLength: 40000,
		DefaultTopK:         40,
		DefaultTopN:         3,
		DefaultKeyWeight:    0.8,
		RerankModel:         "bge-reranker-v2-m3",
		OAExpensePageNum:    1,
		OAExpensePageSize:   10,
		OCREnabled:          true,
		AgentModels:         []string{"qwen-14b"},
		CoTModels:           []string{"deepseek-r1-32b"},
		Models: map[string]ModelConfig{
			"qwen-14b": {
				ModelName:   "qwen-14b",
				APIBaseURL:  "http://localhost:1035/v1",
				APIKey:      "token-abc123",
				MaxLength:   32000,
				MaxTokens:   4096,
				Temperature: 0.7,
				TopP:        1,
			},
			"deepseek-r1-32b": {
				ModelName:            "deepseek-r1-32b",
				APIBaseURL:           "http://localhost:1025/v1",
				APIKey:               "token-abc123",
				MaxLength:            128000,
				MaxTokens:            4096,
				Temperature:          0.6,
				TopP:                 0.9,
				Qwords:               "\n你需要先思考再输出",
				ReasoningNonstandard: true,
			},
		},
		AllowedExtensions: []string{
			"txt", "md", "html", "pdf", "docx", "xlsx", "xls", "csv",
			"rdf", "pptx", "json", "jpg", "jpeg", "png", "bmp", "tiff", "tif", "gif",
		},
		MaxUploadSize:       10 * 1024 * 1024,
		ParallelWorkers:     4,
		SessionBackend:      "sqlite",
		SQLitePath:          "graphchat.db",
		RedisAddr:           "localhost:6379",
		SessionHistoryLimit: 20,
	}
}

// Load builds the configuration from defaults, environment overrides
// (GRAPHCHAT_ prefix) and, when GRAPHCHAT_CONFIG_PATH points at a JSON
// file, the values in that file.
func Load() (*Config, error) {
	c := Default()
	c.applyEnv()
	if path := os.Getenv("GRAPHCHAT_CONFIG_PATH"); path != "" {
		if err := c.LoadJSON(path); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// LoadJSON overlays values from a JSON file onto the receiver.
func (c *Config) LoadJSON(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	envString(&c.ListenAddr, "GRAPHCHAT_LISTEN_ADDR")
	envInt(&c.MaxInputTokens, "GRAPHCHAT_MAX_INPUT_TOKENS")
	envInt(&c.MaxPromptTokens, "GRAPHCHAT_MAX_PROMPT_TOKENS")
	envInt(&c.MaxDocContentLength, "GRAPHCHAT_MAX_DOC_CONTENT_LENGTH")
	envInt(&c.DefaultTopK, "GRAPHCHAT_DEFAULT_TOP_K")
	envInt(&c.DefaultTopN, "GRAPHCHAT_DEFAULT_TOP_N")
	envFloat(&c.DefaultKeyWeight, "GRAPHCHAT_DEFAULT_KEY_WEIGHT")
	envString(&c.RerankModel, "GRAPHCHAT_RERANK_MODEL")
	envString(&c.DefaultSystemPrompt, "GRAPHCHAT_DEFAULT_SYSTEM_PROMPT")
	envString(&c.KnowledgeBaseAPI, "GRAPHCHAT_KNOWLEDGE_BASE_API")
	envString(&c.FileExtractionAPI, "GRAPHCHAT_FILE_EXTRACTION_API")
	envString(&c.OAExpenseAPIURL, "GRAPHCHAT_OA_EXPENSE_API_URL")
	envString(&c.Token, "GRAPHCHAT_TOKEN")
	envBool(&c.OCREnabled, "GRAPHCHAT_OCR_ENABLED")
	envInt(&c.ParallelWorkers, "GRAPHCHAT_PARALLEL_WORKERS")
	envString(&c.SessionBackend, "GRAPHCHAT_SESSION_BACKEND")
	envString(&c.SQLitePath, "GRAPHCHAT_SQLITE_PATH")
	envString(&c.RedisAddr, "GRAPHCHAT_REDIS_ADDR")
	envString(&c.RedisPassword, "GRAPHCHAT_REDIS_PASSWORD")
	envInt(&c.RedisDB, "GRAPHCHAT_REDIS_DB")
	envInt(&c.SessionHistoryLimit, "GRAPHCHAT_SESSION_HISTORY_LIMIT")
}

// Model resolves a model name to its endpoint configuration, falling back
// to the default chain-of-thought model (or the default agent model when
// useCoT is false) for unknown names.
func (c *Config) Model(name string, useCoT bool) ModelConfig {
	if name != "" {
		if mc, ok := c.Models[name]; ok {
			return mc
		}
	}
	pool := c.AgentModels
	if useCoT {
		pool = c.CoTModels
	}
	if len(pool) > 0 {
		if mc, ok := c.Models[pool[0]]; ok {
			return mc
		}
	}
	// Degenerate configuration: return a zero config rather than panic;
	// the LLM layer surfaces the failure as a fallback answer.
	return ModelConfig{}
}

// AgentModel returns the default agent model name, empty when unset.
func (c *Config) AgentModel() string {
	if len(c.AgentModels) > 0 {
		return c.AgentModels[0]
	}
	return ""
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*dst = f
		}
	}
}

func envBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "yes":
			*dst = true
		case "0", "f", "false", "no":
			*dst = false
		}
	}
}
