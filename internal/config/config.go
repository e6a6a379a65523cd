package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zhouzirui/promptdesk/internal/model/catalog"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Session SessionConfig
	Render  RenderConfig
	Log     LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	render, err := loadRenderConfig()
	if err != nil {
		return nil, err
	}

	debug, err := parseBoolEnv("LOG_DEBUG", false)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		AI:      ai,
		Session: session,
		Render:  render,
		Log:     LogConfig{Debug: debug},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。凭证不在这里：服务端从用户输入中获取 API Key。
type AIConfig struct {
	Provider     string
	Models       []string
	BaseURL      string
	Region       string
	SystemPrompt string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
}

// Catalog 返回当前 provider 可选的模型列表。
func (c AIConfig) Catalog() []catalog.Model {
	if len(c.Models) > 0 {
		return catalog.FromIDs(c.Provider, c.Models)
	}
	return catalog.Seed(c.Provider)
}

// APIKeyEnv 返回命令行工具读取默认凭证的环境变量名。
func (c AIConfig) APIKeyEnv() string {
	switch c.Provider {
	case catalog.ProviderOpenAI:
		return "OPENAI_API_KEY"
	case catalog.ProviderArk:
		return "ARK_API_KEY"
	default:
		return "GEMINI_API_KEY"
	}
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", catalog.ProviderGemini))
	switch provider {
	case catalog.ProviderGemini, catalog.ProviderOpenAI, catalog.ProviderArk:
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}
	// Gemini 的 MaxOutputTokens 是 int32
	if maxTokens != nil && (*maxTokens <= 0 || *maxTokens > math.MaxInt32) {
		return AIConfig{}, fmt.Errorf("invalid AI_MAX_TOKENS value %d: must be between 1 and %d", *maxTokens, math.MaxInt32)
	}

	cfg := AIConfig{
		Provider:     provider,
		Models:       parseListEnv("AI_MODELS"),
		BaseURL:      strings.TrimSpace(os.Getenv("AI_BASE_URL")),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		SystemPrompt: strings.TrimSpace(os.Getenv("AI_SYSTEM_PROMPT")),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
	}

	if len(cfg.Catalog()) == 0 {
		return AIConfig{}, fmt.Errorf("AI_MODELS is required for provider %q", provider)
	}
	return cfg, nil
}

// SessionConfig 控制会话生命周期。
type SessionConfig struct {
	// IdleTTL 为 0 时不清理空闲会话。
	IdleTTL time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	ttl, err := parseDurationEnv("SESSION_IDLE_TTL", 2*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}
	if ttl < 0 {
		return SessionConfig{}, fmt.Errorf("invalid SESSION_IDLE_TTL value %q: must not be negative", ttl)
	}
	return SessionConfig{IdleTTL: ttl}, nil
}

// RenderConfig 控制对话内容在页面上的呈现方式。
type RenderConfig struct {
	Mode string
}

func loadRenderConfig() (RenderConfig, error) {
	mode := strings.ToLower(getEnvOrDefault("RENDER_MODE", "plain"))
	switch mode {
	case "plain", "markdown":
		return RenderConfig{Mode: mode}, nil
	default:
		return RenderConfig{}, fmt.Errorf("invalid RENDER_MODE value %q", mode)
	}
}

// LogConfig 控制日志级别。
type LogConfig struct {
	Debug bool
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseListEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}

	var items []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
