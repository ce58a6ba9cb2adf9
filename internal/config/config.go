package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"gopkg.in/yaml.v3"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	AI      AIConfig
	CRM     CRMConfig
	Session SessionConfig
	Agent   AgentConfig
	Voice   VoiceConfig
}

// Load 从可选的 YAML 文件和环境变量加载配置，环境变量优先。
func Load() (*Config, error) {
	file, err := loadFile(strings.TrimSpace(os.Getenv("CONFIG_FILE")))
	if err != nil {
		return nil, err
	}

	server, err := loadServerConfig(file)
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig(file)
	if err != nil {
		return nil, err
	}

	crm, err := loadCRMConfig(file)
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig(file)
	if err != nil {
		return nil, err
	}

	agent, err := loadAgentConfig(file)
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig(file)
	if err != nil {
		return nil, err
	}

	voice, err := loadVoiceConfig(file)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		Log:     logCfg,
		AI:      ai,
		CRM:     crm,
		Session: session,
		Agent:   agent,
		Voice:   voice,
	}, nil
}

// fileConfig mirrors the optional YAML file. Secrets are only read from the environment.
type fileConfig struct {
	Server struct {
		Port          string `yaml:"port"`
		PublicBaseURL string `yaml:"public_base_url"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	AI struct {
		Model       string   `yaml:"model"`
		BaseURL     string   `yaml:"base_url"`
		Region      string   `yaml:"region"`
		Temperature *float64 `yaml:"temperature"`
		MaxTokens   *int     `yaml:"max_tokens"`
	} `yaml:"ai"`
	CRM struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"crm"`
	Session struct {
		TTL           string `yaml:"ttl"`
		HistoryLimit  int    `yaml:"history_limit"`
		DBPath        string `yaml:"db_path"`
		PurgeInterval string `yaml:"purge_interval"`
	} `yaml:"session"`
	Agent struct {
		MaxRounds   int    `yaml:"max_rounds"`
		TurnTimeout string `yaml:"turn_timeout"`
		PersonaID   string `yaml:"persona_id"`
	} `yaml:"agent"`
	Voice struct {
		Name        string `yaml:"name"`
		Language    string `yaml:"language"`
		SpeechModel string `yaml:"speech_model"`
	} `yaml:"voice"`
}

func loadFile(path string) (fileConfig, error) {
	var file fileConfig
	if path == "" {
		return file, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return file, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return file, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
	// PublicBaseURL is the externally visible URL used to verify webhook signatures.
	PublicBaseURL string
	// TwilioAuthToken enables X-Twilio-Signature validation when set.
	TwilioAuthToken string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(file fileConfig) (ServerConfig, error) {
	port := getEnvOrDefault("PORT", file.Server.Port)
	if port == "" {
		port = "3000"
	}

	cfg := ServerConfig{
		PublicBaseURL:   strings.TrimRight(getEnvOrDefault("PUBLIC_BASE_URL", file.Server.PublicBaseURL), "/"),
		TwilioAuthToken: strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN")),
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":3000" 或 "127.0.0.1:3000"。
		cfg.Addr = port
		return cfg, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	cfg.Addr = ":" + port
	return cfg, nil
}

// LogConfig 描述日志级别与格式。
type LogConfig struct {
	Level     string
	Format    string
	AddSource bool
}

func loadLogConfig(file fileConfig) (LogConfig, error) {
	addSource, err := parseBoolEnv("LOG_ADD_SOURCE", false)
	if err != nil {
		return LogConfig{}, err
	}

	return LogConfig{
		Level:     getEnvOrDefault("LOG_LEVEL", file.Log.Level),
		Format:    getEnvOrDefault("LOG_FORMAT", firstNonEmpty(file.Log.Format, "text")),
		AddSource: addSource,
	}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个支持工具调用的模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ToolCallingChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig(file fileConfig) (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if temperature == nil {
		temperature = file.AI.Temperature
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}
	if maxTokens == nil {
		maxTokens = file.AI.MaxTokens
	}

	modelName := getEnvOrDefault("ARK_MODEL", strings.TrimSpace(os.Getenv("Model")))
	if modelName == "" {
		modelName = file.AI.Model
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       modelName,
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", firstNonEmpty(file.AI.BaseURL, "https://ark.cn-beijing.volces.com/api/v3")),
		Region:      getEnvOrDefault("ARK_REGION", firstNonEmpty(file.AI.Region, "cn-beijing")),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// CRMConfig 描述 Salesforce Apex REST 后端配置。
type CRMConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// Enabled 表示 CRM 地址与令牌均已配置。
func (c CRMConfig) Enabled() bool {
	return c.BaseURL != "" && c.AccessToken != ""
}

func loadCRMConfig(file fileConfig) (CRMConfig, error) {
	timeout, err := parseDurationEnv("SF_TIMEOUT", file.CRM.Timeout, 10*time.Second)
	if err != nil {
		return CRMConfig{}, err
	}

	return CRMConfig{
		BaseURL:     strings.TrimRight(getEnvOrDefault("SF_BASE_URL", file.CRM.BaseURL), "/"),
		AccessToken: strings.TrimSpace(os.Getenv("SF_ACCESS_TOKEN")),
		Timeout:     timeout,
	}, nil
}

// SessionConfig 描述会话存储配置。
type SessionConfig struct {
	TTL           time.Duration
	HistoryLimit  int
	DBPath        string
	PurgeInterval time.Duration
}

func loadSessionConfig(file fileConfig) (SessionConfig, error) {
	ttl, err := parseDurationEnv("SESSION_TTL", file.Session.TTL, 24*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}

	purge, err := parseDurationEnv("SESSION_PURGE_INTERVAL", file.Session.PurgeInterval, 10*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	limit, err := parseIntEnv("SESSION_HISTORY_LIMIT", file.Session.HistoryLimit, 10)
	if err != nil {
		return SessionConfig{}, err
	}
	if limit < 1 {
		limit = 1
	}

	return SessionConfig{
		TTL:           ttl,
		HistoryLimit:  limit,
		DBPath:        getEnvOrDefault("SESSION_DB_PATH", file.Session.DBPath),
		PurgeInterval: purge,
	}, nil
}

// AgentConfig 描述对话回合与工具调用循环的限制。
type AgentConfig struct {
	MaxRounds   int
	TurnTimeout time.Duration
	PersonaID   string
}

func loadAgentConfig(file fileConfig) (AgentConfig, error) {
	rounds, err := parseIntEnv("AGENT_MAX_ROUNDS", file.Agent.MaxRounds, 5)
	if err != nil {
		return AgentConfig{}, err
	}
	if rounds < 1 {
		rounds = 1
	}

	timeout, err := parseDurationEnv("TURN_TIMEOUT", file.Agent.TurnTimeout, 15*time.Second)
	if err != nil {
		return AgentConfig{}, err
	}

	return AgentConfig{
		MaxRounds:   rounds,
		TurnTimeout: timeout,
		PersonaID:   getEnvOrDefault("PERSONA_ID", file.Agent.PersonaID),
	}, nil
}

// VoiceConfig 描述 TwiML 朗读与收音参数，属于静态配置。
type VoiceConfig struct {
	Name        string
	Language    string
	SpeechModel string
	Enhanced    bool
}

func loadVoiceConfig(file fileConfig) (VoiceConfig, error) {
	enhanced, err := parseBoolEnv("SPEECH_ENHANCED", true)
	if err != nil {
		return VoiceConfig{}, err
	}

	return VoiceConfig{
		Name:        getEnvOrDefault("VOICE_NAME", firstNonEmpty(file.Voice.Name, "Polly.Joanna")),
		Language:    getEnvOrDefault("VOICE_LANGUAGE", firstNonEmpty(file.Voice.Language, "en-US")),
		SpeechModel: getEnvOrDefault("SPEECH_MODEL", firstNonEmpty(file.Voice.SpeechModel, "experimental_conversations")),
		Enhanced:    enhanced,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(defaultValue)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
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

func parseIntEnv(key string, fileValue, defaultValue int) (int, error) {
	override, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if override != nil {
		return *override, nil
	}
	if fileValue != 0 {
		return fileValue, nil
	}
	return defaultValue, nil
}

func parseDurationEnv(key, fileValue string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnvOrDefault(key, fileValue)
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
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
