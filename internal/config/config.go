package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	UseMemoryQueue bool
	WorkerCount    int
	DatabaseURL    string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpointOverride  string
	InboundQueueURL      string
	BedrockModelID       string
	BedrockIntentModelID string

	// Gemini is the fallback LLM provider when Bedrock fails.
	GeminiAPIKey  string
	GeminiModelID string

	TelnyxAPIKey             string
	TelnyxMessagingProfileID string
	TelnyxFromNumber         string

	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// Follow Up Boss CRM
	FUBAPIKey     string
	FUBBaseURL    string
	FUBSystemName string

	QuietHoursStart    string
	QuietHoursEnd      string
	QuietHoursTimezone string
	SMSDailyLimit      int
	// SMSRequireConsent blocks texts to numbers without a consent row.
	SMSRequireConsent  bool

	AgentName     string
	BrokerageName string

	AutoScheduleScoreThreshold int
	AutoHandoffScoreThreshold  int
	MaxQualificationQuestions  int
	ResponseDelaySeconds       int
	SessionCacheSize           int
	SessionTTL                 time.Duration
	SettingsCacheTTL           time.Duration

	// ReferralStatusMap maps conversation states to referral portal statuses (raw JSON).
	ReferralStatusMap string

	// Operator API.
	OperatorJWTSecret    string
	OperatorJWTAudience  string
	AllowUnauthenticated bool
	CORSAllowedOrigins   []string
	APIRateLimit         float64
	APIRateBurst         int

	// HandoffAlertEmail receives a summary whenever a lead is handed off.
	HandoffAlertEmail string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		InboundQueueURL:      getEnv("INBOUND_QUEUE_URL", ""),
		BedrockModelID:       getEnv("BEDROCK_MODEL_ID", ""),
		BedrockIntentModelID: getEnv("BEDROCK_INTENT_MODEL_ID", ""),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModelID: getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		TelnyxAPIKey:             getEnv("TELNYX_API_KEY", ""),
		TelnyxMessagingProfileID: getEnv("TELNYX_MESSAGING_PROFILE_ID", ""),
		TelnyxFromNumber:         getEnv("TELNYX_FROM_NUMBER", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Realty AI"),

		FUBAPIKey:     getEnv("FUB_API_KEY", ""),
		FUBBaseURL:    getEnv("FUB_BASE_URL", "https://api.followupboss.com/v1"),
		FUBSystemName: getEnv("FUB_SYSTEM_NAME", "realty-ai-agent"),

		QuietHoursStart:    getEnv("QUIET_HOURS_START", ""),
		QuietHoursEnd:      getEnv("QUIET_HOURS_END", ""),
		QuietHoursTimezone: getEnv("QUIET_HOURS_TZ", "UTC"),
		SMSDailyLimit:      getEnvAsInt("SMS_DAILY_LIMIT", 6),
		SMSRequireConsent:  getEnvAsBool("SMS_REQUIRE_CONSENT", false),

		AgentName:     getEnv("AGENT_NAME", "Sarah"),
		BrokerageName: getEnv("BROKERAGE_NAME", "our team"),

		AutoScheduleScoreThreshold: getEnvAsInt("AUTO_SCHEDULE_SCORE_THRESHOLD", 70),
		AutoHandoffScoreThreshold:  getEnvAsInt("AUTO_HANDOFF_SCORE_THRESHOLD", 85),
		MaxQualificationQuestions:  getEnvAsInt("MAX_QUALIFICATION_QUESTIONS", 10),
		ResponseDelaySeconds:       getEnvAsInt("RESPONSE_DELAY_SECONDS", 30),
		SessionCacheSize:           getEnvAsInt("SESSION_CACHE_SIZE", 5000),
		SessionTTL:                 getEnvAsDuration("SESSION_TTL", 72*time.Hour),
		SettingsCacheTTL:           getEnvAsDuration("SETTINGS_CACHE_TTL", 5*time.Minute),

		ReferralStatusMap: strings.TrimSpace(getEnv("REFERRAL_STATUS_MAP", "")),

		OperatorJWTSecret:    getEnv("OPERATOR_JWT_SECRET", ""),
		OperatorJWTAudience:  getEnv("OPERATOR_JWT_AUDIENCE", ""),
		AllowUnauthenticated: getEnvAsBool("ALLOW_UNAUTHENTICATED_OPS", false),
		CORSAllowedOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS"),
		APIRateLimit:         getEnvAsFloat("API_RATE_LIMIT", 20),
		APIRateBurst:         getEnvAsInt("API_RATE_BURST", 40),

		HandoffAlertEmail: getEnv("HANDOFF_ALERT_EMAIL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// AgentSettings are the per-user knobs the conversation agent reads on
// every message. Stored rows override the environment defaults.
type AgentSettings struct {
	UserID                     string `json:"user_id"`
	AIEnabled                  bool   `json:"ai_enabled"`
	AgentName                  string `json:"agent_name"`
	BrokerageName              string `json:"brokerage_name"`
	AutoScheduleScoreThreshold int    `json:"auto_schedule_score_threshold"`
	AutoHandoffScoreThreshold  int    `json:"auto_handoff_score_threshold"`
	MaxQualificationQuestions  int    `json:"max_qualification_questions"`
	ResponseDelaySeconds       int    `json:"response_delay_seconds"`
}

// AgentDefaults returns the environment-derived settings.
func (c *Config) AgentDefaults() AgentSettings {
	return AgentSettings{
		AIEnabled:                  true,
		AgentName:                  c.AgentName,
		BrokerageName:              c.BrokerageName,
		AutoScheduleScoreThreshold: c.AutoScheduleScoreThreshold,
		AutoHandoffScoreThreshold:  c.AutoHandoffScoreThreshold,
		MaxQualificationQuestions:  c.MaxQualificationQuestions,
		ResponseDelaySeconds:       c.ResponseDelaySeconds,
	}
}
