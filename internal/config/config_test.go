package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "BEDROCK_MODEL_ID", "AUTO_SCHEDULE_SCORE_THRESHOLD",
		"AUTO_HANDOFF_SCORE_THRESHOLD", "MAX_QUALIFICATION_QUESTIONS", "SESSION_TTL",
		"GEMINI_MODEL_ID", "SMS_DAILY_LIMIT", "SMS_REQUIRE_CONSENT",
	} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.BedrockModelID != "" {
		t.Fatalf("expected default bedrock model empty, got %s", cfg.BedrockModelID)
	}
	if cfg.AutoScheduleScoreThreshold != 70 || cfg.AutoHandoffScoreThreshold != 85 {
		t.Fatalf("unexpected thresholds %d/%d", cfg.AutoScheduleScoreThreshold, cfg.AutoHandoffScoreThreshold)
	}
	if cfg.SMSRequireConsent {
		t.Fatalf("expected consent gating off by default")
	}
	if cfg.MaxQualificationQuestions != 10 {
		t.Fatalf("expected 10 max questions, got %d", cfg.MaxQualificationQuestions)
	}
	if cfg.SessionTTL != 72*time.Hour {
		t.Fatalf("expected 72h session ttl, got %s", cfg.SessionTTL)
	}
	if cfg.GeminiModelID != "gemini-2.5-flash" {
		t.Fatalf("unexpected gemini model %s", cfg.GeminiModelID)
	}
	if cfg.SMSDailyLimit != 6 {
		t.Fatalf("unexpected sms daily limit %d", cfg.SMSDailyLimit)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	t.Setenv("SMS_REQUIRE_CONSENT", "true")
	t.Setenv("AUTO_SCHEDULE_SCORE_THRESHOLD", "60")
	t.Setenv("AUTO_HANDOFF_SCORE_THRESHOLD", "90")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("REFERRAL_STATUS_MAP", ` {"HANDED_OFF":"Communicating"} `)

	cfg := Load()
	if cfg.Port != "9090" || cfg.Env != "production" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected basics: %+v", cfg)
	}
	if !cfg.UseMemoryQueue {
		t.Fatalf("expected memory queue enabled")
	}
	if !cfg.SMSRequireConsent {
		t.Fatalf("expected consent gating enabled")
	}
	if cfg.AutoScheduleScoreThreshold != 60 || cfg.AutoHandoffScoreThreshold != 90 {
		t.Fatalf("threshold overrides not applied")
	}
	if cfg.SessionTTL != 2*time.Hour {
		t.Fatalf("expected 2h, got %s", cfg.SessionTTL)
	}
	if cfg.ReferralStatusMap != `{"HANDED_OFF":"Communicating"}` {
		t.Fatalf("expected trimmed status map, got %q", cfg.ReferralStatusMap)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("WORKER_COUNT", "many")
	t.Setenv("REDIS_TLS", "sometimes")
	t.Setenv("SETTINGS_CACHE_TTL", "soon")

	cfg := Load()
	if cfg.WorkerCount != 2 {
		t.Fatalf("expected default worker count, got %d", cfg.WorkerCount)
	}
	if cfg.RedisTLS {
		t.Fatalf("expected redis tls default false")
	}
	if cfg.SettingsCacheTTL != 5*time.Minute {
		t.Fatalf("expected default settings ttl, got %s", cfg.SettingsCacheTTL)
	}
}

func TestAgentDefaults(t *testing.T) {
	t.Setenv("AGENT_NAME", "Maya")
	t.Setenv("RESPONSE_DELAY_SECONDS", "5")
	s := Load().AgentDefaults()
	if !s.AIEnabled || s.AgentName != "Maya" || s.ResponseDelaySeconds != 5 {
		t.Fatalf("unexpected defaults %+v", s)
	}
}

func TestLoadOperatorAPI(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://ops.example , ,https://console.example")
	t.Setenv("API_RATE_LIMIT", "2.5")
	t.Setenv("OPERATOR_JWT_SECRET", "s3cret")
	t.Setenv("HANDOFF_ALERT_EMAIL", "agent@brokerage.example")

	cfg := Load()
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://console.example" {
		t.Fatalf("unexpected origins %q", cfg.CORSAllowedOrigins)
	}
	if cfg.APIRateLimit != 2.5 || cfg.APIRateBurst != 40 {
		t.Fatalf("unexpected rate limit %v/%d", cfg.APIRateLimit, cfg.APIRateBurst)
	}
	if cfg.OperatorJWTSecret != "s3cret" || cfg.AllowUnauthenticated {
		t.Fatalf("unexpected operator auth config")
	}
	if cfg.HandoffAlertEmail != "agent@brokerage.example" {
		t.Fatalf("unexpected handoff email %q", cfg.HandoffAlertEmail)
	}
}
