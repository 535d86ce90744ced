package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/realty-ai-agent/internal/config"
	"github.com/wolfman30/realty-ai-agent/internal/messaging"
	"github.com/wolfman30/realty-ai-agent/internal/messaging/compliance"
	"github.com/wolfman30/realty-ai-agent/internal/messaging/telnyxclient"
	"github.com/wolfman30/realty-ai-agent/internal/store"
	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

// BuildComplianceChecker layers the Redis opt-out cache over the Postgres
// opt-out table. Without either it falls back to an in-process store.
// Consent gating needs Postgres and SMS_REQUIRE_CONSENT.
func BuildComplianceChecker(cfg *appconfig.Config, redisClient *redis.Client, pool *pgxpool.Pool, logger *logging.Logger) (*compliance.Checker, error) {
	if logger == nil {
		logger = logging.Default()
	}
	quiet, err := compliance.ParseQuietHours(cfg.QuietHoursStart, cfg.QuietHoursEnd, cfg.QuietHoursTimezone)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	loc, err := time.LoadLocation(cfg.QuietHoursTimezone)
	if err != nil {
		loc = time.UTC
	}

	var durable compliance.OptOutStore
	var opts []compliance.CheckerOption
	opts = append(opts, compliance.WithQuietHours(quiet))
	if pool != nil {
		pgStore := store.NewOptOutStore(pool)
		durable = pgStore
		if cfg.SMSRequireConsent {
			opts = append(opts, compliance.WithConsentStore(pgStore))
		}
	} else if cfg.SMSRequireConsent {
		logger.Warn("SMS_REQUIRE_CONSENT needs postgres; consent is not enforced")
	}

	var optOuts compliance.OptOutStore
	switch {
	case redisClient != nil:
		optOuts = compliance.NewRedisOptOutStore(redisClient, durable, logger)
		opts = append(opts, compliance.WithRateLimiter(compliance.NewRedisRateLimiter(redisClient, cfg.SMSDailyLimit, loc)))
	case durable != nil:
		optOuts = durable
	default:
		logger.Warn("no redis or postgres; opt-outs are kept in memory")
		optOuts = compliance.NewMemoryOptOutStore()
	}
	return compliance.NewChecker(optOuts, logger, opts...), nil
}

// BuildGateway routes SMS through Telnyx and email through SendGrid. Without
// Telnyx credentials SMS goes to a logging stub.
func BuildGateway(cfg *appconfig.Config, recorder messaging.SendRecorder, logger *logging.Logger) *messaging.Gateway {
	if logger == nil {
		logger = logging.Default()
	}
	opts := []messaging.GatewayOption{
		messaging.WithDefaultSubject(fmt.Sprintf("A note from %s", cfg.AgentName)),
	}
	if recorder != nil {
		opts = append(opts, messaging.WithSendRecorder(recorder))
	}

	if strings.TrimSpace(cfg.TelnyxAPIKey) != "" {
		client, err := telnyxclient.New(telnyxclient.Config{
			APIKey:             cfg.TelnyxAPIKey,
			MessagingProfileID: cfg.TelnyxMessagingProfileID,
			Logger:             logger,
		})
		if err != nil {
			logger.Error("telnyx client unavailable; using stub SMS sender", "error", err)
			opts = append(opts, messaging.WithSMS(messaging.NewStubSender(logger), cfg.TelnyxFromNumber))
		} else {
			opts = append(opts, messaging.WithSMS(client, cfg.TelnyxFromNumber))
		}
	} else {
		logger.Warn("telnyx not configured; SMS replies are logged only")
		opts = append(opts, messaging.WithSMS(messaging.NewStubSender(logger), cfg.TelnyxFromNumber))
	}

	// NewSendGridSender returns nil without a key; keep the interface nil too.
	if sg := messaging.NewSendGridSender(messaging.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		opts = append(opts, messaging.WithEmail(sg))
	}
	return messaging.NewGateway(logger, opts...)
}
