package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/realty-ai-agent/internal/agent"
	appconfig "github.com/wolfman30/realty-ai-agent/internal/config"
	"github.com/wolfman30/realty-ai-agent/internal/crm"
	"github.com/wolfman30/realty-ai-agent/internal/intent"
	"github.com/wolfman30/realty-ai-agent/internal/llm"
	"github.com/wolfman30/realty-ai-agent/internal/messaging"
	"github.com/wolfman30/realty-ai-agent/internal/messaging/compliance"
	"github.com/wolfman30/realty-ai-agent/internal/messaging/templates"
	"github.com/wolfman30/realty-ai-agent/internal/objection"
	"github.com/wolfman30/realty-ai-agent/internal/observability/metrics"
	"github.com/wolfman30/realty-ai-agent/internal/qualification"
	"github.com/wolfman30/realty-ai-agent/internal/store"
	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

// Deps are the shared clients a binary opens before building the agent.
// Every field is optional.
type Deps struct {
	Redis   *redis.Client
	Pool    *pgxpool.Pool
	DB      *sql.DB
	Bedrock *bedrockruntime.Client
	Metrics *metrics.AgentMetrics
}

// Agent is the wired conversation pipeline plus its outbound collaborators.
type Agent struct {
	Service  *agent.Service
	Detector *intent.Detector
	Checker  *compliance.Checker
	Gateway  *messaging.Gateway

	closers []func() error
}

// Close waits for background syncs and releases provider clients.
func (a *Agent) Close() error {
	if a == nil {
		return nil
	}
	if a.Service != nil {
		a.Service.Wait()
	}
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildAgent wires detector, templates, objections, reply generation,
// persistence and CRM sync from config. Missing backends degrade to the
// in-process equivalents.
func BuildAgent(ctx context.Context, cfg *appconfig.Config, deps Deps, logger *logging.Logger) (*Agent, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	llmClient, closeLLM, err := BuildLLMClient(ctx, cfg, deps.Bedrock, logger)
	if err != nil {
		return nil, err
	}
	out := &Agent{closers: []func() error{closeLLM}}

	detectorOpts := []intent.Option{intent.WithMetrics(deps.Metrics)}
	if llmClient != nil {
		detectorOpts = append(detectorOpts, intent.WithLLM(llmClient, IntentModel(cfg)))
	}
	out.Detector = intent.NewDetector(logger, detectorOpts...)

	var engineOpts []templates.EngineOption
	if deps.Pool != nil {
		engineOpts = append(engineOpts, templates.WithABTracker(store.NewABTestStore(deps.Pool)))
	}
	engine := templates.NewEngine(logger, engineOpts...)

	checker, err := BuildComplianceChecker(cfg, deps.Redis, deps.Pool, logger)
	if err != nil {
		return nil, err
	}
	out.Checker = checker
	out.Gateway = BuildGateway(cfg, checker, logger)

	opts := []agent.Option{
		agent.WithComplianceChecker(checker),
		agent.WithObjectionHandler(objection.NewHandler(logger)),
		agent.WithMetrics(deps.Metrics),
		agent.WithDefaults(cfg.AgentDefaults()),
		agent.WithSessionCache(cfg.SessionCacheSize, cfg.SessionTTL),
		agent.WithQualificationOptions(qualification.WithMaxQuestions(cfg.MaxQualificationQuestions)),
	}
	if llmClient != nil {
		opts = append(opts, agent.WithResponseGenerator(llm.NewResponseGenerator(llmClient, llm.GeneratorConfig{
			Model:         cfg.BedrockModelID,
			AgentName:     cfg.AgentName,
			BrokerageName: cfg.BrokerageName,
		}, logger)))
	}
	if deps.Redis != nil {
		opts = append(opts,
			agent.WithSessionStore(store.NewRedisSessionStore(deps.Redis, cfg.SessionTTL)),
			agent.WithTranscripts(store.NewTranscriptStore(deps.Redis, cfg.SessionTTL)),
		)
	}
	if deps.Pool != nil {
		opts = append(opts,
			agent.WithPreferenceStore(store.NewPreferenceStore(deps.Pool)),
			agent.WithSettings(store.NewSettingsStore(deps.Pool, cfg.AgentDefaults()), cfg.SettingsCacheTTL),
		)
	}
	if deps.DB != nil {
		opts = append(opts, agent.WithAuditLog(store.NewAuditLog(deps.DB)))
	}

	syncer, err := buildCRMSyncer(cfg, deps.Pool, logger)
	if err != nil {
		return nil, err
	}
	if syncer != nil {
		opts = append(opts, agent.WithCRMSyncer(syncer))
	}

	out.Service = agent.NewService(out.Detector, engine, logger, opts...)
	return out, nil
}

// buildCRMSyncer returns nil when neither the CRM nor the snapshot table is
// available.
func buildCRMSyncer(cfg *appconfig.Config, pool *pgxpool.Pool, logger *logging.Logger) (*crm.Syncer, error) {
	var people crm.PersonUpdater
	if strings.TrimSpace(cfg.FUBAPIKey) != "" {
		client, err := crm.NewClient(crm.Config{
			APIKey:     cfg.FUBAPIKey,
			BaseURL:    cfg.FUBBaseURL,
			SystemName: cfg.FUBSystemName,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		people = client
	}
	var snapshots crm.SnapshotSaver
	if pool != nil {
		snapshots = store.NewQualificationStore(pool)
	}
	if people == nil && snapshots == nil {
		return nil, nil
	}

	var opts []crm.SyncerOption
	if cfg.ReferralStatusMap != "" {
		statuses, err := crm.ParseStatusMap(cfg.ReferralStatusMap)
		if err != nil {
			return nil, err
		}
		opts = append(opts, crm.WithStatusMap(statuses))
	}
	return crm.NewSyncer(people, snapshots, logger, opts...), nil
}
