// Package app wires the control plane's stores, event bus, listeners and services into the HTTP
// router and gRPC server. cmd/server owns process lifecycle; App owns everything in between.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	otellog "go.opentelemetry.io/otel/log"
	"google.golang.org/grpc"

	"saas-control-plane/backend/internal/audit"
	auditrepo "saas-control-plane/backend/internal/audit/repository"
	"saas-control-plane/backend/internal/authz"
	"saas-control-plane/backend/internal/config"
	"saas-control-plane/backend/internal/db"
	"saas-control-plane/backend/internal/events"
	eventskafka "saas-control-plane/backend/internal/events/kafka"
	"saas-control-plane/backend/internal/health"
	membershiprepo "saas-control-plane/backend/internal/membership/repository"
	membershipservice "saas-control-plane/backend/internal/membership/service"
	"saas-control-plane/backend/internal/notification/dispatcher"
	notificationdomain "saas-control-plane/backend/internal/notification/domain"
	notificationrepo "saas-control-plane/backend/internal/notification/repository"
	notificationservice "saas-control-plane/backend/internal/notification/service"
	orgrepo "saas-control-plane/backend/internal/organization/repository"
	orgservice "saas-control-plane/backend/internal/organization/service"
	"saas-control-plane/backend/internal/platform/reqctx"
	"saas-control-plane/backend/internal/policy/engine"
	policyrepo "saas-control-plane/backend/internal/policy/repository"
	policyservice "saas-control-plane/backend/internal/policy/service"
	"saas-control-plane/backend/internal/rbac/registry"
	rbacrepo "saas-control-plane/backend/internal/rbac/repository"
	rbacservice "saas-control-plane/backend/internal/rbac/service"
	"saas-control-plane/backend/internal/server"
	userrepo "saas-control-plane/backend/internal/user/repository"
	userservice "saas-control-plane/backend/internal/user/service"
)

const instrumentationName = "saas-control-plane"

// Infra holds the external resources App is built over. DB and Tokens are required.
type Infra struct {
	DB     *sql.DB
	Tokens server.TokenValidator
	// Redis backs the role-set cache when AUTHZ_CACHE=redis and is pinged by readiness. May be nil.
	Redis redis.UniversalClient
	// Queue receives external delivery jobs. Nil skips email and push.
	Queue dispatcher.Queue
	// Mirror, when non-nil, receives every published event.
	Mirror *eventskafka.Mirror
	// LoggerProvider receives audit records as OTel logs. May be nil.
	LoggerProvider otellog.LoggerProvider
	// Registerer receives HTTP metrics; defaults to a fresh registry.
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

// App is the assembled control plane.
type App struct {
	Bus       *events.Bus
	Evaluator *authz.Evaluator
	Health    *health.Checker

	Users         *userservice.UserService
	Orgs          *orgservice.OrgService
	Memberships   *membershipservice.MembershipService
	Grants        *rbacservice.GrantService
	Notifications *notificationservice.NotificationService
	Policies      *policyservice.PolicyService

	handler http.Handler
	grpc    *grpc.Server
	infra   Infra
}

// New assembles the App. Listener registration failures are returned; the bus is closed on error.
func New(cfg *config.Config, infra Infra) (*App, error) {
	if infra.DB == nil {
		return nil, errors.New("app: database is required")
	}
	if infra.Tokens == nil {
		return nil, errors.New("app: token validator is required")
	}
	if infra.Logger == nil {
		infra.Logger = slog.Default()
	}
	if infra.Registerer == nil {
		infra.Registerer = prometheus.NewRegistry()
	}
	logger := infra.Logger

	bus := events.NewBus(events.Options{
		Workers:         cfg.EventWorkers,
		QueueSize:       cfg.EventQueueSize,
		BlockingTimeout: cfg.BlockingListenerTimeoutDuration(),
		ListenerTimeout: cfg.ListenerTimeoutDuration(),
		AfterCommit:     db.AfterCommit,
		Detach:          reqctx.Detach,
		Logger:          logger.With("component", "events"),
		Meter:           otel.Meter(instrumentationName),
		Tracer:          otel.Tracer(instrumentationName),
	})

	a, err := build(cfg, infra, bus)
	if err != nil {
		_ = bus.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, infra Infra, bus *events.Bus) (*App, error) {
	logger := infra.Logger
	tx := db.NewTxManager(infra.DB)
	reg := registry.Default()

	users := userrepo.NewPostgresRepository(infra.DB)
	orgs := orgrepo.NewPostgresRepository(infra.DB)
	memberships := membershiprepo.NewPostgresRepository(infra.DB)
	grants := rbacrepo.NewPostgresRepository(infra.DB)
	notifications := notificationrepo.NewPostgresRepository(infra.DB)
	policies := policyrepo.NewPostgresRepository(infra.DB)
	audits := auditrepo.NewPostgresRepository(infra.DB)

	cache, err := newCache(cfg, infra.Redis)
	if err != nil {
		return nil, err
	}
	opa := engine.NewOPAEvaluator(policies, logger.With("component", "policy"))
	evaluator := authz.NewEvaluator(memberships, grants, reg, authz.Options{
		Cache:   cache,
		Policy:  opa,
		Denials: authz.NewEventDenialReporter(bus, logger),
		Logger:  logger.With("component", "authz"),
	})

	channelPolicy := notificationdomain.DefaultChannelPolicy()
	if optIn := cfg.OptInChannels(); optIn != nil {
		chans := make([]notificationdomain.Channel, 0, len(optIn))
		for _, c := range optIn {
			chans = append(chans, notificationdomain.Channel(c))
		}
		channelPolicy = channelPolicy.WithOptIn(chans...)
	}

	auditLogger := audit.NewLogger(audits, audit.Options{
		DedupWindow: cfg.AuditDedupWindowDuration(),
		Sink:        audit.NewOTelSink(infra.LoggerProvider),
		Logger:      logger.With("component", "audit"),
	})
	disp := dispatcher.New(notifications, notifications, memberships, infra.Queue, dispatcher.Options{
		Policy: channelPolicy,
		Logger: logger.With("component", "notifications"),
	})

	var errs []error
	errs = append(errs,
		membershipservice.RegisterInvariants(bus, memberships),
		audit.NewListeners(auditLogger).Register(bus),
		disp.Register(bus),
		infra.Mirror.Register(bus),
	)
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("app: register listeners: %w", err)
	}

	a := &App{
		Bus:           bus,
		Evaluator:     evaluator,
		Users:         userservice.NewUserService(users, tx, bus),
		Orgs:          orgservice.NewOrgService(orgs, memberships, tx, bus, cache),
		Memberships:   membershipservice.NewMembershipService(memberships, memberships, orgs, users, evaluator, cache, tx, bus),
		Grants:        rbacservice.NewGrantService(grants, users, reg, cache, tx, bus),
		Notifications: notificationservice.NewNotificationService(notifications, notifications, channelPolicy),
		Policies:      policyservice.NewPolicyService(policies, opa),
		infra:         infra,
	}

	a.Health = health.NewChecker(infra.DB, opa)
	if infra.Redis != nil {
		a.Health.Add("redis", func(ctx context.Context) error { return infra.Redis.Ping(ctx).Err() })
	}

	a.handler = server.NewRouter(server.Deps{
		Tokens:        infra.Tokens,
		Authz:         evaluator,
		Users:         a.Users,
		Orgs:          a.Orgs,
		Memberships:   a.Memberships,
		Grants:        a.Grants,
		Notifications: a.Notifications,
		Policies:      a.Policies,
		Audit:         audits,
		Health:        a.Health,
		Metrics:       server.NewMetrics(infra.Registerer),
		Logger:        logger.With("component", "http"),
	})
	a.grpc = server.NewGRPCServer(server.GRPCDeps{
		Tokens: infra.Tokens,
		Health: a.Health,
		Logger: logger.With("component", "grpc"),
	})
	return a, nil
}

// newCache selects the role-set cache backend named by AUTHZ_CACHE.
func newCache(cfg *config.Config, client redis.UniversalClient) (authz.Cache, error) {
	switch cfg.AuthzCache {
	case "none":
		return authz.NopCache{}, nil
	case "redis":
		if client == nil {
			return nil, errors.New("app: AUTHZ_CACHE=redis requires a Redis client")
		}
		return authz.NewRedisCache(client, cfg.CacheTTL()), nil
	default:
		return authz.NewMemoryCache(cfg.CacheTTL()), nil
	}
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler { return a.handler }

// GRPCServer returns the gRPC server exposing health checks.
func (a *App) GRPCServer() *grpc.Server { return a.grpc }

// Close drains best-effort listeners and closes the Kafka mirror. The HTTP and gRPC servers must be
// stopped first so no new events are published.
func (a *App) Close(ctx context.Context) error {
	err := a.Bus.Close(ctx)
	return errors.Join(err, a.infra.Mirror.Close())
}
