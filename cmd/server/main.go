package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	authhandler "transitpass/internal/auth/handler"
	authservice "transitpass/internal/auth/service"
	"transitpass/internal/auth/store/revocation"
	userstore "transitpass/internal/auth/store/user"
	"transitpass/internal/document"
	jwttoken "transitpass/internal/jwt_token"
	"transitpass/internal/notification"
	passhandler "transitpass/internal/pass/handler"
	passmetrics "transitpass/internal/pass/metrics"
	passservice "transitpass/internal/pass/service"
	passstore "transitpass/internal/pass/store"
	paymenthandler "transitpass/internal/payment/handler"
	paymentmetrics "transitpass/internal/payment/metrics"
	"transitpass/internal/payment/provider"
	paymentservice "transitpass/internal/payment/service"
	"transitpass/internal/platform/config"
	"transitpass/internal/platform/httpserver"
	"transitpass/internal/platform/logger"
	platformmetrics "transitpass/internal/platform/metrics"
	"transitpass/internal/platform/postgres"
	platformredis "transitpass/internal/platform/redis"
	ratelimitmetrics "transitpass/internal/ratelimit/metrics"
	ratelimit "transitpass/internal/ratelimit/middleware"
	ratelimitmodels "transitpass/internal/ratelimit/models"
	"transitpass/internal/ratelimit/store/bucket"
	httptransport "transitpass/internal/transport/http"
	audit "transitpass/pkg/platform/audit"
	"transitpass/pkg/platform/audit/publisher"
	auditmemory "transitpass/pkg/platform/audit/store/memory"
	auditpostgres "transitpass/pkg/platform/audit/store/postgres"
	"transitpass/pkg/platform/audit/worker"
	"transitpass/pkg/platform/circuit"
	txcontext "transitpass/pkg/platform/tx"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

// ledgerStore is what both the pass ledger and payment reconciliation need from storage.
type ledgerStore interface {
	passservice.Store
	paymentservice.Store
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := platformmetrics.NewRegistry()
	health := map[string]httptransport.HealthCheck{}

	var (
		db       *sql.DB
		ledger   ledgerStore
		users    authservice.UserStore
		auditSt  audit.Store
		outbox   audit.Outbox
		txRunner interface {
			RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
		}
	)
	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		health["postgres"] = db.PingContext
		txRunner = txcontext.NewRunner(db)
		ledger = passstore.NewPostgres(db)
		users = userstore.NewPostgres(db)
		pgAudit := auditpostgres.New(db)
		auditSt, outbox = pgAudit, pgAudit
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		mem := passstore.NewInMemory()
		txRunner = mem
		ledger = mem
		users = userstore.New()
		memAudit := auditmemory.NewInMemoryStore()
		auditSt, outbox = memAudit, memAudit
	}

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	var (
		revocations revocationList
		buckets     ratelimit.BucketStore
	)
	if redisClient != nil {
		defer redisClient.Close()
		health["redis"] = redisClient.Health
		revocations = revocation.NewRedisTRL(redisClient.Client, revocation.WithRedisMetrics(revocation.NewMetrics(reg)))
		buckets = bucket.NewRedis(redisClient.Client)
	} else {
		log.Warn("REDIS_URL not set, using in-memory revocation list and rate limits")
		revocations = revocation.NewInMemoryTRL()
		buckets = bucket.New()
	}
	limiter := ratelimit.New(buckets, log,
		ratelimit.WithDisabled(cfg.RateLimit.Disabled),
		ratelimit.WithMetrics(ratelimitmetrics.New(reg)),
		ratelimit.WithRule(ratelimitmodels.ClassPublic, ratelimitmodels.Rule{Limit: cfg.RateLimit.PublicPerMinute, Window: time.Minute}),
		ratelimit.WithRule(ratelimitmodels.ClassAuthenticated, ratelimitmodels.Rule{Limit: cfg.RateLimit.AuthenticatedPerMinute, Window: time.Minute}),
	)

	audits := publisher.NewPublisher(auditSt, publisher.WithLogger(log))
	jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer)
	authSvc := authservice.New(users, jwt, revocations,
		authservice.WithTx(txRunner),
		authservice.WithAuditPublisher(audits),
		authservice.WithLogger(log),
		authservice.WithTokenTTL(cfg.Auth.AccessTokenTTL),
		authservice.WithBcryptCost(cfg.Auth.BcryptCost),
	)
	if cfg.Auth.AdminEmail != "" {
		if err := authSvc.SeedAdmin(ctx, cfg.Auth.AdminName, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
	}

	sender, closeSender, err := newSender(cfg, log)
	if err != nil {
		return err
	}
	defer closeSender()
	notifier := notification.NewDispatcher(authSvc, sender, log)

	docs, err := document.NewFileStore(cfg.DocumentDir)
	if err != nil {
		return err
	}

	passSvc := passservice.New(ledger, docs,
		passservice.WithTx(txRunner),
		passservice.WithNotifier(notifier),
		passservice.WithAuditPublisher(audits),
		passservice.WithMetrics(passmetrics.New(reg)),
		passservice.WithLocation(cfg.Location),
		passservice.WithLogger(log),
	)

	gateway := provider.New(provider.Config{
		BaseURL:   cfg.Payment.BaseURL,
		KeyID:     cfg.Payment.KeyID,
		KeySecret: cfg.Payment.KeySecret,
		Timeout:   cfg.Payment.Timeout,
	}, provider.WithBreaker(circuit.New("payment-provider")), provider.WithLogger(log))
	paySvc := paymentservice.New(ledger, gateway,
		paymentservice.WithTx(txRunner),
		paymentservice.WithNotifier(notifier),
		paymentservice.WithAuditPublisher(audits),
		paymentservice.WithMetrics(paymentmetrics.New(reg)),
		paymentservice.WithCurrency(cfg.Payment.Currency),
		paymentservice.WithLogger(log),
	)

	router := httptransport.NewRouter(httptransport.Config{
		Logger:      log,
		Validator:   jwttoken.NewJWTServiceAdapter(jwt),
		Revocations: revocations,
		Observer:    platformmetrics.NewHTTP(reg),
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Health:      health,
		RateLimit:   limiter,
		Modules: []httptransport.Module{
			authhandler.New(authSvc, log),
			passhandler.New(passSvc, docs, log),
			paymenthandler.New(paySvc, log),
		},
	})

	var relay *worker.Relay
	if len(cfg.Audit.KafkaBrokers) > 0 {
		client, err := kgo.NewClient(kgo.SeedBrokers(cfg.Audit.KafkaBrokers...))
		if err != nil {
			return fmt.Errorf("kafka client: %w", err)
		}
		defer client.Close()
		if err := worker.EnsureTopic(ctx, client, cfg.Audit.Topic, 3, 1); err != nil {
			log.Warn("audit topic not ensured", "topic", cfg.Audit.Topic, "error", err)
		}
		relayOpts := []worker.Option{worker.WithLogger(log)}
		if db != nil {
			relayOpts = append(relayOpts, worker.WithTx(txRunner))
		}
		relay = worker.NewRelay(outbox, client, cfg.Audit.Topic, relayOpts...)
	} else {
		log.Info("KAFKA_BROKERS not set, audit events stay in the outbox")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, httpserver.New(cfg.Server.Addr, router), cfg.Server.ShutdownTimeout, log)
	})
	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}
	return g.Wait()
}

type revocationList interface {
	authservice.TokenRevoker
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

func newSender(cfg config.Config, log *slog.Logger) (notification.Sender, func(), error) {
	if cfg.Notify.AMQPURL == "" {
		log.Warn("AMQP_URL not set, notifications are logged instead of mailed")
		return notification.NewLogSender(log), func() {}, nil
	}
	pub, err := notification.NewAMQPPublisher(cfg.Notify.AMQPURL, cfg.Notify.Queue)
	if err != nil {
		return nil, nil, errors.Join(errors.New("notification queue unavailable"), err)
	}
	return pub, func() { _ = pub.Close() }, nil
}
