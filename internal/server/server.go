package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/siohaza/warden/internal/bans"
	"github.com/siohaza/warden/internal/collector"
	"github.com/siohaza/warden/internal/event"
	"github.com/siohaza/warden/internal/identity"
	"github.com/siohaza/warden/internal/metrics"
	"github.com/siohaza/warden/internal/notify"
	"github.com/siohaza/warden/internal/rcon"
	"github.com/siohaza/warden/internal/router"
	"github.com/siohaza/warden/internal/steam"
	"github.com/siohaza/warden/internal/storage"
	"github.com/siohaza/warden/internal/vip"
	"github.com/siohaza/warden/internal/vote"
	"github.com/siohaza/warden/pkg/config"
	"github.com/siohaza/warden/pkg/lua"
)

const identityRetention = 30 * 24 * time.Hour

type SteamAPI interface {
	bans.HistorySource
	ProfileSource
}

// Dependencies are the external collaborators of a Server. New builds the
// production set from the config.
type Dependencies struct {
	RCON          rcon.Client
	Steam         SteamAPI
	Cache         identity.Cache
	Store         *storage.Store
	Poster        notify.Poster
	Metrics       *metrics.Metrics
	Subscriptions notify.Subscriptions
}

type Server struct {
	config   *config.Config
	logger   *slog.Logger
	deps     Dependencies
	router   *router.Router
	resolver *identity.Resolver
	votes    *vote.Engine
	hooks    *lua.HookManager
	http     *http.Server
	redis    *redis.Client
	started  time.Time
}

func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	subs, err := config.LoadSubscriptions(cfg.Notify.SubscriptionsFile)
	if err != nil {
		store.Close()
		return nil, err
	}

	deps := Dependencies{
		RCON:          rcon.NewHTTPClient(cfg.RCON.BaseURL, cfg.RCON.Token, cfg.RCONTimeout()),
		Steam:         steam.NewClient(cfg.Steam.BaseURL, cfg.Steam.APIKey, cfg.SteamTimeout()),
		Store:         store,
		Poster:        notify.NewWebhookClient(cfg.NotifyTimeout(), cfg.Notify.RatePerSecond),
		Metrics:       metrics.Default(),
		Subscriptions: subs,
	}

	var redisClient *redis.Client
	switch cfg.Identity.Backend {
	case config.BackendRedis:
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Identity.Redis.Addr,
			Password: cfg.Identity.Redis.Password,
			DB:       cfg.Identity.Redis.DB,
		})
		deps.Cache = identity.NewRedisCache(redisClient, cfg.Identity.Redis.Prefix, identityRetention)
	default:
		deps.Cache = identity.NewMemoryCache(identityRetention)
	}

	srv, err := NewWithDependencies(cfg, deps, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	srv.redis = redisClient
	return srv, nil
}

// NewWithDependencies wires the policy handlers onto the given collaborators.
func NewWithDependencies(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.RCON == nil || deps.Steam == nil || deps.Store == nil {
		return nil, errors.New("rcon client, steam client and store are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Default()
	}
	if deps.Cache == nil {
		deps.Cache = identity.NewMemoryCache(identityRetention)
	}
	if deps.Poster == nil {
		deps.Poster = notify.NewWebhookClient(cfg.NotifyTimeout(), cfg.Notify.RatePerSecond)
	}

	s := &Server{
		config: cfg,
		logger: logger,
		deps:   deps,
	}

	s.resolver = identity.NewResolver(deps.Cache, deps.RCON, cfg.IdentityTTL(), logger)

	auditor := notify.NewAuditor(deps.Poster, cfg.Notify.AuditWebhook, cfg.Notify.CameraWebhooks, cfg.Footer(), deps.Metrics, logger)

	enforcer := bans.NewEnforcer(deps.Store, deps.RCON, deps.Steam, auditor, deps.Metrics, bans.AutoBanConfig{
		MaxDaysSinceBan:     cfg.AutoBan.MaxDaysSinceBan,
		MaxGameBanThreshold: cfg.AutoBan.MaxGameBanThreshold,
		Reason:              cfg.AutoBan.Reason,
	}, logger)

	realVip := vip.NewController(deps.RCON, deps.Metrics, vip.Config{
		Enabled:      cfg.RealVip.Enabled,
		DesiredTotal: cfg.RealVip.DesiredTotal,
		MinFloor:     cfg.RealVip.MinFloor,
	}, logger)

	s.votes = vote.NewEngine(deps.RCON, vote.Config{
		Enabled:      cfg.VoteMap.Enabled,
		ThankYouText: cfg.VoteMap.ThankYouText,
		Choices:      cfg.VoteMap.Choices,
		MaxRetries:   cfg.VoteMap.MaxRetries,
	}, deps.Metrics, logger)

	camera := notify.NewCameraHandler(auditor, deps.RCON, notify.CameraConfig{
		Broadcast: cfg.Camera.Broadcast,
		Welcome:   cfg.Camera.Welcome,
	})

	s.hooks = lua.NewHookManager(logger)
	if cfg.Scripts.HooksDir != "" {
		api := lua.NewHookAPI(deps.RCON, cfg.Server.Name, cfg.Server.Number, logger)
		if err := s.hooks.LoadHooks(cfg.Scripts.HooksDir, api); err != nil {
			logger.Warn("failed to load lua hooks", "error", err)
		}
	}

	b := router.NewBuilder(logger).WithObserver(deps.Metrics)

	b.Register(&connectHandler{
		resolver: s.resolver,
		store:    deps.Store,
		bans:     enforcer,
		logger:   logger,
	}, event.TypeConnected)
	b.Register(router.WithIdentity(s.resolver, &profileHandler{
		profiles: deps.Steam,
		store:    deps.Store,
		logger:   logger,
	}, logger), event.TypeConnected)
	b.Register(router.WithIdentity(s.resolver, &disconnectHandler{store: deps.Store}, logger), event.TypeDisconnected)
	b.Register(realVip, event.TypeConnected, event.TypeDisconnected)
	b.Register(s.votes, event.TypeChat)
	b.Register(s.votes.ResetHandler(), event.TypeMatchStart)
	b.Register(camera, event.TypeCamera)

	for _, h := range notify.NewSubscriptionHandlers(deps.Subscriptions, deps.Poster, cfg.Server.Number, cfg.Footer(), deps.Metrics, logger) {
		b.Register(h, h.EventType())
	}

	for _, hook := range s.hooks.Hooks() {
		b.Register(hook, hook.Events...)
	}

	s.router = b.Build()

	logger.Info("handlers registered",
		"event_types", len(s.router.Types()),
		"lua_hooks", len(s.hooks.Hooks()),
		"auto_ban", enforcer.AutoBanEnabled(),
		"vote_map", cfg.VoteMap.Enabled,
		"real_vip", cfg.RealVip.Enabled,
	)

	return s, nil
}

func (s *Server) Router() *router.Router {
	return s.router
}

func (s *Server) Votes() *vote.Engine {
	return s.votes
}

// Start begins serving the HTTP endpoints in the background.
func (s *Server) Start() error {
	s.started = time.Now()

	if s.config.HTTP.Listen == "" {
		return nil
	}

	s.http = &http.Server{
		Addr:              s.config.HTTP.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "error", err)
		}
	}()

	s.logger.Info("http server started", "listen", s.config.HTTP.Listen)
	return nil
}

// Run consumes the configured event source until it is exhausted or ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	src, err := s.openSource(ctx)
	if err != nil {
		return err
	}
	defer src.Close()

	return s.Consume(ctx, src)
}

func (s *Server) Consume(ctx context.Context, src collector.Source) error {
	stats, err := collector.Run(ctx, src, s.router, s.deps.Metrics, s.logger)
	s.logger.Info("event source finished",
		"dispatched", stats.Dispatched,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Server) openSource(ctx context.Context) (collector.Source, error) {
	cfg := s.config.Collector
	switch cfg.Source {
	case config.SourceKafka:
		return collector.NewKafkaSource(collector.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		})
	case config.SourceWebSocket:
		return collector.DialWebSocket(ctx, cfg.WebSocket.URL, cfg.WebSocket.Token)
	default:
		return collector.OpenFile(cfg.Path)
	}
}

func (s *Server) Stop() {
	s.logger.Info("stopping server")

	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.http.Shutdown(ctx); err != nil {
			s.logger.Warn("failed to shut down http server", "error", err)
		}
		cancel()
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("failed to close redis client", "error", err)
		}
	}

	if err := s.deps.Store.Close(); err != nil {
		s.logger.Warn("failed to close storage", "error", err)
	}

	s.logger.Info("server stopped")
}

func (s *Server) GetUptime() time.Duration {
	if s.started.IsZero() {
		return 0
	}
	return time.Since(s.started)
}
