package cmd

import (
	"context"
	"os"
	"time"

	"github.com/jrsteele09/go-api-client/auth"
	"github.com/jrsteele09/go-api-client/cache"
	"github.com/jrsteele09/go-api-client/internal/config"
	"github.com/jrsteele09/go-api-client/notify"
	"github.com/jrsteele09/go-api-client/observe"
	"github.com/jrsteele09/go-api-client/pipeline"
	"github.com/jrsteele09/go-api-client/sessions"
	"github.com/jrsteele09/go-api-client/sessions/redisrepo"
	fakesessionrepo "github.com/jrsteele09/go-api-client/sessions/repofakes"
	"github.com/jrsteele09/go-api-client/token"
	"github.com/jrsteele09/go-api-client/token/refresh"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app is everything a command needs, wired from configuration.
type app struct {
	cfg      *config.Settings
	logger   zerolog.Logger
	registry *prometheus.Registry
	store    *sessions.Store
	redis    *redisrepo.RedisSessionRepo
	cache    *cache.Store[*pipeline.Response]
	manager  *auth.Manager
	client   *pipeline.Client
	closers  []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	a.logger = newLogger(cfg.GetLogLevel())

	var repo sessions.Repo = fakesessionrepo.NewFakeSessionRepo()
	if addr := cfg.GetRedisAddr(); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.redis = redisrepo.New(rdb, redisrepo.WithTTL(cfg.GetInactivityTimeout()))
		repo = a.redis
	}

	storeOpts := []sessions.StoreOption{sessions.WithKey(profile)}
	if key := cfg.GetSealKey(); len(key) > 0 {
		sealer, err := sessions.NewSealer(key)
		if err != nil {
			return nil, err
		}
		storeOpts = append(storeOpts, sessions.WithSealer(sealer))
	} else {
		a.logger.Warn().Msg("apiclient: no seal key configured, credentials will not be persisted")
	}
	a.store = sessions.NewStore(repo, storeOpts...)

	a.cache = cache.New[*pipeline.Response](cache.Config{
		DefaultTTL:      cfg.GetCacheDefaultTTL(),
		MaxEntries:      cfg.GetCacheMaxEntries(),
		MaxMemoryBytes:  cfg.GetCacheMaxMemoryBytes(),
		CleanupInterval: cfg.GetCacheCleanupInterval(),
	}, cache.WithLogger[*pipeline.Response](a.logger))
	a.cache.Start()
	a.closers = append(a.closers, a.cache.Stop)

	observer := observe.Multi(observe.Log(a.logger), observe.NewMetrics(a.registry))
	managerOpts := []auth.Option{
		auth.WithSessionConfig(cfg),
		auth.WithObserver(observer),
		auth.WithNotifier(notify.Log(a.logger)),
		auth.WithLogger(a.logger),
		auth.WithLogoutHook(func(auth.LogoutReason) { a.cache.Clear() }),
	}
	if cfg.GetClientID() != "" && cfg.GetOIDCIssuer() != "" {
		subjects, err := token.NewOIDCSubjects(ctx, cfg.GetOIDCIssuer(), cfg.GetClientID())
		if err != nil {
			return nil, err
		}
		managerOpts = append(managerOpts, auth.WithOIDCSubjects(subjects))
	}
	a.manager = auth.New(token.NewValidator(), newIssuer(cfg), a.store, managerOpts...)
	a.closers = append(a.closers, a.manager.Close)

	a.client, err = pipeline.New(cfg.GetBaseURL(), nil,
		pipeline.WithAPIConfig(cfg),
		pipeline.WithRetryPolicy(pipeline.RetryPolicyFrom(cfg)),
		pipeline.WithDefaultCacheTTL(cfg.GetCacheDefaultTTL()),
		pipeline.WithAuthenticator(a.manager),
		pipeline.WithCache(a.cache),
		pipeline.WithObserver(observer),
		pipeline.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newIssuer prefers a standard OAuth2 token endpoint when a client is
// registered, otherwise it posts the refresh token as JSON.
func newIssuer(cfg config.APIConfig) refresh.Issuer {
	if cfg.GetClientID() != "" {
		return refresh.NewOAuth2Issuer(cfg.GetTokenURL(), cfg.GetClientID(), cfg.GetClientSecret())
	}
	return refresh.NewJSONIssuer(cfg.GetTokenURL())
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen, NoColor: noColor}).
		Level(lvl).
		With().Timestamp().Logger()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// session restores the stored session and reports whether one is active.
// Without one, credentials in the environment start a session for this run.
func (a *app) session(ctx context.Context) bool {
	ok, err := a.manager.Bootstrap(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("apiclient: stored session discarded")
	}
	if ok {
		return true
	}
	creds := auth.Credentials{
		AccessToken:  os.Getenv("API_CLIENT_ACCESS_TOKEN"),
		RefreshToken: os.Getenv("API_CLIENT_REFRESH_TOKEN"),
		IDToken:      os.Getenv("API_CLIENT_ID_TOKEN"),
	}
	if creds.AccessToken == "" {
		return false
	}
	if err := a.manager.Login(ctx, creds, sessions.Subject{}); err != nil {
		a.logger.Warn().Err(err).Msg("apiclient: environment credentials rejected")
		return false
	}
	return true
}
