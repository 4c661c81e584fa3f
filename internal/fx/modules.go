// Package fx wires the application graph for the bot and worker processes.
package fx

import (
	"context"
	"fmt"
	"os"

	"github.com/bwmarrin/discordgo"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/fx"

	"github.com/stepbattle/stepbattle/config"
	"github.com/stepbattle/stepbattle/internal/application/command"
	"github.com/stepbattle/stepbattle/internal/application/query"
	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/schedule"
	infradiscord "github.com/stepbattle/stepbattle/internal/infrastructure/discord"
	"github.com/stepbattle/stepbattle/internal/infrastructure/persistence/memory"
	"github.com/stepbattle/stepbattle/internal/infrastructure/persistence/postgres"
	rediscache "github.com/stepbattle/stepbattle/internal/infrastructure/persistence/redis"
	"github.com/stepbattle/stepbattle/internal/infrastructure/scheduler"
	"github.com/stepbattle/stepbattle/internal/infrastructure/scheduler/jobs"
	"github.com/stepbattle/stepbattle/internal/interface/discord"
	httpserver "github.com/stepbattle/stepbattle/internal/interface/http"
	"github.com/stepbattle/stepbattle/internal/interface/http/handlers"
	"github.com/stepbattle/stepbattle/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CORE
// ══════════════════════════════════════════════════════════════════════════════

// Store is a repository that can report its reachability.
type Store interface {
	competition.Repository
	handlers.Pinger
}

// ProvideLogger builds the process logger from configuration.
func ProvideLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.Observability.LogFormat == string(logger.FormatConsole) {
		opts.Format = logger.FormatConsole
	}
	return logger.New(opts).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}

// ProvideStore opens the configured storage driver.
func ProvideStore(lc fx.Lifecycle, cfg *config.Config, log *logger.Logger) (Store, error) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn("using in-memory storage; data is lost on restart")
		return memory.NewRepository(), nil
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = cfg.Database.MaxConns
	pgCfg.MinConns = cfg.Database.MinConns
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgCfg.LockTimeout = cfg.Database.LockTimeout

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.QueryTimeout)
	defer cancel()

	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if cfg.Database.MigrateOnStart {
		if err := conn.Migrate(context.Background()); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if v, err := conn.MigrationVersion(context.Background()); err == nil {
			log.Info("database migrated", logger.Int64("version", v))
		}
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			conn.Close()
			return nil
		},
	})
	return postgres.NewCompetitionRepository(conn), nil
}

// ProvideRepository exposes the store as the domain repository.
func ProvideRepository(s Store) competition.Repository {
	return s
}

// ProvideCache connects to Redis when a URL is configured; otherwise nil.
func ProvideCache(lc fx.Lifecycle, cfg *config.Config, log *logger.Logger) (*rediscache.Cache, error) {
	if !cfg.Redis.Enabled() {
		return nil, nil
	}
	rc := rediscache.Config{
		URL:          cfg.Redis.URL,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}
	cache, err := rediscache.NewCache(context.Background(), rc)
	if err != nil {
		return nil, err
	}
	log.Info("redis connected")
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return cache.Close() },
	})
	return cache, nil
}

// ProvideScheduleDefaults returns the default schedule of new competitions.
func ProvideScheduleDefaults(cfg *config.Config) schedule.Config {
	return cfg.Schedule.Domain()
}

// CoreModule holds configuration, logging and storage.
var CoreModule = fx.Options(
	fx.Provide(config.Load),
	fx.Provide(ProvideLogger),
	fx.Provide(ProvideStore),
	fx.Provide(ProvideRepository),
	fx.Provide(ProvideCache),
	fx.Provide(ProvideScheduleDefaults),
)

// ══════════════════════════════════════════════════════════════════════════════
// DISCORD
// ══════════════════════════════════════════════════════════════════════════════

// ProvideSession creates the Discord session. It is not opened here.
func ProvideSession(cfg *config.Config) (*discordgo.Session, error) {
	if err := cfg.RequireDiscord(); err != nil {
		return nil, err
	}
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds
	return session, nil
}

// ProvideDiscordClient wraps the session's REST API.
func ProvideDiscordClient(session *discordgo.Session, cfg *config.Config, log *logger.Logger) *infradiscord.Client {
	return infradiscord.NewClient(session, infradiscord.ClientConfig{
		RequestTimeout: cfg.Discord.RequestTimeout,
		Logger:         log,
	})
}

// ProvideMembership checks guild membership through Discord, cached in Redis
// when available.
func ProvideMembership(client *infradiscord.Client, cache *rediscache.Cache, cfg *config.Config, log *logger.Logger) competition.MembershipChecker {
	var checker competition.MembershipChecker = infradiscord.NewMembershipChecker(client)
	if cache != nil {
		checker = rediscache.NewMembershipCache(cache, checker, cfg.Membership.CacheTTL, log)
	}
	return checker
}

// DiscordModule holds the Discord REST side shared by both processes.
var DiscordModule = fx.Options(
	fx.Provide(ProvideSession),
	fx.Provide(ProvideDiscordClient),
	fx.Provide(ProvideMembership),
	fx.Provide(infradiscord.NewChannelPoster),
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION
// ══════════════════════════════════════════════════════════════════════════════

// ProvideLeaderboardQuery builds the leaderboard query with the configured
// membership concurrency.
func ProvideLeaderboardQuery(repo competition.Repository, membership competition.MembershipChecker, cfg *config.Config) *query.GetLeaderboardHandler {
	return query.NewGetLeaderboardHandler(repo, membership).WithConcurrency(cfg.Membership.MaxConcurrency)
}

// ApplicationModule holds the command and query handlers.
var ApplicationModule = fx.Options(
	fx.Provide(command.NewRecordSubmissionHandler),
	fx.Provide(command.NewSubmitManualStepsHandler),
	fx.Provide(command.NewLinkIdentityHandler),
	fx.Provide(command.NewConfigureCompetitionHandler),
	fx.Provide(ProvideLeaderboardQuery),
	fx.Provide(query.NewGetPostingScheduleHandler),
	fx.Provide(query.NewGetGapTrendHandler),
	fx.Provide(query.NewListLinkCandidatesHandler),
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT PROCESS
// ══════════════════════════════════════════════════════════════════════════════

// BotParams collects the bot's dependencies.
type BotParams struct {
	fx.In

	Config      *config.Config
	Log         *logger.Logger
	Session     *discordgo.Session
	Repo        competition.Repository
	Poster      *infradiscord.ChannelPoster
	Configure   *command.ConfigureCompetitionHandler
	Link        *command.LinkIdentityHandler
	Submit      *command.SubmitManualStepsHandler
	Leaderboard *query.GetLeaderboardHandler
	Schedule    *query.GetPostingScheduleHandler
	GapTrend    *query.GetGapTrendHandler
	Candidates  *query.ListLinkCandidatesHandler
}

// ProvideBot builds the slash command bot.
func ProvideBot(p BotParams) (*discord.Bot, error) {
	cfg := discord.DefaultBotConfig()
	cfg.ClientID = p.Config.Discord.ClientID
	cfg.GuildID = p.Config.Discord.GuildID
	cfg.GapTrend = p.Config.Features.GapTrend
	cfg.GracefulShutdownTimeout = p.Config.App.ShutdownTimeout
	cfg.Logger = p.Log

	return discord.NewBot(p.Session, cfg, discord.BotDependencies{
		Configs:        p.Repo,
		Poster:         p.Poster,
		Configure:      p.Configure,
		Link:           p.Link,
		SubmitSteps:    p.Submit,
		Leaderboard:    p.Leaderboard,
		Schedule:       p.Schedule,
		GapTrend:       p.GapTrend,
		LinkCandidates: p.Candidates,
	})
}

// ProvideHealthChecker registers a readiness check per backing service.
func ProvideHealthChecker(cfg *config.Config, store Store, cache *rediscache.Cache) handlers.HealthChecker {
	hc := handlers.NewCompositeHealthChecker(cfg.App.Version)
	hc.AddCheck("database", handlers.NewPingCheck(store))
	if cache != nil {
		hc.AddCheck("redis", handlers.NewPingCheck(cache))
	}
	return hc
}

// ServerParams collects the HTTP server's dependencies.
type ServerParams struct {
	fx.In

	Config      *config.Config
	Log         *logger.Logger
	Record      *command.RecordSubmissionHandler
	Leaderboard *query.GetLeaderboardHandler
	GapTrend    *query.GetGapTrendHandler
	Schedule    *query.GetPostingScheduleHandler
	Health      handlers.HealthChecker
}

// ProvideHTTPServer builds the ingestion and read API server. An empty
// API_SECRET leaves every /api route unregistered.
func ProvideHTTPServer(p ServerParams) (*httpserver.Server, error) {
	deps := httpserver.Dependencies{
		RecordSubmission:   p.Record,
		GetLeaderboard:     p.Leaderboard,
		GetGapTrend:        p.GapTrend,
		GetPostingSchedule: p.Schedule,
		HealthChecker:      p.Health,
		Features:           p.Config.Features,
		Logger:             p.Log,
	}
	if secret := p.Config.HTTP.APISecret; secret != "" {
		auth, err := handlers.NewBearerAuth(secret)
		if err != nil {
			return nil, fmt.Errorf("digest api secret: %w", err)
		}
		deps.Auth = auth
	} else {
		p.Log.Warn("API_SECRET is empty; the step ingestion API is disabled")
	}

	sc := httpserver.DefaultConfig()
	sc.Host = p.Config.HTTP.Host
	sc.Port = p.Config.HTTP.Port
	sc.ReadTimeout = p.Config.HTTP.ReadTimeout
	sc.WriteTimeout = p.Config.HTTP.WriteTimeout
	sc.AllowedOrigins = p.Config.HTTP.AllowedOrigins
	sc.RateLimitPerMinute = p.Config.HTTP.RateLimit
	return httpserver.NewServer(sc, deps), nil
}

// RunBot ties the bot and HTTP server to the fx lifecycle.
func RunBot(lc fx.Lifecycle, bot *discord.Bot, srv *httpserver.Server, cfg *config.Config, log *logger.Logger) {
	log.Info("starting bot process",
		logger.String("version", cfg.App.Version),
		logger.Any("features", cfg.Features.Enabled()),
	)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := srv.Start(ctx); err != nil {
				return err
			}
			return bot.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			botErr := bot.Stop(ctx)
			if err := srv.Shutdown(ctx); err != nil {
				return err
			}
			return botErr
		},
	})
}

// BotModule is the graph of the bot process.
var BotModule = fx.Options(
	CoreModule,
	DiscordModule,
	ApplicationModule,
	fx.Provide(ProvideBot),
	fx.Provide(ProvideHealthChecker),
	fx.Provide(ProvideHTTPServer),
	fx.Invoke(RunBot),
)

// ══════════════════════════════════════════════════════════════════════════════
// WORKER PROCESS
// ══════════════════════════════════════════════════════════════════════════════

// ProvidePostingLock uses Redis when available so several workers post each
// occurrence once; otherwise an in-process lock.
func ProvidePostingLock(cache *rediscache.Cache, cfg *config.Config) (jobs.PostingLock, error) {
	if cache == nil {
		return jobs.NewLocalPostingLock(), nil
	}
	id, err := gonanoid.New(8)
	if err != nil {
		return nil, err
	}
	host, _ := os.Hostname()
	return rediscache.NewPostingLock(cache, host+"-"+id, cfg.Scheduler.PostLockTTL), nil
}

// ProvidePostLeaderboardJob builds the scheduled posting job.
func ProvidePostLeaderboardJob(
	repo competition.Repository,
	boards *query.GetLeaderboardHandler,
	poster *infradiscord.ChannelPoster,
	lock jobs.PostingLock,
	cfg *config.Config,
	log *logger.Logger,
) *jobs.PostLeaderboardJob {
	jc := jobs.DefaultPostLeaderboardConfig()
	jc.Reminders = cfg.Features.Reminders
	jc.MaxConcurrent = cfg.Scheduler.MaxConcurrentPosts
	if cfg.Scheduler.TickInterval > jc.Lookback {
		jc.Lookback = cfg.Scheduler.TickInterval
	}
	return jobs.NewPostLeaderboardJob(repo, boards, discord.NewAnnouncer(poster), lock, log, jc)
}

// ProvideScheduler builds the scheduler with the posting job registered.
func ProvideScheduler(job *jobs.PostLeaderboardJob, cfg *config.Config, log *logger.Logger) (*scheduler.Scheduler, error) {
	sc := scheduler.DefaultConfig()
	sc.Logger = log
	sc.JobTimeout = cfg.Scheduler.JobTimeout

	s := scheduler.New(sc)
	if err := s.Register(job, scheduler.Every(cfg.Scheduler.TickInterval)); err != nil {
		return nil, err
	}
	s.OnJobError(func(name string, err error) {
		log.Error("scheduled job failed", logger.String("job", name), logger.Err(err))
	})
	return s, nil
}

// ProvideWorkerServer serves /health and /health/ready for the worker. The
// readiness check covers the stores and the scheduler's last run. It is nil
// when SCHEDULER_HEALTH_PORT is zero.
func ProvideWorkerServer(cfg *config.Config, s *scheduler.Scheduler, store Store, cache *rediscache.Cache, log *logger.Logger) *httpserver.Server {
	if cfg.Scheduler.HealthPort == 0 {
		return nil
	}
	hc := handlers.NewCompositeHealthChecker(cfg.App.Version)
	hc.AddCheck("database", handlers.NewPingCheck(store))
	if cache != nil {
		hc.AddCheck("redis", handlers.NewPingCheck(cache))
	}
	if cfg.Scheduler.Enabled {
		hc.AddCheck("scheduler", s.Ready)
	}

	sc := httpserver.DefaultConfig()
	sc.Host = cfg.HTTP.Host
	sc.Port = cfg.Scheduler.HealthPort
	sc.RateLimitPerMinute = 0
	return httpserver.NewServer(sc, httpserver.Dependencies{HealthChecker: hc, Logger: log})
}

// RunWorker ties the scheduler and its health server to the fx lifecycle.
func RunWorker(lc fx.Lifecycle, s *scheduler.Scheduler, srv *httpserver.Server, cfg *config.Config, log *logger.Logger) {
	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler disabled; worker is idle")
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if srv != nil {
				if err := srv.Start(ctx); err != nil {
					return err
				}
			}
			if !cfg.Scheduler.Enabled {
				return nil
			}
			for _, job := range s.ListJobs() {
				log.Info("worker job",
					logger.String("job", job.Name),
					logger.String("schedule", job.Schedule),
					logger.Time("next_run", job.NextRun),
				)
			}
			return s.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			var stopErr error
			if cfg.Scheduler.Enabled {
				stopErr = s.Stop(ctx)
			}
			if srv != nil {
				if err := srv.Shutdown(ctx); err != nil {
					return err
				}
			}
			return stopErr
		},
	})
}

// WorkerModule is the graph of the worker process.
var WorkerModule = fx.Options(
	CoreModule,
	DiscordModule,
	ApplicationModule,
	fx.Provide(ProvidePostingLock),
	fx.Provide(ProvidePostLeaderboardJob),
	fx.Provide(ProvideScheduler),
	fx.Provide(ProvideWorkerServer),
	fx.Invoke(RunWorker),
)
