package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iamwavecut/strikeguard/internal/bot"
	"github.com/iamwavecut/strikeguard/internal/config"
	"github.com/iamwavecut/strikeguard/internal/db"
	"github.com/iamwavecut/strikeguard/internal/db/memory"
	"github.com/iamwavecut/strikeguard/internal/db/redis"
	"github.com/iamwavecut/strikeguard/internal/db/sqlite"
	handlers "github.com/iamwavecut/strikeguard/internal/handlers/chat"
	"github.com/iamwavecut/strikeguard/internal/infra"
	"github.com/iamwavecut/strikeguard/internal/infrastructure/telegram"
	"github.com/iamwavecut/strikeguard/internal/lifecycle"
	"github.com/iamwavecut/strikeguard/internal/moderation"
	"github.com/iamwavecut/strikeguard/internal/moderation/guard"
	"github.com/iamwavecut/strikeguard/internal/observability"
)

const shutdownTimeout = 15 * time.Second

var errExecutableReplaced = errors.New("executable file was modified")

func main() {
	cfg, err := config.Load()
	log.SetFormatter(&config.SgFormatter{NoColor: cfg.LogNoColor})
	log.SetOutput(os.Stdout)
	if err != nil {
		log.WithError(err).Fatalln("cant load config")
	}
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg)
	switch {
	case errors.Is(err, errExecutableReplaced):
		log.Warnln("executable file was modified, exiting for restart")
	case err != nil:
		log.WithError(err).Fatalln("exiting")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	shutdownTelemetry, err := observability.Init(ctx)
	if err != nil {
		return errors.WithMessage(err, "init telemetry")
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.WithError(err).Warn("cant flush telemetry")
		}
	}()

	rules := config.DefaultRules()
	if cfg.Moderation.RulesPath != "" {
		if rules, err = config.LoadRulesFile(cfg.Moderation.RulesPath); err != nil {
			return errors.WithMessage(err, "load rules")
		}
	}
	holder, err := config.NewRulesHolder(rules)
	if err != nil {
		return errors.WithMessage(err, "rules")
	}

	store, err := openStore(ctx, cfg.DotPath, cfg.Store)
	if err != nil {
		return errors.WithMessagef(err, "open %s store", cfg.Store.Backend)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("cant close store")
		}
	}()

	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		return errors.WithMessage(err, "init bot api")
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}

	ops := telegram.NewOperations(botAPI)
	membership := telegram.NewMembershipChecker(ops)
	engine := moderation.NewEngine(store, guard.New(membership, cfg.Moderation.GuardTimeout), holder, cfg.Store.OpTimeout)
	enforcer := telegram.NewEnforcer(ops, telegram.EnforcerConfig{
		AdminLogChatID: cfg.Moderation.AdminLogChatID,
		WarnMessageTTL: cfg.Moderation.WarnMessageTTL,
		Notify:         cfg.Moderation.NotifyOnActions,
	})
	reactor := handlers.NewReactor(engine, enforcer, ops, membership, handlers.Config{
		DefaultLanguage: cfg.DefaultLanguage,
		BotID:           botAPI.Self.ID,
	})

	watcher := config.NewRulesWatcher(cfg.Moderation.RulesPath, cfg.Moderation.RulesReload, holder)
	watcher.OnReload(observability.RecordRulesReload)

	runtime := lifecycle.NewRuntime().
		Register("rules_watcher", watcher).
		Register("http", observability.NewServer(cfg.HTTPAddr, engine.Ping)).
		Register("poller", bot.NewPoller(botAPI, bot.NewUpdateProcessor(reactor), cfg.Workers))

	if err := enforcer.NotifyStartup(ctx, cfg.Store.Backend); err != nil {
		log.WithError(err).Warn("cant send startup notice")
	}
	log.WithFields(log.Fields{
		"bot":   botAPI.Self.UserName,
		"store": cfg.Store.Backend,
	}).Info("strikeguard started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runtime.Run(gctx, shutdownTimeout)
	})
	g.Go(func() error {
		if _, ok := <-infra.MonitorExecutable(gctx); ok {
			return errExecutableReplaced
		}
		return nil
	})
	return g.Wait()
}

func openStore(ctx context.Context, dotPath string, cfg config.Store) (db.Client, error) {
	switch cfg.Backend {
	case "sqlite":
		return sqlite.NewSQLiteClient(ctx, infra.GetWorkDir(dotPath), cfg.SQLiteFile)
	case "redis":
		return redis.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisPrefix)
	case "memory":
		log.Warn("memory store keeps strikes only until restart")
		return memory.NewMemoryClient(cfg.MemoryLimit), nil
	}
	return nil, errors.Errorf("unknown store backend %q", cfg.Backend)
}
