package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		TelegramAPIToken string `env:"TOKEN,required"`
		DefaultLanguage  string `env:"LANG,default=en"`
		LogLevel         int    `env:"LOG_LEVEL,default=4"`
		LogNoColor       bool   `env:"LOG_NO_COLOR"`
		DotPath          string `env:"DOT_PATH,default=~/.strikeguard"`
		HTTPAddr         string `env:"HTTP_ADDR,default=:2112"`
		Workers          int    `env:"WORKERS,default=8"`
		Store            Store
		Moderation       Moderation
	}

	Store struct {
		Backend      string        `env:"STORE,default=sqlite"`
		SQLiteFile   string        `env:"SQLITE_FILE,default=strikeguard.db"`
		RedisURL     string        `env:"REDIS_URL,default=redis://localhost:6379/0"`
		RedisPrefix  string        `env:"REDIS_PREFIX,default=sg"`
		MemoryLimit  int           `env:"MEMORY_LIMIT,default=100000"`
		OpTimeout    time.Duration `env:"STORE_TIMEOUT,default=2s"`
	}

	Moderation struct {
		RulesPath       string        `env:"RULES_PATH"`
		RulesReload     time.Duration `env:"RULES_RELOAD_INTERVAL,default=10s"`
		GuardTimeout    time.Duration `env:"GUARD_TIMEOUT,default=3s"`
		AdminLogChatID  int64         `env:"ADMIN_LOG_CHAT_ID"`
		WarnMessageTTL  time.Duration `env:"WARN_MESSAGE_TTL,default=1m"`
		NotifyOnActions bool          `env:"NOTIFY_ON_ACTIONS,default=true"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("SG_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		home, err := os.UserHomeDir()
		if err != nil {
			globalErr = fmt.Errorf("get user home directory: %w", err)
			return
		}
		cfg.DotPath = strings.Replace(cfg.DotPath, "~", home, 1)
		if cfg.Moderation.RulesPath != "" {
			cfg.Moderation.RulesPath = strings.Replace(cfg.Moderation.RulesPath, "~", home, 1)
		}
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}
