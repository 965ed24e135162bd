package main

import (
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"

	"taskboard/internal/cache"
	"taskboard/internal/config"
	"taskboard/internal/server"
	"taskboard/internal/session"
	"taskboard/internal/store"
	"taskboard/internal/store/docstore"
	"taskboard/internal/store/sqlstore"
	"taskboard/internal/task"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Str("app", "taskboard").Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}

	var backend store.Store
	switch cfg.Backend {
	case config.BackendSQL:
		backend, err = sqlstore.Open(cfg.DBDriver, cfg.DBSource, log)
	case config.BackendDocument:
		backend, err = docstore.Open(cfg.DataDir, log)
	}
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Backend).Msg("storage init failed")
	}
	defer backend.Close()

	var taskCache cache.TaskCache = cache.Noop{}
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedis(cfg.RedisAddr, log)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis init failed")
		}
		taskCache = rc
	}

	sessions := session.NewManager(cfg.SecretKey)
	tasks := task.NewService(backend, taskCache, log)
	srv := server.New(backend, tasks, sessions, log)

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Str("backend", cfg.Backend).Msg("listening")
	if err := srv.Start(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
