package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kataras/golog"

	"github.com/zhisuan/graphchat/config"
	"github.com/zhisuan/graphchat/expense"
	"github.com/zhisuan/graphchat/extract"
	"github.com/zhisuan/graphchat/llm"
	"github.com/zhisuan/graphchat/log"
	"github.com/zhisuan/graphchat/retrieval"
	"github.com/zhisuan/graphchat/server"
	"github.com/zhisuan/graphchat/store"
	redisstore "github.com/zhisuan/graphchat/store/redis"
	sqlitestore "github.com/zhisuan/graphchat/store/sqlite"
	"github.com/zhisuan/graphchat/weather"
	"github.com/zhisuan/graphchat/workflow"
)

func main() {
	_ = godotenv.Load()

	logger := log.NewGologLogger(golog.New())
	logger.SetLevel(log.ParseLevel(os.Getenv("GRAPHCHAT_LOG_LEVEL")))
	log.SetDefaultLogger(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load configuration: %v", err)
		os.Exit(1)
	}
	holder := config.NewHolder(cfg)

	sessions, err := newSessionStore(cfg)
	if err != nil {
		logger.Error("open session store: %v", err)
		os.Exit(1)
	}
	defer sessions.Close()

	engine := workflow.NewEngine(workflow.Deps{
		Generator: llm.NewGenerator(holder),
		Retriever: retrieval.NewClient(holder),
		Extractor: extract.NewExtractor(holder),
		Weather:   weather.NewClient(),
		Expense:   expense.NewClient(holder),
		Config:    holder,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(engine, holder, sessions).Router(),
	}

	go func() {
		logger.Info("listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server: %v", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown: %v", err)
	}
}

func newSessionStore(cfg *config.Config) (store.SessionStore, error) {
	switch cfg.SessionBackend {
	case "redis":
		return redisstore.NewSessionStore(redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}), nil
	default:
		return sqlitestore.NewSessionStore(sqlitestore.Options{Path: cfg.SQLitePath})
	}
}
