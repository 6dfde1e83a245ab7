package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/mohammad-safakhou/ideascope/config"
	"github.com/mohammad-safakhou/ideascope/internal/forum"
	"github.com/mohammad-safakhou/ideascope/internal/interact"
	"github.com/mohammad-safakhou/ideascope/internal/llm"
	"github.com/mohammad-safakhou/ideascope/internal/persist"
	"github.com/mohammad-safakhou/ideascope/internal/pipeline"
	"github.com/mohammad-safakhou/ideascope/internal/telemetry"
)

// app holds the collaborators shared by every run of one process.
type app struct {
	cfg     *config.Config
	deps    pipeline.Deps
	tel     *telemetry.Telemetry
	files   *persist.FileStore
	pg      *persist.PostgresStore
	closers []func() error
	logOut  io.Writer
}

func logWriter(cfg *config.Config) io.Writer {
	switch strings.ToLower(cfg.General.LogLevel) {
	case "error", "quiet", "off":
		return io.Discard
	}
	return os.Stderr
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.LLM.Validate(); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logOut: logWriter(cfg)}
	a.tel = telemetry.NewTelemetry(cfg.Telemetry, a.logger("[TELEMETRY] "))

	gen, err := llm.NewClientFromConfig(cfg.LLM, a.logger("[LLM] "), a.tel)
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}

	window, err := forum.ParseWindow(cfg.Forum.TimeWindow)
	if err != nil {
		return nil, err
	}

	var searcher forum.Searcher = forum.NewRedditClient(cfg.Forum, a.logger("[FORUM] "))
	if r := cfg.Storage.Redis; r.Enabled() {
		rdb, err := forum.Conn(ctx, r.Host, r.Port, r.Password, r.DB, r.Timeout)
		if err != nil {
			a.logger("[FORUM] ").Printf("redis unavailable, searching without cache: %v", err)
		} else {
			a.closers = append(a.closers, rdb.Close)
			searcher = forum.NewCachedSearcher(searcher, forum.NewRedisCache(rdb), cfg.Forum.CacheTTL, a.logger("[FORUM] "))
		}
	}
	a.files = persist.NewFileStore(cfg.General.DataDir, a.logger("[STORE] "))
	if cfg.Storage.Postgres.Enabled() {
		pctx := ctx
		if t := cfg.Storage.Postgres.Timeout; t > 0 {
			var cancel context.CancelFunc
			pctx, cancel = context.WithTimeout(ctx, t)
			defer cancel()
		}
		pg, err := persist.NewPostgresStore(pctx, cfg.Storage.Postgres.DSN())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.pg = pg
		a.closers = append(a.closers, pg.Close)
	}

	a.deps = pipeline.Deps{
		Generator: gen,
		Searcher:  searcher,
		Window:    window,
		Config:    cfg.Pipeline,
		Logger:    a.logger("[ORCH] "),
		AggLogger: a.logger("[AGG] "),
		Observer:  a.tel,
	}
	return a, nil
}

func (a *app) logger(prefix string) *log.Logger {
	return log.New(a.logOut, prefix, log.LstdFlags)
}

func (a *app) sinks() []pipeline.Sink {
	sinks := []pipeline.Sink{a.files}
	if a.pg != nil {
		sinks = append(sinks, a.pg)
	}
	return sinks
}

// service builds a run service around answers.
func (a *app) service(answers interact.AnswerSource) (*pipeline.Service, error) {
	orch, err := pipeline.NewDefaultOrchestrator(a.deps, answers)
	if err != nil {
		return nil, err
	}
	return pipeline.NewService(orch, a.logger("[ORCH] "), a.sinks()...), nil
}

func (a *app) Close() {
	a.tel.Shutdown()
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}
