package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/use-agent/listcrawl/api"
	"github.com/use-agent/listcrawl/api/handler"
	"github.com/use-agent/listcrawl/jobs"
	"github.com/use-agent/listcrawl/webhook"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API for crawl jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "listen host"},
			&cli.IntFlag{Name: "port", Usage: "listen port"},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("host") {
		cfg.Server.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}

	slog.Info("listcrawl starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"engines", cfg.Engine.Engines,
		"auth", cfg.Auth.Enabled,
	)
	if cfg.LLM.APIKey == "" {
		slog.Warn("no LLM API key configured; every crawl job will extract nothing")
	}

	st, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	store := jobs.New(cfg.Jobs)
	defer store.Stop()

	// Jobs outlive their requests but not the server.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	router := api.NewRouter(api.Options{
		Service: &handler.CrawlService{
			Dispatcher: st.dispatcher,
			Cleaner:    st.cleaner,
			Extractor:  st.extractor,
			Config:     cfg,
			Jobs:       store,
			Webhooks:   webhook.NewSender(),
			Ctx:        jobCtx,
		},
		Engines:   st.dispatcher.Engines(),
		Sessions:  st.sessionStats(),
		StartTime: time.Now(),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	// Stop accepting work, then cancel running crawls between pages.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}
	cancelJobs()

	slog.Info("listcrawl stopped")
	return nil
}
